package rolepanel

import (
	"faceit-rolebot/internal/storage"

	"github.com/bwmarrin/discordgo"
)

const (
	CustomIDRoleSelect     = "multi_role_select"
	CustomIDPersonalButton = "select_roles_button"

	// NoRolesValue is the value of the placeholder option shown when no
	// configurable role resolves. It is never applied as a role.
	NoRolesValue = "no_roles"

	// MaxOptions is Discord's limit on select menu options.
	MaxOptions = 25
)

// RoleInfo is a configurable role resolved against the live guild roles.
type RoleInfo struct {
	ID    string
	Name  string
	Icon  string
	Color int
}

// Texts holds the user-facing strings of the panel.
type Texts struct {
	Title          string
	Description    string
	Placeholder    string
	EmptyOption    string
	PersonalButton string
}

// DefaultTexts are the Turkish panel strings.
func DefaultTexts() Texts {
	return Texts{
		Title:          "Rol Seçimi",
		Description:    "Aşağıdaki menüden almak istediğin rolleri seç. Seçmediğin roller kaldırılır.",
		Placeholder:    "Rollerini seç",
		EmptyOption:    "Rol bulunamadı",
		PersonalButton: "Rollerimi düzenle",
	}
}

// BuildSelect renders the role select menu. memberRoles marks the options
// the member already holds; pass nil for the shared panel. The boolean
// reports whether options were dropped to stay within MaxOptions.
func BuildSelect(texts Texts, roles []RoleInfo, emojis map[string]storage.RoleEmoji, memberRoles []string) (discordgo.SelectMenu, bool) {
	held := make(map[string]struct{}, len(memberRoles))
	for _, id := range memberRoles {
		held[id] = struct{}{}
	}

	truncated := false
	if len(roles) > MaxOptions {
		roles = roles[:MaxOptions]
		truncated = true
	}

	options := make([]discordgo.SelectMenuOption, 0, len(roles))
	for _, role := range roles {
		_, holds := held[role.ID]
		option := discordgo.SelectMenuOption{
			Label:   role.Name,
			Value:   role.ID,
			Default: holds,
		}
		if emoji, ok := emojis[role.ID]; ok && (emoji.ID != "" || emoji.Name != "") {
			option.Emoji = &discordgo.ComponentEmoji{ID: emoji.ID, Name: emoji.Name, Animated: emoji.Animated}
		}
		options = append(options, option)
	}
	if len(options) == 0 {
		options = append(options, discordgo.SelectMenuOption{
			Label: texts.EmptyOption,
			Value: NoRolesValue,
		})
	}

	minValues := 0
	return discordgo.SelectMenu{
		CustomID:    CustomIDRoleSelect,
		Placeholder: texts.Placeholder,
		MinValues:   &minValues,
		MaxValues:   max(1, len(options)),
		Options:     options,
	}, truncated
}

func panelComponents(texts Texts, menu discordgo.SelectMenu) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{menu}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    texts.PersonalButton,
				Style:    discordgo.SecondaryButton,
				CustomID: CustomIDPersonalButton,
			},
		}},
	}
}

// SelectComponents wraps a select menu for an ephemeral reply.
func SelectComponents(menu discordgo.SelectMenu) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{menu}},
	}
}

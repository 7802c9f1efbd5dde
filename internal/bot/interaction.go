package bot

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		if opt != nil {
			out[opt.Name] = opt
		}
	}
	return out
}

func pendingKey(guildID, userID string) string {
	return guildID + ":" + userID
}

// modalValue returns the trimmed value of the text input with customID.
func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		var components []discordgo.MessageComponent
		switch r := row.(type) {
		case *discordgo.ActionsRow:
			components = r.Components
		case discordgo.ActionsRow:
			components = r.Components
		default:
			continue
		}
		for _, component := range components {
			switch input := component.(type) {
			case *discordgo.TextInput:
				if input.CustomID == customID {
					return strings.TrimSpace(input.Value)
				}
			case discordgo.TextInput:
				if input.CustomID == customID {
					return strings.TrimSpace(input.Value)
				}
			}
		}
	}
	return ""
}

// formatWait rounds a retry delay up to whole seconds, or minutes past one.
func formatWait(d time.Duration) string {
	if d > time.Minute {
		return (d + time.Minute - 1).Truncate(time.Minute).String()
	}
	if d < time.Second {
		d = time.Second
	}
	return (d + time.Second - 1).Truncate(time.Second).String()
}

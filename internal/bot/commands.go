package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	cmdSendRolePanel    = "send-role-panel"
	cmdRefreshRolePanel = "refresh-role-panel"
	cmdFaceitButton     = "faceit-role-button"
	cmdSetLevelRole     = "set-level-role"
	cmdSetRoleEmoji     = "set-role-emoji"
	cmdRankSync         = "rank-sync"
	cmdRankReport       = "rank-report"
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	manageRoles := int64(discordgo.PermissionManageRoles)
	guildOnly := false
	minLevel := float64(1)

	admin := func(cmd *discordgo.ApplicationCommand) *discordgo.ApplicationCommand {
		cmd.DefaultMemberPermissions = &manageRoles
		cmd.DMPermission = &guildOnly
		return cmd
	}
	description := func(key string) (string, *map[discordgo.Locale]string) {
		localizations := localized(key)
		return translate("en", key), &localizations
	}
	option := func(kind discordgo.ApplicationCommandOptionType, name, key string, required bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:                     kind,
			Name:                     name,
			Description:              translate("en", key),
			DescriptionLocalizations: localized(key),
			Required:                 required,
		}
	}

	sendPanel, sendPanelLoc := description("cmd_send_panel")
	refreshPanel, refreshPanelLoc := description("cmd_refresh_panel")
	faceitButton, faceitButtonLoc := description("cmd_faceit_button")
	setLevelRole, setLevelRoleLoc := description("cmd_set_level_role")
	setRoleEmoji, setRoleEmojiLoc := description("cmd_set_role_emoji")
	rankSync, rankSyncLoc := description("cmd_rank_sync")
	rankReport, rankReportLoc := description("cmd_rank_report")

	channel := option(discordgo.ApplicationCommandOptionChannel, "channel", "opt_channel", false)
	channel.ChannelTypes = []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews}

	level := option(discordgo.ApplicationCommandOptionInteger, "level", "opt_level", true)
	level.MinValue = &minLevel
	level.MaxValue = 10

	return []*discordgo.ApplicationCommand{
		admin(&discordgo.ApplicationCommand{
			Name:                     cmdSendRolePanel,
			Description:              sendPanel,
			DescriptionLocalizations: sendPanelLoc,
			Options:                  []*discordgo.ApplicationCommandOption{channel},
		}),
		admin(&discordgo.ApplicationCommand{
			Name:                     cmdRefreshRolePanel,
			Description:              refreshPanel,
			DescriptionLocalizations: refreshPanelLoc,
		}),
		admin(&discordgo.ApplicationCommand{
			Name:                     cmdFaceitButton,
			Description:              faceitButton,
			DescriptionLocalizations: faceitButtonLoc,
		}),
		admin(&discordgo.ApplicationCommand{
			Name:                     cmdSetLevelRole,
			Description:              setLevelRole,
			DescriptionLocalizations: setLevelRoleLoc,
			Options: []*discordgo.ApplicationCommandOption{
				level,
				option(discordgo.ApplicationCommandOptionRole, "role", "opt_role", true),
			},
		}),
		admin(&discordgo.ApplicationCommand{
			Name:                     cmdSetRoleEmoji,
			Description:              setRoleEmoji,
			DescriptionLocalizations: setRoleEmojiLoc,
			Options: []*discordgo.ApplicationCommandOption{
				option(discordgo.ApplicationCommandOptionRole, "role", "opt_role", true),
				option(discordgo.ApplicationCommandOptionString, "emoji", "opt_emoji", true),
			},
		}),
		admin(&discordgo.ApplicationCommand{
			Name:                     cmdRankSync,
			Description:              rankSync,
			DescriptionLocalizations: rankSyncLoc,
		}),
		admin(&discordgo.ApplicationCommand{
			Name:                     cmdRankReport,
			Description:              rankReport,
			DescriptionLocalizations: rankReportLoc,
		}),
	}
}

// registerCommands makes the global command set match commandDefinitions and
// removes leftover guild-scoped commands with unknown names.
func (b *Bot) registerCommands(ctx context.Context) error {
	appID := b.cfg.ApplicationID
	if appID == "" && b.session.State != nil && b.session.State.User != nil {
		appID = b.session.State.User.ID
	}

	commands := commandDefinitions()
	existing, err := b.session.ApplicationCommands(appID, "", discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	existingByName := make(map[string]*discordgo.ApplicationCommand, len(existing))
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{}, len(commands))
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd, discordgo.WithContext(ctx)); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		if err := b.session.ApplicationCommandDelete(appID, "", cmd.ID, discordgo.WithContext(ctx)); err != nil {
			b.logger.Warn("delete stale command failed", zap.String("command", cmd.Name), zap.Error(err))
		}
	}

	if b.session.State == nil {
		return nil
	}
	for _, guild := range b.session.State.Guilds {
		if guild == nil {
			continue
		}
		guildCmds, err := b.session.ApplicationCommands(appID, guild.ID, discordgo.WithContext(ctx))
		if err != nil {
			continue
		}
		for _, cmd := range guildCmds {
			if _, ok := desired[cmd.Name]; ok {
				continue
			}
			_ = b.session.ApplicationCommandDelete(appID, guild.ID, cmd.ID, discordgo.WithContext(ctx))
		}
	}
	b.logger.Info("slash commands registered", zap.Int("count", len(commands)))
	return nil
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"faceit-rolebot/internal/modules/audit"
	"faceit-rolebot/internal/platform"
	"faceit-rolebot/internal/rolepanel"
	"faceit-rolebot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	customIDPanelRoles    = "select_roles_for_panel"
	customIDFaceitRequest = "faceit_role_request_button"
	customIDFaceitModal   = "modal_faceit_nickname_submit"
	customIDFaceitInput   = "faceit_nickname_input"

	interactionTimeout = 30 * time.Second
	reportWindow       = 7 * 24 * time.Hour
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	lang := b.language(interaction)
	if interaction.GuildID == "" || interaction.Member == nil || interaction.Member.User == nil {
		if interaction.Type != discordgo.InteractionPing {
			b.respond(session, interaction, b.t(lang, "error_only_guild"), true)
		}
		return
	}

	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, session, interaction, lang)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, session, interaction, lang)
	case discordgo.InteractionModalSubmit:
		b.handleModal(ctx, session, interaction, lang)
	}
}

func (b *Bot) handleCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string) {
	data := interaction.ApplicationCommandData()
	options := optionMap(data.Options)

	switch data.Name {
	case cmdSendRolePanel:
		b.handleSendRolePanel(ctx, session, interaction, lang, options)
	case cmdRefreshRolePanel:
		result, err := b.panels.Publish(ctx, interaction.GuildID, "", false)
		b.respond(session, interaction, b.publishMessage(lang, result, err), true)
	case cmdFaceitButton:
		b.handleFaceitButton(ctx, session, interaction, lang)
	case cmdSetLevelRole:
		b.handleSetLevelRole(ctx, session, interaction, lang, options)
	case cmdSetRoleEmoji:
		b.handleSetRoleEmoji(ctx, session, interaction, lang, options)
	case cmdRankSync:
		if !b.scheduler.Trigger() {
			b.respond(session, interaction, b.t(lang, "sync_running"), true)
			return
		}
		b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, interaction.Member.User.ID, audit.EventSyncPass, "trigger=manual")
		b.respond(session, interaction, b.t(lang, "sync_started"), true)
	case cmdRankReport:
		report, err := b.analytics.Report(ctx, interaction.GuildID, time.Now().Add(-reportWindow))
		if err != nil {
			b.logger.Error("rank report failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
			b.respondEmbed(session, interaction, b.commandEmbed(b.t(lang, "report_title"), b.t(lang, "report_failed"), b.cfg.EmbedColors.Error, nil), true)
			return
		}
		b.respondEmbed(session, interaction, b.buildReportEmbed(lang, report, b.scheduler.LastReport()), true)
	default:
		b.respond(session, interaction, b.t(lang, "error_unknown"), true)
	}
}

// handleSendRolePanel asks the admin which roles the panel offers. The panel
// is posted once the pick arrives on select_roles_for_panel.
func (b *Bot) handleSendRolePanel(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	channelID := interaction.ChannelID
	if opt, ok := options["channel"]; ok {
		channelID = opt.ChannelValue(nil).ID
	}
	b.pendingPanels.Set(pendingKey(interaction.GuildID, interaction.Member.User.ID), channelID, cache.DefaultExpiration)

	minValues := 1
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{
				b.commandEmbed(b.t(lang, "panel_pick_title"), fmt.Sprintf(b.t(lang, "panel_pick_desc"), channelID), b.cfg.EmbedColors.Action, nil),
			},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.SelectMenu{
						MenuType:    discordgo.RoleSelectMenu,
						CustomID:    customIDPanelRoles,
						Placeholder: b.t(lang, "panel_pick_hint"),
						MinValues:   &minValues,
						MaxValues:   rolepanel.MaxOptions,
					},
				}},
			},
		},
	})
	if err != nil {
		b.logger.Warn("role panel picker failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
	}
}

func (b *Bot) handleFaceitButton(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string) {
	_, err := b.platform.SendMessage(ctx, interaction.ChannelID, platform.Message{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       b.t(lang, "faceit_title"),
			Description: b.t(lang, "faceit_desc"),
			Color:       b.cfg.EmbedColors.Action,
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    b.t(lang, "faceit_button"),
					Style:    discordgo.PrimaryButton,
					CustomID: customIDFaceitRequest,
				},
			}},
		},
	})
	if err != nil {
		b.logger.Warn("faceit button post failed", zap.String("guild_id", interaction.GuildID), zap.String("channel_id", interaction.ChannelID), zap.Error(err))
		b.respond(session, interaction, b.t(lang, "faceit_post_failed"), true)
		return
	}
	b.respond(session, interaction, b.t(lang, "faceit_posted"), true)
}

func (b *Bot) handleSetLevelRole(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	levelOpt, okLevel := options["level"]
	roleOpt, okRole := options["role"]
	if !okLevel || !okRole {
		b.respond(session, interaction, b.t(lang, "error_unknown"), true)
		return
	}
	level := int(levelOpt.IntValue())
	if level < 1 || level > 10 {
		b.respond(session, interaction, b.t(lang, "level_invalid"), true)
		return
	}
	roleID := roleOpt.RoleValue(nil, "").ID

	cfg, err := b.store.GetGuildConfig(ctx, interaction.GuildID)
	if err != nil {
		b.logger.Error("load guild config failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respond(session, interaction, b.t(lang, "config_failed"), true)
		return
	}
	levelRoles := make(map[string]string, len(cfg.FaceitLevelRoles)+1)
	for key, value := range cfg.FaceitLevelRoles {
		levelRoles[key] = value
	}
	levelRoles[strconv.Itoa(level)] = roleID
	if err := b.store.SetFaceitLevelRoles(ctx, interaction.GuildID, levelRoles); err != nil {
		b.logger.Error("save level roles failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respond(session, interaction, b.t(lang, "config_failed"), true)
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, interaction.Member.User.ID, audit.EventConfigChanged,
		fmt.Sprintf("level_role level=%d role=%s", level, roleID))
	b.respond(session, interaction, fmt.Sprintf(b.t(lang, "level_role_set"), level, roleID), true)
}

func (b *Bot) handleSetRoleEmoji(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	roleOpt, okRole := options["role"]
	emojiOpt, okEmoji := options["emoji"]
	if !okRole || !okEmoji {
		b.respond(session, interaction, b.t(lang, "error_unknown"), true)
		return
	}
	emoji, ok := parseEmoji(emojiOpt.StringValue())
	if !ok {
		b.respond(session, interaction, b.t(lang, "emoji_invalid"), true)
		return
	}
	roleID := roleOpt.RoleValue(nil, "").ID

	cfg, err := b.store.GetGuildConfig(ctx, interaction.GuildID)
	if err != nil {
		b.logger.Error("load guild config failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respond(session, interaction, b.t(lang, "config_failed"), true)
		return
	}
	mappings := make(map[string]storage.RoleEmoji, len(cfg.RoleEmojiMappings)+1)
	for key, value := range cfg.RoleEmojiMappings {
		mappings[key] = value
	}
	mappings[roleID] = emoji
	if err := b.store.SetRoleEmojiMappings(ctx, interaction.GuildID, mappings); err != nil {
		b.logger.Error("save role emoji failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.respond(session, interaction, b.t(lang, "config_failed"), true)
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, interaction.Member.User.ID, audit.EventConfigChanged,
		fmt.Sprintf("role_emoji role=%s emoji=%s", roleID, formatEmoji(emoji)))

	if cfg.HasPanel() && cfg.IsConfigurable(roleID) {
		if _, err := b.panels.Publish(ctx, interaction.GuildID, "", false); err != nil {
			b.logger.Warn("role panel refresh after emoji change failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		}
	}
	b.respond(session, interaction, fmt.Sprintf(b.t(lang, "emoji_set"), roleID, formatEmoji(emoji)), true)
}

func (b *Bot) handleComponent(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string) {
	data := interaction.MessageComponentData()
	switch data.CustomID {
	case customIDPanelRoles:
		b.handlePanelRoles(ctx, session, interaction, lang, data.Values)
	case rolepanel.CustomIDPersonalButton:
		msg, err := b.panels.MemberSelect(ctx, interaction.GuildID, interaction.Member.User.ID)
		if err != nil {
			b.logger.Warn("personal role select failed", zap.String("guild_id", interaction.GuildID), zap.String("user_id", interaction.Member.User.ID), zap.Error(err))
			b.respond(session, interaction, b.t(lang, "selection_failed"), true)
			return
		}
		if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags:      discordgo.MessageFlagsEphemeral,
				Components: msg.Components,
			},
		}); err != nil {
			b.logger.Warn("interaction respond failed", zap.Error(err))
		}
	case rolepanel.CustomIDRoleSelect:
		if !b.deferEphemeral(session, interaction) {
			return
		}
		_, message, err := b.panels.HandleRoleInteraction(ctx, data.Values, interaction.GuildID, interaction.Member.User.ID, summaryTexts(lang))
		if err != nil {
			b.logger.Warn("apply role selection failed", zap.String("guild_id", interaction.GuildID), zap.String("user_id", interaction.Member.User.ID), zap.Error(err))
			message = b.t(lang, "selection_failed")
		}
		b.followup(session, interaction, message)
	case customIDFaceitRequest:
		b.openNicknameModal(session, interaction, lang)
	}
}

func (b *Bot) handlePanelRoles(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string, roleIDs []string) {
	if interaction.Member.Permissions&discordgo.PermissionManageRoles == 0 {
		b.respond(session, interaction, b.t(lang, "error_no_permission"), true)
		return
	}
	if !b.deferEphemeral(session, interaction) {
		return
	}

	key := pendingKey(interaction.GuildID, interaction.Member.User.ID)
	channelID := interaction.ChannelID
	if cached, ok := b.pendingPanels.Get(key); ok {
		channelID = cached.(string)
	}
	b.pendingPanels.Delete(key)

	if err := b.store.SetConfigurableRoles(ctx, interaction.GuildID, roleIDs); err != nil {
		b.logger.Error("save configurable roles failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
		b.followup(session, interaction, b.t(lang, "config_failed"))
		return
	}
	b.audit.Log(ctx, audit.LevelInfo, interaction.GuildID, interaction.Member.User.ID, audit.EventConfigChanged,
		fmt.Sprintf("configurable_roles count=%d", len(roleIDs)))

	result, err := b.panels.Publish(ctx, interaction.GuildID, channelID, true)
	b.followup(session, interaction, b.publishMessage(lang, result, err))
}

func (b *Bot) openNicknameModal(session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string) {
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customIDFaceitModal,
			Title:    b.t(lang, "modal_title"),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    customIDFaceitInput,
						Label:       b.t(lang, "modal_label"),
						Style:       discordgo.TextInputShort,
						Placeholder: b.t(lang, "modal_placeholder"),
						Required:    true,
						MinLength:   2,
						MaxLength:   32,
					},
				}},
			},
		},
	})
	if err != nil {
		b.logger.Warn("open nickname modal failed", zap.Error(err))
	}
}

func (b *Bot) handleModal(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, lang string) {
	data := interaction.ModalSubmitData()
	if data.CustomID != customIDFaceitModal {
		return
	}
	if !b.deferEphemeral(session, interaction) {
		return
	}
	nickname := modalValue(data, customIDFaceitInput)
	if nickname == "" {
		b.followup(session, interaction, b.t(lang, "modal_empty"))
		return
	}
	if ok, retry := b.throttle.Allow(ctx, interaction.GuildID, interaction.Member.User.ID); !ok {
		b.followup(session, interaction, fmt.Sprintf(b.t(lang, "request_throttled"), formatWait(retry)))
		return
	}
	outcome := b.ranks.RequestRank(ctx, nickname, interaction.GuildID, interaction.Member.User.ID)
	b.followup(session, interaction, outcome.Message(lang))
}

func (b *Bot) publishMessage(lang string, result rolepanel.PublishResult, err error) string {
	switch {
	case errors.Is(err, rolepanel.ErrNoChannel):
		return b.t(lang, "panel_no_channel")
	case err != nil && result.MessageID != "":
		b.logger.Error("role panel saved state lost", zap.String("message_id", result.MessageID), zap.Error(err))
		return b.t(lang, "panel_not_saved")
	case err != nil:
		b.logger.Warn("role panel publish failed", zap.Error(err))
		return b.t(lang, "panel_failed")
	}
	switch result.Action {
	case rolepanel.ActionEdited:
		return b.t(lang, "panel_edited")
	case rolepanel.ActionRecreated:
		return fmt.Sprintf(b.t(lang, "panel_recreated"), result.ChannelID)
	default:
		return fmt.Sprintf(b.t(lang, "panel_created"), result.ChannelID)
	}
}

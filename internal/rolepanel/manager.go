// Package rolepanel keeps one self-service role panel message per guild and
// applies member selections as an exact diff over the configurable roles.
package rolepanel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"faceit-rolebot/internal/metrics"
	"faceit-rolebot/internal/modules/audit"
	"faceit-rolebot/internal/platform"
	"faceit-rolebot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var ErrNoChannel = errors.New("role panel channel is not set")

// Platform is the Discord surface the manager needs.
type Platform interface {
	GuildRoles(ctx context.Context, guildID string) ([]platform.Role, error)
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID string) error
	SendMessage(ctx context.Context, channelID string, msg platform.Message) (string, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg platform.Message) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

type ConfigStore interface {
	GetGuildConfig(ctx context.Context, guildID string) (storage.GuildConfig, error)
	SetRolePanel(ctx context.Context, guildID, channelID, messageID string) error
}

type Manager struct {
	platform Platform
	store    ConfigStore
	logger   *zap.Logger
	audit    *audit.Logger
	metrics  *metrics.Registry
	texts    Texts
	color    int
}

type Options struct {
	Texts   Texts
	Color   int
	Audit   *audit.Logger
	Metrics *metrics.Registry
}

func New(p Platform, store ConfigStore, logger *zap.Logger, opts Options) *Manager {
	if opts.Texts == (Texts{}) {
		opts.Texts = DefaultTexts()
	}
	return &Manager{
		platform: p,
		store:    store,
		logger:   logger,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		texts:    opts.Texts,
		color:    opts.Color,
	}
}

// FetchRolesInfo resolves the configurable roles of a guild to live roles,
// in configured order. Roles deleted from the guild are skipped.
func (m *Manager) FetchRolesInfo(ctx context.Context, guildID string) ([]RoleInfo, error) {
	cfg, err := m.store.GetGuildConfig(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("load guild config: %w", err)
	}
	return m.rolesInfo(ctx, cfg)
}

func (m *Manager) rolesInfo(ctx context.Context, cfg storage.GuildConfig) ([]RoleInfo, error) {
	if len(cfg.ConfigurableRoleIDs) == 0 {
		return nil, nil
	}
	live, err := m.platform.GuildRoles(ctx, cfg.GuildID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]platform.Role, len(live))
	for _, role := range live {
		byID[role.ID] = role
	}

	seen := make(map[string]struct{}, len(cfg.ConfigurableRoleIDs))
	infos := make([]RoleInfo, 0, len(cfg.ConfigurableRoleIDs))
	for _, id := range cfg.ConfigurableRoleIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		role, ok := byID[id]
		if !ok {
			m.logger.Debug("configured role missing from guild", zap.String("guild_id", cfg.GuildID), zap.String("role_id", id))
			continue
		}
		infos = append(infos, RoleInfo{ID: role.ID, Name: role.Name, Icon: role.Icon, Color: role.Color})
	}
	return infos, nil
}

// offeredRoles are the roles a select menu built from cfg lists.
func (m *Manager) offeredRoles(ctx context.Context, cfg storage.GuildConfig) ([]RoleInfo, error) {
	roles, err := m.rolesInfo(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(roles) > MaxOptions {
		roles = roles[:MaxOptions]
	}
	return roles, nil
}

// MemberSelect renders the select menu with the member's current roles preselected.
func (m *Manager) MemberSelect(ctx context.Context, guildID, memberID string) (platform.Message, error) {
	cfg, err := m.store.GetGuildConfig(ctx, guildID)
	if err != nil {
		return platform.Message{}, fmt.Errorf("load guild config: %w", err)
	}
	roles, err := m.rolesInfo(ctx, cfg)
	if err != nil {
		return platform.Message{}, err
	}
	held, err := m.platform.MemberRoles(ctx, guildID, memberID)
	if err != nil {
		return platform.Message{}, err
	}
	menu, truncated := BuildSelect(m.texts, roles, cfg.RoleEmojiMappings, held)
	if truncated {
		m.warnTruncated(guildID, len(roles))
	}
	return platform.Message{Components: SelectComponents(menu)}, nil
}

func (m *Manager) panelMessage(cfg storage.GuildConfig, roles []RoleInfo) platform.Message {
	menu, truncated := BuildSelect(m.texts, roles, cfg.RoleEmojiMappings, nil)
	if truncated {
		m.warnTruncated(cfg.GuildID, len(roles))
	}
	return platform.Message{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       m.texts.Title,
			Description: m.texts.Description,
			Color:       m.color,
		}},
		Components: panelComponents(m.texts, menu),
	}
}

func (m *Manager) warnTruncated(guildID string, count int) {
	m.logger.Warn("role panel truncated", zap.String("guild_id", guildID), zap.Int("roles", count), zap.Int("max_options", MaxOptions))
}

const (
	ActionCreated   = "created"
	ActionEdited    = "edited"
	ActionRecreated = "recreated"
	ActionFailed    = "failed"
)

type PublishResult struct {
	Action    string
	ChannelID string
	MessageID string
}

// Publish creates or updates the guild's role panel. An empty channelID
// targets the stored panel channel. The existing panel is edited in place
// unless force is set or the channel changed; a panel deleted out of band is
// recreated. When a new panel replaces a live one, the old message is
// deleted best-effort.
func (m *Manager) Publish(ctx context.Context, guildID, channelID string, force bool) (PublishResult, error) {
	cfg, err := m.store.GetGuildConfig(ctx, guildID)
	if err != nil {
		return PublishResult{}, fmt.Errorf("load guild config: %w", err)
	}
	if channelID == "" {
		channelID = cfg.RolePanelChannelID
	}
	if channelID == "" {
		return PublishResult{}, ErrNoChannel
	}

	roles, err := m.rolesInfo(ctx, cfg)
	if err != nil {
		m.metrics.Publish(ActionFailed)
		return PublishResult{}, err
	}
	msg := m.panelMessage(cfg, roles)

	action := ActionCreated
	replaceOld := cfg.HasPanel()
	if cfg.HasPanel() && !force && cfg.RolePanelChannelID == channelID {
		err := m.platform.EditMessage(ctx, channelID, cfg.RolePanelMessageID, msg)
		if err == nil {
			m.metrics.Publish(ActionEdited)
			return PublishResult{Action: ActionEdited, ChannelID: channelID, MessageID: cfg.RolePanelMessageID}, nil
		}
		if !errors.Is(err, platform.ErrUnknownMessage) {
			m.metrics.Publish(ActionFailed)
			return PublishResult{}, fmt.Errorf("edit role panel: %w", err)
		}
		m.logger.Info("role panel message gone, recreating",
			zap.String("guild_id", guildID), zap.String("message_id", cfg.RolePanelMessageID))
		action = ActionRecreated
		replaceOld = false
	}

	messageID, err := m.platform.SendMessage(ctx, channelID, msg)
	if err != nil {
		m.metrics.Publish(ActionFailed)
		return PublishResult{}, fmt.Errorf("send role panel: %w", err)
	}
	m.metrics.Publish(action)
	result := PublishResult{Action: action, ChannelID: channelID, MessageID: messageID}

	if replaceOld {
		m.deleteOldPanel(ctx, guildID, cfg.RolePanelChannelID, cfg.RolePanelMessageID)
	}

	m.audit.Log(ctx, audit.LevelInfo, guildID, "", audit.EventRolePanel,
		fmt.Sprintf("action=%s channel=%s message=%s roles=%d", action, channelID, messageID, len(roles)))

	if err := m.store.SetRolePanel(ctx, guildID, channelID, messageID); err != nil {
		m.logger.Error("persist role panel failed", zap.String("guild_id", guildID), zap.String("message_id", messageID), zap.Error(err))
		return result, fmt.Errorf("persist role panel: %w", err)
	}
	return result, nil
}

func (m *Manager) deleteOldPanel(ctx context.Context, guildID, channelID, messageID string) {
	err := m.platform.DeleteMessage(ctx, channelID, messageID)
	if err == nil || errors.Is(err, platform.ErrUnknownMessage) {
		return
	}
	m.logger.Warn("delete old role panel failed",
		zap.String("guild_id", guildID), zap.String("message_id", messageID), zap.Error(err))
}

// RoleFailure is one grant or revocation that Discord rejected.
type RoleFailure struct {
	RoleID string
	Op     string
	Err    error
}

type SelectionSummary struct {
	Granted   []string
	Revoked   []string
	Unchanged []string
	Failed    []RoleFailure
}

func (s SelectionSummary) Changed() bool {
	return len(s.Granted) > 0 || len(s.Revoked) > 0
}

// ApplySelection makes the member hold exactly the selected roles among the
// roles the select menu offers. Roles outside that set are never touched and a
// failed role operation does not stop the others.
func (m *Manager) ApplySelection(ctx context.Context, guildID, memberID string, selected []string) (SelectionSummary, error) {
	cfg, err := m.store.GetGuildConfig(ctx, guildID)
	if err != nil {
		return SelectionSummary{}, fmt.Errorf("load guild config: %w", err)
	}
	offered, err := m.offeredRoles(ctx, cfg)
	if err != nil {
		return SelectionSummary{}, err
	}
	current, err := m.platform.MemberRoles(ctx, guildID, memberID)
	if err != nil {
		return SelectionSummary{}, err
	}

	held := make(map[string]struct{}, len(current))
	for _, id := range current {
		held[id] = struct{}{}
	}
	wanted := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		wanted[id] = struct{}{}
	}

	var summary SelectionSummary
	for _, role := range offered {
		roleID := role.ID
		_, has := held[roleID]
		_, want := wanted[roleID]
		switch {
		case want && !has:
			err := m.platform.AddMemberRole(ctx, guildID, memberID, roleID)
			m.metrics.RoleOperation("add", err)
			if err != nil {
				summary.Failed = append(summary.Failed, RoleFailure{RoleID: roleID, Op: "add", Err: err})
				m.logger.Warn("grant role failed", zap.String("guild_id", guildID), zap.String("user_id", memberID), zap.String("role_id", roleID), zap.Error(err))
				continue
			}
			summary.Granted = append(summary.Granted, roleID)
		case !want && has:
			err := m.platform.RemoveMemberRole(ctx, guildID, memberID, roleID)
			m.metrics.RoleOperation("remove", err)
			if err != nil {
				summary.Failed = append(summary.Failed, RoleFailure{RoleID: roleID, Op: "remove", Err: err})
				m.logger.Warn("revoke role failed", zap.String("guild_id", guildID), zap.String("user_id", memberID), zap.String("role_id", roleID), zap.Error(err))
				continue
			}
			summary.Revoked = append(summary.Revoked, roleID)
		default:
			summary.Unchanged = append(summary.Unchanged, roleID)
		}
	}

	level := audit.LevelInfo
	if len(summary.Failed) > 0 {
		level = audit.LevelWarn
	}
	if summary.Changed() || len(summary.Failed) > 0 {
		m.audit.Log(ctx, level, guildID, memberID, audit.EventRoleSelection,
			fmt.Sprintf("granted=%s revoked=%s failed=%d", strings.Join(summary.Granted, ","), strings.Join(summary.Revoked, ","), len(summary.Failed)))
	}
	return summary, nil
}

// SummaryTexts are the labels of a selection summary message.
type SummaryTexts struct {
	Granted   string
	Revoked   string
	Failed    string
	NoChanges string
}

func DefaultSummaryTexts() SummaryTexts {
	return SummaryTexts{
		Granted:   "Eklenen roller",
		Revoked:   "Kaldırılan roller",
		Failed:    "Uygulanamayan roller",
		NoChanges: "Rollerinde değişiklik yapılmadı.",
	}
}

// HandleRoleInteraction applies a member's selection and returns the summary
// together with a human readable message.
func (m *Manager) HandleRoleInteraction(ctx context.Context, selected []string, guildID, memberID string, texts SummaryTexts) (SelectionSummary, string, error) {
	summary, err := m.ApplySelection(ctx, guildID, memberID, selected)
	if err != nil {
		return SelectionSummary{}, "", err
	}
	return summary, FormatSummary(summary, texts), nil
}

func FormatSummary(summary SelectionSummary, texts SummaryTexts) string {
	var lines []string
	if len(summary.Granted) > 0 {
		lines = append(lines, fmt.Sprintf("%s: %s", texts.Granted, mentions(summary.Granted)))
	}
	if len(summary.Revoked) > 0 {
		lines = append(lines, fmt.Sprintf("%s: %s", texts.Revoked, mentions(summary.Revoked)))
	}
	if len(summary.Failed) > 0 {
		ids := make([]string, 0, len(summary.Failed))
		for _, failure := range summary.Failed {
			ids = append(ids, failure.RoleID)
		}
		lines = append(lines, fmt.Sprintf("%s: %s", texts.Failed, mentions(ids)))
	}
	if len(lines) == 0 {
		return texts.NoChanges
	}
	return strings.Join(lines, "\n")
}

func mentions(roleIDs []string) string {
	parts := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		parts = append(parts, "<@&"+id+">")
	}
	return strings.Join(parts, ", ")
}

package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"faceit-rolebot/internal/analytics"
	"faceit-rolebot/internal/config"
	"faceit-rolebot/internal/modules/audit"
	"faceit-rolebot/internal/modules/throttle"
	"faceit-rolebot/internal/platform"
	"faceit-rolebot/internal/ranksync"
	"faceit-rolebot/internal/rolepanel"
	"faceit-rolebot/internal/scheduler"
	"faceit-rolebot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Deps are the services the bot dispatches interactions to.
type Deps struct {
	Store     storage.Repository
	Platform  *platform.Client
	Panels    *rolepanel.Manager
	Ranks     *ranksync.Reconciler
	Scheduler *scheduler.Scheduler
	Audit     *audit.Logger
	Analytics *analytics.Service
	Throttle  *throttle.Module
}

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	session   *discordgo.Session
	store     storage.Repository
	platform  *platform.Client
	panels    *rolepanel.Manager
	ranks     *ranksync.Reconciler
	scheduler *scheduler.Scheduler
	audit     *audit.Logger
	analytics *analytics.Service
	throttle  *throttle.Module
	// panel target channels picked with send-role-panel, keyed by guild and admin
	pendingPanels *cache.Cache
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	closeOnce     sync.Once
}

// NewSession prepares a gateway session with the intents the bot relies on.
// Start opens it.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	return session, nil
}

func New(cfg config.Config, logger *zap.Logger, session *discordgo.Session, deps Deps) *Bot {
	return &Bot{
		cfg:           cfg,
		logger:        logger,
		session:       session,
		store:         deps.Store,
		platform:      deps.Platform,
		panels:        deps.Panels,
		ranks:         deps.Ranks,
		scheduler:     deps.Scheduler,
		audit:         deps.Audit,
		analytics:     deps.Analytics,
		throttle:      deps.Throttle,
		pendingPanels: cache.New(15*time.Minute, 30*time.Minute),
		stopCleanup:   make(chan struct{}),
	}
}

func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onRoleCreate)
	b.session.AddHandler(b.onRoleUpdate)
	b.session.AddHandler(b.onRoleDelete)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(ctx); err != nil {
		return err
	}

	b.startAuditCleanup()
	return nil
}

// Close stops the audit cleanup loop, waiting for a running cleanup until ctx
// expires, and closes the gateway session. Calling it again is a no-op.
func (b *Bot) Close(ctx context.Context) {
	b.closeOnce.Do(func() {
		close(b.stopCleanup)
		if b.cleanupDone != nil {
			select {
			case <-b.cleanupDone:
			case <-ctx.Done():
				b.logger.Warn("audit cleanup still running at shutdown")
			}
		}
		if b.session != nil {
			if err := b.session.Close(); err != nil {
				b.logger.Warn("discord session close failed", zap.Error(err))
			}
		}
	})
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onRoleCreate(session *discordgo.Session, event *discordgo.GuildRoleCreate) {
	b.platform.InvalidateRoles(event.GuildID)
}

func (b *Bot) onRoleUpdate(session *discordgo.Session, event *discordgo.GuildRoleUpdate) {
	b.platform.InvalidateRoles(event.GuildID)
}

func (b *Bot) onRoleDelete(session *discordgo.Session, event *discordgo.GuildRoleDelete) {
	b.platform.InvalidateRoles(event.GuildID)
}

// startAuditCleanup trims audit entries past the retention window once a day.
func (b *Bot) startAuditCleanup() {
	if b.cfg.RetentionDays <= 0 {
		return
	}
	b.cleanupDone = make(chan struct{})
	go func() {
		defer close(b.cleanupDone)
		timer := time.NewTimer(time.Minute)
		defer timer.Stop()
		for {
			select {
			case <-b.stopCleanup:
				return
			case <-timer.C:
			}
			if err := b.store.CleanupAuditLogs(context.Background(), b.cfg.RetentionDays); err != nil {
				b.logger.Warn("audit cleanup failed", zap.Error(err))
			}
			timer.Reset(24 * time.Hour)
		}
	}()
}

func (b *Bot) buildReportEmbed(lang string, report analytics.Report, last ranksync.PassReport) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: b.t(lang, "field_tracked"), Value: strconv.Itoa(report.Levels.Total()), Inline: true},
		{Name: b.t(lang, "field_unresolved"), Value: strconv.Itoa(report.Levels.Unresolved), Inline: true},
		{Name: b.t(lang, "field_levels"), Value: b.levelLines(lang, report), Inline: false},
		{Name: b.t(lang, "field_events"), Value: b.eventLines(lang, report), Inline: false},
	}
	if last.PassID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   b.t(lang, "field_last_pass"),
			Value:  fmt.Sprintf("<t:%d:R> %s", last.StartedAt.Unix(), last.String()),
			Inline: false,
		})
	}
	return b.commandEmbed(b.t(lang, "report_title"), b.t(lang, "report_desc"), b.cfg.EmbedColors.Action, fields)
}

func (b *Bot) levelLines(lang string, report analytics.Report) string {
	lines := make([]string, 0, len(report.LevelOrder))
	for _, level := range report.LevelOrder {
		lines = append(lines, fmt.Sprintf("`%2d` %d", level, report.Levels.ByLevel[level]))
	}
	if len(lines) == 0 {
		return b.t(lang, "value_none")
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) eventLines(lang string, report analytics.Report) string {
	events := make([]string, 0, len(report.ByEvent))
	for event := range report.ByEvent {
		events = append(events, event)
	}
	sort.Strings(events)
	lines := make([]string, 0, len(events)+1)
	for _, event := range events {
		lines = append(lines, fmt.Sprintf("%s: %d", event, report.ByEvent[event]))
	}
	if len(lines) == 0 {
		return b.t(lang, "value_none")
	}
	lines = append(lines, formatReport(report))
	return strings.Join(lines, "\n")
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	}); err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

// deferEphemeral acknowledges an interaction whose answer comes later as a
// follow-up.
func (b *Bot) deferEphemeral(session *discordgo.Session, interaction *discordgo.InteractionCreate) bool {
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.logger.Warn("interaction defer failed", zap.Error(err))
		return false
	}
	return true
}

func (b *Bot) followup(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	if _, err := session.FollowupMessageCreate(interaction.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{},
		},
	}); err != nil {
		b.logger.Warn("interaction followup failed", zap.Error(err))
	}
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func formatReport(report analytics.Report) string {
	return fmt.Sprintf("Total: %d | INFO: %d | WARN: %d | CRIT: %d", report.Total, report.ByLevel[audit.LevelInfo], report.ByLevel[audit.LevelWarn], report.ByLevel[audit.LevelCrit])
}

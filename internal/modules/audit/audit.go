package audit

import (
	"context"
	"time"

	"faceit-rolebot/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

// Events recorded in the audit trail.
const (
	EventRolePanel       = "role_panel"
	EventRoleSelection   = "role_selection"
	EventRankChanged     = "rank_changed"
	EventRankRequest     = "rank_request"
	EventRankLookupError = "rank_lookup_failed"
	EventSyncPass        = "rank_sync_pass"
	EventConfigChanged   = "config_changed"
	EventRankThrottled   = "rank_request_throttled"
)

// Sink persists audit entries.
type Sink interface {
	AddAuditLog(ctx context.Context, log storage.AuditLog) error
}

type Logger struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewLogger(sink Sink, logger *zap.Logger) *Logger {
	return &Logger{sink: sink, logger: logger, now: time.Now}
}

// Log writes one entry. A nil *Logger only drops the entry; sink failures
// are logged and never returned.
func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	if l == nil {
		return
	}
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: l.now(),
	}
	if l.sink != nil {
		if err := l.sink.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit write failed", zap.String("guild_id", guildID), zap.String("event", event), zap.Error(err))
		}
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

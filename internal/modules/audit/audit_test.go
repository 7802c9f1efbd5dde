package audit

import (
	"context"
	"errors"
	"testing"

	"faceit-rolebot/internal/storage"

	"go.uber.org/zap"
)

type memorySink struct {
	entries []storage.AuditLog
	err     error
}

func (m *memorySink) AddAuditLog(ctx context.Context, log storage.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, log)
	return nil
}

func TestLogWritesEntry(t *testing.T) {
	sink := &memorySink{}
	logger := NewLogger(sink, zap.NewNop())

	logger.Log(context.Background(), LevelWarn, "g1", "u1", EventRankLookupError, "kind=not_found")

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.Level != LevelWarn || entry.GuildID != "g1" || entry.Event != EventRankLookupError || entry.CreatedAt.IsZero() {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestLogSurvivesSinkFailure(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	logger := NewLogger(sink, zap.NewNop())
	logger.Log(context.Background(), LevelInfo, "g1", "", EventSyncPass, "total=0")

	var nilLogger *Logger
	nilLogger.Log(context.Background(), LevelInfo, "g1", "", EventSyncPass, "total=0")
}

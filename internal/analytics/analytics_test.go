package analytics

import (
	"context"
	"testing"
	"time"

	"faceit-rolebot/internal/storage"

	"github.com/google/go-cmp/cmp"
)

type fakeSource struct {
	logs   []storage.AuditLog
	counts storage.LevelCounts
}

func (f fakeSource) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]storage.AuditLog, error) {
	return f.logs, nil
}

func (f fakeSource) CountTrackedUsersByLevel(ctx context.Context, guildID string) (storage.LevelCounts, error) {
	return f.counts, nil
}

func TestReport(t *testing.T) {
	source := fakeSource{
		logs: []storage.AuditLog{
			{Level: "INFO", Event: "rank_changed"},
			{Level: "INFO", Event: "rank_changed"},
			{Level: "WARN", Event: "rank_lookup_failed"},
		},
		counts: storage.LevelCounts{ByLevel: map[int]int{10: 1, 3: 2}, Unresolved: 1},
	}

	report, err := New(source).Report(context.Background(), "g1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Total != 3 || report.ByLevel["INFO"] != 2 || report.ByEvent["rank_lookup_failed"] != 1 {
		t.Fatalf("unexpected audit counts %+v", report)
	}
	if diff := cmp.Diff([]int{3, 10}, report.LevelOrder); diff != "" {
		t.Fatalf("level order mismatch (-want +got):\n%s", diff)
	}
	if report.Levels.Total() != 4 {
		t.Fatalf("expected 4 tracked users, got %d", report.Levels.Total())
	}
}

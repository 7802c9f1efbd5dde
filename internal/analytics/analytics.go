package analytics

import (
	"context"
	"sort"
	"time"

	"faceit-rolebot/internal/storage"
)

// Source is the read side of the store used for reports.
type Source interface {
	ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]storage.AuditLog, error)
	CountTrackedUsersByLevel(ctx context.Context, guildID string) (storage.LevelCounts, error)
}

type Service struct {
	source Source
}

func New(source Source) *Service {
	return &Service{source: source}
}

// Report summarizes one guild: tracked users by Faceit level and audit
// entries since a point in time.
type Report struct {
	Total      int
	ByLevel    map[string]int
	ByEvent    map[string]int
	Levels     storage.LevelCounts
	LevelOrder []int
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.source.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}
	levels, err := s.source.CountTrackedUsersByLevel(ctx, guildID)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		ByLevel: make(map[string]int),
		ByEvent: make(map[string]int),
		Levels:  levels,
	}
	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
		report.ByEvent[log.Event]++
	}
	for level := range levels.ByLevel {
		report.LevelOrder = append(report.LevelOrder, level)
	}
	sort.Ints(report.LevelOrder)
	return report, nil
}

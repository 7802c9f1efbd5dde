// Package throttle limits how often a member may submit a rank request.
package throttle

import (
	"context"
	"fmt"
	"time"

	"faceit-rolebot/internal/modules/audit"
	"faceit-rolebot/internal/utils"

	"github.com/patrickmn/go-cache"
)

type Module struct {
	windows *cache.Cache
	limit   int
	window  time.Duration
	audit   *audit.Logger
	now     func() time.Time
}

// New allows limit attempts per member within window. A non-positive limit
// disables throttling.
func New(limit int, window time.Duration, auditLogger *audit.Logger) *Module {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Module{
		windows: cache.New(window, 2*window),
		limit:   limit,
		window:  window,
		audit:   auditLogger,
		now:     time.Now,
	}
}

// Allow records an attempt by userID in guildID. When the member is over the
// limit it returns false and the time until the next attempt is accepted.
func (m *Module) Allow(ctx context.Context, guildID, userID string) (bool, time.Duration) {
	if m == nil || m.limit <= 0 {
		return true, 0
	}
	ok, retry := m.getWindow(guildID+":"+userID).TryAdd(m.now(), m.limit)
	if !ok {
		m.audit.Log(ctx, audit.LevelWarn, guildID, userID, audit.EventRankThrottled,
			fmt.Sprintf("limit=%d window=%s retry_after=%s", m.limit, m.window, retry.Round(time.Second)))
	}
	return ok, retry
}

func (m *Module) getWindow(key string) *utils.SlidingWindow {
	window := utils.NewSlidingWindow(m.window)
	// Add only succeeds for the first caller; everyone else reuses its window.
	if err := m.windows.Add(key, window, cache.DefaultExpiration); err == nil {
		return window
	}
	if existing, ok := m.windows.Get(key); ok {
		m.windows.Set(key, existing, cache.DefaultExpiration)
		return existing.(*utils.SlidingWindow)
	}
	m.windows.Set(key, window, cache.DefaultExpiration)
	return window
}

// Package scheduler runs rank sync passes at start, on a fixed interval and
// on demand, never more than one at a time.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"faceit-rolebot/internal/ranksync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

// PassFunc runs one full pass. ranksync.Reconciler.RunPass satisfies it.
type PassFunc func(ctx context.Context) (ranksync.PassReport, error)

const passKey = "rank-sync"

type Scheduler struct {
	mu         sync.Mutex
	clock      Clock
	interval   time.Duration
	runOnStart bool
	run        PassFunc
	logger     *zap.Logger
	group      singleflight.Group
	running    atomic.Bool
	timer      Timer
	stopped    bool
	last       ranksync.PassReport
}

func New(run PassFunc, interval time.Duration, runOnStart bool, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		clock:      realClock{},
		interval:   interval,
		runOnStart: runOnStart,
		run:        run,
		logger:     logger,
	}
}

func (s *Scheduler) WithClock(clock Clock) {
	s.clock = clock
}

// Start arms the first run: immediately when runOnStart is set, otherwise
// after one interval. Each scheduled run arms the next one when it finishes.
func (s *Scheduler) Start() {
	delay := s.interval
	if s.runOnStart {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = false
	s.timer = s.clock.AfterFunc(delay, s.tick)
	s.logger.Info("rank sync scheduled", zap.Duration("interval", s.interval), zap.Bool("run_on_start", s.runOnStart))
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) tick() {
	if _, _, err := s.RunNow(context.Background()); err != nil {
		s.logger.Error("scheduled rank sync failed", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.timer = s.clock.AfterFunc(s.interval, s.tick)
}

// RunNow runs a pass and waits for it. When a pass is already in flight the
// caller joins it instead of starting another; shared reports that case.
// The pass itself is not cancelled with ctx.
func (s *Scheduler) RunNow(ctx context.Context) (report ranksync.PassReport, shared bool, err error) {
	v, err, shared := s.group.Do(passKey, func() (any, error) {
		s.running.Store(true)
		defer s.running.Store(false)

		report, err := s.run(context.WithoutCancel(ctx))
		if err == nil {
			s.mu.Lock()
			s.last = report
			s.mu.Unlock()
		}
		return report, err
	})
	report, _ = v.(ranksync.PassReport)
	return report, shared, err
}

// Trigger starts a pass in the background. It returns false when a pass is
// already running.
func (s *Scheduler) Trigger() bool {
	if s.running.Load() {
		return false
	}
	go func() {
		report, shared, err := s.RunNow(context.Background())
		switch {
		case err != nil:
			s.logger.Error("manual rank sync failed", zap.Error(err))
		case !shared:
			s.logger.Info("manual rank sync finished", zap.String("pass_id", report.PassID), zap.String("report", report.String()))
		}
	}()
	return true
}

func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastReport returns the report of the last successful pass.
func (s *Scheduler) LastReport() ranksync.PassReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

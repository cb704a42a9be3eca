package crawler

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/sirupsen/logrus"
)

type (
	// A Scheduler runs catch-up syncs periodically and on demand.
	Scheduler struct {
		engine    *Engine
		interval  time.Duration
		log       logrus.FieldLogger
		debounced func(f func())
		trigger   chan struct{}

		mu     sync.Mutex
		status Status
	}

	// A Status describes the scheduler state.
	Status struct {
		Running  bool      `json:"running"`
		Runs     int       `json:"runs"`
		NextTick time.Time `json:"next_tick"`
		Last     *Report   `json:"last,omitempty"`
	}
)

// NewScheduler returns a new Scheduler.
// Triggers received within the debounce window are coalesced in one run.
func NewScheduler(engine *Engine, interval, window time.Duration, log logrus.FieldLogger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Scheduler{
		engine:    engine,
		interval:  interval,
		log:       log,
		debounced: debounce.New(window),
		trigger:   make(chan struct{}, 1),
	}
}

// Start runs a sync immediately, then on every tick and trigger until ctx is done.
// Runs never overlap and triggered runs do not move the next tick.
func (s *Scheduler) Start(ctx context.Context) {
	next := time.Now().Add(s.interval)
	s.schedule(next)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	s.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			next = following(next, s.interval, time.Now())
			s.schedule(next)
			timer.Reset(time.Until(next))
		case <-s.trigger:
			s.log.Debug("sync triggered")
		}

		s.run(ctx)
	}
}

// Trigger requests a sync run.
func (s *Scheduler) Trigger() {
	s.debounced(func() {
		select {
		case s.trigger <- struct{}{}:
		default: // A run is already pending.
		}
	})
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.status
	if status.Last != nil {
		last := *status.Last
		status.Last = &last
	}
	return status
}

func (s *Scheduler) run(ctx context.Context) {
	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()

	report, _ := s.engine.SyncData(ctx) // Errors are logged and kept in the report.

	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Running = false
	s.status.Runs++
	s.status.Last = &report
}

func (s *Scheduler) schedule(next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.NextTick = next
}

// following returns the first tick after now, ticks missed by a long run are skipped.
func following(tick time.Time, interval time.Duration, now time.Time) time.Time {
	tick = tick.Add(interval)
	for !tick.After(now) {
		tick = tick.Add(interval)
	}
	return tick
}

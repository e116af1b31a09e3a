// Package scheduler drives recurring ingestion: a short incremental pass
// on a fixed interval, and a full re-sync of the finished shift shortly
// after each 03:00 close. A failed pass is logged and absorbed; the next
// tick runs regardless.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/shiftclock"
)

// closeGrace is how long after the 03:00 close the full re-sync waits,
// giving the upstream time to finalize the shift record.
const closeGrace = 5 * time.Minute

// Runner executes one sync pass. The service layer implements it so that
// scheduled runs also persist shift totals and invalidate caches.
type Runner interface {
	SyncWindow(ctx context.Context, start, end time.Time, mode string) (domain.SyncResult, error)
}

type Scheduler struct {
	runner   Runner
	interval time.Duration
	lookback time.Duration
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func New(runner Runner, interval, lookback time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if lookback <= 0 {
		lookback = 30 * time.Minute
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		lookback: lookback,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the background loops. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.incrementalLoop(ctx)
		}()
		go func() {
			defer wg.Done()
			s.closeLoop(ctx)
		}()
		wg.Wait()
	}()

	log.Printf("[scheduler] started: incremental every %s, lookback %s", s.interval, s.lookback)
}

// Stop cancels the loops and waits for in-flight passes to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	<-s.done
	s.started = false
	log.Printf("[scheduler] stopped")
}

func (s *Scheduler) incrementalLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			start := now.Add(-s.lookback)
			if _, err := s.runner.SyncWindow(ctx, start, now, domain.SyncModeIncremental); err != nil {
				log.Printf("[scheduler] WARN: incremental sync failed: %v", err)
			}
		}
	}
}

// closeLoop sleeps until the next 03:00 close plus grace, re-syncs the
// shift that just finished, then recomputes the following deadline. The
// deadline is recomputed from the clock each round rather than advanced
// by 24h, so a long outage never leaves the loop drifting.
func (s *Scheduler) closeLoop(ctx context.Context) {
	for {
		deadline := shiftclock.NextClose(s.now()).Add(closeGrace)
		timer := time.NewTimer(deadline.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		window := shiftclock.LastCompleted(s.now())
		log.Printf("[scheduler] close re-sync for %s", window.Key())
		if _, err := s.runner.SyncWindow(ctx, window.Start, window.End, domain.SyncModeFull); err != nil {
			log.Printf("[scheduler] WARN: close re-sync for %s failed: %v", window.Key(), err)
		}
	}
}

// Package scheduler runs due harvesters on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/harvestagent/internal/agent"
	"github.com/soyeahso/harvestagent/internal/logging"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = time.Minute

// Runner runs the harvesters that are due.
type Runner interface {
	RunDue(ctx context.Context) ([]agent.Result, error)
}

// Scheduler calls Runner.RunDue on every tick. A tick that arrives while the
// previous run is still going is skipped.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	log      *logging.Logger

	mu      sync.Mutex
	running bool
	busy    bool
	stopCh  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	ticks   int
	skipped int
}

// New creates a scheduler. A non-positive interval means DefaultInterval.
func New(runner Runner, interval time.Duration, log *logging.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		log:      log.Sub("scheduler"),
	}
}

// Interval returns the time between ticks.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Start runs the scheduler loop until ctx is cancelled or Stop is called.
// Due harvesters are checked once immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	defer func() {
		s.wg.Wait()
		close(done)
		s.log.Info().Msg("scheduler stopped")
	}()

	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop ends the loop started by Start and waits for an in-flight run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
}

// Stats reports how many ticks fired and how many were skipped because a
// run was still going.
func (s *Scheduler) Stats() (ticks, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks, s.skipped
}

func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	s.ticks++
	if s.busy {
		s.skipped++
		s.mu.Unlock()
		s.log.Debug().Msg("previous run still going, skipping tick")
		return
	}
	s.busy = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		}()

		results, err := s.runner.RunDue(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("running due harvesters")
		}
		for _, r := range results {
			ev := s.log.Info()
			if !r.Success {
				ev = s.log.Error()
			}
			ev.Str("harvester", r.Harvester).Msg(r.Message)
		}
	}()
}

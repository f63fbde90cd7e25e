// internal/schedule/scheduler.go
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Trigger is the decision entry point every source calls.
// It must be safe to call concurrently and repeatedly.
type Trigger func(ctx context.Context)

// Source is one independent periodic trigger, active only inside its window.
type Source struct {
	Name   string
	Window Window
}

// Config is the minimal runtime config the scheduler needs.
type Config struct {
	Sources  []Source
	Interval time.Duration
	Clock    Clock // optional
	Logger   zerolog.Logger
}

// Scheduler runs one ticker loop per source. Sources do not share state:
// a stalled or skipped source never delays the others.
type Scheduler struct {
	sources  []Source
	interval time.Duration
	clock    Clock
	trigger  Trigger
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(cfg Config, trigger Trigger) (*Scheduler, error) {
	if len(cfg.Sources) == 0 {
		return nil, errors.New("scheduler: at least one source required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("scheduler: interval must be > 0")
	}
	if trigger == nil {
		return nil, errors.New("scheduler: trigger required")
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}

	return &Scheduler{
		sources:  cfg.Sources,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		trigger:  trigger,
		log:      cfg.Logger,
	}, nil
}

// Start launches every source. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, src := range s.sources {
		s.log.Info().
			Str("source", src.Name).
			Str("window", src.Window.String()).
			Dur("interval", s.interval).
			Msg("schedule source started")

		s.wg.Add(1)
		go s.loop(ctx, src)
	}
}

// Stop cancels every source and waits for in-flight triggers. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.log.Info().Msg("scheduler stopped")
}

// loop is one source. No overlap within a source, no retries.
func (s *Scheduler) loop(ctx context.Context, src Source) {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	// Evaluate once immediately so a start inside the window is not lost.
	s.tick(ctx, src, s.clock.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			s.tick(ctx, src, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, src Source, now time.Time) {
	if ctx.Err() != nil {
		return
	}

	if !src.Window.Contains(now) {
		return
	}

	s.log.Debug().
		Str("source", src.Name).
		Time("tick_at", now).
		Msg("in-window tick")

	// Dispatch so a long cycle never stalls this source's ticker.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.trigger(ctx)
	}()
}

// DailySources returns the primary source and the overlapping pre-check
// source that opens lead earlier and closes with the primary window.
func DailySources(primary Window, lead time.Duration) []Source {
	return []Source{
		{Name: "primary", Window: primary},
		{Name: "precheck", Window: primary.Lead(lead)},
	}
}

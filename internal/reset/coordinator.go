// internal/reset/coordinator.go
package reset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-resetter/internal/schedule"
)

// SkipReason says why MaybeRunDailyReset did not run a cycle.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipInProgress    SkipReason = "in_progress"
	SkipOutsideWindow SkipReason = "outside_window"
	SkipAlreadyDone   SkipReason = "already_done"
)

// CycleResult aggregates one fleet-wide cycle.
type CycleResult struct {
	ID      string
	Date    string
	Manual  bool
	Skipped SkipReason

	StartedAt  time.Time
	FinishedAt time.Time

	Outcomes  []Outcome
	Succeeded bool
}

// Ran reports whether a cycle actually executed.
func (r CycleResult) Ran() bool { return r.Skipped == SkipNone }

// Failed lists the device codes whose retry chain ended in failure.
func (r CycleResult) Failed() []string {
	var out []string
	for _, o := range r.Outcomes {
		if !o.Succeeded {
			out = append(out, o.Device)
		}
	}
	return out
}

// GuardStore persists the daily completion date across restarts.
type GuardStore interface {
	LoadLastResetDate(ctx context.Context) (string, error)
	SaveLastResetDate(ctx context.Context, date string) error
}

// CoordinatorConfig wires one Coordinator.
type CoordinatorConfig struct {
	Registry *Registry
	Workers  []*Worker

	// Window is the primary reset window; its Location defines "today".
	Window schedule.Window

	// State seeds the fleet guard. ResetInProgress is ignored.
	State FleetState

	Clock    Clock      // optional
	Guard    GuardStore // optional
	Observer Observer   // optional
	Logger   zerolog.Logger
}

// Coordinator owns the fleet guard and fans cycles out to the workers.
type Coordinator struct {
	registry *Registry
	workers  []*Worker
	byCode   map[string]*Worker
	window   schedule.Window
	clock    Clock
	guard    GuardStore
	obs      Observer
	log      zerolog.Logger

	// mu guards fleet. The decision path checks and sets under one hold.
	mu    sync.Mutex
	fleet FleetState
}

func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Registry == nil {
		return nil, errors.New("coordinator: registry required")
	}
	if len(cfg.Workers) != cfg.Registry.Len() {
		return nil, fmt.Errorf(
			"coordinator: %d workers for %d registered devices",
			len(cfg.Workers),
			cfg.Registry.Len(),
		)
	}
	if cfg.Window.Width <= 0 {
		return nil, errors.New("coordinator: window width must be > 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	byCode := make(map[string]*Worker, len(cfg.Workers))
	for _, w := range cfg.Workers {
		if w == nil {
			return nil, errors.New("coordinator: nil worker")
		}
		if _, ok := cfg.Registry.Get(w.dev.Code); !ok {
			return nil, fmt.Errorf("coordinator: %w: %q", ErrUnknownDevice, w.dev.Code)
		}
		if _, dup := byCode[w.dev.Code]; dup {
			return nil, fmt.Errorf("coordinator: duplicate worker for %q", w.dev.Code)
		}
		byCode[w.dev.Code] = w
	}

	// Cycles fan out, and report outcomes, in registry order.
	workers := make([]*Worker, 0, len(byCode))
	for _, d := range cfg.Registry.All() {
		workers = append(workers, byCode[d.Code])
	}

	seed := cfg.State
	seed.ResetInProgress = false

	return &Coordinator{
		registry: cfg.Registry,
		workers:  workers,
		byCode:   byCode,
		window:   cfg.Window,
		clock:    cfg.Clock,
		guard:    cfg.Guard,
		obs:      cfg.Observer,
		log:      cfg.Logger,
		fleet:    seed,
	}, nil
}

// Restore seeds the daily guard from the GuardStore, if any.
// A stored date never moves the guard backwards.
func (c *Coordinator) Restore(ctx context.Context) error {
	if c.guard == nil {
		return nil
	}

	date, err := c.guard.LoadLastResetDate(ctx)
	if err != nil {
		return fmt.Errorf("coordinator: load guard: %w", err)
	}
	if date == "" {
		return nil
	}

	c.mu.Lock()
	if date > c.fleet.LastResetDate {
		c.fleet.LastResetDate = date
	}
	c.mu.Unlock()

	c.log.Info().Str("last_reset_date", date).Msg("daily guard restored")
	return nil
}

// State returns a copy of the fleet guard.
func (c *Coordinator) State() FleetState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fleet
}

// DeviceState returns a copy of one device's reset state.
func (c *Coordinator) DeviceState(code string) (State, error) {
	w, ok := c.byCode[code]
	if !ok {
		return State{}, fmt.Errorf("%w: %q", ErrUnknownDevice, code)
	}
	return w.State(), nil
}

// MaybeRunDailyReset is the scheduler entry point. It is safe to call from
// any number of triggers: at most one cycle runs at a time, and none runs
// outside the primary window or after the day's cycle has fully succeeded.
// It blocks until the cycle it started completes.
func (c *Coordinator) MaybeRunDailyReset(ctx context.Context) CycleResult {
	now := c.clock.Now()
	today := dateOf(now, c.window.Location())

	c.mu.Lock()
	switch {
	case c.fleet.ResetInProgress:
		c.mu.Unlock()
		return CycleResult{Date: today, Skipped: SkipInProgress}

	case !c.window.Contains(now):
		c.mu.Unlock()
		return CycleResult{Date: today, Skipped: SkipOutsideWindow}

	case c.fleet.LastResetDate == today:
		c.mu.Unlock()
		return CycleResult{Date: today, Skipped: SkipAlreadyDone}
	}
	c.fleet.ResetInProgress = true
	c.mu.Unlock()

	return c.runCycle(ctx, today, false)
}

// RunCycle runs one fleet cycle now, ignoring the window and the daily guard.
// It still refuses to overlap a running cycle, and never advances the guard.
func (c *Coordinator) RunCycle(ctx context.Context) CycleResult {
	today := dateOf(c.clock.Now(), c.window.Location())

	c.mu.Lock()
	if c.fleet.ResetInProgress {
		c.mu.Unlock()
		return CycleResult{Date: today, Manual: true, Skipped: SkipInProgress}
	}
	c.fleet.ResetInProgress = true
	c.mu.Unlock()

	return c.runCycle(ctx, today, true)
}

// ResetDevice resets one device outside any cycle.
// An unregistered code is a configuration fault and is returned as an error.
func (c *Coordinator) ResetDevice(ctx context.Context, code string) (Outcome, error) {
	w, ok := c.byCode[code]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownDevice, code)
	}
	return w.Reset(ctx), nil
}

// runCycle must be entered with ResetInProgress already set by the caller.
func (c *Coordinator) runCycle(ctx context.Context, date string, manual bool) CycleResult {
	res := CycleResult{
		ID:        uuid.NewString(),
		Date:      date,
		Manual:    manual,
		StartedAt: c.clock.Now(),
		Outcomes:  make([]Outcome, len(c.workers)),
	}

	defer func() {
		c.mu.Lock()
		c.fleet.ResetInProgress = false
		c.mu.Unlock()
	}()

	log := c.log.With().Str("cycle_id", res.ID).Str("date", date).Bool("manual", manual).Logger()
	log.Info().Int("devices", len(c.workers)).Msg("reset cycle started")

	var wg sync.WaitGroup
	for i, w := range c.workers {
		wg.Add(1)
		go func(i int, w *Worker) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					res.Outcomes[i] = Outcome{
						Device: w.dev.Code,
						Err:    fmt.Errorf("reset %s: worker panicked: %v", w.dev.Code, r),
					}
				}
			}()
			res.Outcomes[i] = w.Reset(ctx)
		}(i, w)
	}
	wg.Wait()

	res.FinishedAt = c.clock.Now()
	res.Succeeded = true
	for _, o := range res.Outcomes {
		if !o.Succeeded {
			res.Succeeded = false
			break
		}
	}

	if res.Succeeded && !manual {
		c.mu.Lock()
		c.fleet.LastResetDate = date
		c.mu.Unlock()

		if c.guard != nil {
			if err := c.guard.SaveLastResetDate(ctx, date); err != nil {
				log.Warn().Err(err).Msg("daily guard not persisted")
			}
		}
	}

	if res.Succeeded {
		log.Info().
			Dur("took", res.FinishedAt.Sub(res.StartedAt)).
			Msg("reset cycle complete, all devices reset")
	} else {
		ev := log.Warn().
			Strs("failed", res.Failed()).
			Int("devices", len(res.Outcomes))
		if manual {
			ev.Msg("reset cycle incomplete")
		} else {
			ev.Msg("reset cycle incomplete, will retry on next in-window tick")
		}
	}

	c.obs.CycleFinished(ctx, res)
	return res
}

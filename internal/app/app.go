// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-resetter/internal/gateway"
	"github.com/tamzrod/modbus-resetter/internal/logger"
	"github.com/tamzrod/modbus-resetter/internal/poller"
	"github.com/tamzrod/modbus-resetter/internal/reset"
	"github.com/tamzrod/modbus-resetter/internal/schedule"
)

// Device pairs a descriptor with the gateway its Worker owns.
type Device struct {
	Descriptor reset.Descriptor
	Gateway    gateway.Gateway
}

// SampleSink receives telemetry samples. It must not block for long.
type SampleSink func(ctx context.Context, s poller.Sample)

// Options is everything New needs. Optional fields may be left zero.
type Options struct {
	Devices []Device
	Policy  reset.Policy

	// Window is the primary window; PrecheckLead opens the second source earlier.
	Window       schedule.Window
	PrecheckLead time.Duration
	TickInterval time.Duration

	Clock     schedule.Clock
	Guard     reset.GuardStore
	Observers []reset.Observer

	// Status is asserted once on Start.
	Status interface{ Assert() }

	Pollers []*poller.Poller
	Sink    SampleSink

	// Closers run after every device is disconnected, in order.
	Closers []func() error

	Logger zerolog.Logger
}

// App is the process lifecycle: Start connects then schedules,
// Stop unschedules then disconnects. Both are idempotent.
type App struct {
	devices []Device
	coord   *reset.Coordinator
	sched   *schedule.Scheduler
	status  interface{ Assert() }
	pollers []*poller.Poller
	sink    SampleSink
	async   []*reset.AsyncObserver
	closers []func() error
	log     zerolog.Logger

	mu     sync.Mutex
	state  lifecycle
	cancel context.CancelFunc
	pollWG sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

type lifecycle int

const (
	idle lifecycle = iota
	running
	stopped
)

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("app: stopped")

// observerBuffer holds a full cycle of attempt events for a mid-size fleet.
const observerBuffer = 256

func New(opts Options) (_ *App, err error) {
	if len(opts.Devices) == 0 {
		return nil, errors.New("app: no devices")
	}

	descs := make([]reset.Descriptor, 0, len(opts.Devices))
	for _, d := range opts.Devices {
		descs = append(descs, d.Descriptor)
	}
	reg, err := reset.NewRegistry(descs)
	if err != nil {
		return nil, err
	}

	var clk reset.Clock
	if opts.Clock != nil {
		clk = opts.Clock
	}

	// Observers deliver off the retry chains, one queue each.
	async := make([]*reset.AsyncObserver, 0, len(opts.Observers))
	observer := make(reset.Observers, 0, len(opts.Observers))
	for _, ob := range opts.Observers {
		if ob == nil {
			continue
		}
		ao := reset.NewAsyncObserver(ob, observerBuffer, logger.WithComponent(opts.Logger, "observer"))
		async = append(async, ao)
		observer = append(observer, ao)
	}
	defer func() {
		if err != nil {
			for _, ao := range async {
				_ = ao.Close()
			}
		}
	}()

	workers := make([]*reset.Worker, 0, len(opts.Devices))
	for _, d := range opts.Devices {
		w, err := reset.NewWorker(reset.WorkerConfig{
			Device:   d.Descriptor,
			Gateway:  d.Gateway,
			Policy:   opts.Policy,
			Clock:    clk,
			Observer: observer,
			Logger:   logger.WithComponent(opts.Logger, "worker"),
		})
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}

	coord, err := reset.NewCoordinator(reset.CoordinatorConfig{
		Registry: reg,
		Workers:  workers,
		Window:   opts.Window,
		Clock:    clk,
		Guard:    opts.Guard,
		Observer: observer,
		Logger:   logger.WithComponent(opts.Logger, "coordinator"),
	})
	if err != nil {
		return nil, err
	}

	sched, err := schedule.New(schedule.Config{
		Sources:  schedule.DailySources(opts.Window, opts.PrecheckLead),
		Interval: opts.TickInterval,
		Clock:    opts.Clock,
		Logger:   logger.WithComponent(opts.Logger, "scheduler"),
	}, func(ctx context.Context) { coord.MaybeRunDailyReset(ctx) })
	if err != nil {
		return nil, err
	}

	sink := opts.Sink
	if sink == nil {
		sink = func(context.Context, poller.Sample) {}
	}

	return &App{
		devices: opts.Devices,
		coord:   coord,
		sched:   sched,
		status:  opts.Status,
		pollers: opts.Pollers,
		sink:    sink,
		async:   async,
		closers: opts.Closers,
		log:     opts.Logger,
	}, nil
}

// Coordinator exposes the manual reset operations.
func (a *App) Coordinator() *reset.Coordinator { return a.coord }

// Start connects every device, restores the daily guard, then starts the
// scheduler and the telemetry pollers. Connection failures are logged and
// tolerated: the Worker reconnects before its next attempt.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case running:
		return nil
	case stopped:
		return ErrStopped
	}

	a.connectAll(ctx)

	if err := a.coord.Restore(ctx); err != nil {
		a.log.Warn().Err(err).Msg("daily guard not restored, starting from memory")
	}

	if a.status != nil {
		a.status.Assert()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	a.sched.Start(runCtx)
	a.startPollers(runCtx)

	a.state = running
	a.log.Info().Int("devices", len(a.devices)).Msg("resetter started")
	return nil
}

// Stop stops the scheduler, waits for any cycle in flight, then disconnects
// every device. Calling Stop more than once, or before Start, is a no-op.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != running {
		return nil
	}
	a.state = stopped

	a.sched.Stop()

	a.cancel()
	a.pollWG.Wait()

	err := a.Close()
	a.log.Info().Msg("resetter stopped")
	return err
}

// Close flushes pending observer events, disconnects every device and
// releases the closers. It runs once. Stop calls it; one-shot commands that
// never Start call it directly.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		for _, ao := range a.async {
			if err := ao.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, d := range a.devices {
			if err := d.Gateway.Disconnect(); err != nil {
				errs = append(errs, fmt.Errorf("disconnect %s: %w", d.Descriptor.Code, err))
			}
		}
		for _, fn := range a.closers {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func (a *App) connectAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, d := range a.devices {
		wg.Add(1)
		go func(d Device) {
			defer wg.Done()
			if err := d.Gateway.Connect(ctx); err != nil {
				a.log.Warn().
					Err(err).
					Str("device", d.Descriptor.Code).
					Msg("initial connect failed, worker will reconnect")
				return
			}
			a.log.Info().Str("device", d.Descriptor.Code).Msg("device connected")
		}(d)
	}
	wg.Wait()
}

func (a *App) startPollers(ctx context.Context) {
	if len(a.pollers) == 0 {
		return
	}

	samples := make(chan poller.Sample, len(a.pollers))

	for _, p := range a.pollers {
		a.pollWG.Add(1)
		go func(p *poller.Poller) {
			defer a.pollWG.Done()
			p.Run(ctx, samples)
		}(p)
	}

	a.pollWG.Add(1)
	go func() {
		defer a.pollWG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-samples:
				a.sink(ctx, s)
			}
		}
	}()
}

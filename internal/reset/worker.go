// internal/reset/worker.go
package reset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-resetter/internal/gateway"
)

// Policy is the per-device retry and settle timing.
type Policy struct {
	MaxRetries    int
	RetryDelay    time.Duration
	ConnectSettle time.Duration
	WriteSettle   time.Duration
}

// WorkerConfig wires one Worker.
type WorkerConfig struct {
	Device   Descriptor
	Gateway  gateway.Gateway
	Policy   Policy
	Clock    Clock    // optional, defaults to wall clock
	Observer Observer // optional
	Logger   zerolog.Logger
}

// Worker owns one device's reset state and its gateway connection.
// Attempts for the same device are strictly sequential.
type Worker struct {
	dev    Descriptor
	gw     gateway.Gateway
	policy Policy
	clock  Clock
	obs    Observer
	log    zerolog.Logger

	// chain serializes whole retry chains; a second Reset waits for the first.
	chain sync.Mutex

	mu    sync.Mutex
	state State
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Device.Code == "" {
		return nil, errors.New("worker: device code required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("worker %s: gateway required", cfg.Device.Code)
	}
	if cfg.Policy.MaxRetries < 1 {
		return nil, fmt.Errorf("worker %s: max retries must be >= 1", cfg.Device.Code)
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	return &Worker{
		dev:    cfg.Device,
		gw:     cfg.Gateway,
		policy: cfg.Policy,
		clock:  cfg.Clock,
		obs:    cfg.Observer,
		log:    cfg.Logger.With().Str("device", cfg.Device.Code).Logger(),
	}, nil
}

func (w *Worker) Device() Descriptor { return w.dev }

// State returns a copy of the device's reset state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Reset runs the read-verify-write-verify sequence with bounded constant-delay
// retries. It never fails to its caller: every error ends up in the Outcome.
func (w *Worker) Reset(ctx context.Context) Outcome {
	w.chain.Lock()
	defer w.chain.Unlock()

	out := Outcome{Device: w.dev.Code}
	exhausted := false

	operation := func() (struct{}, error) {
		out.Attempts++

		counter, read, err := w.attempt(ctx)
		at := w.clock.Now()

		if read {
			out.Counter = counter
			out.CounterRead = true
		}

		if err == nil {
			w.succeeded(ctx, at, out.Attempts, counter)
			return struct{}{}, nil
		}

		var retries int
		retries, exhausted = w.failed(at)

		w.obs.AttemptFinished(ctx, AttemptEvent{
			Device:      w.dev.Code,
			At:          at,
			Attempt:     out.Attempts,
			RetryCount:  retries,
			MaxRetries:  w.policy.MaxRetries,
			Counter:     counter,
			CounterRead: read,
			Exhausted:   exhausted,
			Err:         err,
		})

		if exhausted {
			w.log.Error().
				Err(err).
				Int("retry_count", retries).
				Int("max_retries", w.policy.MaxRetries).
				Time("attempt_at", at).
				Msg("counter reset failed, retries exhausted")
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	notify := func(err error, next time.Duration) {
		w.log.Warn().
			Err(err).
			Int("retry_count", w.State().RetryCount).
			Int("max_retries", w.policy.MaxRetries).
			Dur("retry_in", next).
			Msg("counter reset attempt failed, retrying")
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(w.policy.RetryDelay)),
		backoff.WithMaxTries(uint(w.policy.MaxRetries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		out.Succeeded = true
		out.Err = nil
		return out
	}

	out.Err = err
	if exhausted {
		return out
	}

	// Cancelled between attempts or inside one.
	w.mu.Lock()
	w.state.RetryCount = 0
	w.state.LastResetSucceeded = false
	w.mu.Unlock()

	w.log.Warn().Int("attempts", out.Attempts).Msg("retry chain cancelled")

	out.Err = fmt.Errorf("reset %s: retry cancelled: %w", w.dev.Code, err)
	return out
}

func (w *Worker) succeeded(ctx context.Context, at time.Time, attempt int, counter uint16) {
	w.mu.Lock()
	w.state = State{
		LastAttemptAt:      at,
		RetryCount:         0,
		LastResetSucceeded: true,
	}
	w.mu.Unlock()

	w.log.Info().
		Int("attempt", attempt).
		Uint16("counter", counter).
		Time("attempt_at", at).
		Msg("counter reset confirmed")

	w.obs.AttemptFinished(ctx, AttemptEvent{
		Device:      w.dev.Code,
		At:          at,
		Attempt:     attempt,
		MaxRetries:  w.policy.MaxRetries,
		Counter:     counter,
		CounterRead: true,
		Succeeded:   true,
	})
}

// failed records one failed attempt. On exhaustion the retry count returns
// to zero; only the fleet guard prevents a fresh chain the same day.
func (w *Worker) failed(at time.Time) (retries int, exhausted bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state.LastAttemptAt = at
	w.state.RetryCount++
	retries = w.state.RetryCount
	exhausted = retries >= w.policy.MaxRetries
	if exhausted {
		w.state.RetryCount = 0
		w.state.LastResetSucceeded = false
	}
	return retries, exhausted
}

// attempt is one read-verify-write-verify pass.
// read reports whether counter holds a value read from the device.
func (w *Worker) attempt(ctx context.Context) (counter uint16, read bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reset %s: attempt panicked: %v", w.dev.Code, r)
		}
	}()

	// ---- 1. (re)connect ----
	if !w.gw.IsConnected() {
		if err := w.gw.Connect(ctx); err != nil {
			return 0, false, asConnectionError(w.dev.Code, err)
		}

		w.log.Debug().Msg("device connected")

		if !settle(ctx, w.policy.ConnectSettle) {
			return 0, false, asConnectionError(w.dev.Code, ctx.Err())
		}
	}

	// ---- 2. read ----
	counter, err = w.readCounter(ctx)
	if err != nil {
		return 0, false, err
	}

	// ---- 3. observe ----
	w.log.Info().
		Uint16("counter", counter).
		Uint16("addr", w.dev.Layout.CounterAddr()).
		Msg("counter read before reset")

	// ---- 4. write zero ----
	addr := w.dev.Layout.CounterAddr()
	if err := w.gw.WriteRegister(ctx, addr, 0); err != nil {
		return counter, true, asWriteError(w.dev.Code, addr, err)
	}

	// ---- 5. verify ----
	if !settle(ctx, w.policy.WriteSettle) {
		return counter, true, asReadError(w.dev.Code, ctx.Err())
	}

	after, err := w.readCounter(ctx)
	if err != nil {
		return counter, true, err
	}
	if after != 0 {
		return counter, true, &VerificationError{Device: w.dev.Code, Addr: addr, Got: after}
	}

	return counter, true, nil
}

func (w *Worker) readCounter(ctx context.Context) (uint16, error) {
	regs, err := w.gw.ReadRegisters(ctx)
	if err != nil {
		return 0, asReadError(w.dev.Code, err)
	}

	if len(regs) < int(w.dev.Layout.Length) || len(regs) <= int(w.dev.Layout.CounterOffset) {
		return 0, &gateway.ReadError{
			Device: w.dev.Code,
			Err:    fmt.Errorf("%w: got %d registers, want %d", ErrShortBlock, len(regs), w.dev.Layout.Length),
		}
	}

	return regs[w.dev.Layout.CounterOffset], nil
}

// ---- error taxonomy ----

func asConnectionError(device string, err error) error {
	var ce *gateway.ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &gateway.ConnectionError{Device: device, Err: err}
}

func asReadError(device string, err error) error {
	var re *gateway.ReadError
	if errors.As(err, &re) {
		return err
	}
	return &gateway.ReadError{Device: device, Err: err}
}

func asWriteError(device string, addr uint16, err error) error {
	var we *gateway.WriteError
	if errors.As(err, &we) {
		return err
	}
	return &gateway.WriteError{Device: device, Addr: addr, Err: err}
}

// internal/reset/observer.go
package reset

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// AttemptEvent is emitted after every completed attempt.
type AttemptEvent struct {
	Device     string
	At         time.Time
	Attempt    int
	RetryCount int
	MaxRetries int

	Counter     uint16
	CounterRead bool

	Succeeded bool
	Exhausted bool
	Err       error
}

// Observer receives reset progress. Workers call it inline, so slow
// implementations belong behind an AsyncObserver. Implementations swallow
// their own delivery errors.
type Observer interface {
	AttemptFinished(ctx context.Context, ev AttemptEvent)
	CycleFinished(ctx context.Context, res CycleResult)
}

// Observers fans out to every member in order.
type Observers []Observer

func (o Observers) AttemptFinished(ctx context.Context, ev AttemptEvent) {
	for _, ob := range o {
		if ob != nil {
			ob.AttemptFinished(ctx, ev)
		}
	}
}

func (o Observers) CycleFinished(ctx context.Context, res CycleResult) {
	for _, ob := range o {
		if ob != nil {
			ob.CycleFinished(ctx, res)
		}
	}
}

type nopObserver struct{}

func (nopObserver) AttemptFinished(context.Context, AttemptEvent) {}
func (nopObserver) CycleFinished(context.Context, CycleResult)    {}

// ---- async delivery ----

const asyncDrainTimeout = 5 * time.Second

// AsyncObserver hands events to next on its own goroutine so a slow sink
// never stretches a retry chain. Events beyond the buffer are dropped.
type AsyncObserver struct {
	next Observer
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan func(context.Context)
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
}

func NewAsyncObserver(next Observer, buffer int, log zerolog.Logger) *AsyncObserver {
	if buffer < 1 {
		buffer = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &AsyncObserver{
		next:   next,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		queue:  make(chan func(context.Context), buffer),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncObserver) AttemptFinished(_ context.Context, ev AttemptEvent) {
	a.enqueue("attempt", func(ctx context.Context) { a.next.AttemptFinished(ctx, ev) })
}

func (a *AsyncObserver) CycleFinished(_ context.Context, res CycleResult) {
	a.enqueue("cycle", func(ctx context.Context) { a.next.CycleFinished(ctx, res) })
}

// Dropped counts events discarded on overflow or after Close.
func (a *AsyncObserver) Dropped() int64 { return a.dropped.Load() }

// Close stops intake and delivers what is queued. Deliveries still pending
// after the drain timeout see a cancelled context.
func (a *AsyncObserver) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	t := time.NewTimer(asyncDrainTimeout)
	defer t.Stop()

	select {
	case <-a.done:
	case <-t.C:
		a.cancel()
		<-a.done
	}
	a.cancel()
	return nil
}

func (a *AsyncObserver) enqueue(kind string, fn func(context.Context)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.dropped.Add(1)
		return
	}

	select {
	case a.queue <- fn:
	default:
		a.dropped.Add(1)
		a.log.Warn().Str("event", kind).Msg("observer queue full, event dropped")
	}
}

func (a *AsyncObserver) run() {
	defer close(a.done)
	for fn := range a.queue {
		if a.ctx.Err() != nil {
			a.dropped.Add(1)
			continue
		}
		a.deliver(fn)
	}
}

func (a *AsyncObserver) deliver(fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Interface("panic", r).Msg("observer panicked")
		}
	}()
	fn(a.ctx)
}

// internal/writer/observer.go
package writer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-resetter/internal/reset"
	"github.com/tamzrod/modbus-resetter/internal/status"
)

// StatusObserver mirrors each device's reset progress into status memory.
// It implements reset.Observer.
type StatusObserver struct {
	log     zerolog.Logger
	devices map[string]*deviceSlot
}

type deviceSlot struct {
	mu   sync.Mutex
	w    StatusWriter
	snap status.Snapshot
}

// NewStatusObserver wires one writer per device code.
func NewStatusObserver(writers map[string]StatusWriter, log zerolog.Logger) *StatusObserver {
	devices := make(map[string]*deviceSlot, len(writers))
	for code, w := range writers {
		devices[code] = &deviceSlot{w: w}
	}
	return &StatusObserver{log: log, devices: devices}
}

// Assert writes the current snapshot of every device.
// Used at start so the block identity is on the wire before any attempt.
func (o *StatusObserver) Assert() {
	for code, d := range o.devices {
		d.mu.Lock()
		if err := d.w.WriteStatus(d.snap); err != nil {
			o.log.Warn().Err(err).Str("device", code).Msg("status write failed on start")
		}
		d.mu.Unlock()
	}
}

func (o *StatusObserver) AttemptFinished(_ context.Context, ev reset.AttemptEvent) {
	d, ok := o.devices[ev.Device]
	if !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.snap = nextSnapshot(d.snap, ev)
	if err := d.w.WriteStatus(d.snap); err != nil {
		o.log.Warn().Err(err).Str("device", ev.Device).Msg("status write failed")
	}
}

func (o *StatusObserver) CycleFinished(context.Context, reset.CycleResult) {}

// nextSnapshot mirrors the worker's State after the attempt.
func nextSnapshot(prev status.Snapshot, ev reset.AttemptEvent) status.Snapshot {
	s := prev
	s.AttemptUnix = status.AttemptTime(ev.At)

	if ev.CounterRead {
		s.LastCounter = ev.Counter
	}

	switch {
	case ev.Succeeded:
		s.Result = status.ResultOK
		s.RetryCount = 0
	case ev.Exhausted:
		s.Result = status.ResultFailed
		s.RetryCount = 0
	default:
		s.Result = status.ResultRetrying
		s.RetryCount = clampUint16(ev.RetryCount)
	}

	return s
}

func clampUint16(n int) uint16 {
	switch {
	case n < 0:
		return 0
	case n > 65535:
		return 65535
	}
	return uint16(n)
}

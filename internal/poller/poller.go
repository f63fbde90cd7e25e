// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-resetter/internal/gateway"
)

// Factory creates a fresh, unconnected gateway. ONE attempt per call.
type Factory func() (gateway.Gateway, error)

// Config is the minimal runtime config the poller needs.
type Config struct {
	Device        string
	Interval      time.Duration
	Length        uint16
	CounterOffset uint16
}

// Poller is a dumb, clock-driven reader. It never writes.
// It owns its own connection, separate from the reset path.
type Poller struct {
	cfg     Config
	client  gateway.Gateway
	factory Factory
	now     func() time.Time
	log     zerolog.Logger
}

// New creates a poller with immutable config.
// client may be nil; the factory is used on the first tick.
func New(cfg Config, client gateway.Gateway, factory Factory, log zerolog.Logger) (*Poller, error) {
	if cfg.Device == "" {
		return nil, errors.New("poller: device required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.CounterOffset >= cfg.Length {
		return nil, fmt.Errorf("poller %s: counter offset %d outside block of %d", cfg.Device, cfg.CounterOffset, cfg.Length)
	}
	if client == nil && factory == nil {
		return nil, fmt.Errorf("poller %s: client or factory required", cfg.Device)
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		factory: factory,
		now:     time.Now,
		log:     log.With().Str("device", cfg.Device).Logger(),
	}, nil
}

// PollOnce performs exactly one poll cycle.
// All-or-nothing: any failure aborts the cycle.
func (p *Poller) PollOnce(ctx context.Context) Sample {
	res := Sample{
		Device: p.cfg.Device,
		At:     p.now(),
	}

	if err := p.ensureClient(ctx); err != nil {
		res.Err = err
		return res
	}

	regs, err := p.client.ReadRegisters(ctx)
	if err != nil {
		p.drop(err)
		res.Err = err
		return res
	}
	if len(regs) < int(p.cfg.Length) {
		res.Err = fmt.Errorf("poller %s: short block: got %d registers, want %d", p.cfg.Device, len(regs), p.cfg.Length)
		return res
	}

	// Commit only if the read succeeded
	res.Registers = regs
	res.Counter = regs[p.cfg.CounterOffset]
	return res
}

// Close releases the current connection, if any.
func (p *Poller) Close() error {
	if p.client == nil {
		return nil
	}
	err := p.client.Disconnect()
	p.client = nil
	return err
}

// ensureClient reuses a healthy client; otherwise it asks the factory once.
func (p *Poller) ensureClient(ctx context.Context) error {
	if p.client != nil && p.client.IsConnected() {
		return nil
	}

	if p.client == nil {
		if p.factory == nil {
			return &gateway.ConnectionError{Device: p.cfg.Device, Err: gateway.ErrNotConnected}
		}
		c, err := p.factory()
		if err != nil {
			return &gateway.ConnectionError{Device: p.cfg.Device, Err: err}
		}
		p.client = c
	}

	if err := p.client.Connect(ctx); err != nil {
		return err
	}
	p.log.Debug().Msg("telemetry connection up")
	return nil
}

// drop discards the client on transport death so the next tick starts fresh.
func (p *Poller) drop(err error) {
	if p.client.IsConnected() {
		return
	}
	p.log.Warn().Err(err).Msg("telemetry connection lost")
	if p.factory != nil {
		p.client = nil
	}
}

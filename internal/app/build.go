// internal/app/build.go
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-resetter/internal/config"
	gmodbus "github.com/tamzrod/modbus-resetter/internal/gateway/modbus"
	"github.com/tamzrod/modbus-resetter/internal/logger"
	"github.com/tamzrod/modbus-resetter/internal/poller"
	"github.com/tamzrod/modbus-resetter/internal/reset"
	"github.com/tamzrod/modbus-resetter/internal/schedule"
	"github.com/tamzrod/modbus-resetter/internal/store"
	"github.com/tamzrod/modbus-resetter/internal/telemetry"
	"github.com/tamzrod/modbus-resetter/internal/writer"
)

// Build wires an App from a validated, normalized config.
// withPollers enables telemetry polling; one-shot commands leave it off.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, withPollers bool) (a *App, err error) {
	r := cfg.Resetter
	s := r.Schedule

	loc, err := s.Location()
	if err != nil {
		return nil, fmt.Errorf("app: timezone: %w", err)
	}

	var closers []func() error
	defer func() {
		if err != nil {
			for _, fn := range closers {
				_ = fn()
			}
		}
	}()

	// ---- devices ----
	devices := make([]Device, 0, len(r.Devices))
	codes := make([]string, 0, len(r.Devices))
	for _, d := range r.Devices {
		gw, err := gmodbus.New(gmodbus.Config{
			Device:   d.Code,
			Endpoint: gmodbus.Endpoint(d.Host, d.Port),
			UnitID:   d.UnitID,
			Timeout:  s.IOTimeout(),
			Start:    d.Layout.Start,
			Length:   d.Layout.Length,
		}, logger.WithComponent(log, "gateway"))
		if err != nil {
			return nil, fmt.Errorf("app: device %s: %w", d.Code, err)
		}
		devices = append(devices, Device{Descriptor: descriptor(d), Gateway: gw})
		codes = append(codes, d.Code)
	}

	var observers []reset.Observer
	opts := Options{
		Devices: devices,
		Policy: reset.Policy{
			MaxRetries:    s.MaxRetries,
			RetryDelay:    s.RetryDelay(),
			ConnectSettle: s.ConnectSettle(),
			WriteSettle:   s.WriteSettle(),
		},
		Window:       schedule.NewWindow(s.Hour, s.Minute, s.Window(), loc),
		PrecheckLead: s.PrecheckLead(),
		TickInterval: s.TickInterval(),
		Logger:       log,
	}

	// ---- status memory ----
	statusObs, closeStatus, err := writer.BuildStatusObserver(r, logger.WithComponent(log, "status"))
	if err != nil {
		return nil, fmt.Errorf("app: status memory: %w", err)
	}
	closers = append(closers, closeStatus)
	if statusObs != nil {
		observers = append(observers, statusObs)
		opts.Status = statusObs
	}

	// ---- event publishing ----
	if r.NATS != nil {
		nlog := logger.WithComponent(log, "nats")
		js, nc, err := telemetry.Connect(ctx, *r.NATS, nlog)
		if err != nil {
			return nil, fmt.Errorf("app: nats: %w", err)
		}
		closers = append(closers, func() error { return nc.Drain() })

		pub := telemetry.NewPublisher(js, r.NATS.SubjectPrefix, nlog)
		observers = append(observers, pub)

		opts.Sink = func(ctx context.Context, smp poller.Sample) {
			if err := pub.PublishSample(ctx, smp); err != nil {
				log.Warn().Err(err).Str("device", smp.Device).Msg("telemetry sample dropped")
			}
		}
	}

	// ---- persistence ----
	if r.Database != nil {
		pool, err := store.NewPool(ctx, *r.Database, logger.WithComponent(log, "store"))
		if err != nil {
			return nil, fmt.Errorf("app: database: %w", err)
		}
		closers = append(closers, func() error {
			pool.Close()
			return nil
		})

		st := store.New(pool, logger.WithComponent(log, "store"))
		if err := st.EnsureSchema(ctx, codes); err != nil {
			return nil, err
		}
		opts.Guard = st
	}

	// ---- telemetry pollers ----
	if withPollers && r.Telemetry != nil {
		plog := logger.WithComponent(log, "poller")
		for _, d := range r.Devices {
			p, err := poller.Build(d, r.Telemetry.Interval(), s.IOTimeout(), plog)
			if err != nil {
				return nil, fmt.Errorf("app: poller %s: %w", d.Code, err)
			}
			opts.Pollers = append(opts.Pollers, p)
		}
		if opts.Sink == nil {
			opts.Sink = func(_ context.Context, smp poller.Sample) {
				plog.Debug().Str("device", smp.Device).Uint16("counter", smp.Counter).Err(smp.Err).Msg("sample")
			}
		}
	}

	opts.Observers = observers
	opts.Closers = closers

	return New(opts)
}

func descriptor(d config.DeviceConfig) reset.Descriptor {
	return reset.Descriptor{
		Code:   d.Code,
		Host:   d.Host,
		Port:   d.Port,
		UnitID: d.UnitID,
		Layout: reset.Layout{
			Start:         d.Layout.Start,
			Length:        d.Layout.Length,
			CounterOffset: d.Layout.CounterOffset,
		},
	}
}

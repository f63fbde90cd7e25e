// internal/poller/builder.go
package poller

import (
	"time"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/modbus-resetter/internal/config"
	"github.com/tamzrod/modbus-resetter/internal/gateway"
	gmodbus "github.com/tamzrod/modbus-resetter/internal/gateway/modbus"
)

// Build constructs a Poller and wires Modbus client lifecycle.
// Connection is reused while healthy.
// On transport death, Poller discards the client and uses factory on a future tick.
// The first connection is deferred to the first tick so a dead device never blocks start.
func Build(d cfg.DeviceConfig, interval, timeout time.Duration, log zerolog.Logger) (*Poller, error) {
	// client factory: ONE attempt per call
	factory := func() (gateway.Gateway, error) {
		return gmodbus.New(gmodbus.Config{
			Device:   d.Code,
			Endpoint: gmodbus.Endpoint(d.Host, d.Port),
			UnitID:   d.UnitID,
			Timeout:  timeout,
			Start:    d.Layout.Start,
			Length:   d.Layout.Length,
		}, log)
	}

	return New(
		Config{
			Device:        d.Code,
			Interval:      interval,
			Length:        d.Layout.Length,
			CounterOffset: d.Layout.CounterOffset,
		},
		nil,
		factory,
		log,
	)
}

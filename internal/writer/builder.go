// internal/writer/builder.go
package writer

import (
	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/modbus-resetter/internal/config"
	wmodbus "github.com/tamzrod/modbus-resetter/internal/writer/modbus"
)

// BuildPlans converts the device list into status plans.
// Devices without a status slot are skipped.
// Assumes config has already passed validation.
func BuildPlans(r cfg.ResetterConfig) []StatusPlan {
	if r.StatusMemory == nil {
		return nil
	}

	var plans []StatusPlan
	for _, d := range r.Devices {
		if d.StatusSlot == nil {
			continue
		}
		plans = append(plans, StatusPlan{
			Endpoint:   r.StatusMemory.Endpoint,
			UnitID:     r.StatusMemory.UnitID,
			BaseSlot:   *d.StatusSlot,
			DeviceCode: d.Code,
		})
	}
	return plans
}

// BuildStatusObserver creates the status memory client and one writer per plan.
// It returns nil and a no-op closer when status memory is not configured.
func BuildStatusObserver(r cfg.ResetterConfig, log zerolog.Logger) (*StatusObserver, func() error, error) {
	plans := BuildPlans(r)
	if len(plans) == 0 {
		return nil, func() error { return nil }, nil
	}

	cli, err := wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint: r.StatusMemory.Endpoint,
		Timeout:  r.StatusMemory.Timeout(),
	}, log)
	if err != nil {
		return nil, nil, err
	}

	writers := make(map[string]StatusWriter, len(plans))
	for _, p := range plans {
		w, err := NewDeviceStatusWriter(p, cli)
		if err != nil {
			_ = cli.Close()
			return nil, nil, err
		}
		writers[p.DeviceCode] = w
	}

	return NewStatusObserver(writers, log), cli.Close, nil
}

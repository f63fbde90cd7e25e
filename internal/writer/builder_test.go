// internal/writer/builder_test.go
package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/tamzrod/modbus-resetter/internal/config"
	"github.com/tamzrod/modbus-resetter/internal/logger"
)

func slot(n uint16) *uint16 { return &n }

func TestBuildPlans(t *testing.T) {
	r := cfg.ResetterConfig{
		Devices: []cfg.DeviceConfig{
			{Code: "a", StatusSlot: slot(3)},
			{Code: "b"},
		},
	}
	assert.Nil(t, BuildPlans(r))

	r.StatusMemory = &cfg.StatusMemoryConfig{Endpoint: "10.0.0.50:502", UnitID: 4}
	plans := BuildPlans(r)

	require.Len(t, plans, 1)
	assert.Equal(t, StatusPlan{Endpoint: "10.0.0.50:502", UnitID: 4, BaseSlot: 3, DeviceCode: "a"}, plans[0])
}

func TestBuildStatusObserver_Disabled(t *testing.T) {
	obs, closeFn, err := BuildStatusObserver(cfg.ResetterConfig{}, logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, obs)
	assert.NoError(t, closeFn())
}

func TestBuildStatusObserver_Enabled(t *testing.T) {
	r := cfg.ResetterConfig{
		StatusMemory: &cfg.StatusMemoryConfig{Endpoint: "127.0.0.1:1502", UnitID: 1},
		Devices:      []cfg.DeviceConfig{{Code: "a", StatusSlot: slot(0)}},
	}

	obs, closeFn, err := BuildStatusObserver(r, logger.Nop())
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Contains(t, obs.devices, "a")
	assert.NoError(t, closeFn())
}

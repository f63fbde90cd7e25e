// internal/writer/device_status_writer_test.go
package writer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-resetter/internal/status"
)

// ---- fake endpoint client ----

type writeCall struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

type fakeEndpointClient struct {
	writes []writeCall
	fail   error
}

func (f *fakeEndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if f.fail != nil {
		return f.fail
	}
	f.writes = append(f.writes, writeCall{
		unitID: unitID,
		addr:   addr,
		regs:   append([]uint16(nil), regs...),
	})
	return nil
}

func (f *fakeEndpointClient) last() writeCall {
	return f.writes[len(f.writes)-1]
}

func testPlan() StatusPlan {
	return StatusPlan{
		Endpoint:   "status-endpoint",
		UnitID:     7,
		BaseSlot:   2,
		DeviceCode: "DEV-01",
	}
}

// ---- tests ----

func TestNewDeviceStatusWriter_Validation(t *testing.T) {
	_, err := NewDeviceStatusWriter(testPlan(), nil)
	require.Error(t, err)

	p := testPlan()
	p.DeviceCode = ""
	_, err = NewDeviceStatusWriter(p, &fakeEndpointClient{})
	require.Error(t, err)

	p = testPlan()
	p.BaseSlot = 4000
	_, err = NewDeviceStatusWriter(p, &fakeEndpointClient{})
	require.Error(t, err)
}

func TestDeviceCodeWrittenOnFullAssertOnly(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw, err := NewDeviceStatusWriter(testPlan(), cli)
	require.NoError(t, err)

	// ---- first write: FULL ASSERT ----
	require.NoError(t, sw.WriteStatus(status.Snapshot{Result: status.ResultOK}))

	full := cli.last()
	require.Len(t, full.regs, status.SlotsPerDevice)
	assert.Equal(t, uint8(7), full.unitID)
	assert.Equal(t, uint16(2*status.SlotsPerDevice), full.addr)
	assert.Equal(t,
		status.EncodeDeviceCode("DEV-01"),
		full.regs[status.SlotDeviceCodeStart:status.SlotDeviceCodeEnd+1],
	)

	// ---- second write: INCREMENTAL ONLY ----
	require.NoError(t, sw.WriteStatus(status.Snapshot{Result: status.ResultRetrying, RetryCount: 1}))

	require.Len(t, cli.writes, 3)
	for _, w := range cli.writes[1:] {
		assert.Len(t, w.regs, 1, "device code must not be rewritten on incremental update")
	}
	assert.Equal(t, uint16(40+status.SlotResult), cli.writes[1].addr)
	assert.Equal(t, uint16(40+status.SlotRetryCount), cli.writes[2].addr)
}

func TestUnchangedSnapshotWritesNothing(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw, err := NewDeviceStatusWriter(testPlan(), cli)
	require.NoError(t, err)

	s := status.Snapshot{Result: status.ResultOK, LastCounter: 9}
	require.NoError(t, sw.WriteStatus(s))
	require.NoError(t, sw.WriteStatus(s))

	assert.Len(t, cli.writes, 1)
}

func TestAttemptTimeWrittenAsPair(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw, err := NewDeviceStatusWriter(testPlan(), cli)
	require.NoError(t, err)

	require.NoError(t, sw.WriteStatus(status.Snapshot{}))
	require.NoError(t, sw.WriteStatus(status.Snapshot{AttemptUnix: 0x00010002}))

	w := cli.last()
	assert.Equal(t, uint16(40+status.SlotAttemptTimeHi), w.addr)
	assert.Equal(t, []uint16{1, 2}, w.regs)
}

func TestFailureRearmsFullAssert(t *testing.T) {
	cli := &fakeEndpointClient{}
	sw, err := NewDeviceStatusWriter(testPlan(), cli)
	require.NoError(t, err)

	require.NoError(t, sw.WriteStatus(status.Snapshot{Result: status.ResultOK}))

	cli.fail = errors.New("endpoint down")
	require.Error(t, sw.WriteStatus(status.Snapshot{Result: status.ResultFailed}))

	cli.fail = nil
	require.NoError(t, sw.WriteStatus(status.Snapshot{Result: status.ResultFailed}))

	w := cli.last()
	assert.Len(t, w.regs, status.SlotsPerDevice)
	assert.Equal(t, status.ResultFailed, w.regs[status.SlotResult])
}

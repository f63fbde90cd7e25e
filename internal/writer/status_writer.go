// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/modbus-resetter/internal/status"
)

// StatusWriter is the delivery-only contract for device reset status.
// It receives a snapshot and writes it verbatim.
// No logic, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// deviceStatusWriter is the concrete implementation. It is not safe for
// concurrent use; callers serialize per device.
type deviceStatusWriter struct {
	plan StatusPlan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
}

// NewDeviceStatusWriter builds a status writer for one device block.
func NewDeviceStatusWriter(plan StatusPlan, cli endpointClient) (*deviceStatusWriter, error) {
	if cli == nil {
		return nil, fmt.Errorf("status writer: missing client for endpoint %s", plan.Endpoint)
	}
	if plan.DeviceCode == "" {
		return nil, errors.New("status writer: device code required")
	}
	if int(plan.BaseSlot)*status.SlotsPerDevice+status.SlotsPerDevice > 65536 {
		return nil, fmt.Errorf("status writer: slot %d out of address range", plan.BaseSlot)
	}

	return &deviceStatusWriter{
		plan:     plan,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		last:     status.Snapshot{Result: status.ResultUnknown},
	}, nil
}

// WriteStatus delivers a reset status snapshot into status memory.
// On any write failure, the next successful call will re-assert the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	baseAddr := sw.baseAddr()

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		regs := status.EncodeFull(s, sw.plan.DeviceCode)

		if err := sw.cli.WriteRegisters(sw.plan.UnitID, baseAddr, regs); err != nil {
			sw.needFull = true
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}

		sw.needFull = false
		sw.last = s
		return nil
	}

	var errs []string

	// Slot 0 - result
	if sw.last.Result != s.Result {
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, baseAddr+status.SlotResult, []uint16{s.Result}); err != nil {
			errs = append(errs, fmt.Sprintf("slot0 result write failed: %v", err))
		} else {
			sw.last.Result = s.Result
		}
	}

	// Slot 1 - retry_count
	if sw.last.RetryCount != s.RetryCount {
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, baseAddr+status.SlotRetryCount, []uint16{s.RetryCount}); err != nil {
			errs = append(errs, fmt.Sprintf("slot1 retry_count write failed: %v", err))
		} else {
			sw.last.RetryCount = s.RetryCount
		}
	}

	// Slot 2 - last_counter
	if sw.last.LastCounter != s.LastCounter {
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, baseAddr+status.SlotLastCounter, []uint16{s.LastCounter}); err != nil {
			errs = append(errs, fmt.Sprintf("slot2 last_counter write failed: %v", err))
		} else {
			sw.last.LastCounter = s.LastCounter
		}
	}

	// Slots 3-4 - attempt time, always written as a pair
	if sw.last.AttemptUnix != s.AttemptUnix {
		pair := []uint16{uint16(s.AttemptUnix >> 16), uint16(s.AttemptUnix)}
		if err := sw.cli.WriteRegisters(sw.plan.UnitID, baseAddr+status.SlotAttemptTimeHi, pair); err != nil {
			errs = append(errs, fmt.Sprintf("slot3 attempt_time write failed: %v", err))
		} else {
			sw.last.AttemptUnix = s.AttemptUnix
		}
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt: re-assert on next success.
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	return nil
}

func (sw *deviceStatusWriter) baseAddr() uint16 {
	// Each device owns a fixed SlotsPerDevice block.
	return sw.plan.BaseSlot * status.SlotsPerDevice
}

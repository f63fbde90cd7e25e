// internal/reset/errors.go
package reset

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDevice is a configuration fault, never retried.
	ErrUnknownDevice = errors.New("reset: unknown device")

	// ErrShortBlock marks an empty or truncated register block.
	ErrShortBlock = errors.New("reset: register block too short")
)

// VerificationError means the post-write read does not show zero.
type VerificationError struct {
	Device string
	Addr   uint16
	Got    uint16
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("reset %s: verify addr=%d: counter reads %d, want 0", e.Device, e.Addr, e.Got)
}

// internal/status/snapshot.go
package status

import "time"

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Result      uint16
	RetryCount  uint16
	LastCounter uint16

	// AttemptUnix is the last attempt time in unix seconds, 0 if none.
	AttemptUnix uint32
}

// AttemptTime converts t for the AttemptUnix field.
// Times before the epoch or past 2106 clamp to the representable range.
func AttemptTime(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	s := t.Unix()
	switch {
	case s < 0:
		return 0
	case s > int64(^uint32(0)):
		return ^uint32(0)
	}
	return uint32(s)
}

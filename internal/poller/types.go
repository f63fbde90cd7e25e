// internal/poller/types.go
package poller

import "time"

// Sample is a snapshot produced by one poll cycle.
type Sample struct {
	Device string
	At     time.Time

	// Registers is the raw block, Start..Start+Length.
	Registers []uint16
	Counter   uint16

	Err error // non-nil means the poll cycle failed
}

// OK reports whether the sample carries data.
func (s Sample) OK() bool { return s.Err == nil }

// internal/schedule/window.go
package schedule

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Window is a time-of-day interval [Start, Start+Width) in Loc.
// Start is the offset from local midnight. Windows may wrap past midnight.
type Window struct {
	Start time.Duration
	Width time.Duration
	Loc   *time.Location
}

// NewWindow builds the window opening at hour:minute local time.
func NewWindow(hour, minute int, width time.Duration, loc *time.Location) Window {
	return Window{
		Start: time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute,
		Width: width,
		Loc:   loc,
	}
}

func (w Window) Location() *time.Location {
	if w.Loc == nil {
		return time.UTC
	}
	return w.Loc
}

// Contains reports whether t falls inside the window, evaluated in the
// window's location.
func (w Window) Contains(t time.Time) bool {
	if w.Width <= 0 {
		return false
	}
	if w.Width >= day {
		return true
	}

	t = t.In(w.Location())
	off := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())

	start := mod(w.Start, day)
	end := start + w.Width

	if end <= day {
		return off >= start && off < end
	}
	// wraps past midnight
	return off >= start || off < end-day
}

// Lead returns a window that opens lead earlier and closes at the same time.
func (w Window) Lead(lead time.Duration) Window {
	if lead <= 0 {
		return w
	}
	return Window{
		Start: mod(w.Start-lead, day),
		Width: w.Width + lead,
		Loc:   w.Loc,
	}
}

func (w Window) String() string {
	start := mod(w.Start, day)
	end := mod(start+w.Width, day)
	return fmt.Sprintf("%s-%s %s", clock(start), clock(end), w.Location())
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

func mod(d, m time.Duration) time.Duration {
	d %= m
	if d < 0 {
		d += m
	}
	return d
}

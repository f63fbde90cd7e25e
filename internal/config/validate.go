// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero values of optional fields are legal here; Normalize fills them.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}

	r := cfg.Resetter

	// ------------------------------------------------------------
	// SCHEDULE
	// ------------------------------------------------------------

	s := r.Schedule

	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("schedule: hour %d out of range 0-23", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("schedule: minute %d out of range 0-59", s.Minute)
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("schedule: timezone %q: %w", s.Timezone, err)
		}
	}
	if s.WindowMinutes < 0 || s.WindowMinutes >= 24*60 {
		return fmt.Errorf("schedule: window_minutes %d out of range", s.WindowMinutes)
	}
	if s.PrecheckLeadMinutes < 0 || s.PrecheckLeadMinutes >= 24*60 {
		return fmt.Errorf("schedule: precheck_lead_minutes %d out of range", s.PrecheckLeadMinutes)
	}

	for name, v := range map[string]int{
		"max_retries":       s.MaxRetries,
		"tick_interval_ms":  s.TickIntervalMs,
		"retry_delay_ms":    s.RetryDelayMs,
		"connect_settle_ms": s.ConnectSettleMs,
		"write_settle_ms":   s.WriteSettleMs,
		"io_timeout_ms":     s.IOTimeoutMs,
	} {
		if v < 0 {
			return fmt.Errorf("schedule: %s must be >= 0, got %d", name, v)
		}
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	if len(r.Devices) == 0 {
		return errors.New("devices: at least one device required")
	}

	seen := make(map[string]struct{}, len(r.Devices))

	// key = DeviceSlug(code); telemetry tables and subjects are named by it
	slugOwner := make(map[string]string, len(r.Devices))

	// key = status_slot
	statusOwner := make(map[uint16]string)

	for i, d := range r.Devices {
		if d.Code == "" {
			return fmt.Errorf("device #%d: code required", i)
		}
		if _, dup := seen[d.Code]; dup {
			return fmt.Errorf("device %q: duplicate code", d.Code)
		}
		seen[d.Code] = struct{}{}

		slug := DeviceSlug(d.Code)
		if prev, exists := slugOwner[slug]; exists {
			return fmt.Errorf(
				"device %q: code collides with %q (both map to %q)",
				d.Code,
				prev,
				slug,
			)
		}
		slugOwner[slug] = d.Code

		if d.Host == "" {
			return fmt.Errorf("device %q: host required", d.Code)
		}
		if d.Port < 0 || d.Port > 65535 {
			return fmt.Errorf("device %q: port %d out of range", d.Code, d.Port)
		}

		l := d.Layout
		if l.Length == 0 {
			return fmt.Errorf("device %q: register_layout.length must be > 0", d.Code)
		}
		if l.CounterOffset >= l.Length {
			return fmt.Errorf(
				"device %q: counter_offset %d outside register block of length %d",
				d.Code,
				l.CounterOffset,
				l.Length,
			)
		}
		if int(l.Start)+int(l.Length) > 65536 {
			return fmt.Errorf(
				"device %q: register block %d+%d exceeds address space",
				d.Code,
				l.Start,
				l.Length,
			)
		}
		if l.Length > 125 {
			return fmt.Errorf("device %q: register_layout.length %d exceeds 125", d.Code, l.Length)
		}

		// status is opt-in
		if d.StatusSlot == nil {
			continue
		}

		if r.StatusMemory == nil {
			return fmt.Errorf(
				"device %q: status_slot is set but no status_memory is defined",
				d.Code,
			)
		}

		slot := *d.StatusSlot
		if prev, exists := statusOwner[slot]; exists {
			return fmt.Errorf(
				"status_slot collision: slot=%d used by devices %q and %q",
				slot,
				prev,
				d.Code,
			)
		}
		statusOwner[slot] = d.Code
	}

	// ------------------------------------------------------------
	// OPTIONAL OUTPUTS
	// ------------------------------------------------------------

	if sm := r.StatusMemory; sm != nil {
		if sm.Endpoint == "" {
			return errors.New("status_memory: endpoint required")
		}
		if sm.TimeoutMs < 0 {
			return fmt.Errorf("status_memory: timeout_ms must be >= 0, got %d", sm.TimeoutMs)
		}
	}

	if t := r.Telemetry; t != nil && t.IntervalMs < 0 {
		return fmt.Errorf("telemetry: interval_ms must be >= 0, got %d", t.IntervalMs)
	}

	if n := r.NATS; n != nil && n.URL == "" {
		return errors.New("nats: url required")
	}

	if db := r.Database; db != nil {
		if db.Host == "" {
			return errors.New("database: host required")
		}
		if db.Database == "" {
			return errors.New("database: database name required")
		}
		if db.Port < 0 || db.Port > 65535 {
			return fmt.Errorf("database: port %d out of range", db.Port)
		}
	}

	return nil
}

// DeviceSlug is the storage-safe form of a device code: lower case, with
// anything outside [a-z0-9] mapped to '_'. Validate rejects codes whose
// slugs collide.
func DeviceSlug(code string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, strings.ToLower(code))
}

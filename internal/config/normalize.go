// internal/config/normalize.go
package config

import "time"

// Defaults applied by Normalize.
const (
	DefaultTimezone            = "UTC"
	DefaultWindowMinutes       = 15
	DefaultPrecheckLeadMinutes = 5
	DefaultTickIntervalMs      = 60_000
	DefaultMaxRetries          = 5
	DefaultRetryDelayMs        = 30_000
	DefaultConnectSettleMs     = 1_000
	DefaultWriteSettleMs       = 500
	DefaultIOTimeoutMs         = 5_000
	DefaultModbusPort          = 502
	DefaultTelemetryIntervalMs = 10_000
	DefaultStatusTimeoutMs     = 2_000

	DefaultNATSStream        = "RESETTER"
	DefaultNATSSubjectPrefix = "resetter"
	DefaultNATSDurable       = "resetter-persist"

	DefaultDatabasePort = 5432
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	r := &cfg.Resetter

	// ------------------------------------------------------------
	// SCHEDULE DEFAULTS
	// ------------------------------------------------------------

	s := &r.Schedule
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}
	if s.WindowMinutes == 0 {
		s.WindowMinutes = DefaultWindowMinutes
	}
	if s.PrecheckLeadMinutes == 0 {
		s.PrecheckLeadMinutes = DefaultPrecheckLeadMinutes
	}
	if s.TickIntervalMs == 0 {
		s.TickIntervalMs = DefaultTickIntervalMs
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.RetryDelayMs == 0 {
		s.RetryDelayMs = DefaultRetryDelayMs
	}
	if s.ConnectSettleMs == 0 {
		s.ConnectSettleMs = DefaultConnectSettleMs
	}
	if s.WriteSettleMs == 0 {
		s.WriteSettleMs = DefaultWriteSettleMs
	}
	if s.IOTimeoutMs == 0 {
		s.IOTimeoutMs = DefaultIOTimeoutMs
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	for i := range r.Devices {
		if r.Devices[i].Port == 0 {
			r.Devices[i].Port = DefaultModbusPort
		}
	}

	// ------------------------------------------------------------
	// OPTIONAL OUTPUTS
	// ------------------------------------------------------------

	if sm := r.StatusMemory; sm != nil && sm.TimeoutMs == 0 {
		sm.TimeoutMs = DefaultStatusTimeoutMs
	}

	if t := r.Telemetry; t != nil && t.IntervalMs == 0 {
		t.IntervalMs = DefaultTelemetryIntervalMs
	}

	if n := r.NATS; n != nil {
		if n.Stream == "" {
			n.Stream = DefaultNATSStream
		}
		if n.SubjectPrefix == "" {
			n.SubjectPrefix = DefaultNATSSubjectPrefix
		}
		if n.Durable == "" {
			n.Durable = DefaultNATSDurable
		}
	}

	if db := r.Database; db != nil {
		if db.Port == 0 {
			db.Port = DefaultDatabasePort
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
		if db.ApplicationName == "" {
			db.ApplicationName = "modbus-resetter"
		}
	}
}

// ---- duration helpers ----

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (s ScheduleConfig) TickInterval() time.Duration  { return ms(s.TickIntervalMs) }
func (s ScheduleConfig) RetryDelay() time.Duration    { return ms(s.RetryDelayMs) }
func (s ScheduleConfig) ConnectSettle() time.Duration { return ms(s.ConnectSettleMs) }
func (s ScheduleConfig) WriteSettle() time.Duration   { return ms(s.WriteSettleMs) }
func (s ScheduleConfig) IOTimeout() time.Duration     { return ms(s.IOTimeoutMs) }
func (s ScheduleConfig) Window() time.Duration        { return time.Duration(s.WindowMinutes) * time.Minute }
func (s ScheduleConfig) PrecheckLead() time.Duration  { return time.Duration(s.PrecheckLeadMinutes) * time.Minute }

func (t TelemetryConfig) Interval() time.Duration   { return ms(t.IntervalMs) }
func (s StatusMemoryConfig) Timeout() time.Duration { return ms(s.TimeoutMs) }

// Location resolves the configured timezone. Validate has already checked it.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// internal/config/config.go
package config

type Config struct {
	Resetter ResetterConfig `yaml:"resetter"`
}

type ResetterConfig struct {
	Logging      LoggingConfig       `yaml:"logging"`
	Schedule     ScheduleConfig      `yaml:"schedule"`
	Devices      []DeviceConfig      `yaml:"devices"`
	StatusMemory *StatusMemoryConfig `yaml:"status_memory"`
	Telemetry    *TelemetryConfig    `yaml:"telemetry"`
	NATS         *NATSConfig         `yaml:"nats"`
	Database     *DatabaseConfig     `yaml:"database"`
}

// ---- LOGGING ----

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Debug      bool   `yaml:"debug"`
	Output     string `yaml:"output"`
	TimeFormat string `yaml:"time_format"`
}

// ---- SCHEDULE ----

type ScheduleConfig struct {
	Hour     int    `yaml:"hour"`
	Minute   int    `yaml:"minute"`
	Timezone string `yaml:"timezone"`

	WindowMinutes       int `yaml:"window_minutes"`
	PrecheckLeadMinutes int `yaml:"precheck_lead_minutes"`
	TickIntervalMs      int `yaml:"tick_interval_ms"`

	MaxRetries      int `yaml:"max_retries"`
	RetryDelayMs    int `yaml:"retry_delay_ms"`
	ConnectSettleMs int `yaml:"connect_settle_ms"`
	WriteSettleMs   int `yaml:"write_settle_ms"`
	IOTimeoutMs     int `yaml:"io_timeout_ms"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Code   string         `yaml:"code"`
	Host   string         `yaml:"host"`
	Port   int            `yaml:"port"`
	UnitID uint8          `yaml:"unit_id"`
	Layout RegisterLayout `yaml:"register_layout"`

	// Reset status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot"`
}

// RegisterLayout is read geometry plus the counter position inside it.
// Holding registers only.
type RegisterLayout struct {
	Start         uint16 `yaml:"start"`
	Length        uint16 `yaml:"length"`
	CounterOffset uint16 `yaml:"counter_offset"`
}

// ---- STATUS MEMORY ----

type StatusMemoryConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- TELEMETRY ----

type TelemetryConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- NATS ----

type NATSConfig struct {
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Durable       string `yaml:"durable"`
}

// ---- DATABASE ----

type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"sslmode"`
	ApplicationName string `yaml:"application_name"`
	MaxConnections  int32  `yaml:"max_connections"`
}

// internal/reset/state.go
package reset

import "time"

// State is one device's reset bookkeeping. Owned by its Worker.
//
// RetryCount counts consecutive failed attempts and stays in [0, MaxRetries].
// It returns to 0 on success and also when retries are exhausted.
type State struct {
	LastAttemptAt      time.Time
	RetryCount         int
	LastResetSucceeded bool
}

// Outcome is what a Worker's retry chain resolves to.
type Outcome struct {
	Device    string
	Succeeded bool
	Attempts  int

	// Counter is the last value read before a write, for observability only.
	Counter     uint16
	CounterRead bool

	// Err is the cause of the last failed attempt. Nil on success.
	Err error
}

// FleetState is the fleet-wide guard. Owned by the Coordinator.
//
// LastResetDate is a calendar date (2006-01-02) in the configured timezone.
// It only advances when every device succeeded.
type FleetState struct {
	ResetInProgress bool
	LastResetDate   string
}

const dateLayout = "2006-01-02"

func dateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

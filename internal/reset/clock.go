// internal/reset/clock.go
package reset

import (
	"context"
	"time"
)

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// settle waits d or until ctx is done. It reports whether the full delay elapsed.
// Retry spacing is handled by backoff in Reset, not here.
func settle(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package snapshot

import (
	"fmt"
	"time"
)

// CutoffTTL returns the duration from now until the next occurrence of
// the daily cutoff time in the given location. If the cutoff has already
// passed today, the result targets tomorrow's cutoff.
//
// Cache entries sized this way expire at the trading-session boundary
// instead of after a fixed age.
func CutoffTTL(now time.Time, cutoff string, loc *time.Location) (time.Duration, error) {
	t, err := time.ParseInLocation("15:04", cutoff, loc)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff time %q: %w", cutoff, err)
	}

	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(),
		t.Hour(), t.Minute(), 0, 0, loc)
	if !local.Before(next) {
		next = next.AddDate(0, 0, 1)
	}

	return next.Sub(local), nil
}

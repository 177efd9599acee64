package fx

import (
	"fmt"
	"strings"
	"time"
)

// Named staleness thresholds.
const (
	StaleCritical   = 60 * time.Minute
	StaleWarning    = 240 * time.Minute
	StaleAcceptable = 1440 * time.Minute
)

// DefaultThreshold applies when a caller passes no threshold.
const DefaultThreshold = StaleWarning

// ParseThreshold accepts a preset name or a Go duration string.
func ParseThreshold(v string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return DefaultThreshold, nil
	case "critical":
		return StaleCritical, nil
	case "warning":
		return StaleWarning, nil
	case "acceptable":
		return StaleAcceptable, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("fx: invalid stale threshold %q", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("fx: stale threshold must be positive")
	}
	return d, nil
}

// Staleness derives the age from the oldest rate in the batch.
func Staleness(rates []RateData, now time.Time, threshold time.Duration) (oldest time.Time, ageMinutes float64, stale bool) {
	for _, r := range rates {
		if oldest.IsZero() || r.Timestamp.Before(oldest) {
			oldest = r.Timestamp
		}
	}
	if oldest.IsZero() {
		return oldest, 0, false
	}
	age := now.Sub(oldest)
	if age < 0 {
		age = 0
	}
	return oldest, age.Minutes(), age > threshold
}

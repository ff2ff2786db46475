package monitor

import "time"

// Decision is the outcome of one monitor tick.
type Decision int

const (
	// Skip means no revalidation happens on this tick.
	Skip Decision = iota
	// RevalidateIdle means the user has been idle past the idle threshold.
	RevalidateIdle
	// RevalidateActive means the user was active within the active threshold.
	RevalidateActive
)

// Revalidates reports whether the decision triggers a gateway call.
func (d Decision) Revalidates() bool {
	return d == RevalidateIdle || d == RevalidateActive
}

func (d Decision) String() string {
	switch d {
	case RevalidateIdle:
		return "revalidate_idle"
	case RevalidateActive:
		return "revalidate_active"
	default:
		return "skip"
	}
}

// Policy holds the two activity thresholds.
type Policy struct {
	IdleThreshold   time.Duration
	ActiveThreshold time.Duration
}

// DefaultPolicy returns the 30 minute idle / 15 minute active policy.
func DefaultPolicy() Policy {
	return Policy{
		IdleThreshold:   30 * time.Minute,
		ActiveThreshold: 15 * time.Minute,
	}
}

// Decide maps the time since the last activity to a tick decision.
func (p Policy) Decide(elapsed time.Duration) Decision {
	switch {
	case elapsed > p.IdleThreshold:
		return RevalidateIdle
	case elapsed < p.ActiveThreshold:
		return RevalidateActive
	default:
		return Skip
	}
}

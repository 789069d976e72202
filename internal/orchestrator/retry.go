package orchestrator

import "time"

// RetryPolicy is a bounded, fixed-schedule retry policy.
type RetryPolicy struct {
	MaxAttempts int
	Schedule    []time.Duration
}

// DefaultRetryPolicy retries after 5, 15 and 60 minutes, three attempts in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Schedule:    []time.Duration{5 * time.Minute, 15 * time.Minute, 60 * time.Minute},
	}
}

// Next reports whether attempt n (1-based) may be followed by another one and
// after which delay.
func (p RetryPolicy) Next(n int) (time.Duration, bool) {
	if n >= p.MaxAttempts || len(p.Schedule) == 0 {
		return 0, false
	}
	i := n - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.Schedule) {
		i = len(p.Schedule) - 1
	}
	return p.Schedule[i], true
}

package session

import "time"

// RetryPolicy controls how often recovery is attempted after a failure.
// MaxAttempts of 0 means retry forever.
type RetryPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

// Default delays: 5s after a disconnect, 10s after a failed initialization.
var (
	DefaultReconnectPolicy = RetryPolicy{Delay: 5 * time.Second}
	DefaultInitPolicy      = RetryPolicy{Delay: 10 * time.Second}
)

// Allow reports whether attempt (1-based) is permitted.
func (p RetryPolicy) Allow(attempt int) bool {
	return p.MaxAttempts <= 0 || attempt <= p.MaxAttempts
}

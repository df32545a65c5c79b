package lockout

import (
	"strings"
	"time"
)

// Config holds the failed-attempt thresholds.
type Config struct {
	MaxAttempts   int
	AttemptWindow time.Duration
	LockDuration  time.Duration
}

// DefaultConfig returns five attempts per hour and a fifteen minute lock.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		AttemptWindow: time.Hour,
		LockDuration:  15 * time.Minute,
	}
}

// Status is a point-in-time view of a principal's attempt record.
type Status struct {
	Principal                     string `json:"principal"`
	Locked                        bool   `json:"locked"`
	FailedCount                   int    `json:"failed_count"`
	MaxAttempts                   int    `json:"max_attempts"`
	LockSecondsRemaining          int    `json:"lock_seconds_remaining"`
	AttemptWindowSecondsRemaining int    `json:"attempt_window_seconds_remaining"`
}

// FailureResult reports the record after a failure was counted.
type FailureResult struct {
	FailedCount int
	Locked      bool
}

// LockedAccount is one entry of the active lockout list.
type LockedAccount struct {
	Principal string        `json:"principal"`
	Remaining time.Duration `json:"-"`
}

// RemainingSeconds is the lock TTL rounded up to whole seconds.
func (a LockedAccount) RemainingSeconds() int {
	return ceilSeconds(a.Remaining)
}

// NormalizePrincipal lowercases and trims principal and escapes the key
// delimiter so user input cannot address another principal's keys.
func NormalizePrincipal(principal string) string {
	p := strings.ToLower(strings.TrimSpace(principal))
	return strings.ReplaceAll(p, ":", "_")
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

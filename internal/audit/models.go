package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FailureReason is the outcome recorded for a rejected login.
type FailureReason string

const (
	ReasonInvalidCredentials   FailureReason = "invalid_credentials"
	ReasonAccountLocked        FailureReason = "account_locked"
	ReasonUserNotFound         FailureReason = "user_not_found"
	ReasonDirectoryError       FailureReason = "directory_error"
	ReasonTransportUnavailable FailureReason = "transport_unavailable"
)

// LoginAttempt is one audit record per authentication outcome.
type LoginAttempt struct {
	ID            uuid.UUID     `json:"id"`
	Principal     string        `json:"principal"`
	IP            string        `json:"ip_address"`
	UserAgent     string        `json:"user_agent"`
	Browser       string        `json:"browser"`
	OS            string        `json:"os"`
	Timestamp     time.Time     `json:"timestamp"`
	Success       bool          `json:"success"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	Domain        string        `json:"domain,omitempty"`
}

// WindowStats aggregates attempts since a point in time.
type WindowStats struct {
	Total            int `json:"total_attempts"`
	Successful       int `json:"successful"`
	Failed           int `json:"failed"`
	UniquePrincipals int `json:"unique_users"`
	UniqueIPs        int `json:"unique_ips"`
}

// SuccessRate is a percentage; zero when there were no attempts.
func (w WindowStats) SuccessRate() float64 {
	if w.Total == 0 {
		return 0
	}
	return float64(w.Successful) / float64(w.Total) * 100
}

// Snapshot is one hourly row of security metrics.
type Snapshot struct {
	Date              time.Time `json:"date"`
	Hour              int       `json:"hour"`
	Total             int       `json:"total_login_attempts"`
	Successful        int       `json:"successful_logins"`
	Failed            int       `json:"failed_logins"`
	UniquePrincipals  int       `json:"unique_users"`
	UniqueIPs         int       `json:"unique_ips"`
	BlockedAccounts   int       `json:"blocked_accounts"`
	ActiveRevocations int       `json:"active_revocations"`
}

// DailyBucket rolls hourly snapshots up to one day.
type DailyBucket struct {
	Date             time.Time `json:"date"`
	Total            int       `json:"total_login_attempts"`
	Successful       int       `json:"successful_logins"`
	Failed           int       `json:"failed_logins"`
	UniquePrincipals int       `json:"unique_users"`
	UniqueIPs        int       `json:"unique_ips"`
	BlockedAccounts  int       `json:"blocked_accounts"`
	SuccessRate      float64   `json:"success_rate"`
}

// Store persists login attempts and answers the telemetry queries.
type Store interface {
	Append(ctx context.Context, attempt LoginAttempt) error
	WindowStats(ctx context.Context, since time.Time) (WindowStats, error)
	Recent(ctx context.Context, limit int, principals ...string) ([]LoginAttempt, error)
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
	DailyBuckets(ctx context.Context, since time.Time) ([]DailyBucket, error)
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}

// Sink receives attempts after they are stored, e.g. a Kafka topic.
type Sink interface {
	Publish(ctx context.Context, attempt LoginAttempt) error
}

// SnapshotKey truncates t to the (date, hour) a snapshot is filed under.
func SnapshotKey(t time.Time) (time.Time, int) {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), t.Hour()
}

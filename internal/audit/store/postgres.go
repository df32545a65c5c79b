package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/CherreraTEG/OneSite/internal/audit"
)

// PostgresStore writes attempts to audit_login_attempts and hourly rows to
// security_metrics.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, a audit.LoginAttempt) error {
	query := `
		INSERT INTO audit_login_attempts
			(id, principal, ip_address, user_agent, browser, os, success, failure_reason, domain, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Principal, a.IP, a.UserAgent, a.Browser, a.OS,
		a.Success, string(a.FailureReason), a.Domain, a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) WindowStats(ctx context.Context, since time.Time) (audit.WindowStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE NOT success),
			COUNT(DISTINCT principal),
			COUNT(DISTINCT NULLIF(ip_address, ''))
		FROM audit_login_attempts
		WHERE attempted_at >= $1
	`
	var stats audit.WindowStats
	err := s.db.QueryRowContext(ctx, query, since).Scan(
		&stats.Total, &stats.Successful, &stats.Failed, &stats.UniquePrincipals, &stats.UniqueIPs,
	)
	if err != nil {
		return audit.WindowStats{}, fmt.Errorf("query window stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int, principals ...string) ([]audit.LoginAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, principal, ip_address, user_agent, browser, os, success, failure_reason, domain, attempted_at
		FROM audit_login_attempts
		WHERE cardinality($1::text[]) = 0 OR principal = ANY($1::text[])
		ORDER BY attempted_at DESC
		LIMIT $2
	`
	if principals == nil {
		principals = []string{}
	}
	rows, err := s.db.QueryContext(ctx, query, pq.Array(principals), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent attempts: %w", err)
	}
	defer rows.Close()

	var out []audit.LoginAttempt
	for rows.Next() {
		var a audit.LoginAttempt
		var reason string
		if err := rows.Scan(&a.ID, &a.Principal, &a.IP, &a.UserAgent, &a.Browser, &a.OS,
			&a.Success, &reason, &a.Domain, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan login attempt: %w", err)
		}
		a.FailureReason = audit.FailureReason(reason)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveSnapshot upserts the row for the snapshot's (date, hour).
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap audit.Snapshot) error {
	date, _ := audit.SnapshotKey(snap.Date)
	query := `
		INSERT INTO security_metrics
			(metric_date, metric_hour, total_login_attempts, successful_logins, failed_logins,
			 unique_users, unique_ips, blocked_accounts, active_revocations, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (metric_date, metric_hour) DO UPDATE SET
			total_login_attempts = EXCLUDED.total_login_attempts,
			successful_logins    = EXCLUDED.successful_logins,
			failed_logins        = EXCLUDED.failed_logins,
			unique_users         = EXCLUDED.unique_users,
			unique_ips           = EXCLUDED.unique_ips,
			blocked_accounts     = EXCLUDED.blocked_accounts,
			active_revocations   = EXCLUDED.active_revocations,
			updated_at           = now()
	`
	_, err := s.db.ExecContext(ctx, query,
		date, snap.Hour, snap.Total, snap.Successful, snap.Failed,
		snap.UniquePrincipals, snap.UniqueIPs, snap.BlockedAccounts, snap.ActiveRevocations,
	)
	if err != nil {
		return fmt.Errorf("save security snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) DailyBuckets(ctx context.Context, since time.Time) ([]audit.DailyBucket, error) {
	sinceDay, _ := audit.SnapshotKey(since)
	query := `
		SELECT metric_date,
			SUM(total_login_attempts), SUM(successful_logins), SUM(failed_logins),
			MAX(unique_users), MAX(unique_ips), MAX(blocked_accounts)
		FROM security_metrics
		WHERE metric_date >= $1
		GROUP BY metric_date
		ORDER BY metric_date DESC
	`
	rows, err := s.db.QueryContext(ctx, query, sinceDay)
	if err != nil {
		return nil, fmt.Errorf("query daily metrics: %w", err)
	}
	defer rows.Close()

	var out []audit.DailyBucket
	for rows.Next() {
		var b audit.DailyBucket
		if err := rows.Scan(&b.Date, &b.Total, &b.Successful, &b.Failed,
			&b.UniquePrincipals, &b.UniqueIPs, &b.BlockedAccounts); err != nil {
			return nil, fmt.Errorf("scan daily metrics: %w", err)
		}
		b.SuccessRate = successRate(b.Successful, b.Total)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Cleanup deletes attempts and snapshots older than the cutoff and reports
// how many attempts were removed.
func (s *PostgresStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cleanup: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM audit_login_attempts WHERE attempted_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete login attempts: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	cutoff, _ := audit.SnapshotKey(olderThan)
	if _, err := tx.ExecContext(ctx, `DELETE FROM security_metrics WHERE metric_date < $1`, cutoff); err != nil {
		return 0, fmt.Errorf("delete security metrics: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cleanup: %w", err)
	}
	return removed, nil
}

// Name and Check make the store a health component.
func (s *PostgresStore) Name() string { return "audit_store" }

func (s *PostgresStore) Check(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// PostgresTRL persists revocations in token_revocations. Rows past expires_at
// are ignored by reads and removed by DeleteExpired.
type PostgresTRL struct {
	db    *sql.DB
	clock Clock
}

// PostgresTRLOption configures a PostgresTRL instance.
type PostgresTRLOption func(*PostgresTRL)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock Clock) PostgresTRLOption {
	return func(trl *PostgresTRL) {
		if clock != nil {
			trl.clock = clock
		}
	}
}

// NewPostgresTRL constructs a PostgreSQL-backed token revocation list.
func NewPostgresTRL(db *sql.DB, opts ...PostgresTRLOption) *PostgresTRL {
	trl := &PostgresTRL{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(trl)
		}
	}
	return trl
}

// RevokeToken upserts the fingerprint with its expiry.
func (t *PostgresTRL) RevokeToken(ctx context.Context, key string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	query := `
		INSERT INTO token_revocations (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO UPDATE SET
			expires_at = GREATEST(token_revocations.expires_at, EXCLUDED.expires_at)
	`
	if _, err := t.db.ExecContext(ctx, query, key, t.clock().Add(ttl)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked checks for a live row.
func (t *PostgresTRL) IsRevoked(ctx context.Context, key string) (bool, error) {
	var expiresAt time.Time
	err := t.db.QueryRowContext(ctx, `SELECT expires_at FROM token_revocations WHERE jti = $1`, key).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return t.clock().Before(expiresAt), nil
}

// CountActive counts rows that have not expired.
func (t *PostgresTRL) CountActive(ctx context.Context) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM token_revocations WHERE expires_at > $1`, t.clock()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count revocations: %w", err)
	}
	return n, nil
}

// DeleteExpired removes rows whose token can no longer verify anyway.
func (t *PostgresTRL) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := t.db.ExecContext(ctx, `DELETE FROM token_revocations WHERE expires_at <= $1`, t.clock())
	if err != nil {
		return 0, fmt.Errorf("delete expired revocations: %w", err)
	}
	return res.RowsAffected()
}

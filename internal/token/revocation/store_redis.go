package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "revoked:"

// RedisTRL is the shared revocation list for multi-instance deployments.
// Entries are keyed by token fingerprint and expire with the token.
type RedisTRL struct {
	client  redis.UniversalClient
	latency prometheus.Observer
}

// RedisTRLOption configures a RedisTRL instance.
type RedisTRLOption func(*RedisTRL)

// WithLatencyObserver records IsRevoked latency in milliseconds.
func WithLatencyObserver(o prometheus.Observer) RedisTRLOption {
	return func(t *RedisTRL) {
		t.latency = o
	}
}

// NewRedisTRL constructs a Redis-backed token revocation list.
func NewRedisTRL(client redis.UniversalClient, opts ...RedisTRLOption) *RedisTRL {
	trl := &RedisTRL{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(trl)
		}
	}
	return trl
}

// RevokeToken adds a fingerprint with a TTL in one SET.
func (t *RedisTRL) RevokeToken(ctx context.Context, key string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	if err := t.client.Set(ctx, revokedKeyPrefix+key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the fingerprint has a live entry.
func (t *RedisTRL) IsRevoked(ctx context.Context, key string) (bool, error) {
	if t.latency != nil {
		start := time.Now()
		defer func() {
			t.latency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}()
	}
	_, err := t.client.Get(ctx, revokedKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return true, nil
}

// CountActive counts live revocation entries.
func (t *RedisTRL) CountActive(ctx context.Context) (int, error) {
	n := 0
	iter := t.client.Scan(ctx, 0, revokedKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("count revocations: %w", err)
	}
	return n, nil
}

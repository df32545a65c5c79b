package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CherreraTEG/OneSite/internal/lockout"
)

// incrementScript bumps the counter and starts its window on the first
// failure only, so later failures never extend the window.
var incrementScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisStore keeps attempt counters and locks in Redis under
// attempts:{principal} and lockout:{principal}.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) IncrementFailures(ctx context.Context, principal string, window time.Duration) (int, error) {
	n, err := incrementScript.Run(ctx, s.client, []string{attemptsKey(principal)}, window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("increment failures: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Failures(ctx context.Context, principal string) (int, time.Duration, error) {
	key := attemptsKey(principal)
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, fmt.Errorf("read failures: %w", err)
	}
	n, err := get.Int()
	if errors.Is(err, redis.Nil) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("parse failures: %w", err)
	}
	return n, positive(ttl.Val()), nil
}

func (s *RedisStore) ResetFailures(ctx context.Context, principal string) error {
	if err := s.client.Del(ctx, attemptsKey(principal)).Err(); err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	return nil
}

// Lock sets the lock and deletes the counter in one transaction.
func (s *RedisStore) Lock(ctx context.Context, principal string, d time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, lockoutKey(principal), "1", d)
		pipe.Del(ctx, attemptsKey(principal))
		return nil
	})
	if err != nil {
		return fmt.Errorf("lock principal: %w", err)
	}
	return nil
}

func (s *RedisStore) LockRemaining(ctx context.Context, principal string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, lockoutKey(principal)).Result()
	if err != nil {
		return 0, fmt.Errorf("read lock: %w", err)
	}
	return positive(ttl), nil
}

func (s *RedisStore) Unlock(ctx context.Context, principal string) error {
	if err := s.client.Del(ctx, lockoutKey(principal), attemptsKey(principal)).Err(); err != nil {
		return fmt.Errorf("unlock principal: %w", err)
	}
	return nil
}

func (s *RedisStore) ListLocked(ctx context.Context) ([]lockout.LockedAccount, error) {
	var accounts []lockout.LockedAccount
	iter := s.client.Scan(ctx, 0, lockoutPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := s.client.PTTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("read lock ttl: %w", err)
		}
		if ttl <= 0 {
			continue
		}
		accounts = append(accounts, lockout.LockedAccount{
			Principal: strings.TrimPrefix(key, lockoutPrefix),
			Remaining: ttl,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan locks: %w", err)
	}
	return accounts, nil
}

// Name identifies the store in health reports.
func (s *RedisStore) Name() string {
	return "redis"
}

// Check pings the backing Redis.
func (s *RedisStore) Check(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func positive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

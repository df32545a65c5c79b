package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_IncrementFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("first failure starts the window", func(t *testing.T) {
		s, mr := newRedisStore(t)

		n, err := s.IncrementFailures(ctx, "jdoe", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, time.Hour, mr.TTL("attempts:jdoe"))

		mr.FastForward(10 * time.Minute)
		n, err = s.IncrementFailures(ctx, "jdoe", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 50*time.Minute, mr.TTL("attempts:jdoe"), "later failures do not extend the window")

		count, remaining, err := s.Failures(ctx, "jdoe")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.Equal(t, 50*time.Minute, remaining)
	})

	t.Run("counter expires with its window", func(t *testing.T) {
		s, mr := newRedisStore(t)
		_, err := s.IncrementFailures(ctx, "jdoe", time.Hour)
		require.NoError(t, err)

		mr.FastForward(time.Hour)
		count, _, err := s.Failures(ctx, "jdoe")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		s, _ := newRedisStore(t)

		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.IncrementFailures(ctx, "jdoe", time.Hour)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		count, _, err := s.Failures(ctx, "jdoe")
		require.NoError(t, err)
		assert.Equal(t, 100, count)
	})
}

func TestRedisStore_Lock(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	_, err := s.IncrementFailures(ctx, "jdoe", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Lock(ctx, "jdoe", 15*time.Minute))

	assert.False(t, mr.Exists("attempts:jdoe"), "locking deletes the counter")
	remaining, err := s.LockRemaining(ctx, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, remaining)

	require.NoError(t, s.ResetFailures(ctx, "jdoe"))
	assert.True(t, mr.Exists("lockout:jdoe"), "resetting failures leaves the lock")

	locked, err := s.ListLocked(ctx)
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(t, "jdoe", locked[0].Principal)

	mr.FastForward(15 * time.Minute)
	remaining, err = s.LockRemaining(ctx, "jdoe")
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestRedisStore_Unlock(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	require.NoError(t, s.Lock(ctx, "jdoe", 15*time.Minute))
	_, err := s.IncrementFailures(ctx, "jdoe", time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.Unlock(ctx, "jdoe"))
	assert.False(t, mr.Exists("lockout:jdoe"))
	assert.False(t, mr.Exists("attempts:jdoe"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)
	mr.Close()

	_, err := s.IncrementFailures(ctx, "jdoe", time.Hour)
	assert.Error(t, err)
	_, err = s.LockRemaining(ctx, "jdoe")
	assert.Error(t, err)
	assert.Error(t, s.Check(ctx))
}

package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CherreraTEG/OneSite/internal/platform/config"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("empty URL means not configured", func(t *testing.T) {
		c, err := New(ctx, config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("connects and reports healthy", func(t *testing.T) {
		mr := miniredis.RunT(t)
		c, err := New(ctx, config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 2})
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })

		assert.Equal(t, "redis", c.Name())
		assert.NoError(t, c.Check(ctx))

		mr.Close()
		assert.Error(t, c.Check(ctx))
	})

	t.Run("bad URL", func(t *testing.T) {
		_, err := New(ctx, config.RedisConfig{URL: "://nope"})
		assert.Error(t, err)
	})
}

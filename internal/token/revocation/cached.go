package revocation

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Store is the contract shared by every revocation list.
type Store interface {
	RevokeToken(ctx context.Context, key string, ttl time.Duration) error
	IsRevoked(ctx context.Context, key string) (bool, error)
	CountActive(ctx context.Context) (int, error)
}

// CachedTRL keeps positive revocation hits in a process-local ristretto cache
// in front of a shared store. Only hits are cached: a revoked token never
// becomes valid again, while a miss may turn into a hit on another instance.
type CachedTRL struct {
	next  Store
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedTRL wraps next; hits are remembered for at most ttl.
func NewCachedTRL(next Store, ttl time.Duration) (*CachedTRL, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedTRL{next: next, cache: cache, ttl: ttl}, nil
}

func (c *CachedTRL) RevokeToken(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.next.RevokeToken(ctx, key, ttl); err != nil {
		return err
	}
	c.remember(key, ttl)
	return nil
}

func (c *CachedTRL) IsRevoked(ctx context.Context, key string) (bool, error) {
	if _, ok := c.cache.Get(key); ok {
		return true, nil
	}
	revoked, err := c.next.IsRevoked(ctx, key)
	if err != nil {
		return false, err
	}
	if revoked {
		c.remember(key, c.ttl)
	}
	return revoked, nil
}

func (c *CachedTRL) CountActive(ctx context.Context) (int, error) {
	return c.next.CountActive(ctx)
}

// Close releases the cache's goroutines.
func (c *CachedTRL) Close() {
	c.cache.Close()
}

func (c *CachedTRL) remember(key string, ttl time.Duration) {
	c.cache.SetWithTTL(key, true, 1, min(ttl, c.ttl))
	c.cache.Wait()
}

package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

// InMemoryTRL is a process-local revocation list for development and tests.
type InMemoryTRL struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewInMemoryTRL returns an empty list.
func NewInMemoryTRL() *InMemoryTRL {
	return &InMemoryTRL{entries: make(map[string]time.Time)}
}

func (t *InMemoryTRL) RevokeToken(ctx context.Context, key string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	expiresAt := requestcontext.Now(ctx).Add(ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[key]; !ok || existing.Before(expiresAt) {
		t.entries[key] = expiresAt
	}
	return nil
}

func (t *InMemoryTRL) IsRevoked(ctx context.Context, key string) (bool, error) {
	now := requestcontext.Now(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	expiresAt, ok := t.entries[key]
	if !ok {
		return false, nil
	}
	if !now.Before(expiresAt) {
		delete(t.entries, key)
		return false, nil
	}
	return true, nil
}

func (t *InMemoryTRL) CountActive(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for key, expiresAt := range t.entries {
		if now.Before(expiresAt) {
			n++
		} else {
			delete(t.entries, key)
		}
	}
	return n, nil
}

// TTL returns the remaining lifetime of an entry, for tests and diagnostics.
func (t *InMemoryTRL) TTL(ctx context.Context, key string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	expiresAt, ok := t.entries[key]
	if !ok {
		return 0
	}
	return expiresAt.Sub(requestcontext.Now(ctx))
}

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/CherreraTEG/OneSite/internal/lockout"
	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

type entry struct {
	count     int
	expiresAt time.Time
}

// MemoryStore is a single-process store for development and tests. Expiry is
// evaluated lazily against requestcontext.Now.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry)}
}

func (s *MemoryStore) live(key string, now time.Time) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !now.Before(e.expiresAt) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

func (s *MemoryStore) IncrementFailures(ctx context.Context, principal string, window time.Duration) (int, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	key := attemptsKey(principal)
	e, ok := s.live(key, now)
	if !ok {
		e = entry{expiresAt: now.Add(window)}
	}
	e.count++
	s.entries[key] = e
	return e.count, nil
}

func (s *MemoryStore) Failures(ctx context.Context, principal string) (int, time.Duration, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(attemptsKey(principal), now)
	if !ok {
		return 0, 0, nil
	}
	return e.count, e.expiresAt.Sub(now), nil
}

func (s *MemoryStore) ResetFailures(_ context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, attemptsKey(principal))
	return nil
}

func (s *MemoryStore) Lock(ctx context.Context, principal string, d time.Duration) error {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[lockoutKey(principal)] = entry{count: 1, expiresAt: now.Add(d)}
	delete(s.entries, attemptsKey(principal))
	return nil
}

func (s *MemoryStore) LockRemaining(ctx context.Context, principal string) (time.Duration, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(lockoutKey(principal), now)
	if !ok {
		return 0, nil
	}
	return e.expiresAt.Sub(now), nil
}

func (s *MemoryStore) Unlock(_ context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, lockoutKey(principal))
	delete(s.entries, attemptsKey(principal))
	return nil
}

func (s *MemoryStore) ListLocked(ctx context.Context) ([]lockout.LockedAccount, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []lockout.LockedAccount
	for key := range s.entries {
		if !strings.HasPrefix(key, lockoutPrefix) {
			continue
		}
		e, ok := s.live(key, now)
		if !ok {
			continue
		}
		accounts = append(accounts, lockout.LockedAccount{
			Principal: strings.TrimPrefix(key, lockoutPrefix),
			Remaining: e.expiresAt.Sub(now),
		})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Principal < accounts[j].Principal })
	return accounts, nil
}

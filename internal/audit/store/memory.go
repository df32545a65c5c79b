package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/CherreraTEG/OneSite/internal/audit"
)

// MemoryStore keeps attempts and snapshots in process, for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	attempts  []audit.LoginAttempt
	snapshots map[snapshotKey]audit.Snapshot
}

type snapshotKey struct {
	date time.Time
	hour int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[snapshotKey]audit.Snapshot)}
}

func (s *MemoryStore) Append(_ context.Context, attempt audit.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *MemoryStore) WindowStats(_ context.Context, since time.Time) (audit.WindowStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats audit.WindowStats
	principals := make(map[string]struct{})
	ips := make(map[string]struct{})
	for _, a := range s.attempts {
		if a.Timestamp.Before(since) {
			continue
		}
		stats.Total++
		if a.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		principals[a.Principal] = struct{}{}
		if a.IP != "" {
			ips[a.IP] = struct{}{}
		}
	}
	stats.UniquePrincipals = len(principals)
	stats.UniqueIPs = len(ips)
	return stats, nil
}

// Recent returns up to limit attempts, newest first, optionally filtered by principal.
func (s *MemoryStore) Recent(_ context.Context, limit int, principals ...string) ([]audit.LoginAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter := make(map[string]struct{}, len(principals))
	for _, p := range principals {
		filter[p] = struct{}{}
	}
	var out []audit.LoginAttempt
	for _, a := range s.attempts {
		if len(filter) > 0 {
			if _, ok := filter[a.Principal]; !ok {
				continue
			}
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot audit.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	date, _ := audit.SnapshotKey(snapshot.Date)
	snapshot.Date = date
	s.snapshots[snapshotKey{date: date, hour: snapshot.Hour}] = snapshot
	return nil
}

// DailyBuckets sums hourly snapshots per day since the given time, newest day first.
func (s *MemoryStore) DailyBuckets(_ context.Context, since time.Time) ([]audit.DailyBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sinceDay, _ := audit.SnapshotKey(since)
	byDay := make(map[time.Time]*audit.DailyBucket)
	for key, snap := range s.snapshots {
		if key.date.Before(sinceDay) {
			continue
		}
		b, ok := byDay[key.date]
		if !ok {
			b = &audit.DailyBucket{Date: key.date}
			byDay[key.date] = b
		}
		b.Total += snap.Total
		b.Successful += snap.Successful
		b.Failed += snap.Failed
		b.UniquePrincipals = max(b.UniquePrincipals, snap.UniquePrincipals)
		b.UniqueIPs = max(b.UniqueIPs, snap.UniqueIPs)
		b.BlockedAccounts = max(b.BlockedAccounts, snap.BlockedAccounts)
	}

	out := make([]audit.DailyBucket, 0, len(byDay))
	for _, b := range byDay {
		b.SuccessRate = successRate(b.Successful, b.Total)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) Cleanup(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.attempts[:0]
	var removed int64
	for _, a := range s.attempts {
		if a.Timestamp.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.attempts = kept

	cutoff, _ := audit.SnapshotKey(olderThan)
	for key := range s.snapshots {
		if key.date.Before(cutoff) {
			delete(s.snapshots, key)
		}
	}
	return removed, nil
}

func successRate(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}

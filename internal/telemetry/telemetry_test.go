package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CherreraTEG/OneSite/internal/audit"
	auditstore "github.com/CherreraTEG/OneSite/internal/audit/store"
	"github.com/CherreraTEG/OneSite/internal/lockout"
	"github.com/CherreraTEG/OneSite/internal/platform/health"
	"github.com/CherreraTEG/OneSite/internal/platform/logger"
	"github.com/CherreraTEG/OneSite/internal/telemetry"
	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

var now = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func TestEvaluate(t *testing.T) {
	th := telemetry.DefaultThresholds()
	healthy := &health.Report{Status: health.StatusHealthy}

	tests := []struct {
		name   string
		report telemetry.Report
		want   []string
	}{
		{
			name:   "quiet window raises nothing",
			report: telemetry.Report{LoginAttempts: audit.WindowStats{Total: 4, Successful: 1, Failed: 3}, SuccessRate: 25, Health: healthy},
			want:   nil,
		},
		{
			name:   "low success rate needs at least ten attempts",
			report: telemetry.Report{LoginAttempts: audit.WindowStats{Total: 10, Successful: 4, Failed: 6}, SuccessRate: 40},
			want:   []string{telemetry.AlertLowSuccessRate},
		},
		{
			name:   "fifty percent is not low",
			report: telemetry.Report{LoginAttempts: audit.WindowStats{Total: 10, Successful: 5, Failed: 5}, SuccessRate: 50},
			want:   nil,
		},
		{
			name:   "lockouts above five",
			report: telemetry.Report{ActiveLockouts: 6},
			want:   []string{telemetry.AlertHighLockouts},
		},
		{
			name:   "five lockouts is tolerated",
			report: telemetry.Report{ActiveLockouts: 5},
			want:   nil,
		},
		{
			name:   "failed above twenty and many addresses",
			report: telemetry.Report{LoginAttempts: audit.WindowStats{Total: 21, Failed: 21, UniqueIPs: 11}, SuccessRate: 0},
			want:   []string{telemetry.AlertLowSuccessRate, telemetry.AlertHighFailedAttempts, telemetry.AlertSuspiciousIPs},
		},
		{
			name:   "unhealthy dependency is critical",
			report: telemetry.Report{Health: &health.Report{Status: health.StatusUnhealthy}},
			want:   []string{telemetry.AlertSystemUnhealthy},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := telemetry.Evaluate(tt.report, th, now)
			var got []string
			for _, a := range alerts {
				got = append(got, a.Type)
				assert.Equal(t, now, a.Timestamp)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

type lockouts struct {
	accounts []lockout.LockedAccount
	err      error
}

func (l lockouts) ListLocked(context.Context) ([]lockout.LockedAccount, error) {
	return l.accounts, l.err
}

type revocations int

func (r revocations) ActiveRevocations(context.Context) (int, error) { return int(r), nil }

type throttle struct{}

func (throttle) Stats() (int, uint64) { return 3, 7 }

type failingStore struct {
	audit.Store
}

func (failingStore) WindowStats(context.Context, time.Time) (audit.WindowStats, error) {
	return audit.WindowStats{}, errors.New("database is gone")
}

func (failingStore) SaveSnapshot(context.Context, audit.Snapshot) error {
	return errors.New("should not be called")
}

func seed(t *testing.T, s *auditstore.MemoryStore, n int, success bool, ipPrefix string) {
	t.Helper()
	for i := range n {
		require.NoError(t, s.Append(context.Background(), audit.LoginAttempt{
			ID:        uuid.New(),
			Principal: "jdoe",
			IP:        ipPrefix + string(rune('a'+i)),
			Success:   success,
			Timestamp: now.Add(-time.Duration(i) * time.Minute),
		}))
	}
}

func locked(n int) []lockout.LockedAccount {
	out := make([]lockout.LockedAccount, n)
	for i := range out {
		out[i] = lockout.LockedAccount{Principal: "user" + string(rune('a'+i)), Remaining: time.Minute}
	}
	return out
}

func TestCollector(t *testing.T) {
	ctx := requestcontext.WithTime(context.Background(), now)

	t.Run("summary reports window counts and alerts", func(t *testing.T) {
		store := auditstore.NewMemoryStore()
		seed(t, store, 22, false, "10.0.0.")
		seed(t, store, 2, true, "10.0.1.")

		reg := prometheus.NewRegistry()
		metrics := telemetry.NewMetrics(reg)
		registry := health.New()
		registry.Register(health.NewCheckFunc("redis", func(context.Context) error { return nil }))

		c, err := telemetry.New(store, lockouts{accounts: locked(6)},
			telemetry.WithRevocations(revocations(4)),
			telemetry.WithHealth(registry),
			telemetry.WithThrottle(throttle{}),
			telemetry.WithLogger(logger.Discard()),
			telemetry.WithMetrics(metrics),
		)
		require.NoError(t, err)

		summary := c.Summary(ctx)
		require.NotNil(t, summary.Report)
		assert.Equal(t, 24, summary.Report.LoginAttempts.Total)
		assert.Equal(t, 6, summary.Report.ActiveLockouts)
		assert.Equal(t, 4, summary.Report.ActiveRevocations)
		assert.Equal(t, &telemetry.ThrottleStats{TrackedIPs: 3, Rejected: 7}, summary.Report.RateLimiting)
		assert.True(t, summary.Report.Health.Healthy())
		assert.Equal(t, "warning", summary.Status)

		var types []string
		for _, a := range summary.Alerts {
			types = append(types, a.Type)
		}
		assert.ElementsMatch(t, []string{
			telemetry.AlertLowSuccessRate,
			telemetry.AlertHighLockouts,
			telemetry.AlertHighFailedAttempts,
			telemetry.AlertSuspiciousIPs,
		}, types)

		assert.Equal(t, 6.0, testutil.ToFloat64(metrics.ActiveLockouts))
		assert.Equal(t, 22.0, testutil.ToFloat64(metrics.WindowAttempts.WithLabelValues("failure")))
	})

	t.Run("attempts outside the window are ignored", func(t *testing.T) {
		store := auditstore.NewMemoryStore()
		require.NoError(t, store.Append(ctx, audit.LoginAttempt{Principal: "jdoe", Timestamp: now.Add(-2 * time.Hour)}))

		c, err := telemetry.New(store, lockouts{}, telemetry.WithLogger(logger.Discard()))
		require.NoError(t, err)

		report, err := c.Collect(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.LoginAttempts.Total)
	})

	t.Run("failed source adds a monitoring error alert", func(t *testing.T) {
		metrics := telemetry.NewMetrics(prometheus.NewRegistry())
		c, err := telemetry.New(auditstore.NewMemoryStore(), lockouts{err: errors.New("redis down")},
			telemetry.WithLogger(logger.Discard()),
			telemetry.WithMetrics(metrics),
		)
		require.NoError(t, err)

		alerts := c.Alerts(ctx)
		require.Len(t, alerts, 1)
		assert.Equal(t, telemetry.AlertMonitoringError, alerts[0].Type)
		assert.Equal(t, telemetry.SeverityCritical, alerts[0].Severity)
		assert.Contains(t, alerts[0].Message, "lockouts: redis down")
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CollectionErrors))
	})

	t.Run("other sources are still evaluated when one fails", func(t *testing.T) {
		store := auditstore.NewMemoryStore()
		seed(t, store, 25, false, "10.0.0.")
		registry := health.New()
		registry.Register(health.NewCheckFunc("redis", func(context.Context) error { return errors.New("connection refused") }))

		c, err := telemetry.New(store, lockouts{err: errors.New("redis down")},
			telemetry.WithHealth(registry),
			telemetry.WithLogger(logger.Discard()),
		)
		require.NoError(t, err)

		report, err := c.Collect(ctx)
		require.Error(t, err)
		require.NotNil(t, report)
		assert.Equal(t, 25, report.LoginAttempts.Failed)
		assert.Equal(t, map[string]string{telemetry.SourceLockouts: "redis down"}, report.SourceErrors)

		summary := c.Summary(ctx)
		require.NotNil(t, summary.Report)
		assert.Equal(t, "critical", summary.Status)
		var types []string
		for _, a := range summary.Alerts {
			types = append(types, a.Type)
		}
		assert.ElementsMatch(t, []string{
			telemetry.AlertLowSuccessRate,
			telemetry.AlertHighFailedAttempts,
			telemetry.AlertSuspiciousIPs,
			telemetry.AlertSystemUnhealthy,
			telemetry.AlertMonitoringError,
		}, types)

		_, err = c.Snapshot(ctx)
		require.NoError(t, err)
		days, err := c.Daily(ctx, 1)
		require.NoError(t, err)
		require.Len(t, days, 1)
		assert.Equal(t, 25, days[0].Total)
	})

	t.Run("snapshot is skipped when attempts cannot be read", func(t *testing.T) {
		c, err := telemetry.New(failingStore{Store: auditstore.NewMemoryStore()}, lockouts{},
			telemetry.WithLogger(logger.Discard()))
		require.NoError(t, err)

		summary, err := c.Snapshot(ctx)
		require.Error(t, err)
		assert.Contains(t, summary.Report.SourceErrors, telemetry.SourceLoginAttempts)
	})

	t.Run("snapshot persists the current hour and daily rolls it up", func(t *testing.T) {
		store := auditstore.NewMemoryStore()
		seed(t, store, 3, false, "10.0.0.")
		seed(t, store, 1, true, "10.0.0.")

		c, err := telemetry.New(store, lockouts{accounts: locked(1)}, telemetry.WithLogger(logger.Discard()))
		require.NoError(t, err)

		_, err = c.Snapshot(ctx)
		require.NoError(t, err)
		_, err = c.Snapshot(ctx)
		require.NoError(t, err)

		days, err := c.Daily(ctx, 7)
		require.NoError(t, err)
		require.Len(t, days, 1)
		assert.Equal(t, 4, days[0].Total)
		assert.Equal(t, 1, days[0].BlockedAccounts)
		assert.InDelta(t, 25.0, days[0].SuccessRate, 0.001)
	})

	t.Run("cleanup honours retention", func(t *testing.T) {
		store := auditstore.NewMemoryStore()
		require.NoError(t, store.Append(ctx, audit.LoginAttempt{Principal: "old", Timestamp: now.AddDate(0, 0, -91)}))
		require.NoError(t, store.Append(ctx, audit.LoginAttempt{Principal: "new", Timestamp: now}))

		c, err := telemetry.New(store, lockouts{}, telemetry.WithLogger(logger.Discard()))
		require.NoError(t, err)

		removed, err := c.Cleanup(ctx, 90)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		_, err = c.Cleanup(ctx, 0)
		assert.Error(t, err)

		recent, err := c.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "new", recent[0].Principal)
	})

	t.Run("run stops when the context ends", func(t *testing.T) {
		c, err := telemetry.New(auditstore.NewMemoryStore(), lockouts{}, telemetry.WithLogger(logger.Discard()))
		require.NoError(t, err)

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			c.Run(runCtx, time.Hour)
			close(done)
		}()
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("collector did not stop")
		}
	})
}

func TestNewValidation(t *testing.T) {
	_, err := telemetry.New(nil, lockouts{})
	assert.Error(t, err)
	_, err = telemetry.New(auditstore.NewMemoryStore(), nil)
	assert.Error(t, err)
}

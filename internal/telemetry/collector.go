package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CherreraTEG/OneSite/internal/audit"
	"github.com/CherreraTEG/OneSite/internal/lockout"
	"github.com/CherreraTEG/OneSite/internal/platform/health"
	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

// LockoutSource lists active locks.
type LockoutSource interface {
	ListLocked(ctx context.Context) ([]lockout.LockedAccount, error)
}

// RevocationCounter counts live revocation entries.
type RevocationCounter interface {
	ActiveRevocations(ctx context.Context) (int, error)
}

// HealthChecker runs dependency checks.
type HealthChecker interface {
	Check(ctx context.Context) *health.Report
}

// Throttle exposes the per-IP login limiter's counters.
type Throttle interface {
	Stats() (trackedIPs int, rejected uint64)
}

// Collector aggregates attempt, lockout and revocation counts and derives
// alerts from them.
type Collector struct {
	attempts    audit.Store
	lockouts    LockoutSource
	revocations RevocationCounter
	health      HealthChecker
	throttle    Throttle

	window     time.Duration
	thresholds Thresholds
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Collector)

func WithRevocations(r RevocationCounter) Option {
	return func(c *Collector) {
		c.revocations = r
	}
}

func WithHealth(h HealthChecker) Option {
	return func(c *Collector) {
		c.health = h
	}
}

func WithThrottle(t Throttle) Option {
	return func(c *Collector) {
		c.throttle = t
	}
}

// WithWindow sets the rolling window; the default is one hour.
func WithWindow(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.window = d
		}
	}
}

func WithThresholds(th Thresholds) Option {
	return func(c *Collector) {
		c.thresholds = th
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

func New(attempts audit.Store, lockouts LockoutSource, opts ...Option) (*Collector, error) {
	if attempts == nil {
		return nil, errors.New("audit store is required")
	}
	if lockouts == nil {
		return nil, errors.New("lockout source is required")
	}
	c := &Collector{
		attempts:   attempts,
		lockouts:   lockouts,
		window:     time.Hour,
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Collect gathers one report. Sources are queried concurrently. A failing
// source is recorded in the report's SourceErrors and joined into the
// returned error; the report is still returned with every source that
// answered. Health results are reported, never returned as an error.
func (c *Collector) Collect(ctx context.Context) (*Report, error) {
	now := requestcontext.Now(ctx)
	report := &Report{
		CollectedAt:   now,
		WindowSeconds: int(c.window.Seconds()),
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	fail := func(source string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if report.SourceErrors == nil {
			report.SourceErrors = make(map[string]string)
		}
		report.SourceErrors[source] = err.Error()
		errs = append(errs, fmt.Errorf("%s: %w", source, err))
	}

	var g errgroup.Group
	g.Go(func() error {
		stats, err := c.attempts.WindowStats(ctx, now.Add(-c.window))
		if err != nil {
			fail(SourceLoginAttempts, err)
			return nil
		}
		report.LoginAttempts = stats
		report.SuccessRate = stats.SuccessRate()
		return nil
	})
	g.Go(func() error {
		locked, err := c.lockouts.ListLocked(ctx)
		if err != nil {
			fail(SourceLockouts, err)
			return nil
		}
		report.ActiveLockouts = len(locked)
		return nil
	})
	if c.revocations != nil {
		g.Go(func() error {
			n, err := c.revocations.ActiveRevocations(ctx)
			if err != nil {
				fail(SourceRevocations, err)
				return nil
			}
			report.ActiveRevocations = n
			return nil
		})
	}
	if c.health != nil {
		g.Go(func() error {
			report.Health = c.health.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if c.throttle != nil {
		tracked, rejected := c.throttle.Stats()
		report.RateLimiting = &ThrottleStats{TrackedIPs: tracked, Rejected: rejected}
	}
	if len(errs) > 0 {
		c.metrics.incCollectionErrors()
		return report, errors.Join(errs...)
	}
	return report, nil
}

// Alerts never fails: a collection error becomes a monitoring_error alert.
func (c *Collector) Alerts(ctx context.Context) []Alert {
	return c.Summary(ctx).Alerts
}

// Summary collects and evaluates in one pass. Sources that failed add a
// monitoring_error alert next to whatever the rest of the report raises.
func (c *Collector) Summary(ctx context.Context) *Summary {
	now := requestcontext.Now(ctx)
	report, err := c.Collect(ctx)
	alerts := Evaluate(*report, c.thresholds, now)
	if err != nil {
		c.logger.ErrorContext(ctx, "security metrics collection incomplete", "error", err)
		alerts = append(alerts, monitoringError(err, now)...)
	}
	c.metrics.publish(report, alerts)
	return &Summary{Status: overallStatus(alerts), Report: report, Alerts: alerts}
}

// Recent returns the newest login attempts, optionally for specific principals.
func (c *Collector) Recent(ctx context.Context, limit int, principals ...string) ([]audit.LoginAttempt, error) {
	return c.attempts.Recent(ctx, limit, principals...)
}

// ActiveLockouts lists the locked principals.
func (c *Collector) ActiveLockouts(ctx context.Context) ([]lockout.LockedAccount, error) {
	return c.lockouts.ListLocked(ctx)
}

// Daily returns per-day buckets for the last days days, newest first.
func (c *Collector) Daily(ctx context.Context, days int) ([]audit.DailyBucket, error) {
	if days <= 0 {
		days = 7
	}
	since := requestcontext.Now(ctx).AddDate(0, 0, -(days - 1))
	return c.attempts.DailyBuckets(ctx, since)
}

// Cleanup removes audit data older than days days.
func (c *Collector) Cleanup(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, errors.New("retention days must be positive")
	}
	cutoff := requestcontext.Now(ctx).AddDate(0, 0, -days)
	removed, err := c.attempts.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	c.logger.InfoContext(ctx, "audit data cleaned up",
		"event", "audit_cleanup",
		"log_type", "audit",
		"removed", removed,
		"retention_days", days,
		"actor", requestcontext.Principal(ctx),
	)
	return removed, nil
}

// Snapshot collects once and upserts the row for the current hour.
func (c *Collector) Snapshot(ctx context.Context) (*Summary, error) {
	summary := c.Summary(ctx)
	r := summary.Report
	if msg, failed := r.SourceErrors[SourceLoginAttempts]; failed {
		return summary, fmt.Errorf("snapshot skipped: login attempts: %s", msg)
	}
	date, hour := audit.SnapshotKey(r.CollectedAt)
	err := c.attempts.SaveSnapshot(ctx, audit.Snapshot{
		Date:              date,
		Hour:              hour,
		Total:             r.LoginAttempts.Total,
		Successful:        r.LoginAttempts.Successful,
		Failed:            r.LoginAttempts.Failed,
		UniquePrincipals:  r.LoginAttempts.UniquePrincipals,
		UniqueIPs:         r.LoginAttempts.UniqueIPs,
		BlockedAccounts:   r.ActiveLockouts,
		ActiveRevocations: r.ActiveRevocations,
	})
	if err != nil {
		return summary, fmt.Errorf("save snapshot: %w", err)
	}
	return summary, nil
}

// Run snapshots immediately and then every interval until ctx is done.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Collector) tick(ctx context.Context) {
	summary, err := c.Snapshot(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "security snapshot failed", "error", err)
		return
	}
	for _, a := range summary.Alerts {
		c.logger.WarnContext(ctx, "security alert",
			"event", "security_alert",
			"type", a.Type,
			"severity", string(a.Severity),
			"message", a.Message,
		)
	}
}

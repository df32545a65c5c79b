package lockout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	dErrors "github.com/CherreraTEG/OneSite/pkg/domain-errors"
	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

// Store persists attempt counters and locks. Every method is a single atomic
// operation against the backing store; TTLs are managed by the store.
type Store interface {
	IncrementFailures(ctx context.Context, principal string, window time.Duration) (int, error)
	Failures(ctx context.Context, principal string) (int, time.Duration, error)
	ResetFailures(ctx context.Context, principal string) error
	Lock(ctx context.Context, principal string, d time.Duration) error
	LockRemaining(ctx context.Context, principal string) (time.Duration, error)
	Unlock(ctx context.Context, principal string) error
	ListLocked(ctx context.Context) ([]LockedAccount, error)
}

// Service tracks failed logins per principal and locks accounts that exceed
// the threshold. Principals move Clear -> Warned -> Locked -> Clear; only lock
// expiry or an administrative unlock leaves Locked.
type Service struct {
	store   Store
	config  Config
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("lockout store is required")
	}
	svc := &Service{
		store:  store,
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.config.MaxAttempts <= 0 || svc.config.AttemptWindow <= 0 || svc.config.LockDuration <= 0 {
		return nil, errors.New("lockout thresholds must be positive")
	}
	return svc, nil
}

// Config returns the thresholds in effect.
func (s *Service) Config() Config {
	return s.config
}

// RecordFailure counts one failed attempt. Reaching MaxAttempts locks the
// principal and deletes the counter.
func (s *Service) RecordFailure(ctx context.Context, principal string) (*FailureResult, error) {
	key := NormalizePrincipal(principal)
	count, err := s.store.IncrementFailures(ctx, key, s.config.AttemptWindow)
	if err != nil {
		s.metrics.incStoreErrors("record_failure")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record login failure")
	}
	s.metrics.incFailures()

	if count < s.config.MaxAttempts {
		return &FailureResult{FailedCount: count}, nil
	}

	if err := s.store.Lock(ctx, key, s.config.LockDuration); err != nil {
		s.metrics.incStoreErrors("lock")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to lock account")
	}
	s.metrics.incLockouts()
	// The login that triggered the lock writes the audit line.
	s.logger.WarnContext(ctx, "account locked after repeated failures",
		"event", "account_locked",
		"principal", key,
		"failed_count", count,
		"lock_duration", s.config.LockDuration.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &FailureResult{FailedCount: count, Locked: true}, nil
}

// RecordSuccess clears the failure counter. It never clears an active lock.
func (s *Service) RecordSuccess(ctx context.Context, principal string) error {
	if err := s.store.ResetFailures(ctx, NormalizePrincipal(principal)); err != nil {
		s.metrics.incStoreErrors("record_success")
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reset login failures")
	}
	return nil
}

// IsLocked reports whether principal is currently locked.
func (s *Service) IsLocked(ctx context.Context, principal string) (bool, error) {
	remaining, err := s.store.LockRemaining(ctx, NormalizePrincipal(principal))
	if err != nil {
		s.metrics.incStoreErrors("is_locked")
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read account lock")
	}
	return remaining > 0, nil
}

// Status never fails; unreadable fields fall back to zero values.
func (s *Service) Status(ctx context.Context, principal string) Status {
	key := NormalizePrincipal(principal)
	status := Status{Principal: key, MaxAttempts: s.config.MaxAttempts}

	remaining, err := s.store.LockRemaining(ctx, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read lock status", "principal", key, "error", err)
	} else if remaining > 0 {
		status.Locked = true
		status.LockSecondsRemaining = ceilSeconds(remaining)
	}

	count, window, err := s.store.Failures(ctx, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read failure counter", "principal", key, "error", err)
		return status
	}
	status.FailedCount = count
	status.AttemptWindowSecondsRemaining = ceilSeconds(window)
	return status
}

// Unlock clears both the lock and the counter.
func (s *Service) Unlock(ctx context.Context, principal string) error {
	key := NormalizePrincipal(principal)
	if err := s.store.Unlock(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to unlock account")
	}
	s.logger.InfoContext(ctx, "account unlocked",
		"event", "account_unlocked",
		"log_type", "audit",
		"principal", key,
		"actor", requestcontext.Principal(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// UnlockAll clears every active lock and returns how many were cleared.
func (s *Service) UnlockAll(ctx context.Context) (int, error) {
	locked, err := s.ListLocked(ctx)
	if err != nil {
		return 0, err
	}
	for _, acct := range locked {
		if err := s.Unlock(ctx, acct.Principal); err != nil {
			return 0, err
		}
	}
	return len(locked), nil
}

// ListLocked returns the principals with an active lock.
func (s *Service) ListLocked(ctx context.Context) ([]LockedAccount, error) {
	locked, err := s.store.ListLocked(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list locked accounts")
	}
	s.metrics.setLocked(len(locked))
	return locked, nil
}

// CountLocked returns the number of active locks.
func (s *Service) CountLocked(ctx context.Context) (int, error) {
	locked, err := s.ListLocked(ctx)
	if err != nil {
		return 0, err
	}
	return len(locked), nil
}

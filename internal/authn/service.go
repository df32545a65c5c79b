package authn

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/CherreraTEG/OneSite/internal/audit"
	"github.com/CherreraTEG/OneSite/internal/authz"
	"github.com/CherreraTEG/OneSite/internal/directory"
	"github.com/CherreraTEG/OneSite/internal/lockout"
	dErrors "github.com/CherreraTEG/OneSite/pkg/domain-errors"
	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Directory,Negotiator,Tracker,AuditRecorder

var tracer = otel.Tracer("github.com/CherreraTEG/OneSite/internal/authn")

// Directory verifies a principal's secret with a bind.
type Directory interface {
	Bind(ctx context.Context, cfg directory.TransportConfig, principal, secret string) (*directory.Identity, error)
}

// Negotiator resolves a working transport to the directory.
type Negotiator interface {
	Resolve(ctx context.Context, host string, port int, policy directory.Policy) (directory.TransportConfig, error)
}

// Tracker counts failures and gates locked principals.
type Tracker interface {
	IsLocked(ctx context.Context, principal string) (bool, error)
	RecordFailure(ctx context.Context, principal string) (*lockout.FailureResult, error)
	RecordSuccess(ctx context.Context, principal string) error
}

// AuditRecorder receives one record per outcome.
type AuditRecorder interface {
	Record(ctx context.Context, attempt audit.LoginAttempt) error
}

// Service orchestrates one login: lockout gate, transport, bind, role
// mapping, and reporting the outcome back to the tracker and audit sink.
type Service struct {
	directory  Directory
	negotiator Negotiator
	tracker    Tracker
	endpoint   Endpoint

	audit   AuditRecorder
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAudit(recorder AuditRecorder) Option {
	return func(s *Service) {
		s.audit = recorder
	}
}

func New(dir Directory, negotiator Negotiator, tracker Tracker, endpoint Endpoint, opts ...Option) (*Service, error) {
	if dir == nil || negotiator == nil || tracker == nil {
		return nil, errors.New("directory, negotiator and tracker are required")
	}
	if endpoint.Host == "" {
		return nil, errors.New("directory host is required")
	}
	svc := &Service{
		directory:  dir,
		negotiator: negotiator,
		tracker:    tracker,
		endpoint:   endpoint,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Authenticate runs one login. Every domain outcome comes back as a Result
// with a nil error; the error is reserved for malformed requests.
func (s *Service) Authenticate(ctx context.Context, req Request) (*Result, error) {
	principal := directory.AccountName(req.Principal)
	if principal == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "username is required")
	}

	ctx, span := tracer.Start(ctx, "authn.Authenticate")
	defer span.End()
	start := time.Now()

	result := s.authenticate(ctx, principal, req)

	span.SetAttributes(attribute.String("authn.outcome", string(result.Outcome)))
	if !result.Authenticated() {
		span.SetStatus(codes.Error, string(result.Outcome))
	}
	s.metrics.observe(result.Outcome, time.Since(start))
	s.record(ctx, req, result)
	return result, nil
}

func (s *Service) authenticate(ctx context.Context, principal string, req Request) *Result {
	result := &Result{Principal: principal}

	locked, err := s.tracker.IsLocked(ctx, principal)
	if err != nil {
		s.lockoutUnavailable(ctx, "is_locked", principal, err)
	} else if locked {
		result.Outcome = OutcomeAccountLocked
		return result
	}

	cfg, err := s.negotiator.Resolve(ctx, s.endpoint.Host, s.endpoint.Port, s.endpoint.Policy)
	if err != nil {
		// Only a directory that rejected every transport is a transport
		// failure; a timeout or cancellation is the directory not answering.
		if errors.Is(err, directory.ErrTransportUnavailable) && ctx.Err() == nil {
			result.Outcome = OutcomeTransportUnavailable
		} else {
			result.Outcome = OutcomeDirectoryError
		}
		return result
	}

	identity, err := s.directory.Bind(ctx, cfg, principal, req.Secret)
	if err != nil {
		switch directory.KindOf(err) {
		case directory.KindPrincipalNotFound:
			result.Outcome = OutcomeUserNotFound
		case directory.KindInvalidCredentials:
			result.Outcome = OutcomeInvalidCredentials
			s.recordFailure(ctx, principal, result)
		default:
			result.Outcome = OutcomeDirectoryError
		}
		return result
	}

	roles, perms := authz.Resolve(identity.Groups)
	if err := s.tracker.RecordSuccess(ctx, principal); err != nil {
		s.lockoutUnavailable(ctx, "record_success", principal, err)
	}
	result.Outcome = OutcomeAuthenticated
	result.Identity = identity
	result.Roles = roles
	result.Permissions = perms
	return result
}

func (s *Service) recordFailure(ctx context.Context, principal string, result *Result) {
	failure, err := s.tracker.RecordFailure(ctx, principal)
	if err != nil {
		s.lockoutUnavailable(ctx, "record_failure", principal, err)
		return
	}
	result.FailedCount = failure.FailedCount
	result.LockedNow = failure.Locked
}

// lockoutUnavailable logs a tracker failure. Authentication continues as if
// the principal were not locked.
func (s *Service) lockoutUnavailable(ctx context.Context, op, principal string, err error) {
	s.metrics.incLockoutFailOpen(op)
	s.logger.ErrorContext(ctx, "lockout store unavailable, continuing without lockout",
		"operation", op,
		"principal", principal,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

// record emits the single audit log line and audit record for an outcome.
func (s *Service) record(ctx context.Context, req Request, result *Result) {
	ua := audit.TruncateUserAgent(req.UserAgent)
	attrs := []any{
		"event", "login_" + string(result.Outcome),
		"log_type", "audit",
		"outcome", string(result.Outcome),
		"principal", result.Principal,
		"client_ip", req.ClientIP,
		"user_agent", ua,
		"request_id", requestcontext.RequestID(ctx),
	}
	switch result.Outcome {
	case OutcomeAuthenticated:
		attrs = append(attrs, "roles", strings.Join(authz.RoleNames(result.Roles), ","))
		s.logger.InfoContext(ctx, "login succeeded", attrs...)
	case OutcomeDirectoryError, OutcomeTransportUnavailable:
		s.logger.ErrorContext(ctx, "login failed: directory unreachable", attrs...)
	default:
		if result.Outcome == OutcomeInvalidCredentials {
			attrs = append(attrs, "failed_count", result.FailedCount, "locked_now", result.LockedNow)
		}
		s.logger.WarnContext(ctx, "login rejected", attrs...)
	}

	if s.audit == nil {
		return
	}
	attempt := audit.LoginAttempt{
		Principal: result.Principal,
		IP:        req.ClientIP,
		UserAgent: ua,
		Timestamp: requestcontext.Now(ctx),
		Success:   result.Authenticated(),
		Domain:    s.endpoint.Domain,
	}
	if !attempt.Success {
		attempt.FailureReason = audit.FailureReason(result.Outcome)
	}
	if err := s.audit.Record(ctx, attempt); err != nil {
		s.metrics.incAuditDropped()
	}
}

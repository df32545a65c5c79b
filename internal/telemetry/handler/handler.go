package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CherreraTEG/OneSite/internal/audit"
	"github.com/CherreraTEG/OneSite/internal/authz"
	"github.com/CherreraTEG/OneSite/internal/lockout"
	"github.com/CherreraTEG/OneSite/internal/platform/health"
	"github.com/CherreraTEG/OneSite/internal/platform/middleware"
	"github.com/CherreraTEG/OneSite/internal/telemetry"
	dErrors "github.com/CherreraTEG/OneSite/pkg/domain-errors"
	"github.com/CherreraTEG/OneSite/pkg/platform/httputil"
)

const (
	defaultRecentLimit   = 50
	maxRecentLimit       = 500
	defaultDailyDays     = 7
	maxDailyDays         = 90
	defaultRetentionDays = 90
)

// Monitor is the read side of the security telemetry collector.
type Monitor interface {
	Collect(ctx context.Context) (*telemetry.Report, error)
	Summary(ctx context.Context) *telemetry.Summary
	Alerts(ctx context.Context) []telemetry.Alert
	Recent(ctx context.Context, limit int, principals ...string) ([]audit.LoginAttempt, error)
	ActiveLockouts(ctx context.Context) ([]lockout.LockedAccount, error)
	Daily(ctx context.Context, days int) ([]audit.DailyBucket, error)
	Cleanup(ctx context.Context, days int) (int64, error)
}

type Handler struct {
	monitor  Monitor
	health   telemetry.HealthChecker
	verifier middleware.TokenVerifier
	logger   *slog.Logger
}

func New(monitor Monitor, healthChecker telemetry.HealthChecker, verifier middleware.TokenVerifier, logger *slog.Logger) *Handler {
	return &Handler{monitor: monitor, health: healthChecker, verifier: verifier, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/monitoring", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.verifier, h.logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(authz.PermMonitoringRead, h.logger))
			r.Get("/metrics", h.handleMetrics)
			r.Get("/alerts", h.handleAlerts)
			r.Get("/recent-logins", h.handleRecentLogins)
			r.Get("/active-lockouts", h.handleActiveLockouts)
			r.Get("/daily-metrics", h.handleDailyMetrics)
			r.Get("/health", h.handleHealth)
			r.Get("/summary", h.handleSummary)
		})
		r.With(middleware.RequirePermission(authz.PermMonitoringWrite, h.logger)).
			Post("/cleanup", h.handleCleanup)
	})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.Collect(r.Context())
	if report == nil {
		h.logger.ErrorContext(r.Context(), "failed to collect security metrics", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "security metrics unavailable"))
		return
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "security metrics are partial", "error", err)
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.monitor.Alerts(r.Context())
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": nonNil(alerts),
		"count":  len(alerts),
	})
}

func (h *Handler) handleRecentLogins(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultRecentLimit, 1, maxRecentLimit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	attempts, err := h.monitor.Recent(r.Context(), limit, r.URL.Query()["principal"]...)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "login history unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"attempts": nonNil(attempts),
		"count":    len(attempts),
	})
}

func (h *Handler) handleActiveLockouts(w http.ResponseWriter, r *http.Request) {
	locked, err := h.monitor.ActiveLockouts(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	type entry struct {
		Principal        string `json:"principal"`
		RemainingSeconds int    `json:"remaining_seconds"`
	}
	out := make([]entry, 0, len(locked))
	for _, acct := range locked {
		out = append(out, entry{Principal: acct.Principal, RemainingSeconds: acct.RemainingSeconds()})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"locked_accounts": out,
		"count":           len(out),
	})
}

func (h *Handler) handleDailyMetrics(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultDailyDays, 1, maxDailyDays)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	buckets, err := h.monitor.Daily(r.Context(), days)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "daily metrics unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"metrics": nonNil(buckets),
	})
}

// handleHealth answers 503 only when a dependency is unhealthy.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		httputil.WriteJSON(w, http.StatusOK, &health.Report{Status: health.StatusHealthy})
		return
	}
	report := h.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, report)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.monitor.Summary(r.Context()))
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultRetentionDays, 1, 3650)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	removed, err := h.monitor.Cleanup(r.Context(), days)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit cleanup failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit cleanup failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"removed":        removed,
		"retention_days": days,
	})
}

func intParam(r *http.Request, name string, def, minVal, maxVal int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < minVal || v > maxVal {
		return 0, dErrors.New(dErrors.CodeValidation,
			name+" must be an integer between "+strconv.Itoa(minVal)+" and "+strconv.Itoa(maxVal))
	}
	return v, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

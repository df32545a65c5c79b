package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CherreraTEG/OneSite/internal/authz"
	"github.com/CherreraTEG/OneSite/internal/lockout"
	"github.com/CherreraTEG/OneSite/internal/platform/middleware"
	"github.com/CherreraTEG/OneSite/pkg/platform/httputil"
	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

// Tracker is the subset of the lockout service exposed over HTTP.
type Tracker interface {
	Status(ctx context.Context, principal string) lockout.Status
	Unlock(ctx context.Context, principal string) error
	UnlockAll(ctx context.Context) (int, error)
	ListLocked(ctx context.Context) ([]lockout.LockedAccount, error)
}

// Handler serves the lockout administration routes.
type Handler struct {
	tracker  Tracker
	verifier middleware.TokenVerifier
	logger   *slog.Logger
}

func New(tracker Tracker, verifier middleware.TokenVerifier, logger *slog.Logger) *Handler {
	return &Handler{tracker: tracker, verifier: verifier, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.verifier, h.logger))

		r.Get("/auth/lockout/{principal}", h.handleStatus)
		r.With(middleware.RequirePermission(authz.PermLockoutRead, h.logger)).
			Get("/auth/lockout", h.handleList)
		r.With(middleware.RequirePermission(authz.PermLockoutWrite, h.logger)).
			Delete("/auth/lockout/{principal}", h.handleUnlock)
		r.With(middleware.RequirePermission(authz.PermLockoutWrite, h.logger)).
			Delete("/auth/lockout", h.handleUnlockAll)
	})
}

type lockedAccountResponse struct {
	Principal        string `json:"principal"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type listResponse struct {
	LockedAccounts []lockedAccountResponse `json:"locked_accounts"`
	Count          int                     `json:"count"`
}

type unlockResponse struct {
	Principal string `json:"principal"`
	Unlocked  bool   `json:"unlocked"`
}

type unlockAllResponse struct {
	Cleared int `json:"cleared"`
}

// handleStatus lets a caller read its own record; anyone else needs lockout:read.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := lockout.NormalizePrincipal(chi.URLParam(r, "principal"))
	self := target == lockout.NormalizePrincipal(requestcontext.Principal(ctx))
	if !self && !authz.Has(requestcontext.Permissions(ctx), authz.PermLockoutRead) {
		h.logger.WarnContext(ctx, "forbidden - lockout status of another principal",
			"principal", requestcontext.Principal(ctx),
			"target", target,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteErrorCode(w, http.StatusForbidden, "forbidden", "Missing permission "+authz.PermLockoutRead)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.tracker.Status(ctx, target))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	locked, err := h.tracker.ListLocked(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := listResponse{LockedAccounts: make([]lockedAccountResponse, 0, len(locked)), Count: len(locked)}
	for _, acct := range locked {
		resp.LockedAccounts = append(resp.LockedAccounts, lockedAccountResponse{
			Principal:        acct.Principal,
			RemainingSeconds: acct.RemainingSeconds(),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	target := lockout.NormalizePrincipal(chi.URLParam(r, "principal"))
	if err := h.tracker.Unlock(r.Context(), target); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, unlockResponse{Principal: target, Unlocked: true})
}

func (h *Handler) handleUnlockAll(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.tracker.UnlockAll(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "all account locks cleared",
		"event", "lockouts_cleared",
		"log_type", "audit",
		"actor", requestcontext.Principal(r.Context()),
		"cleared", cleared,
		"request_id", requestcontext.RequestID(r.Context()),
	)
	httputil.WriteJSON(w, http.StatusOK, unlockAllResponse{Cleared: cleared})
}

package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/CherreraTEG/OneSite/internal/authn"
	"github.com/CherreraTEG/OneSite/internal/authz"
	"github.com/CherreraTEG/OneSite/internal/directory"
	"github.com/CherreraTEG/OneSite/internal/platform/middleware"
	"github.com/CherreraTEG/OneSite/internal/token"
	dErrors "github.com/CherreraTEG/OneSite/pkg/domain-errors"
	"github.com/CherreraTEG/OneSite/pkg/platform/httputil"
	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Authenticator

type Authenticator interface {
	Authenticate(ctx context.Context, req authn.Request) (*authn.Result, error)
}

type Tokens interface {
	Issue(ctx context.Context, claims token.Claims, ttl time.Duration) (*token.Issued, error)
	Verify(ctx context.Context, raw string) (*token.Claims, error)
	Revoke(ctx context.Context, raw string) error
	VerifyBearer(ctx context.Context, raw string) (string, []string, error)
}

// Handler serves login, logout and token inspection.
type Handler struct {
	auth     Authenticator
	tokens   Tokens
	ttl      time.Duration
	throttle func(http.Handler) http.Handler
	logger   *slog.Logger
}

type Option func(*Handler)

// WithLoginThrottle wraps only the login route.
func WithLoginThrottle(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.throttle = mw
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(h *Handler) {
		h.ttl = ttl
	}
}

func New(auth Authenticator, tokens Tokens, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		auth:   auth,
		tokens: tokens,
		ttl:    30 * time.Minute,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	login := http.Handler(http.HandlerFunc(h.handleLogin))
	if h.throttle != nil {
		login = h.throttle(login)
	}
	r.Method(http.MethodPost, "/auth/login", login)
	r.Post("/auth/verify", h.handleVerify)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.tokens, h.logger))
		r.Post("/auth/logout", h.handleLogout)
		r.Get("/auth/me", h.handleMe)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse is the identity block of login and /me responses.
type UserResponse struct {
	Username    string  `json:"username"`
	Email       *string `json:"email"`
	DisplayName *string `json:"display_name"`
	Department  *string `json:"department"`
	Title       *string `json:"title"`
	EmployeeID  *string `json:"employee_id"`
}

// LoginResponse is returned for a successful login.
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        UserResponse `json:"user"`
	Roles       []string     `json:"roles"`
	Permissions []string     `json:"permissions"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

// VerifyResponse describes a token that verified.
type VerifyResponse struct {
	Valid       bool      `json:"valid"`
	Username    string    `json:"username"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
}

var outcomeStatus = map[authn.Outcome]int{
	authn.OutcomeInvalidCredentials:   http.StatusUnauthorized,
	authn.OutcomeAccountLocked:        http.StatusLocked,
	authn.OutcomeUserNotFound:         http.StatusForbidden,
	authn.OutcomeDirectoryError:       http.StatusServiceUnavailable,
	authn.OutcomeTransportUnavailable: http.StatusServiceUnavailable,
}

var outcomeMessage = map[authn.Outcome]string{
	authn.OutcomeInvalidCredentials:   "Incorrect username or password",
	authn.OutcomeAccountLocked:        "Account temporarily locked after repeated failed logins",
	authn.OutcomeUserNotFound:         "User is not provisioned in the directory",
	authn.OutcomeDirectoryError:       "Directory service unavailable",
	authn.OutcomeTransportUnavailable: "Directory service unreachable",
}

// handleLogin accepts a JSON body or an OAuth2 password form.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeLogin(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.auth.Authenticate(ctx, authn.Request{
		Principal: req.Username,
		Secret:    req.Password,
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !result.Authenticated() {
		status, ok := outcomeStatus[result.Outcome]
		if !ok {
			status = http.StatusInternalServerError
		}
		httputil.WriteErrorCode(w, status, string(result.Outcome), outcomeMessage[result.Outcome])
		return
	}

	id := result.Identity
	issued, err := h.tokens.Issue(ctx, token.Claims{
		Roles:            authz.RoleNames(result.Roles),
		Permissions:      result.Permissions,
		Email:            id.Email,
		Name:             id.DisplayName,
		Department:       id.Department,
		Title:            id.Title,
		EmployeeID:       id.EmployeeID,
		RegisteredClaims: jwt.RegisteredClaims{Subject: result.Principal},
	}, h.ttl)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token",
			"principal", result.Principal,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: issued.Token,
		TokenType:   "bearer",
		ExpiresIn:   int(issued.ExpiresAt.Sub(issued.IssuedAt).Seconds()),
		User:        userFromIdentity(result.Principal, id),
		Roles:       authz.RoleNames(result.Roles),
		Permissions: result.Permissions,
	})
}

func decodeLogin(r *http.Request) (loginRequest, error) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return req, dErrors.New(dErrors.CodeBadRequest, "invalid form body")
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return req, dErrors.New(dErrors.CodeValidation, "username and password are required")
	}
	return req, nil
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "token is required"))
			return
		}
		raw = req.Token
	}

	claims, err := h.tokens.Verify(ctx, raw)
	if err != nil {
		h.writeTokenError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{
		Valid:       true,
		Username:    claims.Subject,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		ExpiresAt:   claims.ExpiresAt.Time,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.tokens.Revoke(ctx, middleware.BearerToken(ctx)); err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke token on logout",
			"principal", requestcontext.Principal(ctx),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		h.writeTokenError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, err := h.tokens.Verify(ctx, middleware.BearerToken(ctx))
	if err != nil {
		h.writeTokenError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		UserResponse
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	}{
		UserResponse: UserResponse{
			Username:    claims.Subject,
			Email:       claims.Email,
			DisplayName: claims.Name,
			Department:  claims.Department,
			Title:       claims.Title,
			EmployeeID:  claims.EmployeeID,
		},
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	})
}

func (h *Handler) writeTokenError(w http.ResponseWriter, err error) {
	if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
		httputil.WriteErrorCode(w, http.StatusUnauthorized, "token_invalid", "Invalid or expired token")
		return
	}
	httputil.WriteError(w, err)
}

func userFromIdentity(principal string, id *directory.Identity) UserResponse {
	return UserResponse{
		Username:    principal,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		Department:  id.Department,
		Title:       id.Title,
		EmployeeID:  id.EmployeeID,
	}
}

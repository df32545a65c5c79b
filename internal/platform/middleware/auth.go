package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CherreraTEG/OneSite/internal/authz"
	dErrors "github.com/CherreraTEG/OneSite/pkg/domain-errors"
	"github.com/CherreraTEG/OneSite/pkg/platform/httputil"
	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

// TokenVerifier checks a bearer token and returns who it belongs to.
type TokenVerifier interface {
	VerifyBearer(ctx context.Context, raw string) (principal string, permissions []string, err error)
}

type contextKeyBearer struct{}

// BearerToken returns the raw token accepted by RequireAuth.
func BearerToken(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyBearer{}).(string); ok {
		return v
	}
	return ""
}

// WithBearerToken stores a raw token, for tests that skip RequireAuth.
func WithBearerToken(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, contextKeyBearer{}, raw)
}

// RequireAuth rejects requests without a valid bearer token. A revocation
// store outage answers 503 rather than 401.
func RequireAuth(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "token_invalid", "Missing or invalid Authorization header")
				return
			}
			raw = strings.TrimSpace(raw)

			principal, perms, err := verifier.VerifyBearer(ctx, raw)
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeUnavailable) {
					logger.ErrorContext(ctx, "token verification unavailable",
						"error", err,
						"request_id", requestcontext.RequestID(ctx),
					)
					httputil.WriteError(w, err)
					return
				}
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteErrorCode(w, http.StatusUnauthorized, "token_invalid", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, principal, perms)
			ctx = WithBearerToken(ctx, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission must run after RequireAuth.
func RequirePermission(permission string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !authz.Has(requestcontext.Permissions(ctx), permission) {
				logger.WarnContext(ctx, "forbidden - missing permission",
					"principal", requestcontext.Principal(ctx),
					"permission", permission,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteErrorCode(w, http.StatusForbidden, "forbidden", "Missing permission "+permission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "github.com/CherreraTEG/OneSite/pkg/domain-errors"
	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

// ErrInvalidToken covers bad signatures, expiry and revocation alike; callers
// are not told which.
var ErrInvalidToken = errors.New("token invalid")

// RevocationStore is the revocation list the manager consults.
type RevocationStore interface {
	RevokeToken(ctx context.Context, key string, ttl time.Duration) error
	IsRevoked(ctx context.Context, key string) (bool, error)
	CountActive(ctx context.Context) (int, error)
}

// Claims are the signed contents of an access token.
type Claims struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Email       *string  `json:"email,omitempty"`
	Name        *string  `json:"name,omitempty"`
	Department  *string  `json:"department,omitempty"`
	Title       *string  `json:"title,omitempty"`
	EmployeeID  *string  `json:"employee_id,omitempty"`
	jwt.RegisteredClaims
}

// Issued is a freshly minted token.
type Issued struct {
	Token     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager issues, verifies and revokes HS256 access tokens.
type Manager struct {
	signingKey  []byte
	issuer      string
	defaultTTL  time.Duration
	revocations RevocationStore
	logger      *slog.Logger
	metrics     *Metrics
}

type Option func(*Manager)

func WithIssuer(issuer string) Option {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

// WithDefaultTTL is used when Issue is called with a non-positive ttl.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.defaultTTL = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// New builds a manager. Both the signing key and the revocation store are required.
func New(signingKey string, revocations RevocationStore, opts ...Option) (*Manager, error) {
	if signingKey == "" {
		return nil, errors.New("token signing key is required")
	}
	if revocations == nil {
		return nil, errors.New("token revocation store is required")
	}
	m := &Manager{
		signingKey:  []byte(signingKey),
		issuer:      "onesite",
		defaultTTL:  30 * time.Minute,
		revocations: revocations,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// DefaultTTL is the lifetime used when none is requested.
func (m *Manager) DefaultTTL() time.Duration {
	return m.defaultTTL
}

// Issue signs claims for ttl. The subject must be set; iat, exp, jti and iss
// are always assigned here.
func (m *Manager) Issue(ctx context.Context, claims Claims, ttl time.Duration) (*Issued, error) {
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token subject is required")
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	now := requestcontext.Now(ctx).Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims.ID = uuid.NewString()
	claims.Issuer = m.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	m.metrics.incIssued()

	return &Issued{
		Token:     signed,
		JTI:       claims.ID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify returns the claims of a token whose signature is valid, that has not
// expired, and that has not been revoked.
func (m *Manager) Verify(ctx context.Context, raw string) (*Claims, error) {
	now := requestcontext.Now(ctx)
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		m.metrics.incRejected("invalid")
		return nil, dErrors.Wrap(ErrInvalidToken, dErrors.CodeUnauthorized, "invalid or expired token")
	}

	revoked, err := m.revocations.IsRevoked(ctx, Fingerprint(raw))
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to check token revocation",
			"jti", claims.ID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "token revocation check unavailable")
	}
	if revoked {
		m.metrics.incRejected("revoked")
		return nil, dErrors.Wrap(ErrInvalidToken, dErrors.CodeUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

// Revoke invalidates raw until its own expiry. The signature must verify;
// an already expired token is a no-op.
func (m *Manager) Revoke(ctx context.Context, raw string) error {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid || claims.ExpiresAt == nil {
		return dErrors.Wrap(ErrInvalidToken, dErrors.CodeUnauthorized, "invalid token")
	}
	return m.RevokeUntil(ctx, raw, claims.ExpiresAt.Time)
}

// RevokeUntil stores a revocation entry that lives until expiry. Nothing is
// stored when expiry has passed.
func (m *Manager) RevokeUntil(ctx context.Context, raw string, expiry time.Time) error {
	ttl := expiry.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil
	}
	if err := m.revocations.RevokeToken(ctx, Fingerprint(raw), ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to revoke token")
	}
	m.metrics.incRevoked()
	m.logger.InfoContext(ctx, "token revoked",
		"event", "token_revoked",
		"log_type", "audit",
		"principal", requestcontext.Principal(ctx),
		"ttl_seconds", int(ttl.Seconds()),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// ActiveRevocations counts revocation entries that are still live.
func (m *Manager) ActiveRevocations(ctx context.Context) (int, error) {
	return m.revocations.CountActive(ctx)
}

func (m *Manager) keyFunc(*jwt.Token) (any, error) {
	return m.signingKey, nil
}

// Fingerprint is the revocation key of a raw token: hex SHA-256.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifyBearer adapts Verify for the HTTP auth middleware.
func (m *Manager) VerifyBearer(ctx context.Context, raw string) (string, []string, error) {
	claims, err := m.Verify(ctx, raw)
	if err != nil {
		return "", nil, err
	}
	return claims.Subject, claims.Permissions, nil
}

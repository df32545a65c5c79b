package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultBindTimeout = 5 * time.Second

var identityAttributes = []string{"mail", "displayName", "memberOf", "department", "title", "employeeID"}

// Client performs exactly one bind per call against a transport chosen by the
// negotiator. It never retries and never picks a transport itself.
type Client struct {
	dialer  Dialer
	domain  string
	baseDN  string
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDialer replaces the go-ldap dialer.
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithBindTimeout bounds a whole bind, search included.
func WithBindTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient builds a client for principals of domain, searching under baseDN.
func NewClient(domain, baseDN string, opts ...ClientOption) *Client {
	c := &Client{
		dialer:  LDAPDialer{},
		domain:  domain,
		baseDN:  baseDN,
		timeout: defaultBindTimeout,
		logger:  slog.Default(),
		tracer:  otel.Tracer("onesite/directory"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind authenticates principal with secret over cfg and resolves the identity.
// Every failure is a *BindError.
func (c *Client) Bind(ctx context.Context, cfg TransportConfig, principal, secret string) (*Identity, error) {
	ctx, span := c.tracer.Start(ctx, "directory.Bind", trace.WithAttributes(
		attribute.String("directory.mode", string(cfg.Mode)),
		attribute.String("directory.address", cfg.Address()),
	))
	defer span.End()

	identity, err := c.bind(ctx, cfg, principal, secret)
	if err != nil {
		span.SetStatus(codes.Error, string(KindOf(err)))
		return nil, err
	}
	return identity, nil
}

func (c *Client) bind(ctx context.Context, cfg TransportConfig, principal, secret string) (*Identity, error) {
	account := AccountName(principal)
	if account == "" || secret == "" {
		// The directory would treat an empty secret as an anonymous bind.
		return nil, bindErr(KindInvalidCredentials, errors.New("empty principal or secret"))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.Dial(ctx, cfg, c.timeout)
	if err != nil {
		return nil, bindErr(KindUnavailable, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		if stop() {
			_ = conn.Close()
		}
	}()

	if err := conn.Bind(c.userPrincipalName(account), secret); err != nil {
		if ctx.Err() != nil || isTransportFailure(err) {
			return nil, bindErr(KindUnavailable, errors.Join(err, ctx.Err()))
		}
		return nil, bindErr(KindInvalidCredentials, err)
	}

	req := ldap.NewSearchRequest(
		c.baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		int(c.timeout.Seconds()),
		false,
		fmt.Sprintf("(&(objectClass=user)(sAMAccountName=%s))", ldap.EscapeFilter(account)),
		identityAttributes,
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, bindErr(KindPrincipalNotFound, err)
		}
		return nil, bindErr(KindUnavailable, errors.Join(err, ctx.Err()))
	}
	if len(res.Entries) == 0 {
		return nil, bindErr(KindPrincipalNotFound, fmt.Errorf("no entry for %s", account))
	}

	return identityFromEntry(account, res.Entries[0]), nil
}

// Probe opens cfg and performs an anonymous bind. A result code from the
// server still proves the transport works; only transport failures are errors.
func (c *Client) Probe(ctx context.Context, cfg TransportConfig) error {
	ctx, span := c.tracer.Start(ctx, "directory.Probe", trace.WithAttributes(
		attribute.String("directory.mode", string(cfg.Mode)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.Dial(ctx, cfg, c.timeout)
	if err != nil {
		span.SetStatus(codes.Error, "dial failed")
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		if stop() {
			_ = conn.Close()
		}
	}()

	if err := conn.UnauthenticatedBind(""); err != nil && isTransportFailure(err) {
		span.SetStatus(codes.Error, "handshake failed")
		return err
	}
	return nil
}

func (c *Client) userPrincipalName(account string) string {
	if c.domain == "" {
		return account
	}
	return account + "@" + c.domain
}

// AccountName strips DOMAIN\ prefixes and @domain suffixes, leaving the
// sAMAccountName.
func AccountName(principal string) string {
	p := strings.TrimSpace(principal)
	if i := strings.LastIndex(p, `\`); i >= 0 {
		p = p[i+1:]
	}
	if i := strings.Index(p, "@"); i >= 0 {
		p = p[:i]
	}
	return p
}

func identityFromEntry(account string, entry *ldap.Entry) *Identity {
	return &Identity{
		PrincipalName: account,
		Email:         optional(entry, "mail"),
		DisplayName:   optional(entry, "displayName"),
		Department:    optional(entry, "department"),
		Title:         optional(entry, "title"),
		EmployeeID:    optional(entry, "employeeID"),
		Groups:        GroupNames(entry.GetAttributeValues("memberOf")),
	}
}

func optional(entry *ldap.Entry, attr string) *string {
	v := strings.TrimSpace(entry.GetAttributeValue(attr))
	if v == "" {
		return nil
	}
	return &v
}

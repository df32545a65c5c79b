package directory

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Conn is the subset of an LDAP connection the client uses.
type Conn interface {
	Bind(username, password string) error
	UnauthenticatedBind(username string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SetTimeout(timeout time.Duration)
	Close() error
}

// Dialer opens a connection for a transport. For TLS modes the handshake
// completes before Dial returns.
type Dialer interface {
	Dial(ctx context.Context, cfg TransportConfig, timeout time.Duration) (Conn, error)
}

// DialerFunc adapts a function into a Dialer.
type DialerFunc func(ctx context.Context, cfg TransportConfig, timeout time.Duration) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, cfg TransportConfig, timeout time.Duration) (Conn, error) {
	return f(ctx, cfg, timeout)
}

// LDAPDialer dials real directory servers with go-ldap.
type LDAPDialer struct{}

func (LDAPDialer) Dial(ctx context.Context, cfg TransportConfig, timeout time.Duration) (Conn, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, err
	}
	netDialer := &net.Dialer{Timeout: timeout}
	if deadline, ok := ctx.Deadline(); ok {
		netDialer.Deadline = deadline
	}
	opts := []ldap.DialOpt{ldap.DialWithDialer(netDialer)}
	if tlsCfg != nil {
		opts = append(opts, ldap.DialWithTLSConfig(tlsCfg))
	}
	c, err := ldap.DialURL(cfg.URL(), opts...)
	if err != nil {
		return nil, err
	}
	c.SetTimeout(timeout)
	return &ldapConn{Conn: c}, nil
}

type ldapConn struct {
	*ldap.Conn
}

func (c *ldapConn) Close() error {
	return c.Conn.Close()
}

// isTransportFailure separates "could not talk to the server" from "the
// server answered with a result code".
func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return ldapErr.ResultCode == ldap.ErrorNetwork ||
			ldapErr.ResultCode == ldap.LDAPResultUnavailable ||
			ldapErr.ResultCode == ldap.LDAPResultBusy ||
			ldapErr.ResultCode == ldap.LDAPResultServerDown ||
			ldapErr.ResultCode == ldap.LDAPResultTimeout
	}
	return true
}

package directory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeConn struct {
	bindErr   error
	probeErr  error
	searchErr error
	entries   []*ldap.Entry
	blockBind bool

	bindUser  string
	bindPass  string
	searchReq *ldap.SearchRequest

	closeCount atomic.Int32
	closeOnce  sync.Once
	closed     chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) Bind(username, password string) error {
	c.bindUser, c.bindPass = username, password
	if c.blockBind {
		<-c.closed
		return ldap.NewError(ldap.ErrorNetwork, errors.New("connection closed"))
	}
	return c.bindErr
}

func (c *fakeConn) UnauthenticatedBind(string) error { return c.probeErr }

func (c *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.searchReq = req
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	return &ldap.SearchResult{Entries: c.entries}, nil
}

func (c *fakeConn) SetTimeout(time.Duration) {}

func (c *fakeConn) Close() error {
	c.closeCount.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type ClientSuite struct {
	suite.Suite
	conn    *fakeConn
	dialErr error
	dials   int
	client  *Client
	cfg     TransportConfig
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.conn = newFakeConn()
	s.dialErr = nil
	s.dials = 0
	s.cfg = TransportConfig{Host: "dc01.corp.local", Port: 636, Mode: ModeTLSStrict}
	s.client = NewClient("corp.local", "DC=corp,DC=local",
		WithBindTimeout(time.Second),
		WithDialer(DialerFunc(func(context.Context, TransportConfig, time.Duration) (Conn, error) {
			s.dials++
			if s.dialErr != nil {
				return nil, s.dialErr
			}
			return s.conn, nil
		})),
	)
}

func asmithEntry() *ldap.Entry {
	return ldap.NewEntry("CN=Ana Smith,OU=Users,DC=corp,DC=local", map[string][]string{
		"mail":        {"asmith@corp.local"},
		"displayName": {"Ana Smith"},
		"department":  {"Logistica"},
		"employeeID":  {"E-1042"},
		"memberOf": {
			"CN=Supervisores,OU=Grupos,DC=corp,DC=local",
			"CN=VPN Users,OU=Grupos,DC=corp,DC=local",
		},
	})
}

func (s *ClientSuite) TestBind() {
	ctx := context.Background()

	s.Run("success resolves identity and closes the connection", func() {
		s.SetupTest()
		s.conn.entries = []*ldap.Entry{asmithEntry()}

		identity, err := s.client.Bind(ctx, s.cfg, "asmith", "Secr3t!")
		s.Require().NoError(err)

		s.Equal("asmith@corp.local", s.conn.bindUser)
		s.Equal("Secr3t!", s.conn.bindPass)
		s.Equal("asmith", identity.PrincipalName)
		s.Equal("asmith@corp.local", Value(identity.Email))
		s.Equal("Ana Smith", Value(identity.DisplayName))
		s.Equal("E-1042", Value(identity.EmployeeID))
		s.Nil(identity.Title)
		s.Equal([]string{"Supervisores", "VPN Users"}, identity.Groups)
		s.Equal("(&(objectClass=user)(sAMAccountName=asmith))", s.conn.searchReq.Filter)
		s.Equal(ldap.ScopeWholeSubtree, s.conn.searchReq.Scope)
		s.Equal(int32(1), s.conn.closeCount.Load())
	})

	s.Run("principal is escaped in the search filter", func() {
		s.SetupTest()
		s.conn.entries = []*ldap.Entry{asmithEntry()}

		_, err := s.client.Bind(ctx, s.cfg, "a*)(cn=x", "pw")
		s.Require().NoError(err)
		s.Equal(`(&(objectClass=user)(sAMAccountName=a\2a\29\28cn=x))`, s.conn.searchReq.Filter)
	})

	s.Run("rejected secret is invalid credentials", func() {
		s.SetupTest()
		s.conn.bindErr = ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("80090308: LdapErr"))

		_, err := s.client.Bind(ctx, s.cfg, "jdoe", "wrong")
		s.Require().Error(err)
		s.Equal(KindInvalidCredentials, KindOf(err))
		s.Equal(int32(1), s.conn.closeCount.Load())
	})

	s.Run("empty secret never reaches the directory", func() {
		s.SetupTest()

		_, err := s.client.Bind(ctx, s.cfg, "jdoe", "")
		s.Equal(KindInvalidCredentials, KindOf(err))
		s.Zero(s.dials)
	})

	s.Run("dial failure is unavailability", func() {
		s.SetupTest()
		s.dialErr = errors.New("connection refused")

		_, err := s.client.Bind(ctx, s.cfg, "jdoe", "pw")
		s.Equal(KindUnavailable, KindOf(err))
	})

	s.Run("network error during bind is unavailability, not bad credentials", func() {
		s.SetupTest()
		s.conn.bindErr = ldap.NewError(ldap.ErrorNetwork, errors.New("reset by peer"))

		_, err := s.client.Bind(ctx, s.cfg, "jdoe", "pw")
		s.Equal(KindUnavailable, KindOf(err))
		s.Equal(int32(1), s.conn.closeCount.Load())
	})

	s.Run("no entry after bind is principal not found", func() {
		s.SetupTest()

		_, err := s.client.Bind(ctx, s.cfg, "ghost", "pw")
		s.Equal(KindPrincipalNotFound, KindOf(err))
		s.Equal(int32(1), s.conn.closeCount.Load())
	})

	s.Run("search failure is unavailability", func() {
		s.SetupTest()
		s.conn.searchErr = ldap.NewError(ldap.ErrorNetwork, errors.New("timeout"))

		_, err := s.client.Bind(ctx, s.cfg, "jdoe", "pw")
		s.Equal(KindUnavailable, KindOf(err))
	})

	s.Run("caller cancellation closes the in-flight connection", func() {
		s.SetupTest()
		s.conn.blockBind = true
		cctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(20*time.Millisecond, cancel)

		_, err := s.client.Bind(cctx, s.cfg, "jdoe", "pw")
		s.Equal(KindUnavailable, KindOf(err))
		s.ErrorIs(err, context.Canceled)
		s.GreaterOrEqual(s.conn.closeCount.Load(), int32(1))
	})
}

func (s *ClientSuite) TestProbe() {
	ctx := context.Background()

	s.Run("server refusing anonymous bind still completes the handshake", func() {
		s.SetupTest()
		s.conn.probeErr = ldap.NewError(ldap.LDAPResultInappropriateAuthentication, errors.New("anonymous bind disallowed"))
		s.NoError(s.client.Probe(ctx, s.cfg))
		s.Equal(int32(1), s.conn.closeCount.Load())
	})

	s.Run("dial failure fails the probe", func() {
		s.SetupTest()
		s.dialErr = errors.New("x509: certificate signed by unknown authority")
		s.Error(s.client.Probe(ctx, s.cfg))
	})

	s.Run("network failure fails the probe", func() {
		s.SetupTest()
		s.conn.probeErr = ldap.NewError(ldap.ErrorNetwork, errors.New("eof"))
		s.Error(s.client.Probe(ctx, s.cfg))
	})
}

func TestAccountName(t *testing.T) {
	assert.Equal(t, "jdoe", AccountName("jdoe"))
	assert.Equal(t, "jdoe", AccountName(`CORP\jdoe`))
	assert.Equal(t, "jdoe", AccountName("jdoe@corp.local"))
	assert.Equal(t, "jdoe", AccountName("  jdoe "))
	assert.Equal(t, "", AccountName("@corp.local"))
}

func TestTransportConfig(t *testing.T) {
	plain := TransportConfig{Host: "dc01", Port: 389, Mode: ModePlain}
	assert.Equal(t, "ldap://dc01:389", plain.URL())
	tlsCfg, err := plain.TLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	relaxed := TransportConfig{Host: "dc01", Port: 636, Mode: ModeTLSRelaxed}
	assert.Equal(t, "ldaps://dc01:636", relaxed.URL())
	tlsCfg, err = relaxed.TLSConfig()
	require.NoError(t, err)
	assert.True(t, tlsCfg.InsecureSkipVerify)

	missing := TransportConfig{Host: "dc01", Port: 636, Mode: ModeTLSStrict, TrustAnchor: "/nonexistent/ca.pem"}
	_, err = missing.TLSConfig()
	assert.Error(t, err)
}

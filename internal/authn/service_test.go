package authn_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/CherreraTEG/OneSite/internal/audit"
	auditstore "github.com/CherreraTEG/OneSite/internal/audit/store"
	"github.com/CherreraTEG/OneSite/internal/authn"
	"github.com/CherreraTEG/OneSite/internal/authn/mocks"
	"github.com/CherreraTEG/OneSite/internal/authz"
	"github.com/CherreraTEG/OneSite/internal/directory"
	"github.com/CherreraTEG/OneSite/internal/lockout"
	lockoutstore "github.com/CherreraTEG/OneSite/internal/lockout/store"
	"github.com/CherreraTEG/OneSite/internal/platform/logger"
	dErrors "github.com/CherreraTEG/OneSite/pkg/domain-errors"
	"github.com/CherreraTEG/OneSite/pkg/requestcontext"
)

const secret = "S3cret!pass"

var transport = directory.TransportConfig{Host: "dc01.corp.local", Port: 636, Mode: directory.ModeTLSStrict}

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	dir        *mocks.MockDirectory
	negotiator *mocks.MockNegotiator
	tracker    *lockout.Service
	audits     *auditstore.MemoryStore
	logs       *bytes.Buffer
	service    *authn.Service
	ctx        context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.dir = mocks.NewMockDirectory(s.ctrl)
	s.negotiator = mocks.NewMockNegotiator(s.ctrl)

	tracker, err := lockout.New(lockoutstore.NewMemoryStore(), lockout.WithLogger(logger.Discard()))
	s.Require().NoError(err)
	s.tracker = tracker

	s.audits = auditstore.NewMemoryStore()
	s.logs = &bytes.Buffer{}
	s.service = s.newService(s.tracker)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
}

func (s *ServiceSuite) newService(tracker authn.Tracker) *authn.Service {
	svc, err := authn.New(s.dir, s.negotiator, tracker,
		authn.Endpoint{Host: "dc01.corp.local", Port: 636, Policy: directory.PolicyRequired, Domain: "corp.local"},
		authn.WithAudit(audit.NewPublisher(s.audits, audit.WithPublisherLogger(logger.Discard()))),
		authn.WithLogger(logger.NewWithWriter(s.logs, "test", "debug")),
		authn.WithMetrics(authn.NewMetrics(prometheus.NewRegistry())),
	)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) expectTransport() {
	s.negotiator.EXPECT().
		Resolve(gomock.Any(), "dc01.corp.local", 636, directory.PolicyRequired).
		Return(transport, nil).AnyTimes()
}

func (s *ServiceSuite) auditLines() []map[string]any {
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(s.logs.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]any
		s.Require().NoError(json.Unmarshal([]byte(raw), &line))
		if line["log_type"] == "audit" {
			lines = append(lines, line)
		}
	}
	return lines
}

func (s *ServiceSuite) login(principal, pw string) *authn.Result {
	res, err := s.service.Authenticate(s.ctx, authn.Request{
		Principal: principal,
		Secret:    pw,
		ClientIP:  "10.0.0.5",
		UserAgent: strings.Repeat("x", 600),
	})
	s.Require().NoError(err)
	return res
}

func invalid() error {
	return &directory.BindError{Kind: directory.KindInvalidCredentials, Err: errors.New("LDAP Result Code 49")}
}

func (s *ServiceSuite) TestSuccessfulLoginMapsGroups() {
	s.expectTransport()
	s.dir.EXPECT().Bind(gomock.Any(), transport, "asmith", secret).Return(&directory.Identity{
		PrincipalName: "asmith",
		Groups:        []string{"Supervisores", "Domain Users"},
	}, nil)

	res := s.login("CORP\\asmith", secret)

	s.Equal(authn.OutcomeAuthenticated, res.Outcome)
	s.Equal([]authz.Role{authz.RoleSupervisors}, res.Roles)
	s.Equal([]string{"reports:read", "trucks:delete", "trucks:read", "trucks:write"}, res.Permissions)

	recent, err := s.audits.Recent(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.True(recent[0].Success)
	s.Equal("corp.local", recent[0].Domain)
	s.Len(recent[0].UserAgent, audit.MaxUserAgentLength)
}

func (s *ServiceSuite) TestAdministratorsGetWildcard() {
	s.expectTransport()
	s.dir.EXPECT().Bind(gomock.Any(), transport, "root", secret).Return(&directory.Identity{
		PrincipalName: "root",
		Groups:        []string{"Administradores", "Operadores"},
	}, nil)

	res := s.login("root", secret)
	s.Equal([]string{"*"}, res.Permissions)
}

func (s *ServiceSuite) TestLockAfterRepeatedFailures() {
	s.expectTransport()
	s.dir.EXPECT().Bind(gomock.Any(), transport, "jdoe", "wrong").Return(nil, invalid()).Times(5)

	for i := 1; i <= 5; i++ {
		res := s.login("jdoe", "wrong")
		s.Equal(authn.OutcomeInvalidCredentials, res.Outcome)
		s.Equal(i, res.FailedCount)
		s.Equal(i == 5, res.LockedNow)
	}

	// The correct password is refused without contacting the directory.
	res := s.login("jdoe", secret)
	s.Equal(authn.OutcomeAccountLocked, res.Outcome)

	status := s.tracker.Status(s.ctx, "jdoe")
	s.True(status.Locked)
	s.Zero(status.FailedCount)

	recent, err := s.audits.Recent(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(recent, 6)
	reasons := map[audit.FailureReason]int{}
	for _, a := range recent {
		reasons[a.FailureReason]++
	}
	s.Equal(5, reasons[audit.ReasonInvalidCredentials])
	s.Equal(1, reasons[audit.ReasonAccountLocked])
}

func (s *ServiceSuite) TestLockingAttemptWritesOneAuditLine() {
	tracker, err := lockout.New(lockoutstore.NewMemoryStore(),
		lockout.WithConfig(lockout.Config{MaxAttempts: 1, AttemptWindow: time.Hour, LockDuration: time.Minute}),
		lockout.WithLogger(logger.NewWithWriter(s.logs, "test", "debug")),
	)
	s.Require().NoError(err)
	s.service = s.newService(tracker)
	s.expectTransport()
	s.dir.EXPECT().Bind(gomock.Any(), transport, "jdoe", "wrong").Return(nil, invalid())

	res := s.login("jdoe", "wrong")
	s.Require().True(res.LockedNow)

	s.Contains(s.logs.String(), "account locked after repeated failures")
	lines := s.auditLines()
	s.Require().Len(lines, 1)
	s.Equal("invalid_credentials", lines[0]["outcome"])
	s.Equal(true, lines[0]["locked_now"])
}

func (s *ServiceSuite) TestUserNotFoundDoesNotCount() {
	s.expectTransport()
	s.dir.EXPECT().Bind(gomock.Any(), transport, "ghost", secret).
		Return(nil, &directory.BindError{Kind: directory.KindPrincipalNotFound})

	res := s.login("ghost", secret)
	s.Equal(authn.OutcomeUserNotFound, res.Outcome)
	s.Zero(s.tracker.Status(s.ctx, "ghost").FailedCount)
}

func (s *ServiceSuite) TestDirectoryUnavailableDoesNotCount() {
	s.expectTransport()
	s.dir.EXPECT().Bind(gomock.Any(), transport, "jdoe", secret).
		Return(nil, &directory.BindError{Kind: directory.KindUnavailable, Err: context.DeadlineExceeded})

	res := s.login("jdoe", secret)
	s.Equal(authn.OutcomeDirectoryError, res.Outcome)
	s.Zero(s.tracker.Status(s.ctx, "jdoe").FailedCount)
}

func (s *ServiceSuite) TestTransportUnavailable() {
	s.negotiator.EXPECT().Resolve(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(directory.TransportConfig{}, directory.ErrTransportUnavailable)

	res := s.login("jdoe", secret)
	s.Equal(authn.OutcomeTransportUnavailable, res.Outcome)
	s.Zero(s.tracker.Status(s.ctx, "jdoe").FailedCount)
}

func (s *ServiceSuite) TestDeadlineDuringFirstNegotiationIsDirectoryError() {
	hung := directory.DialerFunc(func(ctx context.Context, _ directory.TransportConfig, _ time.Duration) (directory.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	client := directory.NewClient("corp.local", "DC=corp,DC=local",
		directory.WithDialer(hung),
		directory.WithBindTimeout(200*time.Millisecond),
	)
	negotiator, err := directory.NewNegotiator(client, directory.WithLogger(logger.Discard()))
	s.Require().NoError(err)
	svc, err := authn.New(client, negotiator, s.tracker,
		authn.Endpoint{Host: "dc01.corp.local", Port: 636, Policy: directory.PolicyRequired, Domain: "corp.local"},
		authn.WithLogger(logger.NewWithWriter(s.logs, "test", "debug")),
	)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()
	res, err := svc.Authenticate(ctx, authn.Request{Principal: "jdoe", Secret: secret, ClientIP: "10.0.0.5"})
	s.Require().NoError(err)

	s.Equal(authn.OutcomeDirectoryError, res.Outcome)
	s.Zero(s.tracker.Status(s.ctx, "jdoe").FailedCount)
}

func (s *ServiceSuite) TestOneAuditLinePerOutcomeWithoutSecret() {
	s.expectTransport()
	gomock.InOrder(
		s.dir.EXPECT().Bind(gomock.Any(), transport, "jdoe", secret).Return(nil, invalid()),
		s.dir.EXPECT().Bind(gomock.Any(), transport, "jdoe", secret).Return(&directory.Identity{PrincipalName: "jdoe"}, nil),
	)

	s.login("jdoe", secret)
	s.login("jdoe", secret)

	lines := s.auditLines()
	s.Require().Len(lines, 2)
	s.Equal("invalid_credentials", lines[0]["outcome"])
	s.Equal("authenticated", lines[1]["outcome"])
	s.Equal("10.0.0.5", lines[1]["client_ip"])
	s.Len(lines[1]["user_agent"], audit.MaxUserAgentLength)
	s.NotContains(s.logs.String(), secret)
}

func (s *ServiceSuite) TestLockoutStoreFailureFailsOpen() {
	tracker := mocks.NewMockTracker(s.ctrl)
	svc := s.newService(tracker)
	s.expectTransport()

	storeDown := dErrors.New(dErrors.CodeUnavailable, "redis down")
	tracker.EXPECT().IsLocked(gomock.Any(), "jdoe").Return(false, storeDown).Times(2)
	tracker.EXPECT().RecordFailure(gomock.Any(), "jdoe").Return(nil, storeDown)
	tracker.EXPECT().RecordSuccess(gomock.Any(), "jdoe").Return(storeDown)
	gomock.InOrder(
		s.dir.EXPECT().Bind(gomock.Any(), transport, "jdoe", "wrong").Return(nil, invalid()),
		s.dir.EXPECT().Bind(gomock.Any(), transport, "jdoe", secret).Return(&directory.Identity{PrincipalName: "jdoe"}, nil),
	)

	res, err := svc.Authenticate(s.ctx, authn.Request{Principal: "jdoe", Secret: "wrong"})
	s.Require().NoError(err)
	s.Equal(authn.OutcomeInvalidCredentials, res.Outcome)
	s.Zero(res.FailedCount)

	res, err = svc.Authenticate(s.ctx, authn.Request{Principal: "jdoe", Secret: secret})
	s.Require().NoError(err)
	s.Equal(authn.OutcomeAuthenticated, res.Outcome)
	s.Contains(s.logs.String(), "lockout store unavailable")
}

func (s *ServiceSuite) TestEmptyPrincipalIsRejected() {
	_, err := s.service.Authenticate(s.ctx, authn.Request{Principal: "  ", Secret: secret})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestNewValidation() {
	_, err := authn.New(nil, s.negotiator, s.tracker, authn.Endpoint{Host: "dc"})
	s.Error(err)
	_, err = authn.New(s.dir, s.negotiator, s.tracker, authn.Endpoint{})
	s.Error(err)
}

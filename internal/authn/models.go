package authn

import (
	"github.com/CherreraTEG/OneSite/internal/authz"
	"github.com/CherreraTEG/OneSite/internal/directory"
)

// Outcome is the single result of one authentication attempt.
type Outcome string

const (
	OutcomeAuthenticated        Outcome = "authenticated"
	OutcomeInvalidCredentials   Outcome = "invalid_credentials"
	OutcomeAccountLocked        Outcome = "account_locked"
	OutcomeUserNotFound         Outcome = "user_not_found"
	OutcomeDirectoryError       Outcome = "directory_error"
	OutcomeTransportUnavailable Outcome = "transport_unavailable"
)

// Request carries one login. Secret is never logged or stored.
type Request struct {
	Principal string
	Secret    string
	ClientIP  string
	UserAgent string
}

// Result is returned for every outcome. Identity, Roles and Permissions are
// only set when Outcome is OutcomeAuthenticated.
type Result struct {
	Outcome     Outcome
	Principal   string
	Identity    *directory.Identity
	Roles       []authz.Role
	Permissions []string

	// FailedCount is the counter after an invalid_credentials outcome, zero
	// when the lockout store could not be reached.
	FailedCount int
	// LockedNow is set when this failure triggered the lock.
	LockedNow bool
}

// Authenticated reports whether the attempt succeeded.
func (r *Result) Authenticated() bool {
	return r != nil && r.Outcome == OutcomeAuthenticated
}

// Endpoint names the directory server and the transport policy used to reach it.
type Endpoint struct {
	Host   string
	Port   int
	Policy directory.Policy
	Domain string
}

package directory

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed bind.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindUnavailable        ErrorKind = "directory_unavailable"
	KindPrincipalNotFound  ErrorKind = "principal_not_found"
)

// BindError is returned by Client.Bind for every failure.
type BindError struct {
	Kind ErrorKind
	Err  error
}

func (e *BindError) Error() string {
	if e.Err == nil {
		return "directory bind: " + string(e.Kind)
	}
	return fmt.Sprintf("directory bind: %s: %v", e.Kind, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// KindOf extracts the bind error kind. Errors that are not BindErrors are
// treated as unavailability.
func KindOf(err error) ErrorKind {
	var be *BindError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnavailable
}

// ErrTransportUnavailable is returned when no candidate transport completes a handshake.
var ErrTransportUnavailable = errors.New("no directory transport available")

func bindErr(kind ErrorKind, err error) error {
	return &BindError{Kind: kind, Err: err}
}

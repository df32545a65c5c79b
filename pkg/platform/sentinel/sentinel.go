package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: key or row does not exist
//   - ErrExpired: entry exists but its lifetime has elapsed
//   - ErrInvalidState: operation not valid for the entry's current state
//   - ErrUnavailable: backing service could not be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)

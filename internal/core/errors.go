package core

import "errors"

// Failure taxonomy shared across the client. Callers classify with
// errors.Is; wrapped messages carry operation detail.
var (
	// ErrNetwork indicates the backend was unreachable or returned a
	// non-success transport status.
	ErrNetwork = errors.New("cannot reach server - check connectivity")
	// ErrAuthentication indicates the credential exchange was rejected.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNotFound indicates an expected row was missing during a
	// read-modify-write cycle.
	ErrNotFound = errors.New("row not found on server")
	// ErrUnauthenticated indicates an operation was attempted without an
	// active session.
	ErrUnauthenticated = errors.New("no active session")
	// ErrConfiguration indicates required endpoints or credentials were
	// unset at startup.
	ErrConfiguration = errors.New("missing configuration")
	// ErrConflict indicates the backend rejected a write as stale. The
	// current backend overwrites silently; the sentinel is kept so callers
	// are ready for optimistic-concurrency enforcement.
	ErrConflict = errors.New("stale write rejected")
)

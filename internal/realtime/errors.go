package realtime

import "fmt"

// The coordinator's failure taxonomy. Handlers convert these into scoped
// error events on the originating connection; nothing here ever crashes
// the process.

// AuthenticationError means the credential is invalid or the user cannot
// connect. The connection must be terminated after reporting it.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// AuthorizationError means the action is not permitted for this user.
// The connection stays open.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not allowed: %s", e.Reason)
}

// NotFoundError means the referenced entity no longer exists. Reported to
// the caller, no state change.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// ExternalServiceError wraps a failed third-party call. The feature is
// silently skipped; the user just sees no result.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failed database operation. Reported to the
// caller as an action failure; in-memory side effects already applied are
// not rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

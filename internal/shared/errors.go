package shared

import "errors"

var (
	// ErrValidation indicates malformed input; callers re-prompt.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates a transition the current status does not permit.
	ErrInvalidState = errors.New("invalid state for operation")
	// ErrConflict indicates a concurrent modification; re-fetch and retry once.
	ErrConflict = errors.New("concurrent modification")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrExternalService indicates a failing third-party dependency.
	ErrExternalService = errors.New("external service failure")
)

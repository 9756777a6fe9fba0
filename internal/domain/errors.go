package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. All validation failures surface at the boundary where they
// are introduced; evaluation-time failures are terminal for that call.
// Persistence failures pass through as infrastructure errors and are never
// reinterpreted as one of these.
var (
	// ErrConfigInvalid marks a malformed or inconsistent configuration
	// document. Surfaced at creation time, never silently patched.
	ErrConfigInvalid = errors.New("config invalid")

	// ErrNoActiveConfig means the tenant has no active policy. Evaluation
	// refuses rather than defaulting: an undefined policy must not
	// silently produce a score.
	ErrNoActiveConfig = errors.New("no active config")

	// ErrDuplicateVersion means (tenant, version) already exists.
	ErrDuplicateVersion = errors.New("duplicate config version")

	// ErrUnknownIndicator means a weight key or hard-hit id references an
	// indicator the catalog does not know (or has disabled).
	ErrUnknownIndicator = errors.New("unknown indicator")

	// ErrNotFound covers missing case/config/indicator references.
	ErrNotFound = errors.New("not found")

	// ErrNoSnapshot means the case has never been evaluated.
	ErrNoSnapshot = errors.New("no snapshot")
)

// ValidationError carries the specific field/reference that failed so the
// admin UI can render a precise message.
type ValidationError struct {
	Field  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Detail)
	}
	return fmt.Sprintf("%v: %s: %s", e.Err, e.Field, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid builds a ConfigInvalid validation error for a field.
func Invalid(field, detail string) error {
	return &ValidationError{Field: field, Detail: detail, Err: ErrConfigInvalid}
}

// UnknownIndicatorError builds an UnknownIndicator validation error naming
// the offending reference.
func UnknownIndicatorError(field, indicatorID string) error {
	return &ValidationError{Field: field, Detail: indicatorID, Err: ErrUnknownIndicator}
}

/*
errors.go - Error taxonomy for the appropriation engine

PURPOSE:
  All error types in one place. Every failure belongs to one category and
  unwraps to its sentinel, so callers can branch with errors.Is and the API
  layer can map categories to HTTP status codes.

ERROR CATEGORIES:
  1. Configuration errors - invalid frequency or payment type
  2. Invariant violations - disallowed recipient/method, incomplete paid fields
  3. Workflow errors - grant preconditions not met
  4. Validation errors - expected-activity date sanity

  None of these are retried. They abort the surrounding transaction.

SEE ALSO:
  - schedule.go: raises ConfigError and InvariantError
  - grant.go: raises GrantError
  - api/handlers.go: maps categories to status codes
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidConfiguration is returned for schedules that cannot be expanded.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvariantViolation is returned when a record fails validation at save.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrWorkflow is returned when grant preconditions are not met.
	ErrWorkflow = errors.New("workflow error")

	// ErrValidation is returned by ValidateExpected.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on uniqueness violations.
	ErrConflict = errors.New("conflict")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigError describes a schedule configuration that cannot be evaluated.
type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %q", e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// InvariantError describes a record that may not be saved.
type InvariantError struct {
	Record  string
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Record, e.Message)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// GrantError describes why a grant was refused. Nothing is promoted or cut.
type GrantError struct {
	AppropriationID AppropriationID
	ActivityID      ActivityID
	Reason          string
}

func (e *GrantError) Error() string {
	if e.ActivityID != "" {
		return fmt.Sprintf("cannot grant activity %s: %s", e.ActivityID, e.Reason)
	}
	return fmt.Sprintf("cannot grant appropriation %s: %s", e.AppropriationID, e.Reason)
}

func (e *GrantError) Unwrap() error { return ErrWorkflow }

// ValidationError is raised by ValidateExpected.
type ValidationError struct {
	ActivityID ActivityID
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("activity %s: %s", e.ActivityID, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFound builds an ErrNotFound error naming the missing record.
func NotFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrInvariantViolation) ||
		errors.Is(err, ErrWorkflow) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

/*
errors.go - Centralized error types for the finance core

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps them to HTTP statuses with a single table
  (api/errors.go); nothing else in the repo decides a status code.

ERROR CATEGORIES:
  1. Session errors   - Unauthorized
  2. Policy errors    - Forbidden, NotFound (scope-narrowed lookups fold
                        "exists but not yours" into NotFound)
  3. State errors     - Conflict, InsufficientFunds, ConcurrentModification
  4. Input errors     - Validation, with per-field details
  5. Store errors     - anything else, wrapped with %w and surfaced opaquely

RETRIES:
  Nothing in the core retries. A blind retry of a balance mutation could
  apply the same delta twice.

SEE ALSO:
  - lifecycle.go: returns most of these
  - api/errors.go: status mapping table
*/
package finance

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnauthorized is returned when no principal is attached to the call.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the principal may see the entity but not act on it.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when an id does not resolve within the principal's scope.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the current state forbids the operation,
	// e.g. paying a transaction that is already PAID.
	ErrConflict = errors.New("conflict")

	// ErrInsufficientFunds is returned when paying an EXPENSE would take a
	// bank account below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrConcurrentModification is returned when a compare-and-swap write
	// finds the row changed since it was read.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrAlreadyExists is returned by stores on unique-constraint violations.
	ErrAlreadyExists = errors.New("already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the entity that did not resolve.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError explains why the current state rejects the operation.
// Field is set when a single input field caused it, e.g. a taken email.
type ConflictError struct {
	Reason string
	Field  string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InsufficientFundsError carries the remediation data the caller needs.
type InsufficientFundsError struct {
	AccountID      AccountID
	AccountName    string
	CurrentBalance decimal.Decimal
	RequiredAmount decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %q: balance %s, required %s",
		e.AccountName, e.CurrentBalance.StringFixed(2), e.RequiredAmount.StringFixed(2))
}

// Unwrap makes the error match both ErrInsufficientFunds and ErrConflict.
func (e *InsufficientFundsError) Unwrap() []error {
	return []error{ErrInsufficientFunds, ErrConflict}
}

// ValidationError holds per-field messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add records a message for field and returns the receiver for chaining.
func (e *ValidationError) Add(field, msg string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
	return e
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input or
// the current state, as opposed to a store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

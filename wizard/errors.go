/*
errors.go - Centralized error types for the wizard engine

PURPOSE:
  All wizard-level error types in one place. The API layer uses the
  category helpers to pick HTTP status codes.

ERROR CATEGORIES:
  1. Validation errors - field-level, recoverable by correction (400)
  2. Conflict errors   - paid lock, duplicate assignment, branch mismatch (409)
  3. Not-found errors  - unknown draft or step (404)
*/
package wizard

import (
	"errors"
	"fmt"

	"github.com/warp/issuance-engine/coverage"
	"github.com/warp/issuance-engine/payment"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrStepBlocked is returned by Advance when the current step's
	// validator reports field errors.
	ErrStepBlocked = errors.New("step blocked by validation errors")

	// ErrBranchMismatch is returned when a branch payload's tag does not
	// match BasicData.Branch.
	ErrBranchMismatch = errors.New("branch data does not match selected branch")

	// ErrDraftNotFound is returned when a session key has no draft.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrNoRestorableDraft is returned when restore is requested but no
	// snapshot exists.
	ErrNoRestorableDraft = errors.New("no restorable draft")

	// ErrPaymentLocked is returned when a payment change collides with the
	// paid-installment lock.
	ErrPaymentLocked = errors.New("payment parameters locked by paid installments")

	// ErrAlreadyTerminal is returned for operations on a saved or
	// cancelled wizard.
	ErrAlreadyTerminal = errors.New("wizard already saved or cancelled")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// StepBlockedError carries the validator output that blocked an Advance.
type StepBlockedError struct {
	Step   Step
	Fields FieldErrors
}

func (e *StepBlockedError) Error() string {
	return fmt.Sprintf("step %s blocked: %d field error(s)", e.Step, len(e.Fields))
}

func (e *StepBlockedError) Unwrap() error { return ErrStepBlocked }

// PaymentLockedError names the frozen parameters an edit tried to touch.
type PaymentLockedError struct {
	Fields []string
}

func (e *PaymentLockedError) Error() string {
	return fmt.Sprintf("payment locked: %v are read-only while installments are paid", e.Fields)
}

func (e *PaymentLockedError) Unwrap() error { return ErrPaymentLocked }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is correctable operator input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrStepBlocked) ||
		errors.Is(err, ErrBranchMismatch) ||
		errors.Is(err, coverage.ErrInvalidLevel) ||
		errors.Is(err, payment.ErrTooFewInstallments) ||
		errors.Is(err, payment.ErrDownPaymentRange) ||
		errors.Is(err, payment.ErrNegativeTotal) ||
		errors.Is(err, payment.ErrUnknownCadence)
}

// IsConflict reports whether the error is a state conflict rather than bad
// input: the operation is valid in general but not against current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrPaymentLocked) ||
		errors.Is(err, ErrAlreadyTerminal) ||
		errors.Is(err, payment.ErrScheduleLocked) ||
		errors.Is(err, payment.ErrPaidImmutable) ||
		errors.Is(err, coverage.ErrLevelInUse) ||
		errors.Is(err, coverage.ErrDuplicateClient)
}

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDraftNotFound) ||
		errors.Is(err, ErrNoRestorableDraft) ||
		errors.Is(err, coverage.ErrLevelNotFound) ||
		errors.Is(err, coverage.ErrAssignmentNotFound)
}

/*
errors.go - Error taxonomy for the billing engine

PURPOSE:
  All error types in one place. The HTTP layer maps them to status codes
  through the helpers at the bottom of this file.

ERROR CATEGORIES:
  1. Validation - malformed input (bad period, invalid status)       -> 400
  2. Not found  - unknown property, tenant, bill, invoice            -> 404
  3. Conflict   - duplicate deposit, reading, invoice, occupied unit -> 400/409
  4. Anything else is internal                                       -> 500

USAGE:
    if billing.IsNotFound(err) { ... }
    if errors.Is(err, billing.ErrDuplicateDeposit) { ... }

SEE ALSO:
  - api/handlers.go: writeDomainError maps these to HTTP responses
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidPeriod = errors.New("billing period must be in YYYY-MM format")
	ErrInvalidStatus = errors.New("invalid status value")
	ErrInvalidInput  = errors.New("invalid input")

	ErrPropertyNotFound = errors.New("property not found")
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrUnitNotFound     = errors.New("unit not found in property")
	ErrBillNotFound     = errors.New("bill not found")
	ErrInvoiceNotFound  = errors.New("invoice not found")
	ErrPaymentNotFound  = errors.New("payment not found")

	// ErrDuplicateDeposit is returned when a tenant already paid a deposit
	// for the unit.
	ErrDuplicateDeposit = errors.New("a deposit payment has already been recorded for this tenant and unit")

	ErrDuplicateReading   = errors.New("water reading for this month already exists")
	ErrDuplicateInvoice   = errors.New("invoice already exists for bill")
	ErrDuplicateUnit      = errors.New("duplicate unit id in property")
	ErrUnitOccupied       = errors.New("unit is occupied by another tenant")
	ErrPropertyHasTenants = errors.New("property still has tenants")

	// ErrConcurrentModification is returned when a versioned write loses a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ConflictError reports a uniqueness or state violation.
type ConflictError struct {
	Reason string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason
}

func (e *ConflictError) Unwrap() error { return e.Err }

func notFound(resource, id string, sentinel error) error {
	return &NotFoundError{Resource: resource, ID: id, Err: sentinel}
}

func invalid(field, reason string, sentinel error) error {
	return &ValidationError{Field: field, Reason: reason, Err: sentinel}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDuplicateDeposit)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) ||
		errors.Is(err, ErrPropertyNotFound) ||
		errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrBillNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsConflict returns true for uniqueness and state conflicts.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce) ||
		errors.Is(err, ErrDuplicateReading) ||
		errors.Is(err, ErrDuplicateInvoice) ||
		errors.Is(err, ErrDuplicateUnit) ||
		errors.Is(err, ErrUnitOccupied) ||
		errors.Is(err, ErrPropertyHasTenants)
}

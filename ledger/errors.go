/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Validation errors are returned before any write is attempted. Storage
  errors are returned after the surrounding transaction was rolled back.

ERROR CATEGORIES:
  1. Validation errors - bad amounts, future dates, blank client fields
  2. Lookup errors - missing client or debt
  3. Ledger rule errors - nothing to reallocate, target already paid
  4. Storage errors - anything the store reports that isn't one of the above

USAGE:
  if errors.Is(err, ledger.ErrDebtNotFound) { ... }

  var se *ledger.StorageError
  if errors.As(err, &se) {
      // se.Op names the failed operation, se.Err is the driver error
  }

SEE ALSO:
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrFutureDate is returned when a debt is dated after now.
	ErrFutureDate = errors.New("date is in the future")

	// ErrDuplicateClient is returned when the external code is already registered.
	ErrDuplicateClient = errors.New("duplicate client")

	// ErrInvalidClient is returned when a client is missing its code or name.
	ErrInvalidClient = errors.New("invalid client")

	// ErrClientNotFound is returned when a referenced client doesn't exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrDebtNotFound is returned when a referenced debt doesn't exist.
	ErrDebtNotFound = errors.New("debt not found")

	// ErrAlreadyPaid is returned when the operation needs an outstanding balance.
	ErrAlreadyPaid = errors.New("debt already paid")

	// ErrNoCreditAvailable is returned when a client holds no surplus.
	ErrNoCreditAvailable = errors.New("no credit available")

	// ErrInvalidReallocation is returned when credit can't move to the target.
	ErrInvalidReallocation = errors.New("invalid reallocation")

	// ErrReservedMethod is returned when a caller uses a payment method
	// reserved for internal movements.
	ErrReservedMethod = errors.New("reserved payment method")

	// ErrStorageFailure matches every *StorageError.
	ErrStorageFailure = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AmountError names the offending field and value.
type AmountError struct {
	Field string
	Value decimal.Decimal
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("invalid amount: %s must be positive, got %s", e.Field, e.Value.String())
}

func (e *AmountError) Unwrap() error {
	return ErrInvalidAmount
}

// StorageError wraps a persistence failure. It matches both ErrStorageFailure
// and the underlying cause.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrFutureDate) ||
		errors.Is(err, ErrInvalidClient) ||
		errors.Is(err, ErrReservedMethod) ||
		errors.Is(err, ErrInvalidReallocation)
}

// IsConflict returns true if the request is valid but the ledger state
// doesn't allow it.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateClient) ||
		errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrNoCreditAvailable)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrDebtNotFound)
}

func isDomainError(err error) bool {
	return IsClientError(err) || IsConflict(err) || IsNotFound(err) ||
		errors.Is(err, ErrStorageFailure)
}

// storageErr wraps store failures. Domain errors pass through unchanged so a
// store can report ErrDebtNotFound or ErrDuplicateClient directly.
func storageErr(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// positive rejects v unless it is still positive after rounding to cents.
func positive(field string, v decimal.Decimal) error {
	if !RoundCents(v).IsPositive() {
		return &AmountError{Field: field, Value: v}
	}
	return nil
}

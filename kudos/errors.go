/*
errors.go - Error taxonomy for the kudo ledger

PURPOSE:
  All error types in one place. Callers test with errors.Is against the
  sentinels; the structured errors carry context and unwrap to them.

ERROR CATEGORIES:
  1. Authorization - caller could not prove control of `from`
  2. Business rules - overflow, malformed principals
  3. Store - durable medium failed on read or write

SEE ALSO:
  - service.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package kudos

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnauthorized is returned when the caller fails to prove control of
	// the crediting principal. The ledger is never touched in that case.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrArithmeticOverflow is returned when the recipient already holds
	// MaxKudoCount.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInvalidPrincipal is returned for empty or malformed principals.
	ErrInvalidPrincipal = errors.New("invalid principal")

	// ErrReadFailed is returned when the ledger cannot be loaded.
	ErrReadFailed = errors.New("ledger read failed")

	// ErrWriteFailed is returned when the ledger cannot be persisted.
	ErrWriteFailed = errors.New("ledger write failed")

	// ErrUnsupportedSnapshot is returned when a persisted snapshot carries a
	// version this build does not understand.
	ErrUnsupportedSnapshot = errors.New("unsupported ledger snapshot version")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnauthorizedError explains why authentication of Principal failed.
type UnauthorizedError struct {
	Principal Principal
	Reason    string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: cannot act as %s: %s", e.Principal, e.Reason)
}

func (e *UnauthorizedError) Unwrap() error {
	return ErrUnauthorized
}

// OverflowError reports the principal whose count is saturated.
type OverflowError struct {
	Principal Principal
	Count     KudoCount
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("arithmetic overflow: %s already holds %d kudos", e.Principal, e.Count)
}

func (e *OverflowError) Unwrap() error {
	return ErrArithmeticOverflow
}

// StoreOp names the store operation that failed.
type StoreOp string

const (
	OpRead  StoreOp = "read"
	OpWrite StoreOp = "write"
)

// StoreError wraps a durable-medium failure. It matches ErrReadFailed or
// ErrWriteFailed depending on Op, and also the underlying cause.
type StoreError struct {
	Op  StoreOp
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	sentinel := ErrReadFailed
	if e.Op == OpWrite {
		sentinel = ErrWriteFailed
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// ReadFailed wraps err as a read failure. Errors that already are a
// StoreError pass through unchanged.
func ReadFailed(err error) error {
	return storeError(OpRead, err)
}

// WriteFailed wraps err as a write failure. Errors that already are a
// StoreError pass through unchanged.
func WriteFailed(err error) error {
	return storeError(OpWrite, err)
}

func storeError(op StoreOp, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is caused by the caller's input
// or credentials rather than the infrastructure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrArithmeticOverflow) ||
		errors.Is(err, ErrInvalidPrincipal)
}

// IsStoreError returns true if the error came from the durable medium.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrReadFailed) || errors.Is(err, ErrWriteFailed)
}

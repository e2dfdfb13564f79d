/*
errors.go - Centralized error types for the debt ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is against the sentinels and
  render a reply; structured errors carry the details.

ERROR CATEGORIES:
  1. InvalidRequest - caller input is malformed; nothing was written
  2. InvalidIdentifier - card number failed format or checksum; nothing was written
  3. StorageFailure - the store could not finish; it already rolled back
  4. NotFound - no card stored for a user (an expected outcome)

USAGE:
  if errors.Is(err, ledger.ErrInvalidRequest) {
      reply("Usage: /add 900 Dinner @bob @carol")
  }

SEE ALSO:
  - ledger.go: Produces these errors
  - store/sqlite/sqlite.go: Wraps driver errors in StorageError
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRequest is returned for non-positive amounts, empty
	// participant sets and more than one repayment counterparty.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidIdentifier is returned when a card number is not 16 digits
	// or fails the Luhn checksum.
	ErrInvalidIdentifier = errors.New("invalid payment identifier")

	// ErrStorageFailure is returned when a read or an atomic write failed.
	// Any partial write has been rolled back before this is returned.
	ErrStorageFailure = errors.New("storage failure")

	// ErrNotFound is returned by payment identifier lookups only.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RequestError names the offending field of a rejected request.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

func (e *RequestError) Unwrap() error {
	return ErrInvalidRequest
}

// IdentifierError explains why a card number was refused.
type IdentifierError struct {
	Username string
	Err      error
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("invalid payment identifier for %s: %v", e.Username, e.Err)
}

func (e *IdentifierError) Unwrap() []error {
	return []error{ErrInvalidIdentifier, e.Err}
}

// StorageError wraps a store failure with the operation and chat.
type StorageError struct {
	Op     string
	ChatID ChatID
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s (chat %d): %v", e.Op, e.ChatID, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

// NewStorageError wraps err unless it is already classified.
// Validation errors raised inside a store keep their InvalidRequest class.
func NewStorageError(op string, chatID ChatID, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageFailure) || errors.Is(err, ErrInvalidRequest) {
		return err
	}
	return &StorageError{Op: op, ChatID: chatID, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrInvalidIdentifier)
}

// IsNotFound returns true for a missing payment identifier.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorageFailure returns true if the store failed.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

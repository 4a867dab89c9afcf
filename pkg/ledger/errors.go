package ledger

import (
	"errors"
	"fmt"
)

// Error codes reported by the ledger client.
const (
	// ErrCodeUnreachable indicates the node could not be reached.
	ErrCodeUnreachable = "LEDGER_UNREACHABLE"

	// ErrCodeRejected indicates the node refused the transaction.
	ErrCodeRejected = "TX_REJECTED"

	// ErrCodeMalformed indicates a transaction or response could not be encoded or decoded.
	ErrCodeMalformed = "TX_MALFORMED"

	// ErrCodeUnknown indicates the outcome of a submission is not known (timeout).
	// It is not proof of failure.
	ErrCodeUnknown = "TX_UNKNOWN"

	// ErrCodeHashMismatch indicates the node reported a different hash than the one submitted.
	ErrCodeHashMismatch = "HASH_MISMATCH"
)

// Error is a coded ledger error.
type Error struct {
	// Code is one of the ErrCode* constants.
	Code string

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError creates an Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates an Error wrapping cause.
func WrapError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for use with errors.Is.
var (
	ErrUnreachable  = NewError(ErrCodeUnreachable, "ledger network unreachable")
	ErrRejected     = NewError(ErrCodeRejected, "transaction rejected")
	ErrMalformed    = NewError(ErrCodeMalformed, "malformed transaction")
	ErrUnknown      = NewError(ErrCodeUnknown, "transaction outcome unknown")
	ErrHashMismatch = NewError(ErrCodeHashMismatch, "reported hash does not match submitted hash")
)

// ErrorCode extracts the code from a ledger error, or returns "".
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Package errors provides coded domain errors shared across service boundaries.
//
// Services wrap infrastructure failures and invariant violations with a Code so
// callers (handlers, other services) can branch on the class of failure without
// string matching. Import aliased, conventionally as dErrors:
//
//	dErrors "canopy/pkg/domain-errors"
//
//	if err := store.Get(ctx, id); dErrors.HasCode(err, dErrors.CodeNotFound) { ... }
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. The set is closed; handlers map codes to HTTP
// statuses and clients receive the string value verbatim in error envelopes.
type Code string

const (
	// CodeBadRequest marks a malformed request at the transport boundary.
	CodeBadRequest Code = "bad_request"
	// CodeValidation marks input that parsed but violates domain rules.
	CodeValidation Code = "validation_failed"
	// CodeInvalidInput marks structurally invalid arguments to a service call.
	CodeInvalidInput Code = "invalid_input"
	// CodeInvariantViolation marks an illegal entity state transition. Model
	// methods return it; services translate it to CodeConflict at the boundary.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeConflict marks operations that collide with current state.
	CodeConflict Code = "conflict"
	// CodeNotFound marks an absent entity.
	CodeNotFound Code = "not_found"
	// CodeForbidden marks an actor lacking the role or permission for an operation.
	CodeForbidden Code = "forbidden"
	// CodeUnauthorized marks a missing or unresolvable actor identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeTimeout marks an operation abandoned for exceeding its deadline.
	CodeTimeout Code = "timeout"
	// CodeRateLimited marks a caller that exhausted its request budget.
	CodeRateLimited Code = "rate_limited"
	// CodeInternal marks unexpected infrastructure failure. Details are logged,
	// never surfaced to clients.
	CodeInternal Code = "internal_error"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	code    Code
	message string
	cause   error
}

// New builds a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and message to an underlying error. A nil cause behaves
// like New so call sites do not need to special-case.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error's classification.
func (e *Error) Code() Code {
	return e.code
}

// Message returns the client-safe description without the wrapped cause.
func (e *Error) Message() string {
	return e.message
}

// Unwrap supports errors.Is/errors.As chains through the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if stderrors.As(err, &de) {
		return de.code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability in tests.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal for
// unclassified errors so untyped failures never leak as client errors.
func CodeOf(err error) Code {
	var de *Error
	if stderrors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// ToHTTPStatus maps an error's code to the HTTP status handlers should write.
func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeBadRequest, CodeValidation, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvariantViolation:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Package domainerrors defines the coded error taxonomy returned by services.
//
// Stores and ledger collaborators return sentinel errors (pkg/platform/sentinel)
// describing infrastructure facts; services translate those into coded domain
// errors so transport layers can map them to responses without inspecting
// internals.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	// CodeNotFound — certificate, pool, or position is unknown.
	CodeNotFound Code = "not_found"
	// CodeAlreadyExists — creating an entity whose identity is taken.
	CodeAlreadyExists Code = "already_exists"
	// CodeUnauthorized — caller lacks the required capability.
	CodeUnauthorized Code = "unauthorized"
	// CodeInvalidState — lifecycle transition not permitted from the current state.
	CodeInvalidState Code = "invalid_state"
	// CodeInsufficientBalance — balance does not cover the requested amount.
	CodeInsufficientBalance Code = "insufficient_balance"
	// CodeInsufficientLiquidity — pool math would produce a zero or pool-draining output.
	CodeInsufficientLiquidity Code = "insufficient_liquidity"
	// CodeAlreadyPending — an identical operation is still in flight.
	CodeAlreadyPending Code = "already_pending"
	// CodeUnreachable — the ledger collaborator could not be queried or submitted to.
	CodeUnreachable Code = "unreachable"
	// CodeRejected — the ledger reports the submitted operation reverted.
	CodeRejected Code = "rejected"
	// CodeBadRequest — malformed caller input.
	CodeBadRequest Code = "bad_request"
	// CodeInternal — unexpected internal failure.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It may wrap an underlying cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the transport layer should emit.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeInvalidState, CodeAlreadyPending:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeInsufficientBalance, CodeInsufficientLiquidity, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnreachable:
		return http.StatusBadGateway
	case CodeRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

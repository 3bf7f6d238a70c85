// Package errors provides structured error handling for the game server.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Boundary validation errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeActionUnknown   Code = "ACTION_UNKNOWN"
	CodeActionBlocked   Code = "ACTION_BLOCKED"
	CodeActionFailed    Code = "ACTION_FAILED"

	// Session/resource errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeGameOver         Code = "GAME_OVER"
	CodeSessionLimit     Code = "SESSION_LIMIT"
	CodeChoiceExpired    Code = "CHOICE_EXPIRED"
	CodeChoiceMismatch   Code = "CHOICE_MISMATCH"
	CodeNoPendingTransit Code = "NO_PENDING_TRANSITION"

	// LLM/upstream errors
	CodeTimeout     Code = "TIMEOUT"
	CodeUpstream    Code = "UPSTREAM"
	CodeRateLimited Code = "RATE_LIMITED"

	// Storage errors
	CodeSaveFailed Code = "SAVE_FAILED"
	CodeLoadFailed Code = "LOAD_FAILED"

	// Internal errors
	CodeInternal Code = "INTERNAL_ERROR"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument,
		CodeActionUnknown,
		CodeActionBlocked:
		return http.StatusBadRequest

	case CodeNotFound:
		return http.StatusNotFound

	case CodeConflict,
		CodeSessionLimit,
		CodeChoiceExpired,
		CodeChoiceMismatch,
		CodeNoPendingTransit,
		CodeGameOver:
		return http.StatusConflict

	case CodeRateLimited:
		return http.StatusTooManyRequests

	case CodeTimeout:
		return http.StatusGatewayTimeout

	case CodeUpstream:
		return http.StatusBadGateway

	case CodeActionFailed:
		return http.StatusUnprocessableEntity

	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a request failing with this code may be retried
// unchanged. Rate and timeout failures are transient; validation failures
// are not.
func (c Code) Retryable() bool {
	switch c {
	case CodeRateLimited, CodeTimeout, CodeUpstream:
		return true
	default:
		return false
	}
}

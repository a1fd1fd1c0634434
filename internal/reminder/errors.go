package reminder

import (
	"errors"
	"net/http"
	"time"
)

// Code identifies a dispatch failure in a stable, machine-readable form.
type Code string

const (
	CodeAssignmentNotFound Code = "ASSIGNMENT_NOT_FOUND"
	CodeNoAssignee         Code = "NO_ASSIGNEE"
	CodeInvalidStatus      Code = "INVALID_STATUS"
	CodeCooldownActive     Code = "COOLDOWN_ACTIVE"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeVersionConflict    Code = "VERSION_CONFLICT"
)

// HTTPStatus maps a code to its transport status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAssignmentNotFound:
		return http.StatusNotFound
	case CodeNoAssignee, CodeInvalidStatus:
		return http.StatusUnprocessableEntity
	case CodeCooldownActive, CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeVersionConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the caller can usefully retry. Throttling codes
// retry after the surfaced delay; a version conflict retries immediately
// after re-reading the current version. Precondition codes are terminal.
func (c Code) Retryable() bool {
	switch c {
	case CodeCooldownActive, CodeRateLimitExceeded, CodeVersionConflict:
		return true
	}
	return false
}

// Error is a dispatch failure. RetryAfter, when non-zero, is the minimum
// back-off before a retry can succeed (cooldown remainder or rate-limit
// window reset).
type Error struct {
	Code       Code
	Detail     string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Detail
}

// AsError extracts a dispatch error from an error chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the dispatch code carried by err, or "" if err is not a
// dispatch error.
func CodeOf(err error) Code {
	if de, ok := AsError(err); ok {
		return de.Code
	}
	return ""
}

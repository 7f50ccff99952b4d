package usecase

import (
	"errors"
	"fmt"

	"museum-chatbot/internal/domain"
)

type ErrorCode string

const (
	ErrorInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrorNotFound         ErrorCode = "NOT_FOUND"
	ErrorRateLimited      ErrorCode = "RATE_LIMITED"
	ErrorAccessDenied     ErrorCode = "ACCESS_DENIED"
	ErrorConflict         ErrorCode = "CONFLICT"
	ErrorDependencyFailed ErrorCode = "DEPENDENCY_FAILED"
	ErrorQuotaExceeded    ErrorCode = "QUOTA_EXCEEDED"
	ErrorUpstream         ErrorCode = "UPSTREAM_ERROR"
	ErrorUpstreamInternal ErrorCode = "UPSTREAM_INTERNAL"
	ErrorInternal         ErrorCode = "INTERNAL_ERROR"
)

// Error is the classified failure of a use case. Message is safe to show to
// the caller; Reason is a stable token for logs.
type Error struct {
	Code    ErrorCode
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClientMessage is the human readable text for the error body.
func (e *Error) ClientMessage() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func invalidInput(reason, message string) *Error {
	return &Error{Code: ErrorInvalidInput, Reason: reason, Message: message}
}

type upstreamCategorizer interface {
	UpstreamCategory() domain.UpstreamCategory
}

// fromUpstream classifies a generation backend failure. Each category keeps
// its own code and message; unclassified failures surface their raw text.
func fromUpstream(err error) *Error {
	var uc upstreamCategorizer
	category := domain.UpstreamUnknown
	if errors.As(err, &uc) {
		category = uc.UpstreamCategory()
	}
	reason := "backend_" + string(category)
	switch category {
	case domain.UpstreamValidation:
		return &Error{Code: ErrorInvalidInput, Reason: reason, Message: "Validation error: " + rootMessage(err), Err: err}
	case domain.UpstreamNotFound:
		return &Error{Code: ErrorNotFound, Reason: reason, Message: "Resource not found: " + rootMessage(err), Err: err}
	case domain.UpstreamThrottling:
		return &Error{Code: ErrorRateLimited, Reason: reason, Message: "Too many requests. Please try again later.", Err: err}
	case domain.UpstreamAccessDenied:
		return &Error{Code: ErrorAccessDenied, Reason: reason, Message: "Access denied: " + rootMessage(err), Err: err}
	case domain.UpstreamConflict:
		return &Error{Code: ErrorConflict, Reason: reason, Message: "Conflict: " + rootMessage(err), Err: err}
	case domain.UpstreamDependencyFailed:
		return &Error{Code: ErrorDependencyFailed, Reason: reason, Message: "Dependency failed: " + rootMessage(err), Err: err}
	case domain.UpstreamQuotaExceeded:
		return &Error{Code: ErrorQuotaExceeded, Reason: reason, Message: "Service quota exceeded. Please try again later.", Err: err}
	case domain.UpstreamBadGateway:
		return &Error{Code: ErrorUpstream, Reason: reason, Message: "Bad gateway: " + rootMessage(err), Err: err}
	case domain.UpstreamInternal:
		return &Error{Code: ErrorUpstreamInternal, Reason: reason, Message: "Internal server error. Please retry your request.", Err: err}
	default:
		return &Error{Code: ErrorInternal, Reason: reason, Message: "Internal server error: " + rootMessage(err), Err: err}
	}
}

func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest   = "BAD_REQUEST"
	ErrUnauthorized = "UNAUTHORIZED"
	ErrNotFound     = "NOT_FOUND"
	ErrConflict     = "CONFLICT"
	ErrInternal     = "INTERNAL_ERROR"
)

// Transition error codes. Each maps to exactly one failure mode of the
// executor; callers can branch on the code without parsing messages.
const (
	ErrUnknownTransition    = "UNKNOWN_TRANSITION"
	ErrInvalidState         = "INVALID_STATE"
	ErrPermissionDenied     = "PERMISSION_DENIED"
	ErrMissingRequiredField = "MISSING_REQUIRED_FIELD"
	ErrSideEffectFailure    = "SIDE_EFFECT_FAILURE"
)

// ErrorEnvelope is the standard error shape returned by the API.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`

	// cause carries the wrapped failure for internal logging. It is never
	// serialized; the public Message stays generic.
	cause error
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *ErrorEnvelope) Unwrap() error {
	return e.cause
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error. Surfaced when the storage
// boundary detects a concurrent write; callers should re-read and retry.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternal,
		Message: "An unexpected error occurred",
	}
}

// NewUnknownTransitionError returns an UNKNOWN_TRANSITION error for a
// transition name that is not in the registry.
func NewUnknownTransitionError(transition string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrUnknownTransition,
		Message: fmt.Sprintf("transition %q is not defined", transition),
	}
}

// NewInvalidStateError returns an INVALID_STATE error for a transition that
// is not valid from the document's current state.
func NewInvalidStateError(transition, state string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInvalidState,
		Message: fmt.Sprintf("transition %q is not valid from state %q", transition, state),
	}
}

// NewPermissionDeniedError returns a PERMISSION_DENIED error. The message is
// deliberately fixed: which predicate failed must not leak to the caller.
func NewPermissionDeniedError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrPermissionDenied,
		Message: "not permitted",
	}
}

// NewMissingRequiredFieldError returns a MISSING_REQUIRED_FIELD error naming
// the first missing field in declaration order.
func NewMissingRequiredFieldError(field string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrMissingRequiredField,
		Message: fmt.Sprintf("required field %q is missing or empty", field),
		Details: []FieldError{{Field: field, Code: "REQUIRED", Message: "must be present and non-empty"}},
	}
}

// NewSideEffectFailureError wraps a side-effect failure. The cause stays
// reachable through Unwrap for internal logging; the public message is
// generic.
func NewSideEffectFailureError(cause error) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSideEffectFailure,
		Message: "the transition could not be completed",
		cause:   cause,
	}
}

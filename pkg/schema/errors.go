package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeProtocolMiss      = "PROTOCOL_MISS"
	ErrCodeEmptySource       = "EMPTY_SOURCE"
	ErrCodeEmptyResponse     = "EMPTY_RESPONSE"
	ErrCodeSyntax            = "SYNTAX_ERROR"
	ErrCodeUnsupported       = "UNSUPPORTED_DIAGRAM"
	ErrCodeRender            = "RENDER_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeEnvelope          = "ENVELOPE_ERROR"
)

// DiagenError carries a stable code that callers and result payloads can
// switch on, plus optional context for logs.
type DiagenError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *DiagenError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DiagenError) Unwrap() error {
	return e.Cause
}

// NewError creates a new DiagenError.
func NewError(code, message string) *DiagenError {
	return &DiagenError{Code: code, Message: message}
}

// NewErrorf creates a new DiagenError with a formatted message.
func NewErrorf(code, format string, args ...any) *DiagenError {
	return &DiagenError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *DiagenError) WithCause(err error) *DiagenError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *DiagenError) WithDetails(details map[string]any) *DiagenError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first DiagenError in err's chain, or "" if there is none.
func CodeOf(err error) string {
	var de *DiagenError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

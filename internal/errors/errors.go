package errors

import (
	"errors"
	"fmt"
)

// Error codes for programmatic handling.
const (
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeAgentNotFound      = "AGENT_NOT_FOUND"
	CodeManagerRequired    = "MANAGER_REQUIRED"
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"
	CodeToolNotFound       = "TOOL_NOT_FOUND"
	CodeToolFailed         = "TOOL_FAILED"
	CodeModelError         = "MODEL_ERROR"
	CodeMemoryError        = "MEMORY_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeMaxIterations      = "MAX_ITERATIONS"
	CodeExecutionFailed    = "EXECUTION_FAILED"
	CodeFlowInvalid        = "FLOW_INVALID"
	CodeQueueUnavailable   = "QUEUE_UNAVAILABLE"
	CodeJobNotFound        = "JOB_NOT_FOUND"
	CodeAPIKeyMissing      = "API_KEY_MISSING"
)

// TroupeError is a structured error with a code and actionable suggestion.
type TroupeError struct {
	Code       string // machine-readable code (e.g. CONFIG_INVALID)
	Message    string // human-readable description
	Suggestion string // actionable fix
	Err        error  // wrapped underlying error
}

// Error implements the error interface.
func (e *TroupeError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap supports errors.Is / errors.As.
func (e *TroupeError) Unwrap() error {
	return e.Err
}

// New creates a TroupeError with the given code and message.
func New(code, message string) *TroupeError {
	return &TroupeError{Code: code, Message: message}
}

// Newf creates a TroupeError with a formatted message.
func Newf(code, format string, args ...interface{}) *TroupeError {
	return &TroupeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a TroupeError wrapping an existing error.
func Wrap(code, message string, err error) *TroupeError {
	return &TroupeError{Code: code, Message: message, Err: err}
}

// WithSuggestion returns a copy with the suggestion set.
func (e *TroupeError) WithSuggestion(suggestion string) *TroupeError {
	e.Suggestion = suggestion
	return e
}

// Is checks whether target matches this error's code.
func (e *TroupeError) Is(target error) bool {
	var te *TroupeError
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// AsCode extracts the TroupeError code from an error, or "" if not a TroupeError.
func AsCode(err error) string {
	var te *TroupeError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// Suggestion extracts the suggestion from an error, or "" if not a TroupeError.
func Suggestion(err error) string {
	var te *TroupeError
	if errors.As(err, &te) {
		return te.Suggestion
	}
	return ""
}

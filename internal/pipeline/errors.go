package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned in the JSON error envelope.
const (
	CodeMissingParameter        = "MISSING_PARAMETER"
	CodeInvalidContentType      = "INVALID_CONTENT_TYPE"
	CodeInvalidJSON             = "INVALID_JSON"
	CodeInvalidMessage          = "INVALID_MESSAGE"
	CodeInvalidContext          = "INVALID_CONTEXT"
	CodeClassificationTimeout   = "CLASSIFICATION_TIMEOUT"
	CodeIntentProcessingTimeout = "INTENT_PROCESSING_TIMEOUT"
	CodeNotFound                = "NOT_FOUND"
	CodeRateLimited             = "RATE_LIMITED"
	CodeInternal                = "INTERNAL_SERVER_ERROR"
)

// APIError is an error with an HTTP status and a machine-readable code.
type APIError struct {
	Status  int
	Code    string
	Message string
	Err     error // underlying cause, never shown to clients
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%d %s): %v", e.Message, e.Status, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates an APIError without a cause.
func NewAPIError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// ErrClassificationTimeout is returned when the classifier does not answer in time.
func ErrClassificationTimeout() *APIError {
	return NewAPIError(http.StatusRequestTimeout, CodeClassificationTimeout, "Classification timeout")
}

// ErrIntentProcessingTimeout is returned when the intent handler does not answer in time.
func ErrIntentProcessingTimeout() *APIError {
	return NewAPIError(http.StatusRequestTimeout, CodeIntentProcessingTimeout, "Intent processing timeout")
}

// Internal wraps an unexpected failure as a 500.
func Internal(err error) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "An unexpected error occurred", Err: err}
}

// AsAPIError returns err as an *APIError, converting anything else to Internal.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}

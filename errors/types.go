package errors

import (
	"net/http"
)

// NewError creates a new AppError with the given parameters.
// It is a general-purpose constructor that allows full control over
// the error's fields. For most cases, you should use one of the
// specialized constructors below.
//
// Example:
//
//	err := NewError(InternalError, "handler failed", 500, "req_123", nil, cause)
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *AppError {
	return &AppError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewValidationError creates a validation error with appropriate defaults.
// Use this for any request validation failures, such as:
//   - Missing or empty report text
//   - Missing upload file field
//   - Value constraint violations
//
// Example:
//
//	err := NewValidationError("req_123", "report text required", map[string]interface{}{
//	    "field": "report",
//	})
func NewValidationError(requestID, message string, validationDetails map[string]interface{}) *AppError {
	return &AppError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details:   validationDetails,
	}
}

// NewUnsupportedMediaTypeError creates an error for uploads whose declared
// media type (or filename extension) is not one the extractor handles.
// The extractor fails fast with this error before any parsing is attempted.
func NewUnsupportedMediaTypeError(requestID, mediaType string) *AppError {
	return &AppError{
		Type:      UnsupportedMediaTypeError,
		Message:   "Unsupported file type. Please upload a PDF or plain text file.",
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details: map[string]interface{}{
			"media_type": mediaType,
		},
	}
}

// NewExtractionError creates an error for documents that matched a supported
// media type but could not be parsed into text.
func NewExtractionError(requestID string, err error) *AppError {
	return &AppError{
		Type:      ExtractionError,
		Message:   "Failed to extract text from the uploaded file.",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}

// NewRateLimitError creates a rate limit error with appropriate defaults.
// Use this when a client has exceeded the configured request budget.
//
// Example:
//
//	err := NewRateLimitError("req_123", 30)
func NewRateLimitError(requestID string, retryAfter int) *AppError {
	return &AppError{
		Type:      RateLimitError,
		Message:   "Rate limit exceeded",
		Code:      http.StatusTooManyRequests,
		RequestID: requestID,
		Details: map[string]interface{}{
			"retry_after": retryAfter,
		},
	}
}

// NewUpstreamError creates an upstream error with appropriate defaults.
// Use this when the external text-generation service fails:
//   - Service unreachable or timing out
//   - Malformed responses
//   - Quota or auth rejections
//
// Note: handlers do not surface this error to clients; the simplifier
// degrades gracefully instead. The constructor exists so that logs and
// metrics attribute the failure to the right category.
func NewUpstreamError(requestID string, message string, err error) *AppError {
	return &AppError{
		Type:      UpstreamError,
		Message:   message,
		Code:      http.StatusBadGateway,
		RequestID: requestID,
		err:       err,
	}
}

// NewInternalError creates an internal server error with appropriate defaults.
// Use this for unexpected errors that are not covered by other error types:
//   - Panics
//   - Unexpected system failures
//
// Example:
//
//	err := NewInternalError("req_123", cause)
func NewInternalError(requestID string, err error) *AppError {
	return &AppError{
		Type:      InternalError,
		Message:   "An internal error occurred",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}

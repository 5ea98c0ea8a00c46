package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Type:    ValidationError,
				Message: "report text required",
			},
			expected: "validation_error: report text required",
		},
		{
			name: "error with cause",
			err: &AppError{
				Type:    UpstreamError,
				Message: "generation failed",
				err:     fmt.Errorf("connection refused"),
			},
			expected: "upstream_failure: generation failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppErrorIs(t *testing.T) {
	validation := NewValidationError("req_1", "bad input", nil)
	otherValidation := NewValidationError("req_2", "different message", nil)
	upstream := NewUpstreamError("req_1", "service down", nil)

	assert.True(t, validation.Is(otherValidation), "errors of the same type should match")
	assert.False(t, validation.Is(upstream), "errors of different types should not match")
	assert.False(t, validation.Is(fmt.Errorf("plain error")), "non-AppError should not match")
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewInternalError("req_1", cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name         string
		err          *AppError
		expectedType ErrorType
		expectedCode int
	}{
		{
			name:         "validation error",
			err:          NewValidationError("req_1", "report text required", nil),
			expectedType: ValidationError,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "unsupported media type",
			err:          NewUnsupportedMediaTypeError("req_1", "application/json"),
			expectedType: UnsupportedMediaTypeError,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "extraction error",
			err:          NewExtractionError("req_1", fmt.Errorf("bad xref table")),
			expectedType: ExtractionError,
			expectedCode: http.StatusInternalServerError,
		},
		{
			name:         "rate limit error",
			err:          NewRateLimitError("req_1", 30),
			expectedType: RateLimitError,
			expectedCode: http.StatusTooManyRequests,
		},
		{
			name:         "upstream error",
			err:          NewUpstreamError("req_1", "service unreachable", nil),
			expectedType: UpstreamError,
			expectedCode: http.StatusBadGateway,
		},
		{
			name:         "internal error",
			err:          NewInternalError("req_1", fmt.Errorf("boom")),
			expectedType: InternalError,
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedType, tt.err.Type)
			assert.Equal(t, tt.expectedCode, tt.err.Code)
			assert.Equal(t, "req_1", tt.err.RequestID)
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, NewUnsupportedMediaTypeError("req_42", "application/json"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, UnsupportedMediaTypeError, resp.Type)
	assert.Contains(t, resp.Message, "Unsupported file type")
	assert.Equal(t, "req_42", resp.RequestID)
	assert.Equal(t, "application/json", resp.Details["media_type"])
}

func TestErrorUsesErrorJSONKey(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithType(w, "report text required", ValidationError, http.StatusBadRequest)

	var raw map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	assert.Equal(t, "report text required", raw["error"])
	assert.Equal(t, string(ValidationError), raw["type"])
}

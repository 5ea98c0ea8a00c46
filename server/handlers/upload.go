// Package handlers provides the HTTP handlers for the plainmed API.
//
// The package follows these design principles:
// 1. Consistent error handling using the errors package
// 2. Structured logging with request IDs
// 3. Clear request validation before any pipeline work
// 4. Handlers hold their dependencies explicitly; no package-level state
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/plainmed/plainmed/config"
	apperrors "github.com/plainmed/plainmed/errors"
	"github.com/plainmed/plainmed/server/extract"
	"github.com/plainmed/plainmed/server/metrics"
	"github.com/plainmed/plainmed/server/middleware"
	"go.uber.org/zap"
)

// UploadResponse is the public payload of POST /api/upload.
type UploadResponse struct {
	Text string `json:"text"`
}

// UploadHandler accepts a report file and returns its extracted plain text.
// The client holds the text and submits it to /api/simplify separately;
// nothing is persisted server-side.
type UploadHandler struct {
	limits  config.LimitsConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewUploadHandler creates an upload handler. The metrics instance may be
// nil in tests.
func NewUploadHandler(limits config.LimitsConfig, m *metrics.Metrics, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		limits:  limits,
		metrics: m,
		logger:  logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		apperrors.WriteError(w, apperrors.NewValidationError(
			requestID,
			"Method not allowed",
			map[string]interface{}{
				"allowed_methods": []string{"POST"},
			},
		))
		return
	}

	logger := h.logger.With(
		zap.String("request_id", requestID),
		zap.String("path", r.URL.Path),
	)

	// The body bound applies before the extractor ever sees the payload.
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxUploadBytes)

	if err := r.ParseMultipartForm(h.limits.MaxUploadBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apperrors.WriteError(w, apperrors.NewValidationError(
				requestID,
				"Uploaded file is too large",
				map[string]interface{}{
					"max_bytes": h.limits.MaxUploadBytes,
				},
			))
			return
		}
		apperrors.WriteError(w, apperrors.NewValidationError(
			requestID,
			"No file uploaded",
			nil,
		))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apperrors.WriteError(w, apperrors.NewValidationError(
			requestID,
			"No file uploaded",
			map[string]interface{}{
				"field": "file",
			},
		))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("failed to read uploaded file", zap.Error(err))
		apperrors.WriteError(w, apperrors.NewInternalError(requestID, err))
		return
	}

	contentType := header.Header.Get("Content-Type")
	text, format, err := extract.Extract(data, contentType, header.Filename)
	if err != nil {
		h.countExtraction(format, "error")
		switch {
		case errors.Is(err, extract.ErrUnsupportedMediaType):
			logger.Warn("unsupported upload",
				zap.String("content_type", contentType),
				zap.String("filename", header.Filename),
			)
			apperrors.WriteError(w, apperrors.NewUnsupportedMediaTypeError(requestID, contentType))
		default:
			logger.Error("extraction failed",
				zap.String("content_type", contentType),
				zap.String("filename", header.Filename),
				zap.Error(err),
			)
			apperrors.WriteError(w, apperrors.NewExtractionError(requestID, err))
		}
		return
	}

	h.countExtraction(format, "ok")
	logger.Info("extracted upload",
		zap.String("format", string(format)),
		zap.Int("bytes", len(data)),
		zap.Int("chars", len(text)),
	)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(UploadResponse{Text: text}); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *UploadHandler) countExtraction(format extract.Format, outcome string) {
	if h.metrics != nil {
		h.metrics.ExtractionsTotal.WithLabelValues(string(format), outcome).Inc()
	}
}

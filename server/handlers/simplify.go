package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/plainmed/plainmed/config"
	apperrors "github.com/plainmed/plainmed/errors"
	"github.com/plainmed/plainmed/server/compose"
	"github.com/plainmed/plainmed/server/middleware"
	"github.com/plainmed/plainmed/server/simplify"
	"go.uber.org/zap"
)

// SimplifyRequest is the public payload of POST /api/simplify.
type SimplifyRequest struct {
	Report     string `json:"report" validate:"required"`
	TargetLang string `json:"targetLang" validate:"omitempty,max=35"`
	Tone       string `json:"tone" validate:"omitempty,max=64"`
}

// SimplifyHandler runs a report through the simplifier and composes the
// final response with visual cards.
type SimplifyHandler struct {
	simplifier *simplify.Simplifier
	composer   *compose.Composer
	limits     config.LimitsConfig
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewSimplifyHandler creates a simplify handler.
func NewSimplifyHandler(s *simplify.Simplifier, c *compose.Composer, limits config.LimitsConfig, logger *zap.Logger) *SimplifyHandler {
	return &SimplifyHandler{
		simplifier: s,
		composer:   c,
		limits:     limits,
		validate:   validator.New(),
		logger:     logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *SimplifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxSimplifyBodyBytes)

	var req SimplifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apperrors.WriteError(w, apperrors.NewValidationError(
				requestID,
				"Request body is too large",
				map[string]interface{}{
					"max_bytes": h.limits.MaxSimplifyBodyBytes,
				},
			))
			return
		}
		apperrors.WriteError(w, apperrors.NewValidationError(
			requestID,
			"Invalid request body",
			nil,
		))
		return
	}

	// An all-whitespace report is as empty as a missing one. The check
	// runs before any model call.
	if err := h.validate.Struct(&req); err != nil || strings.TrimSpace(req.Report) == "" {
		apperrors.WriteError(w, apperrors.NewValidationError(
			requestID,
			"report text required",
			map[string]interface{}{
				"field": "report",
			},
		))
		return
	}

	result := h.simplifier.Simplify(r.Context(), simplify.Request{
		Text:       req.Report,
		TargetLang: req.TargetLang,
		Tone:       req.Tone,
	})

	logger.Info("simplified report",
		zap.Int("report_chars", len(req.Report)),
		zap.Bool("degraded", result.Degraded()),
	)

	resp := h.composer.Compose(result)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversations-api/internal/middleware"
	"github.com/capitalize-ai/conversations-api/internal/model"
	"github.com/capitalize-ai/conversations-api/internal/service"
	"github.com/capitalize-ai/conversations-api/pkg/logger"
)

const validationMessage = "Request validation failed"

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error envelope.
func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, model.NewErrorResponse(code, message, details))
}

func writeValidationError(w http.ResponseWriter, field, message string) {
	writeError(w, http.StatusUnprocessableEntity, model.CodeValidation, validationMessage,
		[]service.FieldError{{Field: field, Message: message}})
}

// writeServiceError maps service errors onto the error envelope. Anything
// unrecognised is logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, model.CodeValidation, validationMessage, verr.Fields)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, model.CodeNotFound, "Conversation not found", nil)
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, model.CodeConflict, err.Error(), nil)
	default:
		log.Error("request failed",
			zap.Error(err),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		writeError(w, http.StatusInternalServerError, model.CodeInternal, "Unexpected server error", nil)
	}
}

// NotFound answers requests for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, model.CodeHTTP, "Not Found", nil)
}

// MethodNotAllowed answers requests with an unsupported method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, model.CodeHTTP, "Method Not Allowed", nil)
}

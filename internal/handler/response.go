// internal/handler/response.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps the error taxonomy onto HTTP status codes. Unexpected
// errors are logged and reported without detail.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var validation *appErrors.ValidationError
	switch {
	case errors.As(err, &validation):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: validation.Reason, Field: validation.Field})
	case errors.Is(err, appErrors.ErrValidation):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, appErrors.ErrUnauthorized):
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
	case errors.Is(err, appErrors.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, appErrors.ErrShuttingDown):
		WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	case errors.Is(err, appErrors.ErrStorageUnavailable):
		logger.Error("storage unavailable", zap.Error(err))
		WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable"})
	default:
		logger.Error("request failed", zap.Error(err))
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

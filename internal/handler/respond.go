package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"guardian-service/internal/service"
	"guardian-service/internal/util"

	"go.uber.org/zap"
)

// errorBody is the error envelope clients decode: a message plus
// per-field detail for validation failures.
type errorBody struct {
	Error  string            `json:"error"`
	Fields []util.FieldError `json:"fields,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, err error) {
	statusCode := statusFromError(err)
	body := errorBody{Error: err.Error()}

	var verr *util.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}

	if statusCode >= http.StatusInternalServerError {
		// Internal detail stays in the logs
		util.Error("HTTP internal error", util.ErrorField(err))
		body.Error = "internal server error"
	} else {
		util.Warn("HTTP error response",
			util.ErrorField(err),
			zap.Int("status_code", statusCode))
	}

	respondWithJSON(w, statusCode, body)
}

func statusFromError(err error) int {
	var verr *util.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrContactNotFound),
		errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSessionRevoked):
		return http.StatusForbidden
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

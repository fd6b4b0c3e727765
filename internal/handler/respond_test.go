package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian-service/internal/service"
	"guardian-service/internal/util"
)

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation error", &util.ValidationError{Fields: []util.FieldError{{Field: "name"}}}, http.StatusBadRequest},
		{"invalid input", service.ErrInvalidInput, http.StatusBadRequest},
		{"wrapped invalid input", fmt.Errorf("decoding body: %w", service.ErrInvalidInput), http.StatusBadRequest},
		{"user not found", service.ErrUserNotFound, http.StatusNotFound},
		{"contact not found", service.ErrContactNotFound, http.StatusNotFound},
		{"session not found", service.ErrSessionNotFound, http.StatusNotFound},
		{"session revoked", service.ErrSessionRevoked, http.StatusForbidden},
		{"session expired", service.ErrSessionExpired, http.StatusGone},
		{"unknown error", errors.New("cluster unreachable"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFromError(tt.err))
		})
	}
}

func TestRespondWithErrorValidationFields(t *testing.T) {
	rec := httptest.NewRecorder()
	verr := &util.ValidationError{}
	verr.Add("phone", "phone must be a 10-digit number")

	respondWithError(rec, verr)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "phone", body.Fields[0].Field)
}

func TestRespondWithErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()

	respondWithError(rec, errors.New("gocql: no hosts available in the pool"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "internal server error", body.Error)
	assert.Empty(t, body.Fields)
}

func TestRespondWithJSONNilBody(t *testing.T) {
	rec := httptest.NewRecorder()

	respondWithJSON(rec, http.StatusNoContent, nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

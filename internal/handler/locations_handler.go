package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"guardian-service/internal/model"
	"guardian-service/internal/service"
	"guardian-service/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type LocationsHandler struct {
	userInfoService *service.UserInfoService
	logger          *zap.Logger
}

func NewLocationsHandler(userInfoService *service.UserInfoService, logger *zap.Logger) *LocationsHandler {
	return &LocationsHandler{
		userInfoService: userInfoService,
		logger:          logger,
	}
}

func (h *LocationsHandler) RegisterRoutes(router chi.Router) {
	router.Post("/locations", h.RecordLocations)
}

// RecordLocations accepts a batch of points and appends them to the
// archive. Device uploads arrive one point at a time live and in larger
// batches on outbox replay.
func (h *LocationsHandler) RecordLocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	userID := UserID(ctx)

	var points []model.LocationPoint
	if err := json.NewDecoder(r.Body).Decode(&points); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if len(points) == 0 {
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "empty location batch"})
		return
	}

	if err := h.userInfoService.RecordLocations(ctx, userID, points); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, nil)
	h.logger.Info("Locations recorded via HTTP",
		util.String("user_id", userID),
		util.Int("count", len(points)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "RecordLocations"),
	)
}

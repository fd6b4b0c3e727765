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

// UserInfoHandler serves the {userInfo, medicalInfo, emergencyContacts}
// aggregate.
type UserInfoHandler struct {
	userInfoService *service.UserInfoService
	logger          *zap.Logger
}

func NewUserInfoHandler(userInfoService *service.UserInfoService, logger *zap.Logger) *UserInfoHandler {
	return &UserInfoHandler{
		userInfoService: userInfoService,
		logger:          logger,
	}
}

func (h *UserInfoHandler) RegisterRoutes(router chi.Router) {
	router.Route("/user-info", func(r chi.Router) {
		r.Get("/", h.GetUserInfo)
		r.Post("/", h.SaveUserInfo)
		r.Patch("/", h.PatchProfile)
	})
}

// GetUserInfo returns the full aggregate for the authenticated user.
func (h *UserInfoHandler) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	userID := UserID(ctx)

	info, err := h.userInfoService.GetUserInfo(ctx, userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, info)
	h.logger.Debug("User info retrieved via HTTP",
		util.String("user_id", userID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "GetUserInfo"),
	)
}

// SaveUserInfo applies a partial aggregate update and returns the result.
func (h *UserInfoHandler) SaveUserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	userID := UserID(ctx)

	var patch model.UserInfoPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	info, err := h.userInfoService.ApplyPatch(ctx, userID, &patch)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, info)
	h.logger.Info("User info saved via HTTP",
		util.String("user_id", userID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "SaveUserInfo"),
	)
}

// PatchProfile updates profile fields only.
func (h *UserInfoHandler) PatchProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	userID := UserID(ctx)

	var patch model.ProfilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	info, err := h.userInfoService.ApplyPatch(ctx, userID, &model.UserInfoPatch{Profile: &patch})
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, info.Profile)
	h.logger.Info("Profile patched via HTTP",
		util.String("user_id", userID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "PatchProfile"),
	)
}

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

type SharedDataHandler struct {
	sharedDataService *service.SharedDataService
	logger            *zap.Logger
}

func NewSharedDataHandler(sharedDataService *service.SharedDataService, logger *zap.Logger) *SharedDataHandler {
	return &SharedDataHandler{
		sharedDataService: sharedDataService,
		logger:            logger,
	}
}

// RegisterRoutes mounts the authenticated session-management surface.
// The public read endpoint is registered separately by the router since
// link recipients carry no bearer token.
func (h *SharedDataHandler) RegisterRoutes(router chi.Router) {
	router.Route("/shared-data", func(r chi.Router) {
		r.Get("/", h.ListSessions)
		r.Post("/", h.CreateSession)
		r.Delete("/{sessionID}", h.RevokeSession)
	})
}

type createSessionRequest struct {
	RecipientName string   `json:"recipient_name"`
	ExpiresIn     string   `json:"expires_in,omitempty"` // Go duration, e.g. "24h"
	EvidenceIDs   []string `json:"evidence_ids,omitempty"`
}

type createSessionResponse struct {
	Session *model.SharedDataSession `json:"session"`
	Token   string                   `json:"token"`
}

// CreateSession opens a shared-data session. The token in the response
// is shown exactly once and cannot be recovered afterwards.
func (h *SharedDataHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	userID := UserID(ctx)

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	var expiry time.Duration
	if req.ExpiresIn != "" {
		parsed, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || parsed <= 0 {
			respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "expires_in must be a positive duration"})
			return
		}
		expiry = parsed
	}

	session, token, err := h.sharedDataService.CreateSession(ctx, userID, req.RecipientName, expiry, req.EvidenceIDs)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, createSessionResponse{Session: session, Token: token})
	h.logger.Info("Shared session created via HTTP",
		util.String("user_id", userID),
		util.String("session_id", session.ID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "CreateSession"),
	)
}

func (h *SharedDataHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(ctx)

	sessions, err := h.sharedDataService.ListSessions(ctx, userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sessions)
}

func (h *SharedDataHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(ctx)
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sharedDataService.RevokeSession(ctx, userID, sessionID); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusNoContent, nil)
	h.logger.Info("Shared session revoked via HTTP",
		util.String("user_id", userID),
		util.String("session_id", sessionID),
		util.String("method", "RevokeSession"),
	)
}

// ReadShared serves the payload behind a link token. Revoked links are
// 403, unknown links 404, expired links 410.
func (h *SharedDataHandler) ReadShared(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	view, err := h.sharedDataService.ReadSession(ctx, token)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
	h.logger.Info("Shared data served",
		util.String("session_id", view.Session.ID),
		zap.Int("view_count", view.Session.ViewCount),
		util.String("method", "ReadShared"),
	)
}

package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"guardian-service/internal/model"
	"guardian-service/internal/service"
	"guardian-service/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// IdempotencyHeader carries the client key that deduplicates replayed
// contact inserts.
const IdempotencyHeader = "X-Idempotency-Key"

type ContactsHandler struct {
	userInfoService *service.UserInfoService
	logger          *zap.Logger
}

func NewContactsHandler(userInfoService *service.UserInfoService, logger *zap.Logger) *ContactsHandler {
	return &ContactsHandler{
		userInfoService: userInfoService,
		logger:          logger,
	}
}

func (h *ContactsHandler) RegisterRoutes(router chi.Router) {
	router.Route("/contacts", func(r chi.Router) {
		r.Get("/", h.ListContacts)
		r.Post("/", h.CreateContact)
		r.Get("/search", h.SearchContacts)
		r.Delete("/{contactID}", h.DeleteContact)
	})
}

func (h *ContactsHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(ctx)

	contacts, err := h.userInfoService.ListContacts(ctx, userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, contacts)
}

// CreateContact inserts a contact and returns the stored row with its
// durable id. Replays carrying the same idempotency key return the row
// created the first time.
func (h *ContactsHandler) CreateContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	userID := UserID(ctx)

	var contact model.EmergencyContact
	if err := json.NewDecoder(r.Body).Decode(&contact); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	created, err := h.userInfoService.CreateContact(ctx, userID, &contact, r.Header.Get(IdempotencyHeader))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
	h.logger.Info("Contact created via HTTP",
		util.String("user_id", userID),
		util.String("contact_id", created.ID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "CreateContact"),
	)
}

func (h *ContactsHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(ctx)
	contactID := chi.URLParam(r, "contactID")

	if err := h.userInfoService.DeleteContact(ctx, userID, contactID); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusNoContent, nil)
	h.logger.Info("Contact deleted via HTTP",
		util.String("user_id", userID),
		util.String("contact_id", contactID),
		util.String("method", "DeleteContact"),
	)
}

// SearchContacts matches the q parameter against contact names and
// phone numbers.
func (h *ContactsHandler) SearchContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(ctx)

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > 100 {
			respondWithJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be between 1 and 100"})
			return
		}
		limit = parsed
	}

	contacts, err := h.userInfoService.SearchContacts(ctx, userID, r.URL.Query().Get("q"), limit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, contacts)
}

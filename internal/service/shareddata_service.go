package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"guardian-service/internal/config"
	"guardian-service/internal/events"
	"guardian-service/internal/hashing"
	"guardian-service/internal/model"
	"guardian-service/internal/store"
	"guardian-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("shared session not found")
	ErrSessionRevoked  = errors.New("shared session revoked")
	ErrSessionExpired  = errors.New("shared session expired")
)

// SessionStore is the session persistence the service needs; it is
// defined here so tests can swap in fakes. store.SessionStore satisfies
// it.
type SessionStore interface {
	Create(ctx context.Context, session *model.SharedDataSession) error
	Get(ctx context.Context, sessionID string) (*model.SharedDataSession, error)
	ListByUser(ctx context.Context, userID string) ([]model.SharedDataSession, error)
	UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus) error
	IncrementViews(ctx context.Context, sessionID string, current int) error
}

// LocationReader serves the recent-history window; archive.LocationArchive
// satisfies it.
type LocationReader interface {
	RecentWindow(ctx context.Context, userID string, since time.Time) ([]model.LocationPoint, error)
}

// SharedDataService issues, serves, and revokes shared-data links. A link
// token is "<session_id>.<secret>"; the secret appears exactly once, in
// the creation response, and only its argon2 hash is stored.
type SharedDataService struct {
	sessions SessionStore
	archive  LocationReader
	hasher   *hashing.Hasher
	audit    *events.AuditPublisher
	config   *config.SharedDataConfig
}

func NewSharedDataService(
	sessions SessionStore,
	locationArchive LocationReader,
	hasher *hashing.Hasher,
	audit *events.AuditPublisher,
	cfg *config.SharedDataConfig,
) *SharedDataService {
	return &SharedDataService{
		sessions: sessions,
		archive:  locationArchive,
		hasher:   hasher,
		audit:    audit,
		config:   cfg,
	}
}

// CreateSession opens a shared-data session and returns it with the
// one-time access token.
func (s *SharedDataService) CreateSession(ctx context.Context, userID, recipientName string, expiry time.Duration, evidenceIDs []string) (*model.SharedDataSession, string, error) {
	recipientName = util.SanitizeInput(recipientName)
	if recipientName == "" {
		verr := &util.ValidationError{}
		verr.Add("recipient_name", "must not be empty")
		return nil, "", verr
	}
	if expiry <= 0 {
		expiry = s.config.DefaultExpiry
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	tokenHash, err := s.hasher.HashToken(secret)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash session secret: %w", err)
	}

	now := time.Now().UTC()
	session := &model.SharedDataSession{
		ID:            uuid.New().String(),
		UserID:        userID,
		TokenHash:     tokenHash,
		RecipientName: recipientName,
		Status:        model.SessionActive,
		ExpiresAt:     now.Add(expiry),
		EvidenceIDs:   evidenceIDs,
		CreatedAt:     now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", err
	}

	s.audit.Publish(ctx, model.SyncAuditEvent{
		UserID: userID, Entity: "shared_session", Operation: "create", Status: events.StatusApplied,
		Detail: session.ID,
	})

	return session, session.ID + "." + secret, nil
}

// ReadSession serves the payload behind a link token: the session plus
// the last 24 hours of location history. Each successful read bumps the
// view count.
func (s *SharedDataService) ReadSession(ctx context.Context, token string) (*model.SharedDataView, error) {
	sessionID, secret, ok := splitToken(token)
	if !ok {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	valid, err := s.hasher.VerifyToken(secret, session.TokenHash)
	if err != nil || !valid {
		// A bad secret is indistinguishable from a missing session
		return nil, ErrSessionNotFound
	}

	now := time.Now().UTC()
	if session.Status == model.SessionRevoked {
		return nil, ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	locations, err := s.archive.RecentWindow(ctx, session.UserID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	if err := s.sessions.IncrementViews(ctx, session.ID, session.ViewCount); err == nil {
		session.ViewCount++
	}

	util.Info("Shared session read",
		zap.String("session_id", session.ID),
		zap.String("recipient", session.RecipientName),
		zap.Int("view_count", session.ViewCount))

	return &model.SharedDataView{
		Session:   session,
		Locations: locations,
	}, nil
}

// RevokeSession flips a session to revoked. Revoking an already revoked
// session is a no-op; callers only ever see their own sessions.
func (s *SharedDataService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}
	if session.Status == model.SessionRevoked {
		return nil
	}

	if err := s.sessions.UpdateStatus(ctx, sessionID, model.SessionRevoked); err != nil {
		return err
	}

	s.audit.Publish(ctx, model.SyncAuditEvent{
		UserID: userID, Entity: "shared_session", Operation: "revoke", Status: events.StatusApplied,
		Detail: sessionID,
	})
	return nil
}

func (s *SharedDataService) ListSessions(ctx context.Context, userID string) ([]model.SharedDataSession, error) {
	return s.sessions.ListByUser(ctx, userID)
}

func splitToken(token string) (sessionID, secret string, ok bool) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

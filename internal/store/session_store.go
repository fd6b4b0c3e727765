package store

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"guardian-service/internal/model"
	"guardian-service/internal/util"
)

// SessionStore persists shared-data sessions. Sessions are never deleted;
// revocation flips status so an already-issued link fails closed.
type SessionStore struct {
	client *ScyllaClient
}

func NewSessionStore(client *ScyllaClient) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Create(ctx context.Context, session *model.SharedDataSession) error {
	batch := s.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(s.client.Prepared.InsertSession.Statement(),
		session.ID, session.UserID, session.TokenHash, session.RecipientName,
		string(session.Status), session.ExpiresAt, session.ViewCount,
		session.EvidenceIDs, session.CreatedAt)
	batch.Query(s.client.Prepared.InsertSessionByUser.Statement(),
		session.UserID, session.ID, session.CreatedAt)

	if err := s.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create shared session",
			zap.String("user_id", session.UserID),
			zap.String("session_id", session.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create shared session: %w", err)
	}

	util.Info("Shared session created",
		zap.String("user_id", session.UserID),
		zap.String("session_id", session.ID),
		zap.Time("expires_at", session.ExpiresAt))
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*model.SharedDataSession, error) {
	session := &model.SharedDataSession{}
	var status string

	query := s.client.Prepared.GetSession.Bind(sessionID).WithContext(ctx)
	err := s.client.ScanWithRetry(query,
		&session.ID, &session.UserID, &session.TokenHash, &session.RecipientName,
		&status, &session.ExpiresAt, &session.ViewCount,
		&session.EvidenceIDs, &session.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		util.Error("Failed to get shared session",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get shared session: %w", err)
	}

	session.Status = model.SessionStatus(status)
	return session, nil
}

func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]model.SharedDataSession, error) {
	iter := s.client.Prepared.ListSessionsByUser.Bind(userID).WithContext(ctx).Iter()

	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list shared sessions: %w", err)
	}

	sessions := make([]model.SharedDataSession, 0, len(ids))
	for _, sessionID := range ids {
		session, err := s.Get(ctx, sessionID)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

func (s *SessionStore) UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	query := s.client.Prepared.UpdateSessionStatus.Bind(string(status), sessionID).WithContext(ctx)
	if err := query.Exec(); err != nil {
		util.Error("Failed to update session status",
			zap.String("session_id", sessionID),
			zap.String("status", string(status)),
			zap.Error(err))
		return fmt.Errorf("failed to update session status: %w", err)
	}

	util.Info("Session status updated",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)))
	return nil
}

// IncrementViews bumps view_count with a read-modify-write. Concurrent
// reads may coalesce; the count is informational, not billing.
func (s *SessionStore) IncrementViews(ctx context.Context, sessionID string, current int) error {
	query := s.client.Prepared.UpdateSessionViews.Bind(current+1, sessionID).WithContext(ctx)
	if err := query.Exec(); err != nil {
		util.Warn("Failed to increment view count",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"guardian-service/internal/model"
	"guardian-service/internal/util"
)

// ContactStore persists emergency contacts, one partition per user.
// Creates are deduplicated by idempotency key so a client retrying a
// queued insert never produces a second row.
type ContactStore struct {
	client *ScyllaClient
}

func NewContactStore(client *ScyllaClient) *ContactStore {
	return &ContactStore{client: client}
}

func (s *ContactStore) List(ctx context.Context, userID string) ([]model.EmergencyContact, error) {
	iter := s.client.Prepared.ListContacts.Bind(userID).WithContext(ctx).Iter()

	contacts := make([]model.EmergencyContact, 0)
	var c model.EmergencyContact
	for iter.Scan(&c.ID, &c.Name, &c.Phone, &c.Relationship, &c.CreatedAt, &c.UpdatedAt) {
		contacts = append(contacts, c)
	}
	if err := iter.Close(); err != nil {
		util.Error("Failed to list contacts",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	return contacts, nil
}

func (s *ContactStore) Get(ctx context.Context, userID, contactID string) (*model.EmergencyContact, error) {
	c := &model.EmergencyContact{}
	query := s.client.Prepared.GetContact.Bind(userID, contactID).WithContext(ctx)
	err := s.client.ScanWithRetry(query,
		&c.ID, &c.Name, &c.Phone, &c.Relationship, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return c, nil
}

// Create upserts a contact. A contact arriving with a durable id is an
// edit of an existing row and writes in place on the same primary key; a
// missing or temp id gets a fresh durable id minted here. New inserts are
// deduplicated by idempotency key so a retried queued insert never
// produces a second row.
func (s *ContactStore) Create(ctx context.Context, userID string, contact *model.EmergencyContact, idemKey string) (*model.EmergencyContact, error) {
	if contact.ID != "" && !strings.HasPrefix(contact.ID, model.TempIDPrefix) {
		return s.update(ctx, userID, contact)
	}

	if idemKey != "" {
		var existingID string
		err := s.client.Prepared.GetIdemKey.Bind(userID, idemKey).WithContext(ctx).Scan(&existingID)
		if err == nil {
			util.Info("Duplicate contact create suppressed",
				zap.String("user_id", userID),
				zap.String("idem_key", idemKey),
				zap.String("contact_id", existingID))
			return s.Get(ctx, userID, existingID)
		}
		if err != gocql.ErrNotFound {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}

	now := time.Now().UTC()
	created := *contact
	created.ID = uuid.New().String()
	created.CreatedAt = now
	created.UpdatedAt = now

	query := s.client.Prepared.InsertContact.Bind(
		userID, created.ID, created.Name, created.Phone, created.Relationship,
		created.CreatedAt, created.UpdatedAt).WithContext(ctx)
	if err := query.Exec(); err != nil {
		util.Error("Failed to create contact",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	if idemKey != "" {
		applied, err := s.client.Prepared.InsertIdemKey.Bind(
			userID, idemKey, created.ID, now).WithContext(ctx).MapScanCAS(map[string]interface{}{})
		if err != nil {
			util.Warn("Failed to record idempotency key",
				zap.String("user_id", userID),
				zap.Error(err))
		} else if !applied {
			// Lost the race to a concurrent retry; their row wins
			s.deleteQuietly(ctx, userID, created.ID)
			var winnerID string
			if err := s.client.Prepared.GetIdemKey.Bind(userID, idemKey).WithContext(ctx).Scan(&winnerID); err == nil {
				return s.Get(ctx, userID, winnerID)
			}
		}
	}

	util.Info("Contact created",
		zap.String("user_id", userID),
		zap.String("contact_id", created.ID))
	return &created, nil
}

// update writes a contact in place under its durable id. The write is an
// upsert on a stable primary key, so replays are idempotent without the
// idempotency-key machinery.
func (s *ContactStore) update(ctx context.Context, userID string, contact *model.EmergencyContact) (*model.EmergencyContact, error) {
	now := time.Now().UTC()
	updated := *contact
	if updated.CreatedAt.IsZero() {
		updated.CreatedAt = now
	}
	updated.UpdatedAt = now

	query := s.client.Prepared.InsertContact.Bind(
		userID, updated.ID, updated.Name, updated.Phone, updated.Relationship,
		updated.CreatedAt, updated.UpdatedAt).WithContext(ctx)
	if err := query.Exec(); err != nil {
		util.Error("Failed to update contact",
			zap.String("user_id", userID),
			zap.String("contact_id", updated.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}

	util.Info("Contact updated",
		zap.String("user_id", userID),
		zap.String("contact_id", updated.ID))
	return &updated, nil
}

func (s *ContactStore) Delete(ctx context.Context, userID, contactID string) error {
	if _, err := s.Get(ctx, userID, contactID); err != nil {
		return err
	}
	return s.delete(ctx, userID, contactID)
}

func (s *ContactStore) delete(ctx context.Context, userID, contactID string) error {
	query := s.client.Prepared.DeleteContact.Bind(userID, contactID).WithContext(ctx)
	if err := query.Exec(); err != nil {
		util.Error("Failed to delete contact",
			zap.String("user_id", userID),
			zap.String("contact_id", contactID),
			zap.Error(err))
		return fmt.Errorf("failed to delete contact: %w", err)
	}

	util.Info("Contact deleted",
		zap.String("user_id", userID),
		zap.String("contact_id", contactID))
	return nil
}

func (s *ContactStore) deleteQuietly(ctx context.Context, userID, contactID string) {
	if err := s.client.Prepared.DeleteContact.Bind(userID, contactID).WithContext(ctx).Exec(); err != nil {
		util.Warn("Failed to remove superseded contact row",
			zap.String("user_id", userID),
			zap.String("contact_id", contactID),
			zap.Error(err))
	}
}

// Replace swaps a user's entire contact list in one logged batch. The
// partition delete runs at an earlier write timestamp than the inserts so
// the new rows survive.
func (s *ContactStore) Replace(ctx context.Context, userID string, contacts []model.EmergencyContact) error {
	ts := time.Now().UnixMicro()

	batch := s.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM contacts_by_user USING TIMESTAMP ? WHERE user_id = ?`, ts-1, userID)
	for _, c := range contacts {
		batch.Query(`
            INSERT INTO contacts_by_user (user_id, contact_id, name, phone, relationship, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?) USING TIMESTAMP ?`,
			userID, c.ID, c.Name, c.Phone, c.Relationship, c.CreatedAt, c.UpdatedAt, ts)
	}

	if err := s.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to replace contacts",
			zap.String("user_id", userID),
			zap.Int("count", len(contacts)),
			zap.Error(err))
		return fmt.Errorf("failed to replace contacts: %w", err)
	}

	util.Info("Contacts replaced",
		zap.String("user_id", userID),
		zap.Int("count", len(contacts)))
	return nil
}

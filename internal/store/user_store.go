package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"guardian-service/internal/bucketing"
	"guardian-service/internal/encryption"
	"guardian-service/internal/model"
	"guardian-service/internal/util"
)

// UserStore persists profiles and their medical satellite records.
// Allergies and medications are envelope-encrypted before they touch disk.
type UserStore struct {
	client     *ScyllaClient
	encryption *encryption.Manager
	bucketing  *bucketing.Manager
}

func NewUserStore(client *ScyllaClient, enc *encryption.Manager, buckets *bucketing.Manager) *UserStore {
	return &UserStore{
		client:     client,
		encryption: enc,
		bucketing:  buckets,
	}
}

func (s *UserStore) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	profile := &model.UserProfile{}
	bucket := s.bucketing.GetUserBucket(userID)

	query := s.client.Prepared.GetProfile.Bind(bucket, userID).WithContext(ctx)
	err := s.client.ScanWithRetry(query,
		&profile.ID, &profile.Name, &profile.Email, &profile.Phone,
		&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		util.Error("Failed to get profile",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}

func (s *UserStore) UpsertProfile(ctx context.Context, profile *model.UserProfile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	bucket := s.bucketing.GetUserBucket(profile.ID)
	query := s.client.Prepared.UpsertProfile.Bind(
		bucket, profile.ID, profile.Name, profile.Email, profile.Phone,
		profile.CreatedAt, profile.UpdatedAt).WithContext(ctx)

	if err := query.Exec(); err != nil {
		util.Error("Failed to upsert profile",
			zap.String("user_id", profile.ID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert profile: %w", err)
	}

	util.Info("Profile upserted", zap.String("user_id", profile.ID))
	return nil
}

func (s *UserStore) GetMedical(ctx context.Context, userID string) (*model.MedicalInfo, error) {
	var (
		medical        model.MedicalInfo
		allergiesEnc   string
		medicationsEnc string
	)

	query := s.client.Prepared.GetMedical.Bind(userID).WithContext(ctx)
	err := s.client.ScanWithRetry(query,
		&medical.BloodGroup, &allergiesEnc, &medicationsEnc,
		&medical.EmergencyContactName, &medical.EmergencyContactPhone)
	if err != nil {
		if err == gocql.ErrNotFound {
			// Medical info is optional; absence is an empty record
			return &model.MedicalInfo{}, nil
		}
		util.Error("Failed to get medical info",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get medical info: %w", err)
	}

	if medical.Allergies, err = s.encryption.DecryptOptional(ctx, allergiesEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt allergies: %w", err)
	}
	if medical.Medications, err = s.encryption.DecryptOptional(ctx, medicationsEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt medications: %w", err)
	}

	return &medical, nil
}

func (s *UserStore) UpsertMedical(ctx context.Context, userID string, medical *model.MedicalInfo) error {
	allergiesEnc, err := s.encryption.EncryptOptional(ctx, medical.Allergies)
	if err != nil {
		return fmt.Errorf("failed to encrypt allergies: %w", err)
	}
	medicationsEnc, err := s.encryption.EncryptOptional(ctx, medical.Medications)
	if err != nil {
		return fmt.Errorf("failed to encrypt medications: %w", err)
	}

	query := s.client.Prepared.UpsertMedical.Bind(
		userID, medical.BloodGroup, allergiesEnc, medicationsEnc,
		medical.EmergencyContactName, medical.EmergencyContactPhone,
		time.Now().UTC()).WithContext(ctx)

	if err := query.Exec(); err != nil {
		util.Error("Failed to upsert medical info",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert medical info: %w", err)
	}

	util.Info("Medical info upserted", zap.String("user_id", userID))
	return nil
}

func (s *UserStore) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck()
}

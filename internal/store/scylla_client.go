// Package store is the server-side source of truth: user profiles,
// medical records, emergency contacts, and shared-data sessions in
// ScyllaDB.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"guardian-service/internal/config"
	"guardian-service/internal/util"
)

var ErrNotFound = errors.New("record not found")

// PreparedStatements holds the statements the stores bind per call.
type PreparedStatements struct {
	UpsertProfile *gocql.Query
	GetProfile    *gocql.Query

	UpsertMedical *gocql.Query
	GetMedical    *gocql.Query

	InsertContact *gocql.Query
	GetContact    *gocql.Query
	ListContacts  *gocql.Query
	DeleteContact *gocql.Query
	InsertIdemKey *gocql.Query
	GetIdemKey    *gocql.Query

	InsertSession       *gocql.Query
	InsertSessionByUser *gocql.Query
	GetSession          *gocql.Query
	ListSessionsByUser  *gocql.Query
	UpdateSessionStatus *gocql.Query
	UpdateSessionViews  *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.UpsertProfile = s.Session.Query(`
        INSERT INTO users (user_bucket, user_id, name, email, phone, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetProfile = s.Session.Query(`
        SELECT user_id, name, email, phone, created_at, updated_at
        FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpsertMedical = s.Session.Query(`
        INSERT INTO medical_info (user_id, blood_group, allergies_enc, medications_enc,
            emergency_contact_name, emergency_contact_phone, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetMedical = s.Session.Query(`
        SELECT blood_group, allergies_enc, medications_enc,
            emergency_contact_name, emergency_contact_phone
        FROM medical_info WHERE user_id = ?`)

	prepared.InsertContact = s.Session.Query(`
        INSERT INTO contacts_by_user (user_id, contact_id, name, phone, relationship, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetContact = s.Session.Query(`
        SELECT contact_id, name, phone, relationship, created_at, updated_at
        FROM contacts_by_user WHERE user_id = ? AND contact_id = ?`)

	prepared.ListContacts = s.Session.Query(`
        SELECT contact_id, name, phone, relationship, created_at, updated_at
        FROM contacts_by_user WHERE user_id = ?`)

	prepared.DeleteContact = s.Session.Query(`
        DELETE FROM contacts_by_user WHERE user_id = ? AND contact_id = ?`)

	prepared.InsertIdemKey = s.Session.Query(`
        INSERT INTO contact_idempotency (user_id, idem_key, contact_id, created_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`)

	prepared.GetIdemKey = s.Session.Query(`
        SELECT contact_id FROM contact_idempotency WHERE user_id = ? AND idem_key = ?`)

	prepared.InsertSession = s.Session.Query(`
        INSERT INTO shared_sessions (session_id, user_id, token_hash, recipient_name,
            status, expires_at, view_count, evidence_ids, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.InsertSessionByUser = s.Session.Query(`
        INSERT INTO shared_sessions_by_user (user_id, session_id, created_at)
        VALUES (?, ?, ?)`)

	prepared.GetSession = s.Session.Query(`
        SELECT session_id, user_id, token_hash, recipient_name, status,
            expires_at, view_count, evidence_ids, created_at
        FROM shared_sessions WHERE session_id = ?`)

	prepared.ListSessionsByUser = s.Session.Query(`
        SELECT session_id FROM shared_sessions_by_user WHERE user_id = ?`)

	prepared.UpdateSessionStatus = s.Session.Query(`
        UPDATE shared_sessions SET status = ? WHERE session_id = ?`)

	prepared.UpdateSessionViews = s.Session.Query(`
        UPDATE shared_sessions SET view_count = ? WHERE session_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if err == gocql.ErrNotFound {
				return err
			}
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

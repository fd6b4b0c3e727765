// Package repository implements the offline-first domain repositories:
// cache-first loads, optimistic local writes, and best-effort remote
// pushes backed by a durable outbox. A repository never fails a load for
// ordinary network absence; the only error it propagates is an
// authentication failure, which the caller must handle by re-logging in.
package repository

import (
	"context"
	"sync"

	"guardian-service/internal/model"
)

// LoadOptions controls a repository load.
type LoadOptions struct {
	// ForceRefresh skips the fresh-cache short-circuit and goes straight
	// to the connectivity gate.
	ForceRefresh bool
}

// SyncState is the caller-visible sync indicator, shared by all
// repositories.
type SyncState string

const (
	StateIdle     SyncState = "idle"
	StateTracking SyncState = "tracking"
	StateSyncing  SyncState = "syncing"
	StateError    SyncState = "error"
	StateOffline  SyncState = "offline"
)

// StatusTracker holds the last observed sync state for one repository.
type StatusTracker struct {
	mu    sync.RWMutex
	state SyncState
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{state: StateIdle}
}

func (t *StatusTracker) Set(state SyncState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
}

func (t *StatusTracker) State() SyncState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Remote interfaces are defined on the consumer side so tests can swap in
// fakes; remote.Client satisfies all of them.

type ContactsRemote interface {
	ListContacts(ctx context.Context) ([]model.EmergencyContact, error)
	CreateContact(ctx context.Context, contact *model.EmergencyContact, idempotencyKey string) (*model.EmergencyContact, error)
	DeleteContact(ctx context.Context, contactID string) error
}

type UserInfoRemote interface {
	FetchUserInfo(ctx context.Context) (*model.UserInfo, error)
	PushUserInfo(ctx context.Context, patch *model.UserInfoPatch) error
}

type LocationRemote interface {
	PushLocations(ctx context.Context, points []model.LocationPoint) error
}

// Cache keys. Each repository owns its key(s) exclusively; no two
// repositories write the same key.
const (
	contactsCacheKey = "guardian:contacts"
	userInfoCacheKey = "guardian:user_info"
	locationCacheKey = "guardian:location_history"
)

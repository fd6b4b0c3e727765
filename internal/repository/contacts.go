package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"guardian-service/internal/cache"
	"guardian-service/internal/connectivity"
	"guardian-service/internal/model"
	"guardian-service/internal/outbox"
	"guardian-service/internal/remote"
	"guardian-service/internal/util"
)

// ContactsRepository owns the emergency-contact cache key and the
// temp-id → durable-id state machine. A contact created offline carries a
// client-generated temp id until a remote insert confirms it; the
// confirmation replaces the temp entry, it never duplicates it.
type ContactsRepository struct {
	cache  *cache.TTLCache
	gate   connectivity.Gate
	remote ContactsRemote
	outbox *outbox.Outbox
	ttl    time.Duration
	status *StatusTracker
}

func NewContactsRepository(c *cache.TTLCache, gate connectivity.Gate, r ContactsRemote, ob *outbox.Outbox, ttl time.Duration) *ContactsRepository {
	return &ContactsRepository{
		cache:  c,
		gate:   gate,
		remote: r,
		outbox: ob,
		ttl:    ttl,
		status: NewStatusTracker(),
	}
}

func (r *ContactsRepository) Status() SyncState {
	return r.status.State()
}

// Load returns the contact list. Fresh cache short-circuits; otherwise a
// single remote attempt, falling back to stale cache and then to an empty
// list. Only remote.ErrUnauthorized propagates.
func (r *ContactsRepository) Load(ctx context.Context, opts LoadOptions) ([]model.EmergencyContact, error) {
	var contacts []model.EmergencyContact

	if !opts.ForceRefresh {
		if r.cache.GetWithExpiry(ctx, contactsCacheKey, r.ttl, &contacts) {
			return contacts, nil
		}
	}

	if !r.gate.IsOnline() {
		r.status.Set(StateOffline)
		return r.loadStale(ctx), nil
	}

	r.status.Set(StateSyncing)
	fetched, err := r.remote.ListContacts(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			r.status.Set(StateError)
			return nil, err
		}
		util.Warn("Contact fetch failed, serving cache", zap.Error(err))
		r.status.Set(StateError)
		return r.loadStale(ctx), nil
	}

	merged := r.mergePending(ctx, fetched)
	r.cache.SetWithExpiry(ctx, contactsCacheKey, merged)
	r.status.Set(StateIdle)
	return merged, nil
}

// Save validates and upserts one contact: optimistic cache write, durable
// enqueue, then an immediate best-effort push when online. A contact
// without an id is assigned a temp id here.
func (r *ContactsRepository) Save(ctx context.Context, contact model.EmergencyContact) (model.EmergencyContact, error) {
	if err := validateContact(&contact); err != nil {
		return contact, err
	}

	now := time.Now().UTC()
	if contact.ID == "" {
		contact.ID = model.TempIDPrefix + uuid.New().String()
		contact.CreatedAt = now
	}
	contact.UpdatedAt = now

	r.upsertCached(ctx, contact)

	payload, _ := json.Marshal(contact)
	m := r.outbox.Enqueue(ctx, outbox.Mutation{
		Entity:         "contact",
		Op:             outbox.OpUpsert,
		EntityID:       contact.ID,
		IdempotencyKey: outbox.NewKey(),
		Payload:        payload,
		EnqueuedAt:     now.UnixMilli(),
	})

	if r.gate.IsOnline() {
		created, err := r.remote.CreateContact(ctx, &contact, m.IdempotencyKey)
		if err != nil {
			util.Warn("Contact push failed, mutation stays queued",
				zap.String("contact_id", contact.ID),
				zap.Error(err))
			r.status.Set(StateError)
			return contact, nil
		}
		r.promote(ctx, contact.ID, *created)
		r.outbox.Ack(ctx, m.Seq)
		r.status.Set(StateIdle)
		return *created, nil
	}
	return contact, nil
}

// Delete removes the contact locally and queues the remote delete. A
// local-only contact never reached the server, so its pending mutations
// are simply dropped.
func (r *ContactsRepository) Delete(ctx context.Context, contactID string) error {
	var cached []model.EmergencyContact
	r.cache.GetStale(ctx, contactsCacheKey, &cached)

	kept := cached[:0]
	for _, c := range cached {
		if c.ID != contactID {
			kept = append(kept, c)
		}
	}
	r.cache.SetWithExpiry(ctx, contactsCacheKey, kept)

	if isTempID(contactID) {
		r.outbox.Drop(ctx, contactID)
		return nil
	}

	m := r.outbox.Enqueue(ctx, outbox.Mutation{
		Entity:         "contact",
		Op:             outbox.OpDelete,
		EntityID:       contactID,
		IdempotencyKey: outbox.NewKey(),
		EnqueuedAt:     time.Now().UnixMilli(),
	})

	if r.gate.IsOnline() {
		if err := r.apply(ctx, m); err != nil {
			util.Warn("Contact delete push failed, mutation stays queued",
				zap.String("contact_id", contactID),
				zap.Error(err))
			return nil
		}
		r.outbox.Ack(ctx, m.Seq)
	}
	return nil
}

// Clear drops the cached list. Pending mutations are kept; they still
// need to reach the server.
func (r *ContactsRepository) Clear(ctx context.Context) {
	r.cache.Delete(ctx, contactsCacheKey)
}

// ReplayPending applies queued mutations in order. It stops at the first
// failure to preserve ordering; an auth failure propagates.
func (r *ContactsRepository) ReplayPending(ctx context.Context) error {
	pending := r.outbox.Pending(ctx)
	if len(pending) == 0 {
		return nil
	}

	r.status.Set(StateSyncing)
	for _, m := range pending {
		if err := r.apply(ctx, m); err != nil {
			r.status.Set(StateError)
			if errors.Is(err, remote.ErrUnauthorized) {
				return err
			}
			util.Warn("Contact replay stopped",
				zap.Int64("seq", m.Seq),
				zap.Error(err))
			return nil
		}
		r.outbox.Ack(ctx, m.Seq)
	}
	r.status.Set(StateIdle)
	return nil
}

// apply performs one mutation against the remote and, for inserts,
// promotes the temp id in the cache to the durable id the server
// assigned.
func (r *ContactsRepository) apply(ctx context.Context, m outbox.Mutation) error {
	switch m.Op {
	case outbox.OpUpsert:
		var contact model.EmergencyContact
		if err := json.Unmarshal(m.Payload, &contact); err != nil {
			util.Error("Dropping undecodable contact mutation",
				zap.Int64("seq", m.Seq),
				zap.Error(err))
			return nil
		}
		created, err := r.remote.CreateContact(ctx, &contact, m.IdempotencyKey)
		if err != nil {
			return err
		}
		r.promote(ctx, m.EntityID, *created)
		return nil

	case outbox.OpDelete:
		err := r.remote.DeleteContact(ctx, m.EntityID)
		if errors.Is(err, remote.ErrNotFound) {
			// Already gone; the delete is complete.
			return nil
		}
		return err

	default:
		return nil
	}
}

// promote replaces the entry under oldID with the confirmed server row.
// Exactly one entry survives: matching by id only, never by phone number.
func (r *ContactsRepository) promote(ctx context.Context, oldID string, confirmed model.EmergencyContact) {
	var cached []model.EmergencyContact
	r.cache.GetStale(ctx, contactsCacheKey, &cached)

	replaced := false
	kept := cached[:0]
	for _, c := range cached {
		switch c.ID {
		case oldID:
			if !replaced {
				kept = append(kept, confirmed)
				replaced = true
			}
		case confirmed.ID:
			// Replay after a partial promotion; keep a single copy.
			if !replaced {
				kept = append(kept, confirmed)
				replaced = true
			}
		default:
			kept = append(kept, c)
		}
	}
	if !replaced {
		kept = append(kept, confirmed)
	}
	r.cache.SetWithExpiry(ctx, contactsCacheKey, kept)
}

// mergePending overlays local-only contacts with queued inserts onto the
// fetched list, so a refresh does not hide writes that have not reached
// the server yet.
func (r *ContactsRepository) mergePending(ctx context.Context, fetched []model.EmergencyContact) []model.EmergencyContact {
	pending := r.outbox.Pending(ctx)
	if len(pending) == 0 {
		return fetched
	}

	seen := make(map[string]bool, len(fetched))
	for _, c := range fetched {
		seen[c.ID] = true
	}

	merged := fetched
	for _, m := range pending {
		if m.Op != outbox.OpUpsert || !isTempID(m.EntityID) || seen[m.EntityID] {
			continue
		}
		var contact model.EmergencyContact
		if err := json.Unmarshal(m.Payload, &contact); err != nil {
			continue
		}
		merged = append(merged, contact)
		seen[m.EntityID] = true
	}
	return merged
}

func (r *ContactsRepository) loadStale(ctx context.Context) []model.EmergencyContact {
	var cached []model.EmergencyContact
	if r.cache.GetStale(ctx, contactsCacheKey, &cached) {
		return cached
	}
	return []model.EmergencyContact{}
}

func (r *ContactsRepository) upsertCached(ctx context.Context, contact model.EmergencyContact) {
	var cached []model.EmergencyContact
	r.cache.GetStale(ctx, contactsCacheKey, &cached)

	replaced := false
	for i, c := range cached {
		if c.ID == contact.ID {
			cached[i] = contact
			replaced = true
			break
		}
	}
	if !replaced {
		cached = append(cached, contact)
	}
	r.cache.SetWithExpiry(ctx, contactsCacheKey, cached)
}

func validateContact(contact *model.EmergencyContact) error {
	verr := &util.ValidationError{}
	contact.Name = util.SanitizeInput(contact.Name)
	if contact.Name == "" {
		verr.Add("name", "name must not be empty")
	}
	if !util.IsValidPhone(contact.Phone) {
		verr.Add("phone", "phone must be a 10-digit number")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func isTempID(id string) bool {
	return len(id) > len(model.TempIDPrefix) && id[:len(model.TempIDPrefix)] == model.TempIDPrefix
}

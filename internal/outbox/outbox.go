// Package outbox is the durable, ordered queue of pending mutations that
// replaces fire-and-forget remote pushes. Every optimistic local write
// enqueues a mutation with a client-generated idempotency key; the queue
// is replayed in order on reconnect, and the key makes replays safe to
// apply more than once.
package outbox

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"guardian-service/internal/kvstore"
	"guardian-service/internal/util"
)

type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Mutation is one pending remote write, keyed by the entity it touches.
type Mutation struct {
	Seq            int64           `json:"seq"`
	Entity         string          `json:"entity"`
	Op             Op              `json:"op"`
	EntityID       string          `json:"entity_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt     int64           `json:"enqueued_at"`
}

// Outbox persists its queue as a single JSON document in the key-value
// store, so ordering survives process restarts. Each repository owns one
// outbox under its own key.
type Outbox struct {
	store kvstore.Store
	key   string

	mu      sync.Mutex
	lastSeq int64
	loaded  bool
}

func New(store kvstore.Store, name string) *Outbox {
	return &Outbox{
		store: store,
		key:   "outbox:" + name,
	}
}

// NewKey returns a fresh idempotency key for a mutation.
func NewKey() string {
	return uuid.New().String()
}

// Enqueue appends the mutation, assigning the next sequence number.
func (o *Outbox) Enqueue(ctx context.Context, m Mutation) Mutation {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending := o.load(ctx)
	o.lastSeq++
	m.Seq = o.lastSeq
	pending = append(pending, m)
	o.persist(ctx, pending)

	util.Debug("Mutation enqueued",
		zap.String("entity", m.Entity),
		zap.String("op", string(m.Op)),
		zap.String("entity_id", m.EntityID),
		zap.Int64("seq", m.Seq))
	return m
}

// Pending returns the queued mutations in enqueue order.
func (o *Outbox) Pending(ctx context.Context) []Mutation {
	o.mu.Lock()
	defer o.mu.Unlock()
	pending := o.load(ctx)
	out := make([]Mutation, len(pending))
	copy(out, pending)
	return out
}

// Ack removes a delivered mutation by sequence number.
func (o *Outbox) Ack(ctx context.Context, seq int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending := o.load(ctx)
	kept := pending[:0]
	for _, m := range pending {
		if m.Seq != seq {
			kept = append(kept, m)
		}
	}
	o.persist(ctx, kept)
}

// Drop removes every pending mutation for an entity id. Used when a
// local-only entity is deleted before it ever reached the server.
func (o *Outbox) Drop(ctx context.Context, entityID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending := o.load(ctx)
	kept := pending[:0]
	for _, m := range pending {
		if m.EntityID != entityID {
			kept = append(kept, m)
		}
	}
	o.persist(ctx, kept)
}

// Len reports the number of queued mutations.
func (o *Outbox) Len(ctx context.Context) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.load(ctx))
}

func (o *Outbox) load(ctx context.Context) []Mutation {
	raw, ok := o.store.Get(ctx, o.key)
	if !ok {
		return nil
	}

	var pending []Mutation
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		util.Warn("Discarding unreadable outbox payload",
			zap.String("key", o.key),
			zap.Error(err))
		return nil
	}

	if !o.loaded {
		for _, m := range pending {
			if m.Seq > o.lastSeq {
				o.lastSeq = m.Seq
			}
		}
		o.loaded = true
	}
	return pending
}

func (o *Outbox) persist(ctx context.Context, pending []Mutation) {
	if len(pending) == 0 {
		o.store.Delete(ctx, o.key)
		return
	}

	raw, err := json.Marshal(pending)
	if err != nil {
		util.Error("Failed to marshal outbox payload",
			zap.String("key", o.key),
			zap.Error(err))
		return
	}
	o.store.Set(ctx, o.key, string(raw))
}

package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian-service/internal/kvstore"
)

func enqueueN(t *testing.T, ob *Outbox, entity string, n int) []Mutation {
	t.Helper()
	ctx := context.Background()
	out := make([]Mutation, 0, n)
	for i := 0; i < n; i++ {
		payload, _ := json.Marshal(map[string]int{"i": i})
		out = append(out, ob.Enqueue(ctx, Mutation{
			Entity:         entity,
			Op:             OpUpsert,
			EntityID:       entity + "-" + string(rune('a'+i)),
			IdempotencyKey: NewKey(),
			Payload:        payload,
		}))
	}
	return out
}

func TestEnqueueAssignsIncreasingSeq(t *testing.T) {
	ob := New(kvstore.NewMemoryStore(), "contacts")

	queued := enqueueN(t, ob, "contact", 3)
	assert.Equal(t, int64(1), queued[0].Seq)
	assert.Equal(t, int64(2), queued[1].Seq)
	assert.Equal(t, int64(3), queued[2].Seq)
}

func TestPendingPreservesEnqueueOrder(t *testing.T) {
	ctx := context.Background()
	ob := New(kvstore.NewMemoryStore(), "contacts")
	enqueueN(t, ob, "contact", 4)

	pending := ob.Pending(ctx)
	require.Len(t, pending, 4)
	for i := 1; i < len(pending); i++ {
		assert.Greater(t, pending[i].Seq, pending[i-1].Seq)
	}
}

func TestAckRemovesOnlyDelivered(t *testing.T) {
	ctx := context.Background()
	ob := New(kvstore.NewMemoryStore(), "contacts")
	queued := enqueueN(t, ob, "contact", 3)

	ob.Ack(ctx, queued[1].Seq)

	pending := ob.Pending(ctx)
	require.Len(t, pending, 2)
	assert.Equal(t, queued[0].Seq, pending[0].Seq)
	assert.Equal(t, queued[2].Seq, pending[1].Seq)
}

func TestDropRemovesAllMutationsForEntity(t *testing.T) {
	ctx := context.Background()
	ob := New(kvstore.NewMemoryStore(), "contacts")

	ob.Enqueue(ctx, Mutation{Entity: "contact", Op: OpUpsert, EntityID: "temp_1"})
	ob.Enqueue(ctx, Mutation{Entity: "contact", Op: OpUpsert, EntityID: "temp_1"})
	ob.Enqueue(ctx, Mutation{Entity: "contact", Op: OpUpsert, EntityID: "temp_2"})

	ob.Drop(ctx, "temp_1")

	pending := ob.Pending(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, "temp_2", pending[0].EntityID)
}

func TestQueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	first := New(store, "contacts")
	queued := enqueueN(t, first, "contact", 2)

	// A new instance over the same store resumes the sequence.
	second := New(store, "contacts")
	pending := second.Pending(ctx)
	require.Len(t, pending, 2)
	assert.Equal(t, queued[0].IdempotencyKey, pending[0].IdempotencyKey)

	next := second.Enqueue(ctx, Mutation{Entity: "contact", Op: OpDelete, EntityID: "x"})
	assert.Equal(t, queued[1].Seq+1, next.Seq)
}

func TestEmptyQueueDeletesBackingKey(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	ob := New(store, "contacts")

	m := ob.Enqueue(ctx, Mutation{Entity: "contact", Op: OpUpsert, EntityID: "a"})
	ob.Ack(ctx, m.Seq)

	_, ok := store.Get(ctx, "outbox:contacts")
	assert.False(t, ok)
	assert.Equal(t, 0, ob.Len(ctx))
}

func TestSeparateNamesSeparateQueues(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	contacts := New(store, "contacts")
	locations := New(store, "locations")

	contacts.Enqueue(ctx, Mutation{Entity: "contact", Op: OpUpsert, EntityID: "a"})
	locations.Enqueue(ctx, Mutation{Entity: "location", Op: OpUpsert, EntityID: "b"})
	locations.Enqueue(ctx, Mutation{Entity: "location", Op: OpUpsert, EntityID: "c"})

	assert.Equal(t, 1, contacts.Len(ctx))
	assert.Equal(t, 2, locations.Len(ctx))
}

func TestNewKeyIsUnique(t *testing.T) {
	assert.NotEqual(t, NewKey(), NewKey())
}

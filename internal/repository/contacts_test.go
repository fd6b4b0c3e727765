package repository

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian-service/internal/cache"
	"guardian-service/internal/connectivity"
	"guardian-service/internal/kvstore"
	"guardian-service/internal/model"
	"guardian-service/internal/outbox"
	"guardian-service/internal/remote"
	"guardian-service/internal/util"
)

// fakeContactsRemote implements ContactsRemote. Created contacts get a
// durable id "srv-N"; err short-circuits every call.
type fakeContactsRemote struct {
	contacts    []model.EmergencyContact
	err         error
	listCalls   int
	createCalls int
	deleteCalls int
	createKeys  []string
	deleted     []string
	nextID      int
}

func (f *fakeContactsRemote) ListContacts(_ context.Context) ([]model.EmergencyContact, error) {
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.EmergencyContact, len(f.contacts))
	copy(out, f.contacts)
	return out, nil
}

func (f *fakeContactsRemote) CreateContact(_ context.Context, contact *model.EmergencyContact, idempotencyKey string) (*model.EmergencyContact, error) {
	f.createCalls++
	f.createKeys = append(f.createKeys, idempotencyKey)
	if f.err != nil {
		return nil, f.err
	}

	// A durable id writes in place, like the server's upsert.
	if contact.ID != "" && !contact.IsLocalOnly() {
		updated := *contact
		for i, c := range f.contacts {
			if c.ID == updated.ID {
				f.contacts[i] = updated
				return &updated, nil
			}
		}
		f.contacts = append(f.contacts, updated)
		return &updated, nil
	}

	f.nextID++
	created := *contact
	created.ID = "srv-" + strconv.Itoa(f.nextID)
	f.contacts = append(f.contacts, created)
	return &created, nil
}

func (f *fakeContactsRemote) DeleteContact(_ context.Context, contactID string) error {
	f.deleteCalls++
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, contactID)
	return nil
}

func newContactsFixture(online bool, remote ContactsRemote) (*ContactsRepository, *connectivity.StaticGate, *outbox.Outbox) {
	store := kvstore.NewMemoryStore()
	gate := connectivity.NewStaticGate(online)
	ob := outbox.New(store, "contacts")
	repo := NewContactsRepository(cache.New(store), gate, remote, ob, 5*time.Minute)
	return repo, gate, ob
}

func TestContactSaveOfflineIsVisibleImmediately(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, _, ob := newContactsFixture(false, fake)

	saved, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)
	assert.True(t, saved.IsLocalOnly())

	contacts, err := repo.Load(ctx, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, saved.ID, contacts[0].ID)

	assert.Equal(t, 0, fake.createCalls)
	assert.Equal(t, 1, ob.Len(ctx))
}

func TestContactSaveOnlinePromotesTempID(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, _, ob := newContactsFixture(true, fake)

	saved, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", saved.ID)
	assert.False(t, saved.IsLocalOnly())

	// The temp entry was replaced, never duplicated.
	contacts, err := repo.Load(ctx, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "srv-1", contacts[0].ID)

	assert.Equal(t, 0, ob.Len(ctx))
}

func TestContactEditSyncedContactNeverDuplicates(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, _, ob := newContactsFixture(true, fake)

	saved, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)
	require.Equal(t, "srv-1", saved.ID)

	// Editing the synced contact keeps its durable id; the server row is
	// overwritten, never joined by a second one.
	saved.Phone = "1112223333"
	edited, err := repo.Save(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", edited.ID)

	contacts, err := repo.Load(ctx, LoadOptions{ForceRefresh: true})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "srv-1", contacts[0].ID)
	assert.Equal(t, "1112223333", contacts[0].Phone)

	require.Len(t, fake.contacts, 1)
	assert.Equal(t, "1112223333", fake.contacts[0].Phone)
	assert.Equal(t, 0, ob.Len(ctx))
}

func TestContactEditOfflineReplaysInPlace(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, gate, ob := newContactsFixture(true, fake)

	saved, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)

	gate.SetOnline(false)
	saved.Phone = "1112223333"
	_, err = repo.Save(ctx, saved)
	require.NoError(t, err)
	require.Equal(t, 1, ob.Len(ctx))

	gate.SetOnline(true)
	require.NoError(t, repo.ReplayPending(ctx))

	contacts, err := repo.Load(ctx, LoadOptions{ForceRefresh: true})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "srv-1", contacts[0].ID)
	assert.Equal(t, "1112223333", contacts[0].Phone)
}

func TestContactSaveValidation(t *testing.T) {
	ctx := context.Background()
	repo, _, ob := newContactsFixture(true, &fakeContactsRemote{})

	tests := []struct {
		name    string
		contact model.EmergencyContact
		field   string
	}{
		{"empty name", model.EmergencyContact{Name: "  ", Phone: "9876543210"}, "name"},
		{"short phone", model.EmergencyContact{Name: "Asha", Phone: "12345"}, "phone"},
		{"alphabetic phone", model.EmergencyContact{Name: "Asha", Phone: "98765abcde"}, "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Save(ctx, tt.contact)
			var verr *util.ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Fields)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}

	// Nothing invalid was queued.
	assert.Equal(t, 0, ob.Len(ctx))
}

func TestContactLoadOfflineServesStaleCache(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	store := kvstore.NewMemoryStore()
	gate := connectivity.NewStaticGate(true)
	ob := outbox.New(store, "contacts")

	// Age the cache past its TTL with an injected clock.
	now := time.Now()
	clock := func() time.Time { return now }
	repo := NewContactsRepository(cache.NewWithClock(store, clock), gate, fake, ob, 5*time.Minute)

	_, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	gate.SetOnline(false)

	contacts, err := repo.Load(ctx, LoadOptions{ForceRefresh: true})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "srv-1", contacts[0].ID)
	assert.Equal(t, 0, fake.listCalls)
}

func TestContactLoadFreshCacheSkipsRemote(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{contacts: []model.EmergencyContact{{ID: "srv-9", Name: "Maya", Phone: "1112223333"}}}
	repo, _, _ := newContactsFixture(true, fake)

	_, err := repo.Load(ctx, LoadOptions{ForceRefresh: true})
	require.NoError(t, err)
	require.Equal(t, 1, fake.listCalls)

	_, err = repo.Load(ctx, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.listCalls)

	_, err = repo.Load(ctx, LoadOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.listCalls)
}

func TestContactLoadUnauthorizedPropagates(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{err: remote.ErrUnauthorized}
	repo, _, _ := newContactsFixture(true, fake)

	_, err := repo.Load(ctx, LoadOptions{ForceRefresh: true})
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
	assert.Equal(t, StateError, repo.Status())
}

func TestContactLoadNetworkFailureFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, gate, _ := newContactsFixture(false, fake)

	saved, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)

	gate.SetOnline(true)
	fake.err = errors.New("connection reset")
	contacts, err := repo.Load(ctx, LoadOptions{ForceRefresh: true})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, saved.ID, contacts[0].ID)
}

func TestContactReplayPendingInOrder(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, gate, ob := newContactsFixture(false, fake)

	first, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)
	second, err := repo.Save(ctx, model.EmergencyContact{Name: "Maya", Phone: "1112223333"})
	require.NoError(t, err)
	require.Equal(t, 2, ob.Len(ctx))

	gate.SetOnline(true)
	require.NoError(t, repo.ReplayPending(ctx))

	assert.Equal(t, 0, ob.Len(ctx))
	assert.Equal(t, 2, fake.createCalls)
	assert.Equal(t, StateIdle, repo.Status())

	// Both temp entries were promoted to durable ids.
	contacts, err := repo.Load(ctx, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	for _, c := range contacts {
		assert.False(t, c.IsLocalOnly())
		assert.NotEqual(t, first.ID, c.ID)
		assert.NotEqual(t, second.ID, c.ID)
	}
}

func TestContactReplayStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, gate, ob := newContactsFixture(false, fake)

	_, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)
	_, err = repo.Save(ctx, model.EmergencyContact{Name: "Maya", Phone: "1112223333"})
	require.NoError(t, err)

	gate.SetOnline(true)
	fake.err = errors.New("gateway timeout")

	require.NoError(t, repo.ReplayPending(ctx))
	assert.Equal(t, 1, fake.createCalls)
	assert.Equal(t, 2, ob.Len(ctx))
	assert.Equal(t, StateError, repo.Status())
}

func TestContactReplayUnauthorizedPropagates(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, gate, _ := newContactsFixture(false, fake)

	_, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)

	gate.SetOnline(true)
	fake.err = remote.ErrUnauthorized
	assert.ErrorIs(t, repo.ReplayPending(ctx), remote.ErrUnauthorized)
}

func TestContactReplayReusesIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, gate, ob := newContactsFixture(false, fake)

	_, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)
	queued := ob.Pending(ctx)
	require.Len(t, queued, 1)

	gate.SetOnline(true)
	require.NoError(t, repo.ReplayPending(ctx))
	require.Len(t, fake.createKeys, 1)
	assert.Equal(t, queued[0].IdempotencyKey, fake.createKeys[0])
}

func TestContactDeleteTempIDDropsQueuedMutation(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, _, ob := newContactsFixture(false, fake)

	saved, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)
	require.Equal(t, 1, ob.Len(ctx))

	require.NoError(t, repo.Delete(ctx, saved.ID))

	// The insert never reached the server, so nothing stays queued and no
	// remote delete is issued.
	assert.Equal(t, 0, ob.Len(ctx))
	assert.Equal(t, 0, fake.deleteCalls)

	contacts, err := repo.Load(ctx, LoadOptions{})
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestContactDeleteDurableIDQueuesRemoteDelete(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, _, ob := newContactsFixture(true, fake)

	saved, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, saved.ID))
	assert.Equal(t, []string{saved.ID}, fake.deleted)
	assert.Equal(t, 0, ob.Len(ctx))
}

func TestContactDeleteAlreadyGoneCompletes(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{}
	repo, gate, ob := newContactsFixture(false, fake)

	ob.Enqueue(ctx, outbox.Mutation{
		Entity:   "contact",
		Op:       outbox.OpDelete,
		EntityID: "srv-404",
	})

	gate.SetOnline(true)
	fake.err = remote.ErrNotFound

	require.NoError(t, repo.ReplayPending(ctx))
	assert.Equal(t, 0, ob.Len(ctx))
}

func TestContactMergePendingOverlaysQueuedInserts(t *testing.T) {
	ctx := context.Background()
	fake := &fakeContactsRemote{contacts: []model.EmergencyContact{{ID: "srv-1", Name: "Maya", Phone: "1112223333"}}}
	repo, gate, _ := newContactsFixture(false, fake)

	saved, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)

	// A refresh while the insert is still queued must not hide it.
	gate.SetOnline(true)
	contacts, err := repo.Load(ctx, LoadOptions{ForceRefresh: true})
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	ids := []string{contacts[0].ID, contacts[1].ID}
	assert.Contains(t, ids, "srv-1")
	assert.Contains(t, ids, saved.ID)
}

func TestContactClearKeepsPendingMutations(t *testing.T) {
	ctx := context.Background()
	repo, _, ob := newContactsFixture(false, &fakeContactsRemote{})

	_, err := repo.Save(ctx, model.EmergencyContact{Name: "Asha", Phone: "9876543210"})
	require.NoError(t, err)

	repo.Clear(ctx)
	contacts, err := repo.Load(ctx, LoadOptions{})
	require.NoError(t, err)
	assert.Empty(t, contacts)
	assert.Equal(t, 1, ob.Len(ctx))
}

package repository

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian-service/internal/cache"
	"guardian-service/internal/connectivity"
	"guardian-service/internal/kvstore"
	"guardian-service/internal/model"
	"guardian-service/internal/outbox"
	"guardian-service/internal/remote"
)

type fakeLocationRemote struct {
	err     error
	batches [][]model.LocationPoint
}

func (f *fakeLocationRemote) PushLocations(_ context.Context, points []model.LocationPoint) error {
	if f.err != nil {
		return f.err
	}
	batch := make([]model.LocationPoint, len(points))
	copy(batch, points)
	f.batches = append(f.batches, batch)
	return nil
}

func newLocationFixture(online bool, remote LocationRemote, maxHistory int) (*LocationHistoryRepository, *connectivity.StaticGate, *outbox.Outbox) {
	store := kvstore.NewMemoryStore()
	gate := connectivity.NewStaticGate(online)
	ob := outbox.New(store, "locations")
	repo := NewLocationHistoryRepository(cache.New(store), gate, remote, ob, maxHistory)
	return repo, gate, ob
}

func point(id string, lat float64) model.LocationPoint {
	return model.LocationPoint{ID: id, Latitude: lat, Longitude: 77.59, Timestamp: 1}
}

func TestLocationHistoryNewestFirstCapped(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newLocationFixture(false, &fakeLocationRemote{}, 3)

	for i := 1; i <= 5; i++ {
		repo.Record(ctx, point("p"+strconv.Itoa(i), float64(i)))
	}

	history := repo.GetHistory(ctx)
	require.Len(t, history, 3)
	assert.Equal(t, "p5", history[0].ID)
	assert.Equal(t, "p4", history[1].ID)
	assert.Equal(t, "p3", history[2].ID)
	assert.Equal(t, StateTracking, repo.Status())
}

func TestLocationRecordFillsDefaults(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newLocationFixture(false, &fakeLocationRemote{}, 10)

	repo.Record(ctx, model.LocationPoint{Latitude: 12.97, Longitude: 77.59})

	history := repo.GetHistory(ctx)
	require.Len(t, history, 1)
	assert.NotEmpty(t, history[0].ID)
	assert.NotZero(t, history[0].Timestamp)
}

func TestLocationRecordOnlinePushesImmediately(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLocationRemote{}
	repo, _, ob := newLocationFixture(true, fake, 10)

	repo.Record(ctx, point("p1", 12.97))

	require.Len(t, fake.batches, 1)
	require.Len(t, fake.batches[0], 1)
	assert.Equal(t, "p1", fake.batches[0][0].ID)
	assert.Equal(t, 0, ob.Len(ctx))
}

func TestLocationRecordOfflineQueues(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLocationRemote{}
	repo, _, ob := newLocationFixture(false, fake, 10)

	repo.Record(ctx, point("p1", 12.97))
	repo.Record(ctx, point("p2", 12.98))

	assert.Empty(t, fake.batches)
	assert.Equal(t, 2, ob.Len(ctx))
}

func TestLocationReplayPendingUploadsOneBatch(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLocationRemote{}
	repo, gate, ob := newLocationFixture(false, fake, 10)

	repo.Record(ctx, point("p1", 12.97))
	repo.Record(ctx, point("p2", 12.98))
	repo.Record(ctx, point("p3", 12.99))

	gate.SetOnline(true)
	require.NoError(t, repo.ReplayPending(ctx))

	// All queued points travel as a single batch, in enqueue order.
	require.Len(t, fake.batches, 1)
	require.Len(t, fake.batches[0], 3)
	assert.Equal(t, "p1", fake.batches[0][0].ID)
	assert.Equal(t, "p3", fake.batches[0][2].ID)
	assert.Equal(t, 0, ob.Len(ctx))
	assert.Equal(t, StateIdle, repo.Status())
}

func TestLocationReplayFailureKeepsQueue(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLocationRemote{err: errors.New("upload failed")}
	repo, gate, ob := newLocationFixture(false, fake, 10)

	repo.Record(ctx, point("p1", 12.97))
	gate.SetOnline(true)

	require.NoError(t, repo.ReplayPending(ctx))
	assert.Equal(t, 1, ob.Len(ctx))
	assert.Equal(t, StateError, repo.Status())
}

func TestLocationReplayUnauthorizedPropagates(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLocationRemote{err: remote.ErrUnauthorized}
	repo, gate, _ := newLocationFixture(false, fake, 10)

	repo.Record(ctx, point("p1", 12.97))
	gate.SetOnline(true)

	assert.ErrorIs(t, repo.ReplayPending(ctx), remote.ErrUnauthorized)
}

func TestLocationClearDropsHistoryAndQueue(t *testing.T) {
	ctx := context.Background()
	repo, _, ob := newLocationFixture(false, &fakeLocationRemote{}, 10)

	repo.Record(ctx, point("p1", 12.97))
	repo.Record(ctx, point("p2", 12.98))

	repo.Clear(ctx)
	assert.Empty(t, repo.GetHistory(ctx))
	assert.Equal(t, 0, ob.Len(ctx))
	assert.Equal(t, StateIdle, repo.Status())
}

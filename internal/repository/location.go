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

// LocationHistoryRepository keeps a bounded, newest-first ring of recent
// points. History reads are local only; the remote side only ever
// receives pushes, batched through the outbox for the archive.
type LocationHistoryRepository struct {
	cache      *cache.TTLCache
	gate       connectivity.Gate
	remote     LocationRemote
	outbox     *outbox.Outbox
	maxHistory int
	status     *StatusTracker
}

func NewLocationHistoryRepository(c *cache.TTLCache, gate connectivity.Gate, r LocationRemote, ob *outbox.Outbox, maxHistory int) *LocationHistoryRepository {
	return &LocationHistoryRepository{
		cache:      c,
		gate:       gate,
		remote:     r,
		outbox:     ob,
		maxHistory: maxHistory,
		status:     NewStatusTracker(),
	}
}

func (r *LocationHistoryRepository) Status() SyncState {
	return r.status.State()
}

// Record prepends a point to the ring, dropping the oldest beyond the
// cap, then queues it for the archive and attempts an immediate push.
func (r *LocationHistoryRepository) Record(ctx context.Context, point model.LocationPoint) {
	if point.ID == "" {
		point.ID = uuid.New().String()
	}
	if point.Timestamp == 0 {
		point.Timestamp = time.Now().UnixMilli()
	}

	history := r.GetHistory(ctx)
	history = append([]model.LocationPoint{point}, history...)
	if len(history) > r.maxHistory {
		history = history[:r.maxHistory]
	}
	r.cache.SetWithExpiry(ctx, locationCacheKey, history)
	r.status.Set(StateTracking)

	payload, _ := json.Marshal(point)
	m := r.outbox.Enqueue(ctx, outbox.Mutation{
		Entity:         "location",
		Op:             outbox.OpUpsert,
		EntityID:       point.ID,
		IdempotencyKey: outbox.NewKey(),
		Payload:        payload,
		EnqueuedAt:     time.Now().UnixMilli(),
	})

	if r.gate.IsOnline() {
		if err := r.remote.PushLocations(ctx, []model.LocationPoint{point}); err != nil {
			util.Warn("Location push failed, point stays queued",
				zap.String("point_id", point.ID),
				zap.Error(err))
			r.status.Set(StateError)
			return
		}
		r.outbox.Ack(ctx, m.Seq)
	}
}

// GetHistory returns the ring newest-first. Staleness does not apply to
// the device's own track.
func (r *LocationHistoryRepository) GetHistory(ctx context.Context) []model.LocationPoint {
	var history []model.LocationPoint
	if r.cache.GetStale(ctx, locationCacheKey, &history) {
		return history
	}
	return []model.LocationPoint{}
}

// Clear drops the local history and anything still queued for upload.
func (r *LocationHistoryRepository) Clear(ctx context.Context) {
	r.cache.Delete(ctx, locationCacheKey)
	for _, m := range r.outbox.Pending(ctx) {
		r.outbox.Ack(ctx, m.Seq)
	}
	r.status.Set(StateIdle)
}

// ReplayPending uploads the queued points as one batch.
func (r *LocationHistoryRepository) ReplayPending(ctx context.Context) error {
	pending := r.outbox.Pending(ctx)
	if len(pending) == 0 {
		return nil
	}

	points := make([]model.LocationPoint, 0, len(pending))
	for _, m := range pending {
		var point model.LocationPoint
		if err := json.Unmarshal(m.Payload, &point); err != nil {
			util.Error("Dropping undecodable location mutation",
				zap.Int64("seq", m.Seq),
				zap.Error(err))
			r.outbox.Ack(ctx, m.Seq)
			continue
		}
		points = append(points, point)
	}
	if len(points) == 0 {
		return nil
	}

	r.status.Set(StateSyncing)
	if err := r.remote.PushLocations(ctx, points); err != nil {
		r.status.Set(StateError)
		if errors.Is(err, remote.ErrUnauthorized) {
			return err
		}
		util.Warn("Location replay failed", zap.Error(err))
		return nil
	}

	for _, m := range pending {
		r.outbox.Ack(ctx, m.Seq)
	}
	r.status.Set(StateIdle)
	return nil
}

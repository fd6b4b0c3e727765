package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"guardian-service/internal/cache"
	"guardian-service/internal/connectivity"
	"guardian-service/internal/model"
	"guardian-service/internal/outbox"
	"guardian-service/internal/remote"
	"guardian-service/internal/util"
)

// UserInfoRepository caches the {profile, medical, contacts} aggregate
// under a single key. The profile email is server-authoritative: the
// patch type cannot express an email write, so the save path can never
// touch it.
type UserInfoRepository struct {
	cache  *cache.TTLCache
	gate   connectivity.Gate
	remote UserInfoRemote
	outbox *outbox.Outbox
	ttl    time.Duration
	status *StatusTracker
}

func NewUserInfoRepository(c *cache.TTLCache, gate connectivity.Gate, r UserInfoRemote, ob *outbox.Outbox, ttl time.Duration) *UserInfoRepository {
	return &UserInfoRepository{
		cache:  c,
		gate:   gate,
		remote: r,
		outbox: ob,
		ttl:    ttl,
		status: NewStatusTracker(),
	}
}

func (r *UserInfoRepository) Status() SyncState {
	return r.status.State()
}

// Load returns the aggregate, preferring fresh cache, then remote, then
// stale cache, then the zero aggregate. Only an auth failure propagates.
func (r *UserInfoRepository) Load(ctx context.Context, opts LoadOptions) (*model.UserInfo, error) {
	var info model.UserInfo

	if !opts.ForceRefresh {
		if r.cache.GetWithExpiry(ctx, userInfoCacheKey, r.ttl, &info) {
			return &info, nil
		}
	}

	if !r.gate.IsOnline() {
		r.status.Set(StateOffline)
		return r.loadStale(ctx), nil
	}

	r.status.Set(StateSyncing)
	fetched, err := r.remote.FetchUserInfo(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			r.status.Set(StateError)
			return nil, err
		}
		util.Warn("User info fetch failed, serving cache", zap.Error(err))
		r.status.Set(StateError)
		return r.loadStale(ctx), nil
	}

	r.cache.SetWithExpiry(ctx, userInfoCacheKey, fetched)
	r.status.Set(StateIdle)
	return fetched, nil
}

// Save merges the patch into the cached aggregate (optimistic), queues
// the mutation, and attempts an immediate push. Validation failures are
// returned; remote failures are not.
func (r *UserInfoRepository) Save(ctx context.Context, patch *model.UserInfoPatch) error {
	if err := validateUserInfoPatch(patch); err != nil {
		return err
	}

	var info model.UserInfo
	r.cache.GetStale(ctx, userInfoCacheKey, &info)

	if patch.Profile != nil {
		info.Profile = patch.Profile.Apply(info.Profile)
		info.Profile.UpdatedAt = time.Now().UTC()
	}
	if patch.Medical != nil {
		info.Medical = patch.Medical.Apply(info.Medical)
	}
	if patch.Contacts != nil {
		info.Contacts = patch.Contacts
	}
	r.cache.SetWithExpiry(ctx, userInfoCacheKey, &info)

	payload, _ := json.Marshal(patch)
	m := r.outbox.Enqueue(ctx, outbox.Mutation{
		Entity:         "user_info",
		Op:             outbox.OpUpsert,
		EntityID:       info.Profile.ID,
		IdempotencyKey: outbox.NewKey(),
		Payload:        payload,
		EnqueuedAt:     time.Now().UnixMilli(),
	})

	if r.gate.IsOnline() {
		if err := r.remote.PushUserInfo(ctx, patch); err != nil {
			util.Warn("User info push failed, mutation stays queued", zap.Error(err))
			r.status.Set(StateError)
			return nil
		}
		r.outbox.Ack(ctx, m.Seq)
		r.status.Set(StateIdle)
	}
	return nil
}

// Clear drops the cached aggregate, e.g. on logout.
func (r *UserInfoRepository) Clear(ctx context.Context) {
	r.cache.Delete(ctx, userInfoCacheKey)
}

// ReplayPending pushes queued patches in order, stopping at the first
// failure.
func (r *UserInfoRepository) ReplayPending(ctx context.Context) error {
	pending := r.outbox.Pending(ctx)
	if len(pending) == 0 {
		return nil
	}

	r.status.Set(StateSyncing)
	for _, m := range pending {
		var patch model.UserInfoPatch
		if err := json.Unmarshal(m.Payload, &patch); err != nil {
			util.Error("Dropping undecodable user info mutation",
				zap.Int64("seq", m.Seq),
				zap.Error(err))
			r.outbox.Ack(ctx, m.Seq)
			continue
		}
		if err := r.remote.PushUserInfo(ctx, &patch); err != nil {
			r.status.Set(StateError)
			if errors.Is(err, remote.ErrUnauthorized) {
				return err
			}
			util.Warn("User info replay stopped",
				zap.Int64("seq", m.Seq),
				zap.Error(err))
			return nil
		}
		r.outbox.Ack(ctx, m.Seq)
	}
	r.status.Set(StateIdle)
	return nil
}

func (r *UserInfoRepository) loadStale(ctx context.Context) *model.UserInfo {
	var info model.UserInfo
	r.cache.GetStale(ctx, userInfoCacheKey, &info)
	if info.Contacts == nil {
		info.Contacts = []model.EmergencyContact{}
	}
	return &info
}

func validateUserInfoPatch(patch *model.UserInfoPatch) error {
	verr := &util.ValidationError{}

	if patch.Profile != nil {
		if patch.Profile.Name != nil {
			name := util.SanitizeInput(*patch.Profile.Name)
			patch.Profile.Name = &name
			if name == "" {
				verr.Add("userInfo.name", "name must not be empty")
			}
		}
		if patch.Profile.Phone != nil && *patch.Profile.Phone != "" && !util.IsValidPhone(*patch.Profile.Phone) {
			verr.Add("userInfo.phone", "phone must be a 10-digit number")
		}
	}
	if patch.Medical != nil && patch.Medical.EmergencyContactPhone != nil &&
		*patch.Medical.EmergencyContactPhone != "" && !util.IsValidPhone(*patch.Medical.EmergencyContactPhone) {
		verr.Add("medicalInfo.emergency_contact_phone", "phone must be a 10-digit number")
	}
	for i := range patch.Contacts {
		if err := validateContact(&patch.Contacts[i]); err != nil {
			var fieldErr *util.ValidationError
			if errors.As(err, &fieldErr) {
				verr.Fields = append(verr.Fields, fieldErr.Fields...)
			}
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

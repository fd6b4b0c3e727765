// Package cache layers TTL semantics on top of the key-value adapter.
// Every entry carries the wall-clock time it was written; expiry is
// computed at read time against a caller-supplied max age, so the same
// entry can be fresh for one caller and expired for another.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"guardian-service/internal/kvstore"
	"guardian-service/internal/util"
)

// Entry wraps a cached value with its write timestamp in epoch millis.
// WrittenAt is monotonically non-decreasing per key within one process.
type Entry struct {
	Value     json.RawMessage `json:"value"`
	WrittenAt int64           `json:"written_at"`
}

type TTLCache struct {
	store kvstore.Store
	now   func() time.Time
}

func New(store kvstore.Store) *TTLCache {
	return &TTLCache{store: store, now: time.Now}
}

// NewWithClock injects the clock; tests use it to cross TTL boundaries.
func NewWithClock(store kvstore.Store, now func() time.Time) *TTLCache {
	return &TTLCache{store: store, now: now}
}

// GetWithExpiry decodes the entry at key into out when it is younger than
// maxAge. An expired entry is treated identically to an absent one: the
// stale value is not returned even as a hint. A negative age (device clock
// moved backwards) trivially satisfies age < maxAge and counts as fresh.
func (c *TTLCache) GetWithExpiry(ctx context.Context, key string, maxAge time.Duration, out interface{}) bool {
	entry, ok := c.read(ctx, key)
	if !ok {
		return false
	}

	age := c.now().UnixMilli() - entry.WrittenAt
	if age >= maxAge.Milliseconds() {
		return false
	}

	return c.decode(key, entry, out)
}

// GetStale decodes the entry at key regardless of its age. Repositories
// use it as the last-resort fallback when the remote is unreachable.
func (c *TTLCache) GetStale(ctx context.Context, key string, out interface{}) bool {
	entry, ok := c.read(ctx, key)
	if !ok {
		return false
	}
	return c.decode(key, entry, out)
}

// SetWithExpiry stores value stamped with the current time.
func (c *TTLCache) SetWithExpiry(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		util.Error("Failed to marshal cache value",
			zap.String("key", key),
			zap.Error(err))
		return
	}

	entry := Entry{Value: raw, WrittenAt: c.now().UnixMilli()}
	encoded, err := json.Marshal(entry)
	if err != nil {
		util.Error("Failed to marshal cache entry",
			zap.String("key", key),
			zap.Error(err))
		return
	}

	c.store.Set(ctx, key, string(encoded))
}

// Delete removes the entry at key.
func (c *TTLCache) Delete(ctx context.Context, key string) {
	c.store.Delete(ctx, key)
}

func (c *TTLCache) read(ctx context.Context, key string) (*Entry, bool) {
	raw, ok := c.store.Get(ctx, key)
	if !ok {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// Corrupt or pre-versioning payload; treat as a miss.
		util.Warn("Discarding unreadable cache entry",
			zap.String("key", key),
			zap.Error(err))
		return nil, false
	}
	return &entry, true
}

func (c *TTLCache) decode(key string, entry *Entry, out interface{}) bool {
	if err := json.Unmarshal(entry.Value, out); err != nil {
		// Entity shapes are not migrated; a shape change since the write
		// surfaces here and is treated as a miss.
		util.Warn("Discarding cache entry with stale shape",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	return true
}

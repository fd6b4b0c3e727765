// Package bucketing assigns deterministic buckets to users and time
// windows. User buckets spread location rows across ScyllaDB partitions;
// date buckets key the ClickHouse archive.
package bucketing

import (
	"hash"
	"sync"
	"time"

	"guardian-service/internal/config"

	"github.com/spaolacci/murmur3"
)

type Manager struct {
	userBuckets int
	hasherPool  sync.Pool
	config      *config.Config
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		userBuckets: cfg.Bucketing.UserBuckets,
		config:      cfg,
	}

	// Pool of hash functions to avoid allocation overhead on hot paths
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// GetUserBucket returns a consistent bucket for a user (0 to userBuckets-1).
// The same user always lands in the same bucket, so location rows for one
// user stay in one partition.
func (m *Manager) GetUserBucket(userID string) int {
	return int(m.getHash(userID) % uint64(m.userBuckets))
}

// GetTimeBucket truncates now to the start of its window, in epoch seconds.
func (m *Manager) GetTimeBucket(windowSeconds int) int64 {
	return time.Now().Unix() / int64(windowSeconds) * int64(windowSeconds)
}

// GetDateBucket returns the UTC date bucket used by the location archive.
func (m *Manager) GetDateBucket(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

func (m *Manager) GetUserBuckets() int {
	return m.userBuckets
}

func (m *Manager) getHash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}

package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"campus-auth-service/internal/config"
)

// Manager computes the partitioning buckets used by the Scylla credential
// tables and the ClickHouse security-event table. Hashing is murmur3 so
// assignment is stable across processes.
type Manager struct {
	userBuckets  int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		userBuckets:  cfg.Bucketing.UserBuckets,
		eventBuckets: cfg.Bucketing.EventBuckets,
	}

	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// UserBucket returns the consistent bucket for a user id (0..userBuckets-1).
func (m *Manager) UserBucket(userID string) int {
	return m.bucket(userID, m.userBuckets)
}

// EventBucket returns the bucket for a security event's user id.
func (m *Manager) EventBucket(userID string) int {
	return m.bucket(userID, m.eventBuckets)
}

// DateBucket returns the UTC date partition for event rows.
func (m *Manager) DateBucket(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

func (m *Manager) bucket(key string, numBuckets int) int {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return int(hasher.Sum64() % uint64(numBuckets))
}

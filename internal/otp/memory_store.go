package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"campus-auth-service/internal/util"
)

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore keeps one-time codes in a process-local map. A single mutex
// guards the whole map so Consume is one atomic check-and-delete: two
// racing attempts on the same valid code cannot both win.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry

	// now is swapped out by tests.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, userID, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[userID] = entry{code: code, expiresAt: expiresAt}

	util.Debug("One-time code stored",
		util.String("user_id", userID),
		util.Time("expires_at", expiresAt),
	)
	return nil
}

func (s *MemoryStore) Consume(ctx context.Context, userID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return false, nil
	}

	if !s.now().Before(e.expiresAt) {
		delete(s.entries, userID)
		util.Debug("One-time code expired", util.String("user_id", userID))
		return false, nil
	}

	if subtle.ConstantTimeCompare([]byte(e.code), []byte(code)) != 1 {
		// Entry stays so the user may retry until it expires.
		return false, nil
	}

	delete(s.entries, userID)
	return true, nil
}

// Len reports the number of live entries, counting expired ones that have
// not been lazily reaped yet.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Package sessiontrust records that a user completed two-factor
// verification recently, so login does not re-challenge within the
// trust window. Records are ephemeral and process-scoped; expiry is
// evaluated lazily on lookup, not by a timer.
package sessiontrust

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTrustDuration is how long a completed verification suppresses
// the next 2FA challenge.
const DefaultTrustDuration = 24 * time.Hour

// Record marks a user as 2FA-verified until ExpiresAt.
type Record struct {
	UserID     uuid.UUID `json:"user_id"`
	VerifiedAt time.Time `json:"verified_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsExpired reports whether the record is no longer valid at the given time.
func (r Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store holds at most one active trust record per user.
type Store interface {
	// Put records a completed verification, replacing any prior record.
	Put(record Record)
	// Get returns the active record for a user, or false if absent or expired.
	// Expired records are removed on lookup.
	Get(userID uuid.UUID) (Record, bool)
	// Delete removes the record for a user, if any.
	Delete(userID uuid.UUID)
}

// InMemoryStore is the process-local Store implementation.
type InMemoryStore struct {
	mutex   sync.RWMutex
	records map[uuid.UUID]Record
	nowFunc func() time.Time
}

// NewInMemoryStore creates an empty in-memory trust store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[uuid.UUID]Record),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// NewInMemoryStoreWithClock creates a store with an injected clock for tests.
func NewInMemoryStoreWithClock(nowFunc func() time.Time) *InMemoryStore {
	store := NewInMemoryStore()
	store.nowFunc = nowFunc
	return store
}

func (s *InMemoryStore) Put(record Record) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.records[record.UserID] = record
}

func (s *InMemoryStore) Get(userID uuid.UUID) (Record, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, exists := s.records[userID]
	if !exists {
		return Record{}, false
	}
	if record.IsExpired(s.nowFunc()) {
		delete(s.records, userID)
		return Record{}, false
	}
	return record, true
}

func (s *InMemoryStore) Delete(userID uuid.UUID) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.records, userID)
}

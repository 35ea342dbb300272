package idempotency

import (
	"context"
	"sync"
	"time"
)

const defaultMemoryCapacity = 10000

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithCapacity bounds the number of keys held. When full, expired keys are swept first and then
// the key closest to expiry is evicted.
func WithCapacity(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// MemoryStore keeps records in process. It backs single-instance deployments on the pebble and
// postgres drivers, where replays need not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	capacity int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{records: make(map[string]Record), capacity: defaultMemoryCapacity}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	id := compositeKey(key, fingerprint)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.records[id]
	res, claim, err := reserve(existing, found, key, fingerprint, now, ttl)
	if err != nil || !claim {
		return res, err
	}
	if !found {
		s.makeRoomLocked(now)
	}
	s.records[id] = res.Record
	return res, nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	id := compositeKey(key, fingerprint)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.records[id]
	record, err := complete(existing, found, key, fingerprint, resp, now, ttl)
	if err != nil {
		return err
	}
	if !found {
		s.makeRoomLocked(now)
	}
	s.records[id] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	s.mu.Lock()
	delete(s.records, compositeKey(key, fingerprint))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now.UTC(), limit), nil
}

// Len reports how many keys are held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) sweepLocked(now time.Time, limit int) int {
	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) makeRoomLocked(now time.Time) {
	if len(s.records) < s.capacity {
		return
	}
	if s.sweepLocked(now, 0) > 0 {
		return
	}
	var (
		victim  string
		soonest time.Time
	)
	for id, record := range s.records {
		if victim == "" || record.ExpiresAt.Before(soonest) {
			victim, soonest = id, record.ExpiresAt
		}
	}
	delete(s.records, victim)
}

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and local
// development. Claim holds the lock across lookup and flip, which gives the
// same single-winner guarantee the Mongo implementation gets from
// FindOneAndUpdate.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *rec
	s.records[rec.ID] = &clone
	return nil
}

func (s *MemoryStore) Claim(_ context.Context, userID, tokenHash string) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var match *Record
	for _, rec := range s.records {
		if rec.UserID == userID && rec.TokenHash == tokenHash {
			match = rec
			break
		}
	}
	if match == nil {
		return nil, false, nil
	}

	before := *match
	if match.Status != TokenValid {
		return &before, false, nil
	}

	match.Status = TokenInvalid
	return &before, true, nil
}

func (s *MemoryStore) MarkRevoked(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok {
		t := at
		rec.RevokedAt = &t
	}
	return nil
}

func (s *MemoryStore) InvalidateAll(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Status == TokenValid {
			rec.Status = TokenInvalid
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the record by ID, or nil. Test helper.
func (s *MemoryStore) Get(id string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	clone := *rec
	return &clone
}

// Len returns the number of stored records. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

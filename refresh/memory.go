package refresh

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the mutex-guarded reference [Store] implementation. It
// exists for tests and single-process deployments; production swaps in
// [RedisStore] without orchestrator changes.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]*Record
	subjects map[string]map[string]struct{}
	now      func() time.Time
}

// NewMemoryStore creates a [MemoryStore]. now defaults to time.Now; tests
// inject a fake clock to drive expiry deterministically.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		records:  make(map[string]*Record),
		subjects: make(map[string]map[string]struct{}),
		now:      now,
	}
}

// Save persists rec, failing with [ErrDuplicateHash] on a hash collision.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.TokenHash]; ok {
		if existing.ExpiresAt.After(s.now()) {
			return ErrDuplicateHash
		}
		s.dropLocked(existing)
	}

	stored := rec
	s.records[rec.TokenHash] = &stored

	idx, ok := s.subjects[rec.SubjectID]
	if !ok {
		idx = make(map[string]struct{})
		s.subjects[rec.SubjectID] = idx
	}
	idx[rec.TokenHash] = struct{}{}

	return nil
}

// FindByHash returns a copy of the record for hash, or (nil, nil) when absent
// or expired.
func (s *MemoryStore) FindByHash(_ context.Context, hash string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[hash]
	if !ok {
		return nil, nil
	}
	if !rec.ExpiresAt.After(s.now()) {
		s.dropLocked(rec)
		return nil, nil
	}

	out := *rec
	return &out, nil
}

// Revoke performs the test-and-set under the store lock, which makes it
// atomic with respect to every other store operation.
func (s *MemoryStore) Revoke(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revokeLocked(hash), nil
}

// RevokeAllForSubject revokes every live record for subjectID.
func (s *MemoryStore) RevokeAllForSubject(_ context.Context, subjectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for hash := range s.subjects[subjectID] {
		if s.revokeLocked(hash) {
			revoked++
		}
	}
	return revoked, nil
}

// DeleteAllForSubject removes every record for subjectID.
func (s *MemoryStore) DeleteAllForSubject(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash := range s.subjects[subjectID] {
		delete(s.records, hash)
	}
	delete(s.subjects, subjectID)
	return nil
}

func (s *MemoryStore) revokeLocked(hash string) bool {
	rec, ok := s.records[hash]
	if !ok || rec.Revoked {
		return false
	}
	if !rec.ExpiresAt.After(s.now()) {
		s.dropLocked(rec)
		return false
	}
	rec.Revoked = true
	return true
}

func (s *MemoryStore) dropLocked(rec *Record) {
	delete(s.records, rec.TokenHash)
	if idx, ok := s.subjects[rec.SubjectID]; ok {
		delete(idx, rec.TokenHash)
		if len(idx) == 0 {
			delete(s.subjects, rec.SubjectID)
		}
	}
}

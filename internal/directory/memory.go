package directory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MemoryStore keeps records in a process-local map. Used by tests and the
// demo seeder; records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]UserRecord // keyed by LocalID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]UserRecord),
	}
}

func (s *MemoryStore) FindByCredentials(_ context.Context, username, password string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Username != username {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
			return nil, ErrNotFound
		}
		out := rec
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindByUsername(_ context.Context, username string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Username == username {
			out := rec
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindByLocalID(_ context.Context, localID string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[localID]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) FindByRemoteID(_ context.Context, remoteID string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.RemoteID == remoteID {
			out := rec
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Insert(_ context.Context, record *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.LocalID]; ok {
		return ErrDuplicate
	}
	for _, rec := range s.records {
		if rec.Username == record.Username {
			return ErrDuplicate
		}
	}

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	s.records[record.LocalID] = *record
	return nil
}

func (s *MemoryStore) Update(_ context.Context, localID string, fields UpdateFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[localID]
	if !ok {
		return ErrNotFound
	}

	if fields.DisplayName != nil {
		rec.DisplayName = *fields.DisplayName
	}
	if fields.Username != nil {
		rec.Username = *fields.Username
	}
	if fields.PasswordHash != nil {
		rec.PasswordHash = *fields.PasswordHash
	}
	rec.UpdatedAt = time.Now()

	s.records[localID] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[localID]; !ok {
		return ErrNotFound
	}
	delete(s.records, localID)
	return nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]UserRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

package mock

import (
	"context"
	"sync"

	"duewatch/internal/credential"
)

// Store is an in-memory credential.Store for tests. Setting Err makes every
// operation fail with it, simulating an unavailable backend.
type Store struct {
	mu      sync.Mutex
	records map[string]credential.Record

	Err error
	// GetErr fails only Get, leaving Put and Delete working.
	GetErr error

	Puts    int
	Deletes int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]credential.Record)}
}

func (s *Store) Put(_ context.Context, record credential.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return credential.StorageError("put", record.SubjectID, s.Err)
	}
	s.records[record.SubjectID] = record
	s.Puts++
	return nil
}

func (s *Store) Get(_ context.Context, subjectID string) (credential.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return credential.Record{}, credential.StorageError("get", subjectID, s.Err)
	}
	if s.GetErr != nil {
		return credential.Record{}, credential.StorageError("get", subjectID, s.GetErr)
	}
	record, ok := s.records[subjectID]
	if !ok {
		return credential.Record{}, credential.ErrNotFound
	}
	return record, nil
}

func (s *Store) Delete(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return credential.StorageError("delete", subjectID, s.Err)
	}
	delete(s.records, subjectID)
	s.Deletes++
	return nil
}

func (s *Store) Close() error { return nil }

// Seed stores record without counting it as a Put.
func (s *Store) Seed(record credential.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.SubjectID] = record
}

// Has reports whether a record exists for subjectID.
func (s *Store) Has(subjectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[subjectID]
	return ok
}

// Record returns the stored record for subjectID.
func (s *Store) Record(subjectID string) (credential.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[subjectID]
	return r, ok
}

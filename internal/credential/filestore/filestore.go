// Package filestore persists credential records as one JSON file per
// subject.
//
// Files are created with 0600 permissions inside a 0700 directory and are
// named by a hash of the subject ID, so identities never appear on disk as
// file names. Writes go through a temporary file and a rename, so a crash
// mid-write leaves the previous record intact.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"duewatch/internal/credential"
	"duewatch/pkg/logging"
)

// DefaultDir is the storage directory relative to the user's home.
const DefaultDir = ".config/duewatch/credentials"

// Store is a file-backed credential.Store.
type Store struct {
	dir   string
	locks *credential.LockTable
}

// New creates a store rooted at dir, creating it if needed. An empty dir
// selects DefaultDir under the user's home directory.
func New(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	return &Store{dir: dir, locks: credential.NewLockTable()}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes record, replacing any previous record for the subject.
func (s *Store) Put(ctx context.Context, record credential.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return credential.StorageError("put", record.SubjectID, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	key := fileKey(record.SubjectID)
	unlock := s.locks.Lock(key)
	defer unlock()

	if err := writeFileAtomic(s.path(key), data); err != nil {
		logging.Error("FileStore", err, "Failed to persist credential for subject=%s", logging.TruncateID(record.SubjectID))
		return credential.StorageError("put", record.SubjectID, err)
	}
	return nil
}

// Get reads the record for subjectID or returns credential.ErrNotFound.
func (s *Store) Get(ctx context.Context, subjectID string) (credential.Record, error) {
	if subjectID == "" {
		return credential.Record{}, credential.ErrEmptySubject
	}
	if err := ctx.Err(); err != nil {
		return credential.Record{}, credential.StorageError("get", subjectID, err)
	}

	key := fileKey(subjectID)
	unlock := s.locks.Lock(key)
	defer unlock()

	// #nosec G304 -- path is built from a hash, not user input
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return credential.Record{}, credential.ErrNotFound
	}
	if err != nil {
		return credential.Record{}, credential.StorageError("get", subjectID, err)
	}

	var record credential.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return credential.Record{}, credential.StorageError("get", subjectID, fmt.Errorf("corrupt credential file: %w", err))
	}
	return record, nil
}

// Delete removes the record for subjectID. Missing records are not an error.
func (s *Store) Delete(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return credential.ErrEmptySubject
	}
	if err := ctx.Err(); err != nil {
		return credential.StorageError("delete", subjectID, err)
	}

	key := fileKey(subjectID)
	unlock := s.locks.Lock(key)
	defer unlock()

	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return credential.StorageError("delete", subjectID, err)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// fileKey derives a filesystem-safe name from a subject ID.
func fileKey(subjectID string) string {
	hash := sha256.Sum256([]byte(subjectID))
	return hex.EncodeToString(hash[:16])
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

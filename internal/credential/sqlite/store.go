// Package sqlite provides a SQLite-backed credential.Store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"duewatch/internal/credential"
	"duewatch/internal/credential/sqlite/migrations"
)

// Store persists credentials in a single SQLite table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put upserts record.
func (s *Store) Put(ctx context.Context, record credential.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	scopes, err := json.Marshal(credential.NormalizeScopes(record.Scopes))
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO credentials (
	subject_id,
	access_token,
	refresh_token,
	token_type,
	expiry,
	scopes,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(subject_id) DO UPDATE SET
	access_token = excluded.access_token,
	refresh_token = excluded.refresh_token,
	token_type = excluded.token_type,
	expiry = excluded.expiry,
	scopes = excluded.scopes,
	updated_at = excluded.updated_at
`,
		record.SubjectID,
		record.AccessToken,
		record.RefreshToken,
		record.TokenType,
		toMillis(record.Expiry),
		string(scopes),
		record.CreatedAt.UTC().UnixMilli(),
		record.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return credential.StorageError("put", record.SubjectID, err)
	}
	return nil
}

// Get loads the record for subjectID or returns credential.ErrNotFound.
func (s *Store) Get(ctx context.Context, subjectID string) (credential.Record, error) {
	if subjectID == "" {
		return credential.Record{}, credential.ErrEmptySubject
	}

	var (
		record    credential.Record
		expiry    int64
		scopes    string
		createdAt int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT subject_id, access_token, refresh_token, token_type, expiry, scopes, created_at, updated_at
FROM credentials
WHERE subject_id = ?
`, subjectID).Scan(
		&record.SubjectID,
		&record.AccessToken,
		&record.RefreshToken,
		&record.TokenType,
		&expiry,
		&scopes,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return credential.Record{}, credential.ErrNotFound
	}
	if err != nil {
		return credential.Record{}, credential.StorageError("get", subjectID, err)
	}

	if err := json.Unmarshal([]byte(scopes), &record.Scopes); err != nil {
		return credential.Record{}, credential.StorageError("get", subjectID, fmt.Errorf("decode scopes: %w", err))
	}
	record.Expiry = fromMillis(expiry)
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return record, nil
}

// Delete removes the record for subjectID, if any.
func (s *Store) Delete(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return credential.ErrEmptySubject
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE subject_id = ?`, subjectID); err != nil {
		return credential.StorageError("delete", subjectID, err)
	}
	return nil
}

// Zero expiry is stored as 0 so "no expiry" survives a round trip.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

var _ credential.Store = (*Store)(nil)

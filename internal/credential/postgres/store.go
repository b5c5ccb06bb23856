// Package postgres provides a PostgreSQL-backed credential.Store.
//
// The connection and schema are set up lazily on first use, so constructing
// a store never touches the network.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"duewatch/internal/credential"
)

const (
	defaultTableName = "duewatch_credentials"
	operationTimeout = 5 * time.Second
)

// ErrEmptyDSN is returned by New when no connection string is given.
var ErrEmptyDSN = errors.New("postgres dsn is required")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Store persists credentials in a PostgreSQL table.
type Store struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	// mu guards db. db stays nil until setup succeeds, so a failed setup
	// is retried by the next operation.
	mu sync.Mutex
	db *sql.DB
}

// New creates a store for dsn. Table defaults to "duewatch_credentials".
func New(dsn, table string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrEmptyDSN
	}
	table = strings.TrimSpace(table)
	if table == "" {
		table = defaultTableName
	}
	return &Store{
		dsn:       dsn,
		tableName: table,
		openDB:    sql.Open,
	}, nil
}

// Put upserts record.
func (s *Store) Put(ctx context.Context, record credential.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	db, err := s.ensureReady(ctx)
	if err != nil {
		return credential.StorageError("put", record.SubjectID, err)
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
	var expiry sql.NullTime
	if !record.Expiry.IsZero() {
		expiry = sql.NullTime{Time: record.Expiry.UTC(), Valid: true}
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (subject_id, access_token, refresh_token, token_type, expiry, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (subject_id)
		DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			scopes = EXCLUDED.scopes,
			updated_at = EXCLUDED.updated_at`, quoteIdentifier(s.tableName))
	_, err = db.ExecContext(ctx, query,
		record.SubjectID,
		record.AccessToken,
		record.RefreshToken,
		record.TokenType,
		expiry,
		string(scopes),
		record.CreatedAt.UTC(),
		record.UpdatedAt.UTC(),
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
	db, err := s.ensureReady(ctx)
	if err != nil {
		return credential.Record{}, credential.StorageError("get", subjectID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT subject_id, access_token, refresh_token, token_type, expiry, scopes, created_at, updated_at
		FROM %s WHERE subject_id = $1`, quoteIdentifier(s.tableName))

	var (
		record credential.Record
		expiry sql.NullTime
		scopes string
	)
	err = db.QueryRowContext(ctx, query, subjectID).Scan(
		&record.SubjectID,
		&record.AccessToken,
		&record.RefreshToken,
		&record.TokenType,
		&expiry,
		&scopes,
		&record.CreatedAt,
		&record.UpdatedAt,
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
	if expiry.Valid {
		record.Expiry = expiry.Time.UTC()
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

// Delete removes the record for subjectID, if any.
func (s *Store) Delete(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return credential.ErrEmptySubject
	}
	db, err := s.ensureReady(ctx)
	if err != nil {
		return credential.StorageError("delete", subjectID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE subject_id = $1", quoteIdentifier(s.tableName))
	if _, err := db.ExecContext(ctx, query, subjectID); err != nil {
		return credential.StorageError("delete", subjectID, err)
	}
	return nil
}

// Close releases the connection pool if it was opened.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ensureReady opens the pool and creates the table on first use. Until that
// succeeds every call tries again.
func (s *Store) ensureReady(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	db, err := s.openDB("postgres", s.dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), operationTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			subject_id TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			token_type TEXT NOT NULL DEFAULT '',
			expiry TIMESTAMPTZ NULL,
			scopes TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, quoteIdentifier(s.tableName))
	if _, err := db.ExecContext(ctx, query); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.db = db
	return db, nil
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

var _ credential.Store = (*Store)(nil)

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duewatch/internal/credential"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestStore_RoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rec := credential.Record{
		SubjectID:    "alice",
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2024, 5, 10, 13, 0, 0, 0, time.UTC),
		Scopes:       []string{"b", "a", "b"},
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
	assert.Equal(t, "Bearer", got.TokenType)
	assert.True(t, rec.Expiry.Equal(got.Expiry))
	assert.Equal(t, []string{"b", "a"}, got.Scopes)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestStore_UpsertKeepsCreatedAt(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, credential.Record{
		SubjectID: "alice", AccessToken: "one", CreatedAt: created, UpdatedAt: created,
	}))
	require.NoError(t, store.Put(ctx, credential.Record{
		SubjectID: "alice", AccessToken: "two",
		CreatedAt: created.Add(time.Hour), UpdatedAt: created.Add(time.Hour),
	}))

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "two", got.AccessToken)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.True(t, created.Add(time.Hour).Equal(got.UpdatedAt))
}

func TestStore_ZeroExpiry(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, credential.Record{SubjectID: "alice", AccessToken: "a"}))
	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.Expiry.IsZero())
	assert.Empty(t, got.Scopes)
}

func TestStore_DeleteAndNotFound(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "alice")
	assert.ErrorIs(t, err, credential.ErrNotFound)

	require.NoError(t, store.Put(ctx, credential.Record{SubjectID: "alice", AccessToken: "a"}))
	require.NoError(t, store.Delete(ctx, "alice"))
	require.NoError(t, store.Delete(ctx, "alice"))

	_, err = store.Get(ctx, "alice")
	assert.ErrorIs(t, err, credential.ErrNotFound)
}

func TestStore_ReopenSkipsAppliedMigrations(t *testing.T) {
	store, path := openTestStore(t)
	require.NoError(t, store.Put(context.Background(), credential.Record{SubjectID: "alice", AccessToken: "a"}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
}

func TestStore_ClosedDatabaseIsStorageError(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.Get(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, credential.IsStorageUnavailable(err))
}

func TestUpSection(t *testing.T) {
	assert.Equal(t, "\nCREATE x;\n\n", upSection("-- +migrate Up\nCREATE x;\n\n-- +migrate Down\nDROP x;"))
	assert.Equal(t, "CREATE y;", upSection("CREATE y;"))
}

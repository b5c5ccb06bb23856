package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duewatch/internal/config"
	"duewatch/internal/credential"
	"duewatch/internal/delivery"
	"duewatch/internal/source"
)

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenStore(config.StoreConfig{Type: config.StoreTypeFile, Path: filepath.Join(dir, "files")})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = OpenStore(config.StoreConfig{Type: config.StoreTypeSQLite, Path: filepath.Join(dir, "creds.db")})
	require.NoError(t, err)
	_, err = store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, credential.ErrNotFound)
	require.NoError(t, store.Close())

	_, err = OpenStore(config.StoreConfig{Type: config.StoreTypePostgres})
	assert.Error(t, err, "postgres requires a dsn")

	_, err = OpenStore(config.StoreConfig{Type: "redis"})
	assert.Error(t, err)
}

func TestNewDeliverer(t *testing.T) {
	var buf bytes.Buffer
	d, err := NewDeliverer(config.DeliveryConfig{Type: config.DeliveryTypeSlack, SlackToken: "x"}, true, &buf)
	require.NoError(t, err)
	assert.IsType(t, &delivery.Log{}, d, "dry run wins")

	d, err = NewDeliverer(config.DeliveryConfig{Type: config.DeliveryTypeSlack, SlackToken: "xoxb"}, false, nil)
	require.NoError(t, err)
	assert.IsType(t, &delivery.Slack{}, d)

	_, err = NewDeliverer(config.DeliveryConfig{Type: config.DeliveryTypeSlack}, false, nil)
	assert.Error(t, err)

	_, err = NewDeliverer(config.DeliveryConfig{Type: "pager"}, false, nil)
	assert.Error(t, err)
}

func TestNewSources(t *testing.T) {
	sources, err := NewSources(config.SourcesConfig{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, sources)

	sources, err = NewSources(config.SourcesConfig{
		Session: config.SessionConfig{LoginURL: "http://lib/login", ItemsURL: "http://lib/items"},
	}, nil, nil)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, source.SessionSourceName, sources[0].Name())
}

func TestNewApplication(t *testing.T) {
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(registryPath, []byte("users:\n  - subject: U1\n    source: session\n"), 0600))

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
store:
  type: sqlite
  path: `+filepath.Join(dir, "creds.db")+`
scheduler:
  registryPath: `+registryPath+`
  defaultSource: session
sources:
  session:
    loginURL: http://lib.invalid/login
    itemsURL: http://lib.invalid/items
`), 0600))

	var logs bytes.Buffer
	cfg := NewConfig(true, configPath)
	cfg.LogOutput = &logs

	application, err := NewApplication(cfg)
	require.NoError(t, err)
	defer application.Close()

	require.NotNil(t, cfg.Settings)
	assert.Equal(t, config.StoreTypeSQLite, application.Settings().Store.Type)

	_, err = application.Manager()
	assert.ErrorIs(t, err, ErrOAuthDisabled)

	sched, err := application.NewScheduler(true, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, sched.Registry().Len())
}

func TestNewApplication_WithOAuth(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
oauth:
  clientID: client-1
  stateSecret: 0123456789abcdef0123456789abcdef
store:
  path: `+filepath.Join(dir, "creds")+`
`), 0600))

	cfg := NewConfig(false, configPath)
	cfg.LogOutput = &bytes.Buffer{}
	application, err := NewApplication(cfg)
	require.NoError(t, err)
	defer application.Close()

	manager, err := application.Manager()
	require.NoError(t, err)

	res, err := manager.Authorize(context.Background(), "U1")
	require.NoError(t, err)
	assert.False(t, res.AlreadyAuthorized)
	assert.Contains(t, res.AuthURL, "client_id=client-1")
}

func TestNewApplication_BadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("store:\n  type: redis\n"), 0600))

	_, err := NewApplication(NewConfig(false, configPath))
	assert.Error(t, err)
}

package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
	assert.Empty(t, store.Keys())
}

func TestConfigStore_SetWritesNestedTables(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("index.backend", "memory"))
	require.NoError(t, store.Set("sync.fetch_limit", 50))
	require.NoError(t, store.Set("data_dir", "/tmp/homeqa"))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[index]")
	assert.Contains(t, string(raw), "backend = 'memory'")
	assert.Contains(t, string(raw), "[sync]")
	assert.Contains(t, string(raw), "data_dir = '/tmp/homeqa'")
}

func TestConfigStore_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Set("scheduler.enabled", true))
	require.NoError(t, store.Set("sync.fetch_limit", 50))
	require.NoError(t, store.Set("labels", []string{"INBOX", "Sports"}))

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.True(t, reloaded.GetBool("scheduler.enabled"))
	assert.Equal(t, 50, reloaded.GetInt("sync.fetch_limit"))
	assert.Equal(t, "50", reloaded.GetString("sync.fetch_limit"))
	assert.Equal(t, []string{"INBOX", "Sports"}, reloaded.GetStringSlice("labels"))
	assert.Equal(t, []string{"labels", "scheduler.enabled", "sync.fetch_limit"}, reloaded.Keys())
}

func TestConfigStore_Missing(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	_, ok := store.Get("nope")
	assert.False(t, ok)
	assert.Empty(t, store.GetString("nope"))
	assert.Zero(t, store.GetInt("nope"))
	assert.False(t, store.GetBool("nope"))
	assert.Nil(t, store.GetStringSlice("nope"))
}

func TestConfigStore_InvalidKeys(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("index.backend", "sqlite"))

	assert.Error(t, store.Set("", "x"))
	assert.Error(t, store.Set("index.", "x"))
	assert.Error(t, store.Set("index", "x"))
	assert.Error(t, store.Set("index.backend.kind", "x"))
}

func TestConfigStore_LoadInvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("not = [valid"), 0o600))

	_, err := NewConfigStore(tmpDir)

	assert.Error(t, err)
}

func TestNestMap(t *testing.T) {
	nested := nestMap(map[string]any{"a.b": 1, "a.c": 2, "d": 3})

	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1, "c": 2}, "d": 3}, nested)
	assert.Equal(t, map[string]any{"a.b": 1, "a.c": 2, "d": 3}, flattenMap(nested, ""))
}

package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/homeqa/internal/adapters/driven/storage/memory"
)

func TestConfigCmd_ErrorsWithoutStore(t *testing.T) {
	SetServices(Services{})

	_, err := runCLI(t, "config", "path")

	assert.ErrorIs(t, err, errConfigNotConfigured)
}

func TestConfigCmd_SetGet(t *testing.T) {
	env := setupTestServices(t)

	out, err := runCLI(t, "config", "set", "index.backend", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "index.backend = sqlite")

	out, err = runCLI(t, "config", "get", "index.backend")
	require.NoError(t, err)
	assert.Equal(t, "sqlite\n", out)

	_, err = runCLI(t, "config", "set", "sync.fetch_limit", "50")
	require.NoError(t, err)
	assert.Equal(t, 50, env.store.GetInt("sync.fetch_limit"))

	_, err = runCLI(t, "config", "set", "log.json", "true")
	require.NoError(t, err)
	assert.True(t, env.store.GetBool("log.json"))
}

func TestConfigCmd_GetMissing(t *testing.T) {
	setupTestServices(t)

	out, err := runCLI(t, "config", "get", "nothing.here")

	require.NoError(t, err)
	assert.Contains(t, out, "nothing.here is not set")
}

func TestConfigCmd_ListAndPath(t *testing.T) {
	env := setupTestServices(t)
	require.NoError(t, env.store.Set("embedding.provider", "hashing"))

	out, err := runCLI(t, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "embedding.provider = hashing")

	out, err = runCLI(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, "config.toml", filepath.Base(out[:len(out)-1]))
}

func TestParseConfigValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-3", int64(-3)},
		{"true", true},
		{"false", false},
		{"memory", "memory"},
		{"1.5", "1.5"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseConfigValue(tt.in))
		})
	}
}

func TestConfigCmd_MemoryStore(t *testing.T) {
	setupTestServices(t)
	store := memory.NewConfigStore()
	configStore = store

	_, err := runCLI(t, "config", "set", "index.top_k", "7")
	require.NoError(t, err)
	assert.Equal(t, 7, store.GetInt("index.top_k"))

	out, err := runCLI(t, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, ":memory:")
}

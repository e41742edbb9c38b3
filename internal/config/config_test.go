package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.True(t, cfg.Index.Hybrid)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.NotEmpty(t, cfg.Storage.Dir)
}

func TestLoad_ParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semindex.yaml")
	content := `
embedding:
  provider: openai
  model: text-embedding-3-small
index:
  hybrid: false
  chunk_size: 500
search:
  top_k: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.False(t, cfg.Index.Hybrid)
	assert.Equal(t, 500, cfg.Index.ChunkSize)
	assert.Equal(t, 25, cfg.Search.TopK)
	// Unset fields keep defaults.
	assert.NotEmpty(t, cfg.Storage.Registry)
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("SEMINDEX_TEST_KEY", "sk-secret")
	path := filepath.Join(t.TempDir(), "semindex.yaml")
	content := `
embedding:
  provider: openai
  api_key: "[SEMINDEX_TEST_KEY]"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.Embedding.APIKey)
}

func TestLoad_MissingEnvFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semindex.yaml")
	content := `
embedding:
  api_key: "[SEMINDEX_DEFINITELY_UNSET_VAR]"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEMINDEX_DEFINITELY_UNSET_VAR")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSubstituteEnv_LeavesLowercaseAlone(t *testing.T) {
	out, err := substituteEnv(`patterns: ["**/dist/**", "[abc]"]`)
	require.NoError(t, err)
	assert.Contains(t, out, "[abc]")
}

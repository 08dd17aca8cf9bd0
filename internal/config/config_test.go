package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("JINA_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := NewLoader("").WithoutDotenv().Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".spot"), cfg.DataDir)
	assert.Equal(t, "global", cfg.DefaultWorkspace)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 50, cfg.Search.Candidates)
	assert.Equal(t, 5*time.Minute, cfg.Search.CacheTTL)
	assert.Equal(t, BackendSQLite, cfg.Index.Backend)
	assert.Equal(t, filepath.Join(home, ".spot", "spot.db"), cfg.IndexPath())
	assert.Equal(t, filepath.Join(home, ".spot", "locks"), cfg.LockDir())
	assert.True(t, cfg.Reranker.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: `+dir+`
search:
  top_k: 5
  cache_ttl: 30s
index:
  backend: chromem
  strategy: memory
`), 0o600))

	t.Setenv("SPOT_SEARCH_CANDIDATES", "80")
	t.Setenv("SPOT_LOG_LEVEL", "debug")

	cfg, err := NewLoader(path).WithoutDotenv().Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Search.TopK)
	assert.Equal(t, 80, cfg.Search.Candidates)
	assert.Equal(t, 30*time.Second, cfg.Search.CacheTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Index.Strategy)
	assert.Equal(t, filepath.Join(dir, "chromem"), cfg.IndexPath())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml")).WithoutDotenv().Load()
	require.Error(t, err)
}

func TestLoadProviderKeys(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := NewLoader("").WithoutDotenv().Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)

	t.Setenv("JINA_API_KEY", "jina-test")
	cfg, err = NewLoader("").WithoutDotenv().Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Embedding.Provider)
	assert.Equal(t, "jina-test", cfg.Embedding.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.Index.Backend = "postgres" }},
		{"bad strategy", func(c *Config) { c.Index.Strategy = "lines" }},
		{"overlap too large", func(c *Config) { c.Index.OverlapRatio = 0.95 }},
		{"top_k zero", func(c *Config) { c.Search.TopK = 0 }},
		{"candidates below top_k", func(c *Config) { c.Search.Candidates = 5 }},
		{"candidates above max", func(c *Config) { c.Search.Candidates = 501 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"bad reranker provider", func(c *Config) { c.Reranker.Provider = "llm" }},
	}

	require.NoError(t, DefaultConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsInvalid(err))
		})
	}
}

func TestLockDirDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/spot"
	cfg.Index.CrossProcessLock = false
	assert.Empty(t, cfg.LockDir())
}

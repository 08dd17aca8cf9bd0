package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SPOT_SEARCH_TOP_K
const EnvPrefix = "SPOT"

// Loader handles configuration loading
type Loader struct {
	configPath string
	dotenv     bool
}

// NewLoader creates a new config loader. An empty configPath looks for
// ~/.spot/config.yaml and falls back to defaults when it is missing.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath, dotenv: true}
}

// WithoutDotenv disables loading .env from the working directory
func (l *Loader) WithoutDotenv() *Loader {
	l.dotenv = false
	return l
}

// Load merges defaults, the config file and the environment
func (l *Loader) Load() (*Config, error) {
	if l.dotenv {
		// A missing .env is normal.
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if l.configPath != "" {
			// An explicit path must exist.
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".spot", "config.yaml")
}

// resolve fills values derived from other settings
func (c *Config) resolve() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".spot")
	}
	c.DataDir = expandHome(c.DataDir)
	c.Index.Path = expandHome(c.Index.Path)
	c.Log.File = expandHome(c.Log.File)

	// Provider specific keys are honoured when no explicit key is set.
	if c.Embedding.APIKey == "" {
		switch c.Embedding.Provider {
		case "", "jina":
			c.Embedding.APIKey = os.Getenv("JINA_API_KEY")
		case "openai":
			c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if c.Embedding.APIKey == "" && c.Embedding.Provider == "" {
			c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
			if c.Embedding.APIKey != "" {
				c.Embedding.Provider = "openai"
			}
		}
	}
	if c.Reranker.APIKey == "" && c.Reranker.Provider == "cross-encoder" {
		c.Reranker.APIKey = os.Getenv("JINA_API_KEY")
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// setDefaults registers every key with viper so environment variables
// are picked up by Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("default_workspace", d.DefaultWorkspace)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("log.file", d.Log.File)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)

	v.SetDefault("reranker.enabled", d.Reranker.Enabled)
	v.SetDefault("reranker.provider", d.Reranker.Provider)
	v.SetDefault("reranker.model", d.Reranker.Model)
	v.SetDefault("reranker.api_key", d.Reranker.APIKey)
	v.SetDefault("reranker.base_url", d.Reranker.BaseURL)
	v.SetDefault("reranker.timeout", d.Reranker.Timeout)

	v.SetDefault("search.top_k", d.Search.TopK)
	v.SetDefault("search.candidates", d.Search.Candidates)
	v.SetDefault("search.enhance", d.Search.Enhance)
	v.SetDefault("search.apply_hints", d.Search.ApplyHints)
	v.SetDefault("search.max_expansions", d.Search.MaxExpansions)
	v.SetDefault("search.cache_size", d.Search.CacheSize)
	v.SetDefault("search.cache_ttl", d.Search.CacheTTL)

	v.SetDefault("index.backend", d.Index.Backend)
	v.SetDefault("index.path", d.Index.Path)
	v.SetDefault("index.workers", d.Index.Workers)
	v.SetDefault("index.strategy", d.Index.Strategy)
	v.SetDefault("index.max_chunk_chars", d.Index.MaxChunkChars)
	v.SetDefault("index.window_lines", d.Index.WindowLines)
	v.SetDefault("index.overlap_ratio", d.Index.OverlapRatio)
	v.SetDefault("index.cross_process_lock", d.Index.CrossProcessLock)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// IsInvalid reports whether err came from validation
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

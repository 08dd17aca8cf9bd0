package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// ErrInvalidConfig is wrapped by every validation error
var ErrInvalidConfig = errors.New("invalid configuration")

// Index backends
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
)

// Config represents the complete engine configuration
type Config struct {
	DataDir          string `json:"data_dir" mapstructure:"data_dir"`
	DefaultWorkspace string `json:"default_workspace" mapstructure:"default_workspace"`

	Log       LogConfig       `json:"log" mapstructure:"log"`
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`
	Reranker  RerankerConfig  `json:"reranker" mapstructure:"reranker"`
	Search    SearchConfig    `json:"search" mapstructure:"search"`
	Index     IndexConfig     `json:"index" mapstructure:"index"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"` // debug, info, warn, error
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
	File   string `json:"file" mapstructure:"file"`
}

// EmbeddingConfig selects the embedding provider
type EmbeddingConfig struct {
	Provider  string        `json:"provider" mapstructure:"provider"` // jina, openai, local; empty picks by key
	Model     string        `json:"model" mapstructure:"model"`
	APIKey    string        `json:"-" mapstructure:"api_key"`
	BaseURL   string        `json:"base_url" mapstructure:"base_url"`
	Dimension int           `json:"dimension" mapstructure:"dimension"`
	CacheSize int           `json:"cache_size" mapstructure:"cache_size"`
	BatchSize int           `json:"batch_size" mapstructure:"batch_size"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// RerankerConfig selects the reranker
type RerankerConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Provider string `json:"provider" mapstructure:"provider"` // term, cross-encoder
	Model    string `json:"model" mapstructure:"model"`
	APIKey   string `json:"-" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
	Timeout  int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// SearchConfig holds search defaults
type SearchConfig struct {
	TopK          int           `json:"top_k" mapstructure:"top_k"`
	Candidates    int           `json:"candidates" mapstructure:"candidates"`
	Enhance       bool          `json:"enhance" mapstructure:"enhance"`
	ApplyHints    bool          `json:"apply_hints" mapstructure:"apply_hints"`
	MaxExpansions int           `json:"max_expansions" mapstructure:"max_expansions"`
	CacheSize     int           `json:"cache_size" mapstructure:"cache_size"`
	CacheTTL      time.Duration `json:"cache_ttl" mapstructure:"cache_ttl"`
}

// IndexConfig holds storage and chunking configuration
type IndexConfig struct {
	Backend          string  `json:"backend" mapstructure:"backend"`
	Path             string  `json:"path" mapstructure:"path"` // database file or chromem directory
	Workers          int     `json:"workers" mapstructure:"workers"`
	Strategy         string  `json:"strategy" mapstructure:"strategy"` // ast, memory
	MaxChunkChars    int     `json:"max_chunk_chars" mapstructure:"max_chunk_chars"`
	WindowLines      int     `json:"window_lines" mapstructure:"window_lines"`
	OverlapRatio     float64 `json:"overlap_ratio" mapstructure:"overlap_ratio"`
	CrossProcessLock bool    `json:"cross_process_lock" mapstructure:"cross_process_lock"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *Config {
	return &Config{
		DefaultWorkspace: "global",
		Log:              LogConfig{Level: "info"},
		Embedding: EmbeddingConfig{
			CacheSize: 10000,
			BatchSize: 50,
			Timeout:   30 * time.Second,
		},
		Reranker: RerankerConfig{
			Enabled:  true,
			Provider: "term",
			Timeout:  10,
		},
		Search: SearchConfig{
			TopK:          10,
			Candidates:    50,
			Enhance:       true,
			MaxExpansions: 8,
			CacheSize:     1000,
			CacheTTL:      5 * time.Minute,
		},
		Index: IndexConfig{
			Backend:          BackendSQLite,
			Strategy:         "ast",
			MaxChunkChars:    4000,
			WindowLines:      60,
			OverlapRatio:     0.1,
			CrossProcessLock: true,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9464"},
	}
}

// IndexPath returns the storage location for the configured backend
func (c *Config) IndexPath() string {
	if c.Index.Path != "" {
		return c.Index.Path
	}
	if c.Index.Backend == BackendChromem {
		return filepath.Join(c.DataDir, "chromem")
	}
	return filepath.Join(c.DataDir, "spot.db")
}

// LockDir returns the directory for cross-process workspace locks, or the
// empty string when they are disabled.
func (c *Config) LockDir() string {
	if !c.Index.CrossProcessLock || c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "locks")
}

// Validate checks the configuration and returns every problem found
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Log.Level != "" {
		if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
			add("log.level %q", c.Log.Level)
		}
	}
	if !slices.Contains([]string{"", "jina", "openai", "local"}, c.Embedding.Provider) {
		add("embedding.provider %q", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize < 0 || c.Embedding.BatchSize > 100 {
		add("embedding.batch_size must be between 0 and 100")
	}
	if !slices.Contains([]string{"", "term", "cross-encoder"}, c.Reranker.Provider) {
		add("reranker.provider %q", c.Reranker.Provider)
	}
	if c.Search.TopK < 1 || c.Search.TopK > 100 {
		add("search.top_k must be between 1 and 100")
	}
	if c.Search.Candidates < c.Search.TopK || c.Search.Candidates > 500 {
		add("search.candidates must be between top_k and 500")
	}
	if c.Search.MaxExpansions < 0 {
		add("search.max_expansions cannot be negative")
	}
	if !slices.Contains([]string{BackendSQLite, BackendChromem}, c.Index.Backend) {
		add("index.backend %q", c.Index.Backend)
	}
	if !slices.Contains([]string{"ast", "memory"}, c.Index.Strategy) {
		add("index.strategy %q", c.Index.Strategy)
	}
	if c.Index.Workers < 0 {
		add("index.workers cannot be negative")
	}
	if c.Index.OverlapRatio < 0 || c.Index.OverlapRatio > 0.9 {
		add("index.overlap_ratio must be between 0 and 0.9")
	}
	if c.Index.MaxChunkChars < 0 || c.Index.WindowLines < 0 {
		add("index chunk sizes cannot be negative")
	}
	return errors.Join(errs...)
}

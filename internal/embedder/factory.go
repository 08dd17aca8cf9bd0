package embedder

import (
	"fmt"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // jina, openai, local; empty selects by available key
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
	CacheSize int // 0 disables the cache
	Timeout   time.Duration
	Retry     *RetryConfig
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c Config) retryConfig() RetryConfig {
	if c.Retry != nil {
		return *c.Retry
	}
	return DefaultRetryConfig()
}

// New creates an embedder with explicit configuration, wrapped in an LRU
// cache when CacheSize is positive.
func New(cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch DetectProvider(cfg) {
	case ProviderJina:
		e, err = NewJinaProvider(cfg)
	case ProviderOpenAI:
		e, err = NewOpenAIProvider(cfg)
	case ProviderLocal:
		e = NewLocalProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		e = WithCache(e, NewCache(cfg.CacheSize))
	}
	return e, nil
}

// DetectProvider returns the provider New would build for cfg. An explicit
// provider wins; without one an API key selects jina, and no key falls back
// to the local embedder.
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	if cfg.APIKey != "" {
		return ProviderJina
	}
	return ProviderLocal
}

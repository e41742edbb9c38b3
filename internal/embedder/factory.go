package embedder

import (
	"fmt"
)

// FactoryConfig selects a concrete provider from configuration.
type FactoryConfig struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	CacheSize int
}

// NewFromConfig builds the configured embedding provider.
func NewFromConfig(cfg FactoryConfig) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension, cache)
	case ProviderOllama, "":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimension, cache), nil
	case "mock":
		return NewMockProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNoProviderEnabled, cfg.Provider)
	}
}

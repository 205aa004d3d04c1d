package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment variables read when Config leaves a key empty
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
)

// Config holds embedder configuration. Provider "" or "auto" picks jina or
// openai when their key is available and falls back to local. Provider
// "none" disables embeddings. A negative CacheSize disables caching.
type Config struct {
	Provider          string        `mapstructure:"provider" yaml:"provider" json:"provider"`
	Model             string        `mapstructure:"model" yaml:"model" json:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key" json:"-"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	Dimension         int           `mapstructure:"dimension" yaml:"dimension" json:"dimension"`
	CacheSize         int           `mapstructure:"cache_size" yaml:"cache_size" json:"cache_size"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst" json:"burst"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// Provider selection values beyond the concrete provider names
const (
	ProviderAuto = "auto"
	ProviderNone = "none"
)

// New creates an embedder from cfg. It returns nil, nil when embeddings are
// disabled.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize >= 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := DetectProvider(cfg)
	switch provider {
	case ProviderNone:
		return nil, nil
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension, cache)
	case ProviderJina, ProviderOpenAI:
		return NewAPIProvider(apiConfig(provider, cfg), cache)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv creates an embedder using only environment API keys
func NewFromEnv() (Embedder, error) {
	return New(Config{Provider: ProviderAuto})
}

func apiConfig(provider string, cfg Config) APIConfig {
	ac := APIConfig{
		Name:              provider,
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Dimension:         cfg.Dimension,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
	switch provider {
	case ProviderJina:
		if ac.APIKey == "" {
			ac.APIKey = os.Getenv(EnvJinaAPIKey)
		}
		if ac.BaseURL == "" {
			ac.BaseURL = JinaBaseURL
		}
		if ac.Model == "" {
			ac.Model = DefaultJinaModel
		}
	case ProviderOpenAI:
		if ac.APIKey == "" {
			ac.APIKey = os.Getenv(EnvOpenAIAPIKey)
		}
		if ac.Model == "" {
			ac.Model = DefaultOpenAIModel
		}
	}
	return ac
}

// DetectProvider returns the provider New would build for cfg
func DetectProvider(cfg Config) string {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider != "" && provider != ProviderAuto {
		return provider
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if cfg.APIKey != "" || os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}

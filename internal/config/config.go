// Package config loads pyingest settings from defaults, an optional YAML
// file, .env files and INGEST_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/dshills/pyingest/internal/chunker"
	"github.com/dshills/pyingest/internal/discovery"
	"github.com/dshills/pyingest/internal/embedder"
	"github.com/dshills/pyingest/internal/logging"
	"github.com/dshills/pyingest/internal/orchestrator"
	"github.com/dshills/pyingest/internal/source"
	"github.com/dshills/pyingest/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. INGEST_STORAGE_PATH
const EnvPrefix = "INGEST"

// envFiles are loaded in order; earlier files win because godotenv never
// overrides a variable that is already set
var envFiles = []string{".env.local", ".env"}

// Config holds all configuration settings
type Config struct {
	Discovery  discovery.Options `mapstructure:"discovery" yaml:"discovery" json:"discovery"`
	Processing ProcessingConfig  `mapstructure:"processing" yaml:"processing" json:"processing"`
	Source     source.Config     `mapstructure:"source" yaml:"source" json:"source"`
	Embedding  embedder.Config   `mapstructure:"embedding" yaml:"embedding" json:"embedding"`
	Storage    storage.Config    `mapstructure:"storage" yaml:"storage" json:"storage"`
	Log        logging.Config    `mapstructure:"log" yaml:"log" json:"log"`
	Metrics    MetricsConfig     `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// ProcessingConfig sizes batches and chunks
type ProcessingConfig struct {
	BatchSize       int `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
	ChunkTargetSize int `mapstructure:"chunk_target_size" yaml:"chunk_target_size" json:"chunk_target_size"`
	MinChunkSize    int `mapstructure:"min_chunk_size" yaml:"min_chunk_size" json:"min_chunk_size"`
	MaxChunks       int `mapstructure:"max_chunks" yaml:"max_chunks" json:"max_chunks"`
}

// MetricsConfig controls the Prometheus endpoint of the serve command
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// Default returns default configuration
func Default() *Config {
	dbPath := "pyingest.db"
	if homeDir, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(homeDir, ".pyingest", "ingest.db")
	}
	return &Config{
		Discovery: discovery.DefaultOptions(),
		Processing: ProcessingConfig{
			BatchSize:       orchestrator.DefaultBatchSize,
			ChunkTargetSize: chunker.DefaultTargetSize,
			MinChunkSize:    chunker.DefaultMinChunkSize,
			MaxChunks:       chunker.DefaultMaxChunks,
		},
		Source: source.Config{
			CloneTimeout: source.DefaultCloneTimeout,
		},
		Embedding: embedder.Config{
			Provider:  embedder.ProviderAuto,
			CacheSize: embedder.DefaultCacheSize,
			Timeout:   embedder.DefaultTimeout,
		},
		Storage: storage.Config{
			Backend: storage.BackendSQLite,
			Path:    dbPath,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Load loads configuration. An explicit path must exist; otherwise
// ./pyingest.yaml and ~/.pyingest/config.yaml are tried in order.
func Load(path string) (*Config, error) {
	loadEnvFiles(".")

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every leaf key so environment overrides reach
// Unmarshal
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("discovery.include_patterns", cfg.Discovery.IncludePatterns)
	v.SetDefault("discovery.exclude_patterns", cfg.Discovery.ExcludePatterns)
	v.SetDefault("discovery.max_file_size", cfg.Discovery.MaxFileSize)
	v.SetDefault("discovery.max_file_count", cfg.Discovery.MaxFileCount)
	v.SetDefault("discovery.code_extensions", cfg.Discovery.CodeExtensions)

	v.SetDefault("processing.batch_size", cfg.Processing.BatchSize)
	v.SetDefault("processing.chunk_target_size", cfg.Processing.ChunkTargetSize)
	v.SetDefault("processing.min_chunk_size", cfg.Processing.MinChunkSize)
	v.SetDefault("processing.max_chunks", cfg.Processing.MaxChunks)

	v.SetDefault("source.clone_timeout", cfg.Source.CloneTimeout)

	v.SetDefault("embedding.provider", cfg.Embedding.Provider)
	v.SetDefault("embedding.model", cfg.Embedding.Model)
	v.SetDefault("embedding.api_key", cfg.Embedding.APIKey)
	v.SetDefault("embedding.base_url", cfg.Embedding.BaseURL)
	v.SetDefault("embedding.dimension", cfg.Embedding.Dimension)
	v.SetDefault("embedding.cache_size", cfg.Embedding.CacheSize)
	v.SetDefault("embedding.requests_per_second", cfg.Embedding.RequestsPerSecond)
	v.SetDefault("embedding.burst", cfg.Embedding.Burst)
	v.SetDefault("embedding.timeout", cfg.Embedding.Timeout)

	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.path", cfg.Storage.Path)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

func findConfigFile() string {
	candidates := []string{"pyingest.yaml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".pyingest", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// loadEnvFiles loads the .env files found in dir. Variables already in the
// environment are kept.
func loadEnvFiles(dir string) {
	for _, name := range envFiles {
		file := filepath.Join(dir, name)
		if _, err := os.Stat(file); err != nil {
			continue
		}
		_ = godotenv.Load(file)
	}
}

// Validate rejects values no component can work with
func (c *Config) Validate() error {
	var errs []error

	if c.Discovery.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("discovery.max_file_size must not be negative"))
	}
	if c.Discovery.MaxFileCount < 0 {
		errs = append(errs, fmt.Errorf("discovery.max_file_count must not be negative"))
	}
	if c.Processing.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("processing.batch_size must not be negative"))
	}
	if c.Processing.ChunkTargetSize < 0 {
		errs = append(errs, fmt.Errorf("processing.chunk_target_size must not be negative"))
	}
	if c.Processing.MaxChunks < 0 {
		errs = append(errs, fmt.Errorf("processing.max_chunks must not be negative"))
	}

	if c.Source.CloneTimeout < 0 {
		errs = append(errs, fmt.Errorf("source.clone_timeout must not be negative"))
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "", embedder.ProviderAuto, embedder.ProviderNone,
		embedder.ProviderLocal, embedder.ProviderOpenAI, embedder.ProviderJina:
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider))
	}
	if c.Embedding.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must not be negative"))
	}
	if c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("embedding.requests_per_second must not be negative"))
	}
	if c.Embedding.Timeout < 0 {
		errs = append(errs, fmt.Errorf("embedding.timeout must not be negative"))
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "", storage.BackendSQLite, storage.BackendBolt:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend))
	}
	if c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required"))
	}

	if _, err := logrus.ParseLevel(c.Log.Level); c.Log.Level != "" && err != nil {
		errs = append(errs, fmt.Errorf("log.level %q is not a valid level", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, fmt.Errorf("metrics.addr is required when metrics are enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Options returns the orchestrator run options
func (c *Config) Options() orchestrator.Options {
	return orchestrator.Options{
		Discovery:       c.Discovery,
		BatchSize:       c.Processing.BatchSize,
		ChunkTargetSize: c.Processing.ChunkTargetSize,
		MinChunkSize:    c.Processing.MinChunkSize,
		MaxChunks:       c.Processing.MaxChunks,
	}
}

// Chunker returns the chunker configuration
func (c *Config) Chunker() chunker.Config {
	return chunker.Config{
		TargetSize:   c.Processing.ChunkTargetSize,
		MinChunkSize: c.Processing.MinChunkSize,
		MaxChunks:    c.Processing.MaxChunks,
	}
}

// Package config loads runtime configuration for homeqa.
//
// Values are resolved in this order, later winning:
// built-in defaults, ~/.homeqa/config.toml, a .env file, HOMEQA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// EnvPrefix is the prefix for environment overrides, e.g. HOMEQA_INDEX_BACKEND.
const EnvPrefix = "HOMEQA"

// Backend and provider names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendChroma = "chroma"

	ProviderHashing = "hashing"
	ProviderOllama  = "ollama"
	ProviderOpenAI  = "openai"
)

// Config holds all configuration for the application.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Log       LogConfig       `mapstructure:"log"`
	Index     IndexConfig     `mapstructure:"index"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chroma    ChromaConfig    `mapstructure:"chroma"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
}

// LogConfig controls logger output.
type LogConfig struct {
	Verbose bool `mapstructure:"verbose"`
	JSON    bool `mapstructure:"json"`
}

// IndexConfig selects the vector store backend.
type IndexConfig struct {
	Backend    string `mapstructure:"backend"`
	Collection string `mapstructure:"collection"`
	TopK       int    `mapstructure:"top_k"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ChromaConfig holds Chroma server settings.
type ChromaConfig struct {
	URL string `mapstructure:"url"`
}

// SyncConfig holds sync task settings.
type SyncConfig struct {
	FetchLimit int           `mapstructure:"fetch_limit"`
	Timeout    time.Duration `mapstructure:"timeout"`
	AutoWatch  bool          `mapstructure:"auto_watch"`
}

// SchedulerConfig holds periodic sync settings.
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Spec    string `mapstructure:"spec"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Options controls where configuration is read from.
type Options struct {
	// ConfigDir holds config.toml. Defaults to ~/.homeqa.
	ConfigDir string
	// EnvFile is a dotenv file loaded before reading the environment.
	// Missing files are ignored. Defaults to ".env".
	EnvFile string
}

// DefaultDir returns ~/.homeqa.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".homeqa"), nil
}

// Load resolves configuration from defaults, file, dotenv and environment.
func Load(opts Options) (*Config, error) {
	if opts.ConfigDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		opts.ConfigDir = dir
	}
	if opts.EnvFile == "" {
		opts.EnvFile = ".env"
	}

	if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", opts.EnvFile, err)
	}

	v := viper.New()
	setDefaults(v, opts.ConfigDir)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(opts.ConfigDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration rooted at dataDir.
func Default(dataDir string) *Config {
	v := viper.New()
	setDefaults(v, dataDir)
	var cfg Config
	_ = v.Unmarshal(&cfg) //nolint:errcheck // defaults always decode
	return &cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("data_dir", filepath.Join(configDir, "data"))

	v.SetDefault("log.verbose", false)
	v.SetDefault("log.json", false)

	v.SetDefault("index.backend", BackendSQLite)
	v.SetDefault("index.collection", "messages")
	v.SetDefault("index.top_k", 5)

	v.SetDefault("embedding.provider", ProviderHashing)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.timeout", "30s")

	v.SetDefault("chroma.url", "http://localhost:8000")

	v.SetDefault("sync.fetch_limit", 100)
	v.SetDefault("sync.timeout", "0s")
	v.SetDefault("sync.auto_watch", false)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.spec", "@every 15m")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
}

// Validate checks enumerations and bounds.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case BackendMemory, BackendSQLite, BackendChroma:
	default:
		return fmt.Errorf("%w: index.backend %q", domain.ErrUnsupportedType, c.Index.Backend)
	}

	switch c.Embedding.Provider {
	case ProviderHashing, ProviderOllama:
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return domain.Validationf("embedding.api_key is required for the openai provider")
		}
	default:
		return fmt.Errorf("%w: embedding.provider %q", domain.ErrUnsupportedType, c.Embedding.Provider)
	}

	if c.Index.Collection == "" {
		return domain.Validationf("index.collection is required")
	}
	if c.Index.TopK < 1 {
		return domain.Validationf("index.top_k must be at least 1")
	}
	if c.Embedding.Dimensions < 1 {
		return domain.Validationf("embedding.dimensions must be at least 1")
	}
	if c.Sync.FetchLimit < 1 {
		return domain.Validationf("sync.fetch_limit must be at least 1")
	}
	if c.Sync.Timeout < 0 {
		return domain.Validationf("sync.timeout must not be negative")
	}
	if c.Scheduler.Enabled && c.Scheduler.Spec == "" {
		return domain.Validationf("scheduler.spec is required when the scheduler is enabled")
	}
	if c.Index.Backend == BackendChroma && c.Chroma.URL == "" {
		return domain.Validationf("chroma.url is required for the chroma backend")
	}
	return nil
}

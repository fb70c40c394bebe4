// Package config handles configuration loading and validation.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spetr/dirvec/pkg/types"
	"github.com/spf13/viper"
)

// Config represents the complete configuration.
type Config struct {
	Embedding   EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	Summarizer  SummarizerConfig  `mapstructure:"summarizer" yaml:"summarizer"`
	Vectorize   VectorizeConfig   `mapstructure:"vectorize" yaml:"vectorize"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore" yaml:"vectorstore"`
	Walk        WalkConfig        `mapstructure:"walk" yaml:"walk"`
	Search      SearchConfig      `mapstructure:"search" yaml:"search"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`     // ollama, openai
	Model     string `mapstructure:"model" yaml:"model"`           // model name
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`     // API endpoint
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`       // API key
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"` // texts per batch
}

// SummarizerConfig contains summarization provider configuration.
type SummarizerConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // ollama, openai
	Model    string `mapstructure:"model" yaml:"model"`       // model name
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"` // API endpoint
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`   // API key
}

// VectorizeConfig controls which embedding kinds are produced per node.
type VectorizeConfig struct {
	EnableOrigin      bool   `mapstructure:"enable_origin" yaml:"enable_origin"`
	EnableSummarize   bool   `mapstructure:"enable_summarize" yaml:"enable_summarize"`
	EnableVsOrigin    bool   `mapstructure:"enable_vs_origin" yaml:"enable_vs_origin"`
	EnableVsSummarize bool   `mapstructure:"enable_vs_summarize" yaml:"enable_vs_summarize"`
	SummarizePrompt   string `mapstructure:"summarize_prompt" yaml:"summarize_prompt"`
	// MaxSummarizeChars caps the text handed to the summarizer; longer
	// content is truncated and flagged in the stored raw text.
	MaxSummarizeChars int `mapstructure:"max_summarize_chars" yaml:"max_summarize_chars"`
}

// VectorStoreConfig contains vector store configuration.
type VectorStoreConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // sqlitevec
}

// WalkConfig controls the directory traversal.
type WalkConfig struct {
	Exclude     []string `mapstructure:"exclude" yaml:"exclude"`             // glob patterns to skip
	MaxFileSize int64    `mapstructure:"max_file_size" yaml:"max_file_size"` // bytes, 0 = unlimited
}

// SearchConfig contains search configuration.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"` // default result limit
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			Endpoint:  "http://localhost:11434",
			BatchSize: 32,
		},
		Summarizer: SummarizerConfig{
			Provider: "ollama",
			Model:    "llama3.2",
			Endpoint: "http://localhost:11434",
		},
		Vectorize: VectorizeConfig{
			EnableOrigin:      true,
			EnableSummarize:   true,
			EnableVsOrigin:    true,
			EnableVsSummarize: true,
			MaxSummarizeChars: 8000,
		},
		VectorStore: VectorStoreConfig{
			Provider: "sqlitevec",
		},
		Walk: WalkConfig{
			Exclude: []string{
				"**/vendor/**", "**/node_modules/**", "**/.git/**",
				"**/dist/**", "**/build/**", "**/target/**",
				"**/__pycache__/**", "**/*.min.js", "**/*.min.css",
			},
			MaxFileSize: 1 << 20, // 1MB
		},
		Search: SearchConfig{
			DefaultLimit: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ConfigDir returns the path to the .dirvec directory.
func ConfigDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".dirvec")
}

// ConfigPath returns the path to config.yaml.
func ConfigPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "config.yaml")
}

// DBPath returns the path to vectors.db.
func DBPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "vectors.db")
}

// hashPath returns the file recording the provider hash of the last
// successful vectorization.
func hashPath(projectRoot string) string {
	return filepath.Join(ConfigDir(projectRoot), "providers.hash")
}

// SavedHash returns the provider hash recorded by the last successful
// vectorization, "" when none was recorded yet.
func SavedHash(projectRoot string) string {
	data, err := os.ReadFile(hashPath(projectRoot))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// WriteSavedHash records the current provider hash. Stored vectors produced
// under a different hash cannot be compared against new ones.
func WriteSavedHash(projectRoot string, cfg *Config) error {
	if err := os.MkdirAll(ConfigDir(projectRoot), 0755); err != nil {
		return err
	}
	return os.WriteFile(hashPath(projectRoot), []byte(cfg.Hash()+"\n"), 0644)
}

// Load loads configuration from file, falling back to defaults.
func Load(projectRoot string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	configPath := ConfigPath(projectRoot)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		warnings = append(warnings, "No config file found, using defaults")
		return cfg, warnings, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults for missing values
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
		warnings = append(warnings, "Using default embedding provider: ollama")
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Endpoint == "" {
		cfg.Embedding.Endpoint = "http://localhost:11434"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}

	if cfg.Summarizer.Provider == "" {
		cfg.Summarizer.Provider = cfg.Embedding.Provider
	}
	if cfg.Summarizer.Endpoint == "" {
		cfg.Summarizer.Endpoint = cfg.Embedding.Endpoint
	}

	if cfg.Vectorize.MaxSummarizeChars == 0 {
		cfg.Vectorize.MaxSummarizeChars = 8000
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "sqlitevec"
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}

	return cfg, warnings, nil
}

// Save saves configuration to file.
func Save(projectRoot string, cfg *Config) error {
	configDir := ConfigDir(projectRoot)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(ConfigPath(projectRoot))
	v.SetConfigType("yaml")

	v.Set("embedding", cfg.Embedding)
	v.Set("summarizer", cfg.Summarizer)
	v.Set("vectorize", cfg.Vectorize)
	v.Set("vectorstore", cfg.VectorStore)
	v.Set("walk", cfg.Walk)
	v.Set("search", cfg.Search)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	validEmbeddingProviders := map[string]bool{
		"ollama": true, "openai": true,
	}
	if !validEmbeddingProviders[cfg.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("invalid embedding provider: %s", cfg.Embedding.Provider))
	}

	summarizeEnabled := cfg.Vectorize.EnableSummarize || cfg.Vectorize.EnableVsSummarize
	if summarizeEnabled {
		validSummarizerProviders := map[string]bool{
			"ollama": true, "openai": true,
		}
		if !validSummarizerProviders[cfg.Summarizer.Provider] {
			errs = append(errs, fmt.Errorf("invalid summarizer provider: %s", cfg.Summarizer.Provider))
		}
	}

	if !cfg.Vectorize.EnableOrigin && !cfg.Vectorize.EnableSummarize {
		errs = append(errs, fmt.Errorf("at least one file embedding kind must be enabled"))
	}

	if cfg.VectorStore.Provider != "sqlitevec" {
		errs = append(errs, fmt.Errorf("invalid vector store provider: %s", cfg.VectorStore.Provider))
	}

	if cfg.Walk.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("max_file_size must not be negative"))
	}

	return errs
}

// Hash returns a hash of configuration that affects stored vectors.
// Used for detecting when re-vectorizing is needed.
func (c *Config) Hash() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		c.Embedding.Provider,
		c.Embedding.Model,
		c.Summarizer.Provider,
		c.Summarizer.Model,
	)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// Kinds returns the enabled embedding kinds as flags.
func (c *Config) Kinds() types.KindFlags {
	return types.KindFlags{
		Origin:      c.Vectorize.EnableOrigin,
		Summarize:   c.Vectorize.EnableSummarize,
		VsOrigin:    c.Vectorize.EnableVsOrigin,
		VsSummarize: c.Vectorize.EnableVsSummarize,
	}
}

// Package config provides configuration loading and structs for kensaku.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshigiri/kensaku/internal/models"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Search    SearchConfig    `yaml:"search"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Watch     WatchConfig     `yaml:"watch"`
}

// StorageConfig holds paths for the database and the keyword index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// ChunkingConfig holds chunker defaults and the bounds enforced on
// per-request overrides.
type ChunkingConfig struct {
	Size       int `yaml:"size"`
	Overlap    int `yaml:"overlap"`
	MinSize    int `yaml:"min_size"`
	MaxSize    int `yaml:"max_size"`
	MinContent int `yaml:"min_content_length"`
}

// ProviderConfig describes one embedding provider in the fallback chain.
type ProviderConfig struct {
	Type       string        `yaml:"type"` // ollama, openai, mock
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds the provider chain and cache settings.
type EmbeddingConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
	CacheSize int              `yaml:"cache_size"`
}

// VectorConfig holds the external vector engine settings. An empty URL
// disables the primary engine; searches then use the brute-force fallback.
type VectorConfig struct {
	ChromaURL  string `yaml:"chroma_url"`
	Collection string `yaml:"collection"`
}

// SearchConfig holds query-path settings.
type SearchConfig struct {
	CandidateMultiplier int           `yaml:"candidate_multiplier"`
	RRFK                int           `yaml:"rrf_k"`
	Timeout             time.Duration `yaml:"timeout"`
}

// IngestConfig holds the background embedding pool settings.
type IngestConfig struct {
	Workers    int `yaml:"workers"`
	BatchSize  int `yaml:"batch_size"`
	MaxRetries int `yaml:"max_retries"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Chunking.Overlap >= c.Chunking.Size {
		return &models.ValidationError{Field: "chunking.overlap", Reason: "must be smaller than chunking.size"}
	}
	if c.Chunking.MinSize > c.Chunking.MaxSize {
		return &models.ValidationError{Field: "chunking.min_size", Reason: "must not exceed chunking.max_size"}
	}
	for i, p := range c.Embedding.Providers {
		switch p.Type {
		case "ollama", "openai", "mock":
		default:
			return &models.ValidationError{
				Field:  fmt.Sprintf("embedding.providers[%d].type", i),
				Reason: "must be ollama, openai, or mock",
			}
		}
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

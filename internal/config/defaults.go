package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kensaku/data/db/documents.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/kensaku/data/indices/bleve"
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 800
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 100
	}
	if cfg.Chunking.MinSize == 0 {
		cfg.Chunking.MinSize = 50
	}
	if cfg.Chunking.MaxSize == 0 {
		cfg.Chunking.MaxSize = 8192
	}
	if cfg.Chunking.MinContent == 0 {
		cfg.Chunking.MinContent = 10
	}
	if len(cfg.Embedding.Providers) == 0 {
		cfg.Embedding.Providers = []ProviderConfig{
			{Type: "ollama", Model: "nomic-embed-text", Dimensions: 768},
		}
	}
	for i := range cfg.Embedding.Providers {
		if cfg.Embedding.Providers[i].Timeout == 0 {
			cfg.Embedding.Providers[i].Timeout = 30 * time.Second
		}
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "kensaku_chunks"
	}
	if cfg.Search.CandidateMultiplier == 0 {
		cfg.Search.CandidateMultiplier = 3
	}
	if cfg.Search.RRFK == 0 {
		cfg.Search.RRFK = 60
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = 10 * time.Second
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 32
	}
	if cfg.Ingest.MaxRetries == 0 {
		cfg.Ingest.MaxRetries = 3
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx"}
	}
}

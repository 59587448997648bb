// Package main is the kensaku CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/oshigiri/kensaku/internal/cli"
	"github.com/oshigiri/kensaku/internal/config"
	"github.com/oshigiri/kensaku/internal/embedding"
	"github.com/oshigiri/kensaku/internal/extract"
	"github.com/oshigiri/kensaku/internal/ingest"
	"github.com/oshigiri/kensaku/internal/keyword"
	"github.com/oshigiri/kensaku/internal/models"
	"github.com/oshigiri/kensaku/internal/search"
	"github.com/oshigiri/kensaku/internal/storage"
	"github.com/oshigiri/kensaku/internal/vector"
	"github.com/oshigiri/kensaku/internal/watcher"
	"github.com/oshigiri/kensaku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "delete":
		runDelete()
	case "rebuild":
		runRebuild()
	case "retry":
		runRetry()
	case "watch":
		runWatch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence, so running from the project
// directory uses the project's config.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				return config.Load(fallback)
			}
		}
	}
	return config.Load(path)
}

// Components holds the initialized services shared by all commands.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  vector.Index
	KeywordIndex keyword.Index
	Engine       *search.Engine
	Pipeline     *ingest.Pipeline
}

func (c *Components) Close() {
	if c.Pipeline != nil {
		_ = c.Pipeline.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	providers := make([]embedding.Embedder, 0, len(cfg.Embedding.Providers))
	for _, p := range cfg.Embedding.Providers {
		switch p.Type {
		case "ollama":
			providers = append(providers, embedding.NewOllamaEmbedder(p.BaseURL, p.Model, p.Dimensions, p.Timeout))
		case "openai":
			providers = append(providers, embedding.NewOpenAIEmbedder(p.BaseURL, p.APIKey, p.Model, p.Dimensions, p.Timeout))
		case "mock":
			providers = append(providers, embedding.NewMockEmbedder(p.Dimensions))
		}
	}
	chain, err := embedding.NewChain(providers, embedding.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding chain: %w", err)
	}
	embedder, err := embedding.NewCachedEmbedder(chain, cfg.Embedding.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding cache: %w", err)
	}

	var vectorPrimary vector.Index
	if cfg.Vector.ChromaURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		chroma, err := vector.NewChromaIndex(ctx, cfg.Vector.ChromaURL, cfg.Vector.Collection)
		cancel()
		if err != nil {
			logger.Warn("vector engine unavailable, using store fallback",
				zap.String("url", cfg.Vector.ChromaURL), zap.Error(err))
		} else {
			vectorPrimary = chroma
		}
	}
	vectorIndex := vector.NewDualIndex(vectorPrimary, vector.NewStoreSearcher(store), vector.WithLogger(logger))

	var keywordPrimary keyword.Index
	bleveIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		logger.Warn("keyword engine unavailable, using store fallback",
			zap.String("path", cfg.Storage.BleveIndexPath), zap.Error(err))
	} else {
		keywordPrimary = bleveIndex
	}
	keywordIndex := keyword.NewDualIndex(keywordPrimary, keyword.NewStoreSearcher(store), keyword.WithLogger(logger))

	engine := search.NewEngine(store, embedder, vectorIndex, keywordIndex, &cfg.Search, logger)
	pipeline, err := ingest.NewPipeline(store, embedder, vectorIndex, keywordIndex, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	return &Components{
		Storage:      store,
		Embedder:     embedder,
		VectorIndex:  vectorIndex,
		KeywordIndex: keywordIndex,
		Engine:       engine,
		Pipeline:     pipeline,
	}, nil
}

// setup loads config, builds the logger, and initializes components.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runIngest() {
	fsFlags := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	title := fsFlags.String("title", "", "document title (default: file name)")
	chunkSize := fsFlags.Int("chunk-size", 0, "chunk size in bytes (0 = configured default)")
	chunkOverlap := fsFlags.Int("chunk-overlap", 0, "chunk overlap in bytes (0 = configured default)")
	debug := fsFlags.Bool("debug", false, "enable debug logging")
	_ = fsFlags.Parse(os.Args[2:])

	if fsFlags.NArg() < 1 {
		fmt.Println("Usage: kensaku ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fsFlags.Arg(0)

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	extractor := extract.NewExtractor()

	ingestOne := func(filePath string) error {
		text, err := extractor.Extract(filePath)
		if err != nil {
			return err
		}
		docTitle := *title
		if docTitle == "" {
			docTitle = filepath.Base(filePath)
		}
		abs, _ := filepath.Abs(filePath)
		receipt, err := components.Pipeline.Ingest(ctx, &models.IngestInput{
			Title:        docTitle,
			Content:      []byte(text),
			ContentType:  extractor.ContentType(filePath),
			Metadata:     map[string]interface{}{"source_path": abs},
			ChunkSize:    *chunkSize,
			ChunkOverlap: *chunkOverlap,
		})
		if err != nil {
			return err
		}
		if receipt.Deduplicated {
			fmt.Printf("Already ingested: %s (%s)\n", filePath, receipt.DocumentID)
		} else {
			fmt.Printf("Ingested %s: %s (%d chunks)\n", filePath, receipt.DocumentID, receipt.ChunkCount)
		}
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		count := 0
		walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if !matchExtension(p, cfg.Watch.Extensions) {
				return nil
			}
			if err := ingestOne(p); err != nil {
				logger.Warn("file skipped", zap.String("path", p), zap.Error(err))
				return nil
			}
			count++
			return nil
		})
		if walkErr != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", walkErr)
			os.Exit(1)
		}
		components.Pipeline.Wait()
		fmt.Printf("Ingested %d file(s) from %s\n", count, path)
		return
	}
	if err := ingestOne(path); err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	components.Pipeline.Wait()
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func runSearch() {
	fsFlags := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	limit := fsFlags.Int("limit", 10, "number of results")
	minScore := fsFlags.Float64("min-score", 0, "minimum fused score in [0,1]")
	searchType := fsFlags.String("type", "hybrid", "search type: semantic, keyword, or hybrid")
	semanticWeight := fsFlags.Float64("semantic-weight", 0, "semantic fusion weight (0 = default)")
	keywordWeight := fsFlags.Float64("keyword-weight", 0, "keyword fusion weight (0 = default)")
	outputFormat := fsFlags.String("output", "text", "output format: text or json")
	debug := fsFlags.Bool("debug", false, "enable debug logging")
	_ = fsFlags.Parse(os.Args[2:])

	if fsFlags.NArg() < 1 {
		fmt.Println("Usage: kensaku search [flags] <query>")
		os.Exit(1)
	}
	queryStr := strings.TrimSpace(strings.Join(fsFlags.Args(), " "))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	response, err := components.Engine.Search(context.Background(), &models.SearchQuery{
		Query:          queryStr,
		MaxResults:     *limit,
		MinScore:       *minScore,
		Type:           models.SearchType(*searchType),
		SemanticWeight: *semanticWeight,
		KeywordWeight:  *keywordWeight,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDelete() {
	fsFlags := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	_ = fsFlags.Parse(os.Args[2:])

	if fsFlags.NArg() < 1 {
		fmt.Println("Usage: kensaku delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fsFlags.Arg(0)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	if err := components.Pipeline.Delete(context.Background(), docID); err != nil {
		fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runRebuild() {
	fsFlags := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	debug := fsFlags.Bool("debug", false, "enable debug logging")
	_ = fsFlags.Parse(os.Args[2:])

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	if err := components.Pipeline.Rebuild(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Rebuild failed: %v\n", err)
		os.Exit(1)
	}
	// Chunks that never got an embedding are not in the rebuilt vector
	// index; give them another pass while we are here.
	queued, err := components.Pipeline.RetryPending(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retry of pending embeddings failed: %v\n", err)
		os.Exit(1)
	}
	components.Pipeline.Wait()
	if queued > 0 {
		fmt.Printf("Re-embedded %d pending chunk(s)\n", queued)
	}
	fmt.Println("Indexes rebuilt from storage")
}

func runRetry() {
	fsFlags := flag.NewFlagSet("retry", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	debug := fsFlags.Bool("debug", false, "enable debug logging")
	_ = fsFlags.Parse(os.Args[2:])

	_, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	queued, err := components.Pipeline.RetryPending(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retry failed: %v\n", err)
		os.Exit(1)
	}
	components.Pipeline.Wait()
	fmt.Printf("Re-embedded %d pending chunk(s)\n", queued)
}

func runWatch() {
	fsFlags := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	syncExisting := fsFlags.Bool("sync", true, "ingest files already present under watched directories")
	debug := fsFlags.Bool("debug", false, "enable debug logging")
	_ = fsFlags.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	roots := cfg.Watch.Directories
	if fsFlags.NArg() > 0 {
		roots = fsFlags.Args()
	}
	if len(roots) == 0 {
		fmt.Println("Usage: kensaku watch [flags] <directory>...")
		fmt.Println("(or set watch.directories in the config file)")
		os.Exit(1)
	}

	bridge := watcher.NewIngestor(components.Pipeline, components.Storage, logger)
	w := watcher.New(roots, cfg.Watch.Extensions, bridge.OnChange, bridge.OnRemove, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	if *syncExisting {
		w.SyncExisting()
	}
	logger.Info("watching", zap.Strings("directories", roots))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	w.Stop()
	components.Pipeline.Wait()
}

func runStatus() {
	fsFlags := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fsFlags.String("config", defaultConfigPath, "config file path")
	outputFormat := fsFlags.String("output", "text", "output format: text or json")
	_ = fsFlags.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	status := &cli.Status{
		DatabasePath:   cfg.Storage.DatabasePath,
		BleveIndexPath: cfg.Storage.BleveIndexPath,
		QueueDepth:     components.Pipeline.QueueDepth(),
		FailedJobs:     components.Pipeline.FailedJobs(),
	}
	if status.Documents, err = components.Storage.CountDocuments(ctx); err != nil {
		logger.Warn("document count failed", zap.Error(err))
	}
	if status.Chunks, err = components.Storage.CountChunks(ctx); err != nil {
		logger.Warn("chunk count failed", zap.Error(err))
	}
	if status.Embeddings, err = components.Storage.CountEmbeddings(ctx); err != nil {
		logger.Warn("embedding count failed", zap.Error(err))
	}
	if status.Chunks > status.Embeddings {
		status.PendingChunks = status.Chunks - status.Embeddings
	}
	if status.DiskUsageBytes, err = storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath); err != nil {
		logger.Warn("disk usage scan failed", zap.Error(err))
	}

	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kensaku - hybrid document retrieval

Usage:
  kensaku ingest [flags] <file-or-dir>   Ingest a document or directory
  kensaku search [flags] <query>         Search ingested documents
  kensaku delete [flags] <id>            Soft-delete a document
  kensaku rebuild [flags]                Rebuild search indexes from storage
  kensaku retry [flags]                  Re-embed chunks with no embedding
  kensaku watch [flags] [dir]...         Watch directories and ingest changes
  kensaku status [flags]                 Show store and pipeline status
  kensaku version                        Show version
  kensaku help                           Show this help

Common Flags:
  --config string   Config file path (default: /usr/local/etc/kensaku/config.yaml,
                    or ./config.yaml when present)
  --debug           Enable debug logging

Search Flags:
  --limit int              Number of results (default: 10)
  --min-score float        Minimum fused score in [0,1]
  --type string            semantic, keyword, or hybrid (default: hybrid)
  --semantic-weight float  Semantic fusion weight (default: 0.7)
  --keyword-weight float   Keyword fusion weight (default: 0.3)
  --output string          text or json (default: text)

Examples:
  kensaku ingest --title "Design Notes" notes.md
  kensaku ingest ./docs
  kensaku search "vector index rebuild"
  kensaku search --type keyword --output json "exact phrase"
  kensaku watch ~/Documents
  kensaku status --output json`)
}

// Package main is the Miru CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/catalog"
	"github.com/hyperjump/miru/internal/cli"
	"github.com/hyperjump/miru/internal/config"
	"github.com/hyperjump/miru/internal/embedding"
	"github.com/hyperjump/miru/internal/explain"
	"github.com/hyperjump/miru/internal/indexer"
	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/search"
	"github.com/hyperjump/miru/internal/server"
	"github.com/hyperjump/miru/internal/vectorstore"
	"github.com/hyperjump/miru/internal/watcher"
	"github.com/hyperjump/miru/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/miru/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "miru server" from the project dir picks up the
// project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "index":
		runIndex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("miru version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.Store.Ensure(ctx); err != nil {
		logger.Fatal("Failed to prepare collection", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled {
		idx := components.Indexer
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc := watcher.New(
			cfg.Images.Dir,
			func(filename string) {
				path := filepath.Join(cfg.Images.Dir, filename)
				if err := idx.IndexFile(context.Background(), path); err != nil {
					logger.Warn("watch index failed", zap.String("file", filename), zap.Error(err))
				}
			},
			func(filename string) {
				// The collection keeps the vector; a rebuild reclaims it.
				logger.Info("image removed from directory", zap.String("file", filename))
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Store,
		components.Embedder,
		components.Catalog,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// buildSearchQuery joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct mode without a running server)")
	topK := fs.Int("top-k", 0, "number of results (default from config)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		fmt.Fprintln(os.Stderr, "Usage: miru search [flags] <query>")
		os.Exit(1)
	}

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
		format = cli.OutputText
	default:
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	query := &models.SearchQuery{Query: queryStr, TopK: *topK}

	if *serverURL != "" {
		response, err := searchViaHTTP(*serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct mode: talk to Qdrant and the embedding service without the
	// HTTP server in between.
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	response, err := components.Engine.Search(context.Background(), query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	rebuild := fs.Bool("rebuild", false, "drop and recreate the collection before indexing")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	report, err := components.Indexer.Run(context.Background(), indexer.RunOptions{Rebuild: *rebuild})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}
	cli.WriteIndexReport(os.Stdout, report)
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Collection      *vectorstore.CollectionInfo `json:"collection"`
	CatalogedImages int64                       `json:"cataloged_images"`
	LastRun         *catalog.Run                `json:"last_run,omitempty"`
	Config          map[string]any              `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct mode)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		status.Collection = components.Store.Info(ctx)
		if n, err := components.Catalog.Count(ctx); err == nil {
			status.CatalogedImages = n
		}
		if run, err := components.Catalog.LastRun(ctx); err == nil {
			status.LastRun = run
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if status.Collection != nil {
			fmt.Printf("collection:        %s\n", status.Collection.Name)
			fmt.Printf("dimensions:        %d\n", status.Collection.Dimensions)
			fmt.Printf("points:            %d\n", status.Collection.Points)
		} else {
			fmt.Println("collection:        (absent)")
		}
		fmt.Printf("cataloged_images:  %d\n", status.CatalogedImages)
		if status.LastRun != nil {
			fmt.Println()
			fmt.Println("# last indexing run")
			fmt.Printf("run_id:            %s\n", status.LastRun.ID)
			fmt.Printf("mode:              %s\n", status.LastRun.Mode)
			fmt.Printf("indexed:           %d\n", status.LastRun.Indexed)
			fmt.Printf("skipped:           %d\n", status.LastRun.Skipped)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Catalog   *catalog.Catalog
	Store     vectorstore.Store
	Embedder  embedding.Embedder
	Explainer explain.Explainer
	Engine    *search.Engine
	Indexer   *indexer.Indexer
}

func (c *Components) Close() {
	if c.Explainer != nil {
		_ = c.Explainer.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	cat, err := catalog.New(cfg.Catalog.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	var store vectorstore.Store
	store, err = vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
		Dimensions: cfg.Qdrant.Dimensions,
	}, vectorstore.WithLogger(logger))
	if err != nil {
		// Fall back to an in-process store so the rest of the stack stays
		// usable for local development without a Qdrant server.
		logger.Warn("qdrant unavailable, falling back to in-memory vector store", zap.Error(err))
		store, err = vectorstore.NewMemoryStore(cfg.Qdrant.Collection, cfg.Qdrant.Dimensions)
		if err != nil {
			_ = cat.Close()
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
	}

	var embedder embedding.Embedder
	clip, err := embedding.NewClipEmbedder(
		cfg.Embedding.BaseURL,
		cfg.Qdrant.Dimensions,
		time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second,
	)
	if err != nil {
		logger.Warn("embedding service unavailable, falling back to mock embedder", zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Qdrant.Dimensions)
	} else {
		embedder = clip
	}

	var cache embedding.Cache
	if cfg.Embedding.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Embedding.RedisAddr})
		cache = embedding.NewRedisCache(client, 0)
		logger.Info("query embedding cache: redis", zap.String("addr", cfg.Embedding.RedisAddr))
	} else if cfg.Embedding.CacheSize > 0 {
		cache = embedding.NewMemoryCache(cfg.Embedding.CacheSize)
	}
	embedder = embedding.NewCachedEmbedder(embedder, cache)

	var explainer explain.Explainer
	if cfg.Explain.APIKey != "" {
		oai, err := explain.NewOpenAIExplainer(explain.OpenAIConfig{
			APIKey:           cfg.Explain.APIKey,
			BaseURL:          cfg.Explain.BaseURL,
			Model:            cfg.Explain.Model,
			MaxTokens:        cfg.Explain.MaxTokens,
			Temperature:      cfg.Explain.Temperature,
			Timeout:          time.Duration(cfg.Explain.TimeoutSeconds) * time.Second,
			ThumbnailMaxEdge: cfg.Explain.ThumbnailMaxEdge,
			JPEGQuality:      cfg.Explain.JPEGQuality,
		})
		if err != nil {
			_ = embedder.Close()
			_ = store.Close()
			_ = cat.Close()
			return nil, fmt.Errorf("failed to create explainer: %w", err)
		}
		explainer = oai
	} else {
		logger.Warn("explain api key not configured, results will have no explanations")
	}

	imageDir := cfg.Images.Dir
	resolve := func(filename string) string { return filepath.Join(imageDir, filename) }

	engineOpts := []search.Option{
		search.WithConcurrency(cfg.Explain.Concurrency),
		search.WithExplainTimeout(time.Duration(cfg.Explain.TimeoutSeconds) * time.Second),
	}
	if debug {
		engineOpts = append(engineOpts, search.WithLogger(logger))
	}
	engine := search.NewEngine(store, embedder, explainer, resolve, cfg.Images.URLPrefix, engineOpts...)

	idxOpts := []indexer.Option{
		indexer.WithBatchSize(cfg.Indexing.BatchSize),
		indexer.WithLogger(logger),
	}
	idx := indexer.New(store, embedder, cat, imageDir, idxOpts...)

	return &Components{
		Catalog:   cat,
		Store:     store,
		Embedder:  embedder,
		Explainer: explainer,
		Engine:    engine,
		Indexer:   idx,
	}, nil
}

func printUsage() {
	fmt.Println(`miru - Semantic image search

Usage:
  miru server [flags]             Start the HTTP server
  miru search [flags] <query>     Search images by natural-language description
  miru index [flags]              Index the configured image directory
  miru status [flags]             Show collection and catalog status
  miru version                    Show version
  miru help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/miru/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --top-k int        Number of results (default from config)
  --output string    Output format: text or json (default: text)

Index Flags:
  --config string    Config file path
  --rebuild          Drop and recreate the collection before indexing

Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --output string    Output format: text or json (default: text)

Examples:
  miru server
  miru search sunset over the ocean
  miru search --top-k 10 --output json "dog playing in snow"
  miru index --rebuild
  miru status --output json`)
}

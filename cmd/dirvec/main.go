// dirvec vectorizes a directory tree and serves similarity search over it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/spetr/dirvec/builtin"
	"github.com/spetr/dirvec/internal/config"
	"github.com/spetr/dirvec/internal/mcp"
	"github.com/spetr/dirvec/internal/search"
	"github.com/spetr/dirvec/internal/vectorize"
	"github.com/spetr/dirvec/pkg/provider"
	"github.com/spetr/dirvec/pkg/types"
)

var (
	version   = "0.1.0"
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dirvec",
	Short: "Hierarchical file and directory vectorization with similarity search",
	Long: `dirvec walks a directory tree and maintains vector embeddings for every
file and directory in it: file contents, LLM summaries, directory
descriptions and aggregate vectors summed over descendants. The stored
vectors answer "find files similar to this query" searches.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dirvec %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		absPath, _ := filepath.Abs(path)

		if _, err := os.Stat(config.ConfigPath(absPath)); err == nil {
			fmt.Printf("config already exists: %s\n", config.ConfigPath(absPath))
			return
		}
		if err := config.Save(absPath, config.DefaultConfig()); err != nil {
			slog.Error("failed to write config", "error", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", config.ConfigPath(absPath))
	},
}

var vectorizeCmd = &cobra.Command{
	Use:   "vectorize [path]",
	Short: "Vectorize a project tree",
	Long:  `Vectorize all unprocessed files and directories. If no path is provided, the current directory is used.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		file, _ := cmd.Flags().GetString("file")
		runVectorize(path, file)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find files and directories similar to a query",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		runSearch(args[0], limit)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored embedding records",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		runList(limit)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vector store status",
	Run: func(cmd *cobra.Command, args []string) {
		runStatus()
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all embedding records",
	Run: func(cmd *cobra.Command, args []string) {
		runClear()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch for file changes and re-vectorize automatically",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		debounce, _ := cmd.Flags().GetInt("debounce")
		runWatch(path, debounce)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Run: func(cmd *cobra.Command, args []string) {
		stdio, _ := cmd.Flags().GetBool("stdio")
		runServe(stdio)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	vectorizeCmd.Flags().String("file", "", "vectorize a single file instead of the whole tree")
	searchCmd.Flags().Int("limit", 0, "maximum results (0 = config default)")
	listCmd.Flags().Int("limit", 100, "maximum records (0 = all)")
	watchCmd.Flags().Int("debounce", 500, "debounce time in milliseconds")
	serveCmd.Flags().Bool("stdio", true, "use stdio transport")

	rootCmd.AddCommand(versionCmd, initCmd, vectorizeCmd, searchCmd, listCmd, statusCmd, clearCmd, watchCmd, serveCmd)
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// app bundles everything a command needs against one project root.
type app struct {
	root         string
	cfg          *config.Config
	store        provider.VectorStore
	embedder     provider.EmbeddingProvider
	summarizer   provider.Summarizer
	orchestrator *vectorize.Orchestrator
	search       *search.Service
}

// newApp loads configuration, creates the providers through the registry and
// opens the store.
func newApp(path string) (*app, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	cfg, warnings, err := config.Load(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("invalid config", "error", e)
		}
		return nil, types.ErrInvalidConfig
	}

	store, err := provider.DefaultRegistry.CreateVectorStore(cfg.VectorStore.Provider)
	if err != nil {
		return nil, err
	}

	embedder, err := provider.DefaultRegistry.CreateEmbedding(cfg.Embedding.Provider, provider.EmbeddingConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Endpoint:  cfg.Embedding.Endpoint,
		APIKey:    cfg.Embedding.APIKey,
		BatchSize: cfg.Embedding.BatchSize,
	})
	if err != nil {
		return nil, err
	}

	var summarizer provider.Summarizer
	if cfg.Vectorize.EnableSummarize || cfg.Vectorize.EnableVsSummarize {
		summarizer, err = provider.DefaultRegistry.CreateSummarizer(cfg.Summarizer.Provider, provider.SummarizerConfig{
			Provider: cfg.Summarizer.Provider,
			Model:    cfg.Summarizer.Model,
			Endpoint: cfg.Summarizer.Endpoint,
			APIKey:   cfg.Summarizer.APIKey,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := store.Init(config.DBPath(absPath)); err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	if saved := config.SavedHash(absPath); saved != "" && saved != cfg.Hash() {
		if n, _ := store.Count(); n > 0 {
			slog.Warn("provider configuration changed since the last vectorization, " +
				"stored vectors were produced with different models; run 'dirvec clear' and vectorize again")
		}
	}

	orchestrator := vectorize.New(store, embedder, summarizer, vectorize.Options{
		Kinds:             cfg.Kinds(),
		SummarizePrompt:   cfg.Vectorize.SummarizePrompt,
		MaxSummarizeChars: cfg.Vectorize.MaxSummarizeChars,
		Exclude:           cfg.Walk.Exclude,
		MaxFileSize:       cfg.Walk.MaxFileSize,
	})

	return &app{
		root:         absPath,
		cfg:          cfg,
		store:        store,
		embedder:     embedder,
		summarizer:   summarizer,
		orchestrator: orchestrator,
		search:       search.New(store, embedder, cfg.Search.DefaultLimit),
	}, nil
}

func (a *app) close() {
	a.store.Close()
	a.embedder.Close()
	if a.summarizer != nil {
		a.summarizer.Close()
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func runVectorize(path, file string) {
	a, err := newApp(path)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := a.embedder.Warmup(ctx); err != nil {
		slog.Warn("embedding warmup failed", "error", err)
	}

	if file != "" {
		absFile, _ := filepath.Abs(file)
		id, err := a.orchestrator.VectorizeFile(ctx, absFile)
		if err != nil {
			slog.Error("vectorization failed", "path", absFile, "error", err)
			os.Exit(1)
		}
		fmt.Printf("vectorized %s (id %s)\n", absFile, id)
		return
	}

	a.orchestrator.SetStatusFunc(func(s types.NodeStatus) {
		if s.Phase == types.NodeProcessing {
			fmt.Printf("\r%-70.70s", s.Path)
		}
	})

	start := time.Now()
	result, err := a.orchestrator.VectorizeAll(ctx, a.root)
	fmt.Println()
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("vectorization stopped, progress saved - run again to resume")
			return
		}
		slog.Error("vectorization failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("processed: %d, errors: %d (%s)\n",
		result.Processed, result.Errors, time.Since(start).Round(time.Millisecond))

	if err := config.WriteSavedHash(a.root, a.cfg); err != nil {
		slog.Warn("failed to record provider hash", "error", err)
	}
}

func runSearch(query string, limit int) {
	cwd, _ := os.Getwd()
	a, err := newApp(cwd)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	results, err := a.search.SearchSimilar(ctx, query, limit)
	if err != nil {
		slog.Error("search failed", "error", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}

	for i, r := range results {
		fmt.Printf("%2d. %.3f  %-9s %-12s %s\n",
			i+1, r.Similarity, r.Item.Type, r.Item.Kind, r.Item.Path)
	}
}

func runList(limit int) {
	cwd, _ := os.Getwd()
	a, err := newApp(cwd)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.close()

	results, err := a.search.Browse(limit)
	if err != nil {
		slog.Error("listing failed", "error", err)
		os.Exit(1)
	}

	for _, r := range results {
		fmt.Printf("%-9s %-12s %s\n", r.Item.Type, r.Item.Kind, r.Item.Path)
	}
	fmt.Printf("%d records\n", len(results))
}

func runStatus() {
	cwd, _ := os.Getwd()
	a, err := newApp(cwd)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.close()

	stats, err := a.search.Stats()
	if err != nil {
		slog.Error("failed to get stats", "error", err)
		os.Exit(1)
	}

	fmt.Printf("items:      %d\n", stats.TotalItems)
	fmt.Printf("dimensions: %d\n", stats.Dimensions)
	fmt.Printf("db size:    %d bytes\n", stats.DBSizeBytes)
	fmt.Printf("embedding:  %s/%s\n", a.cfg.Embedding.Provider, a.cfg.Embedding.Model)
}

func runClear() {
	cwd, _ := os.Getwd()
	a, err := newApp(cwd)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.close()

	if err := a.store.Clear(); err != nil {
		slog.Error("clear failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("storage cleared")
}

func runWatch(path string, debounceMs int) {
	a, err := newApp(path)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	// Bring the tree up to date before watching.
	if result, err := a.orchestrator.VectorizeAll(ctx, a.root); err != nil {
		slog.Warn("initial vectorization failed", "error", err)
	} else {
		slog.Info("initial pass complete", "processed", result.Processed, "errors", result.Errors)
	}

	watcher, err := vectorize.NewWatcher(vectorize.WatcherConfig{
		Root:         a.root,
		Orchestrator: a.orchestrator,
		Store:        a.store,
		Exclude:      a.cfg.Walk.Exclude,
		DebounceTime: time.Duration(debounceMs) * time.Millisecond,
	})
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
		slog.Error("watcher failed", "error", err)
		os.Exit(1)
	}
}

func runServe(stdio bool) {
	cwd, _ := os.Getwd()
	a, err := newApp(cwd)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv, err := mcp.New(mcp.Config{
		ProjectDir:   a.root,
		Config:       a.cfg,
		Store:        a.store,
		Orchestrator: a.orchestrator,
		Search:       a.search,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if !stdio {
		slog.Error("only stdio transport is supported")
		os.Exit(1)
	}

	slog.Info("starting MCP server", "project", a.root)
	if err := srv.ServeStdio(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// Package main provides the forge binary: the workflow factory API server
// plus maintenance subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	// Register LLM providers via init().
	_ "github.com/chainweave/forge/llm/providers"

	"github.com/chainweave/forge/auth"
	"github.com/chainweave/forge/config"
	"github.com/chainweave/forge/docs"
	"github.com/chainweave/forge/eventbus"
	"github.com/chainweave/forge/generator"
	"github.com/chainweave/forge/intent"
	"github.com/chainweave/forge/llm"
	"github.com/chainweave/forge/metrics"
	"github.com/chainweave/forge/model"
	"github.com/chainweave/forge/pipeline"
	"github.com/chainweave/forge/prompt"
	"github.com/chainweave/forge/sandbox"
	"github.com/chainweave/forge/server"
	"github.com/chainweave/forge/storage"
	"github.com/chainweave/forge/sweeper"
	"github.com/chainweave/forge/templates"
	"github.com/chainweave/forge/validator"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "forge"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "forge",
		Short: "AI-assisted onchain workflow factory",
		Long: `Forge turns natural-language prompts into deployable onchain automation
workflows, simulates them in a sandbox, and chains stored workflows into
multi-step pipelines.

Running forge with no subcommand starts the HTTP API server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	cmd.AddCommand(ingestCmd(&configPath, &logLevel))

	return cmd
}

// newLogger builds the process logger at the requested level and installs it
// as the slog default.
func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func run(configPath, logLevel string) error {
	logger := newLogger(logLevel)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := storage.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	bus := eventbus.New(store, logger)

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Crash recovery runs off the serving path; a slow sweep must not delay
	// the listener.
	go sweeper.New(store, logger).Run(signalCtx)

	docsStore := docs.NewStore(cfg.Docs.Dir, logger)
	if err := docsStore.Load(); err != nil {
		logger.Warn("docs snapshot load failed", "dir", cfg.Docs.Dir, "error", err)
	}
	if cfg.Docs.Watch {
		go func() {
			if err := docsStore.Watch(signalCtx, docs.DefaultDebounce); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("docs watcher stopped", "error", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)

	matcher := templates.NewMatcher(logger)
	parser := intent.NewParser(logger)
	builder := prompt.NewBuilder(matcher, docsStore, logger)
	client := llm.NewClient(model.FromConfig(cfg.Models), logger)
	adapter := generator.NewAdapter(client, builder, logger)
	checker := validator.New(logger)
	orchestrator := generator.NewOrchestrator(parser, matcher, adapter, checker, store, recorder, logger)

	runner := sandbox.NewRunner(sandbox.Config{
		CLIPath:     cfg.Sandbox.CLIPath,
		DepCacheDir: cfg.Sandbox.DepCacheDir,
		WorkDir:     cfg.Sandbox.WorkDir,
	}, recorder, logger)

	executor := pipeline.NewExecutor(store, bus, runner, recorder, logger)
	suggester := pipeline.NewSuggester(store, bus, logger)

	if cfg.Auth.Secret == "" {
		logger.Warn("auth.secret is empty; owner signatures verify against an unkeyed HMAC")
	}

	srv := server.New(cfg, server.Deps{
		Store:     store,
		Bus:       bus,
		Generator: orchestrator,
		Sandbox:   runner,
		Executor:  executor,
		Suggester: suggester,
		Verifier:  auth.NewHMACVerifier(cfg.Auth.Secret),
		Recorder:  recorder,
		Gatherer:  registry,
		Logger:    logger,
	})

	logger.Info("forge ready",
		"version", Version,
		"environment", cfg.Server.Environment,
		"database", cfg.Database.Path)

	return srv.ListenAndServe(signalCtx)
}

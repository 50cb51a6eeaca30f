// Package main provides the finadvisor binary entry point.
// Finadvisor exposes an LLM-driven financial advisory pipeline over HTTP:
// indicator analysis, optimization discovery, selection validation,
// scenario simulation and report synthesis.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	// Register LLM providers via init()
	_ "github.com/c360studio/finadvisor/llm/providers"

	"github.com/c360studio/finadvisor/advisor"
	"github.com/c360studio/finadvisor/config"
	"github.com/c360studio/finadvisor/finance"
	"github.com/c360studio/finadvisor/llm"
	"github.com/c360studio/finadvisor/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "finadvisor"
)

func main() {
	// Add panic recovery
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
		Use:   appName,
		Short: "Financial advisory pipeline server",
		Long: `Finadvisor runs a staged financial advisory pipeline on top of an
LLM provider (OpenAI, Anthropic or Ollama).

It provides:
- Financial indicator analysis with derived health metrics
- Optimization discovery, selection and validation
- Deterministic scenario projections with LLM narratives
- Report synthesis, export and follow-up chat

All operations are exposed as a JSON HTTP API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, logLevel string) error {
	printBanner()

	// Configure logging
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

	// Load configuration
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Missing credentials fail at startup, not on the first request.
	if err := cfg.CheckCredentials(); err != nil {
		return fmt.Errorf("check credentials: %w", err)
	}

	slog.Info("Finadvisor ready",
		"version", Version,
		"provider", cfg.Provider.Name,
		"model", cfg.Provider.Model)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := server.NewMetrics(registry)

	// Provider client
	clientOpts := []llm.ClientOption{
		llm.WithLogger(logger),
		llm.WithObserver(metrics),
		llm.WithRetryConfig(llm.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BackoffBase: cfg.Retry.BackoffBase,
			MaxJitter:   cfg.Retry.MaxJitter,
			MaxBackoff:  llm.DefaultRetryConfig().MaxBackoff,
		}),
	}
	if cfg.Provider.Timeout > 0 {
		clientOpts = append(clientOpts, llm.WithHTTPClient(&http.Client{Timeout: cfg.Provider.Timeout}))
	}
	client := llm.NewClient(llm.Endpoint{
		Provider: cfg.Provider.Name,
		URL:      cfg.Provider.URL,
		Model:    cfg.Provider.Model,
	}, clientOpts...)

	// Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Scenario multiplier hot reload
	multipliers, err := newMultiplierSource(ctx, configPath, cfg, logger)
	if err != nil {
		return err
	}

	// Session registry
	sessions := advisor.NewRegistry(func(id string) *advisor.Orchestrator {
		return advisor.New(id, client,
			advisor.WithLogger(logger),
			advisor.WithMultipliers(multipliers.get),
			advisor.WithHooks(metrics.Hooks()),
		)
	},
		advisor.WithSessionTTL(cfg.Session.TTL),
		advisor.WithMaxSessions(cfg.Session.MaxSessions),
		advisor.WithRegistryLogger(logger),
		advisor.WithSessionGauge(metrics.SessionGauge()),
	)
	go sessions.Run(ctx)

	conversations := llm.NewConversationStore(client, logger)

	// HTTP surface
	srv := server.New(server.Config{
		Registry:       sessions,
		Conversations:  conversations,
		ExportDir:      cfg.Export.Dir,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         logger,
		Metrics:        metrics,
	})

	mux := http.NewServeMux()
	srv.RegisterHTTPHandlers(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// multiplierSource yields the current scenario multipliers, hot reloaded
// from the config file when one is in use.
type multiplierSource struct {
	watcher *config.MultiplierWatcher
	static  finance.Multipliers
}

func (s *multiplierSource) get() finance.Multipliers {
	if s.watcher != nil {
		return s.watcher.Multipliers()
	}
	return s.static
}

func newMultiplierSource(ctx context.Context, configPath string, cfg *config.Config, logger *slog.Logger) (*multiplierSource, error) {
	if configPath == "" {
		return &multiplierSource{static: cfg.Scenarios.Multipliers}, nil
	}
	watcher, err := config.NewMultiplierWatcher(configPath, cfg.Scenarios.Multipliers, logger)
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	go watcher.Run(ctx)
	return &multiplierSource{watcher: watcher}, nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFromFile(configPath)
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║            Finadvisor v" + Version + "                  ║")
	fmt.Println("║      Financial Advisory Pipeline              ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haldis/strand/internal/agent"
	"github.com/haldis/strand/internal/agent/providers"
	"github.com/haldis/strand/internal/checkpoint"
	"github.com/haldis/strand/internal/config"
	"github.com/haldis/strand/internal/observability"
	"github.com/haldis/strand/internal/search"
	"github.com/haldis/strand/internal/subagent"
	"github.com/haldis/strand/internal/telegram"
	"github.com/haldis/strand/internal/transcript"
	"github.com/haldis/strand/internal/vision"
	"github.com/haldis/strand/internal/web"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent runtime with the configured front ends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "strand.yaml", "path to configuration file")
	return cmd
}

func runServe(cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var searchSvc search.Service
	if cfg.Search.Backend == "postgres" {
		searchSvc, err = search.NewPostgresService(cfg.Search.DSN)
		if err != nil {
			return fmt.Errorf("search backend: %w", err)
		}
		defer searchSvc.Close()
	}

	var transcripts transcript.Fetcher
	if cfg.Transcript.Endpoint != "" {
		transcripts = transcript.NewHTTPFetcher(cfg.Transcript.Endpoint, cfg.Transcript.Timeout)
	}

	var visionSvc vision.Describer
	if cfg.Vision.Enabled {
		visionSvc = vision.NewClient(cfg.Vision.BaseURL, cfg.Vision.APIKey, cfg.Vision.Model)
	}

	personas, err := subagent.NewLoader(cfg.Personas.Dir, logger)
	if err != nil {
		return fmt.Errorf("personas: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
		go serveMetrics(ctx, cfg.Metrics.Listen, registry, logger)
	}

	runtime, err := agent.NewRuntime(provider, store, agent.Options{
		Personas:           personas,
		Search:             searchSvc,
		Transcripts:        transcripts,
		TranscriptsEnabled: cfg.Transcript.Enabled,
		Vision:             visionSvc,
		VisionEnabled:      cfg.Vision.Enabled,
		Loop: agent.LoopConfig{
			MaxCycles:       cfg.Agent.MaxCycles,
			ToolParallelism: cfg.Agent.ToolParallelism,
			ToolTimeout:     cfg.Agent.ToolTimeout,
			ProviderTimeout: cfg.Agent.ProviderTimeout,
			MaxTokens:       cfg.Agent.MaxTokens,
		},
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	errc := make(chan error, 2)
	started := 0

	if cfg.Web.Enabled {
		started++
		go func() {
			errc <- web.NewServer(runtime, logger).Run(ctx, cfg.Web.Listen)
		}()
	}
	if cfg.Telegram.Enabled {
		bot, err := telegram.New(cfg.Telegram.BotToken, runtime, logger)
		if err != nil {
			return err
		}
		started++
		go func() {
			errc <- bot.Run(ctx)
		}()
	}
	if started == 0 {
		return fmt.Errorf("no front end enabled; set web.enabled or telegram.enabled")
	}

	logger.Info("strand runtime started",
		"checkpoint", cfg.Checkpoint.Backend,
		"search", cfg.Search.Backend,
		"provider", cfg.LLM.Provider)

	for i := 0; i < started; i++ {
		if err := <-errc; err != nil {
			stop()
			return err
		}
	}
	return nil
}

// buildStore selects the checkpoint backend. In standalone mode a sqlite
// open failure downgrades to memory with a logged warning; in durable mode
// it is fatal.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (checkpoint.Store, error) {
	if cfg.Checkpoint.Backend == "memory" {
		return checkpoint.NewMemoryStore(), nil
	}

	store, err := checkpoint.NewSQLiteStore(cfg.Checkpoint.Path)
	if err != nil {
		if cfg.Checkpoint.Durable {
			return nil, fmt.Errorf("durable checkpoint store: %w", err)
		}
		logger.Warn("sqlite checkpoint store unavailable, downgrading to memory",
			"path", cfg.Checkpoint.Path,
			"error", err)
		return checkpoint.NewMemoryStore(), nil
	}

	if cfg.Checkpoint.Retention > 0 {
		cutoff := time.Now().Add(-cfg.Checkpoint.Retention)
		pruned, err := store.PruneOlderThan(ctx, cutoff)
		if err != nil {
			logger.Warn("checkpoint pruning failed", "error", err)
		} else if pruned > 0 {
			logger.Info("pruned old checkpoints", "count", pruned)
		}
	}
	return store, nil
}

func buildProvider(cfg *config.Config) (agent.Provider, error) {
	switch cfg.LLM.Provider {
	case "openai":
		if cfg.LLM.BaseURL != "" {
			return providers.NewOpenAIWithBaseURL(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model), nil
		}
		return providers.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.Model), nil
	case "anthropic":
		return providers.NewAnthropic(cfg.LLM.APIKey, cfg.LLM.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func serveMetrics(ctx context.Context, listen string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}

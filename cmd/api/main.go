package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parallax/internal/adapter/repo"
	"parallax/internal/domain"
	"parallax/internal/http/handlers"
	"parallax/internal/http/httpapi"
	"parallax/internal/infra"
	"parallax/internal/metrics"
	"parallax/internal/pipeline"
	"parallax/internal/providers/hf"
	"parallax/internal/providers/replicate"
	"parallax/internal/storage"
	"parallax/internal/vision"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ledger: PostgreSQL when configured, in-memory otherwise. The memory
	// ledger keeps the zero-configuration mode fully working.
	var ledger domain.JobLedger
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		pg := repo.NewPostgresLedger(pool)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate ledger schema")
		}
		ledger = pg
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory job ledger")
		ledger = repo.NewMemoryLedger()
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := metrics.New(registry)

	// Provider chains. Presence of credentials decides which remote sources
	// are attempted; with none configured the chains run on local fallbacks.
	var (
		depthSources  []vision.DepthSource
		maskSources   []vision.MaskSource
		labelProvider vision.LabelProvider
	)
	if cfg.ReplicateAPIToken != "" {
		client := replicate.NewClient(replicate.Options{
			APIToken:     cfg.ReplicateAPIToken,
			BaseURL:      cfg.ReplicateBaseURL,
			DepthModel:   cfg.ReplicateDepthModel,
			MaskModel:    cfg.ReplicateMaskModel,
			Logger:       &logger,
			PollInterval: cfg.ProviderPollInterval,
			PollCeiling:  cfg.ProviderPollCeiling,
		})
		depthSources = append(depthSources, client)
		if client.SupportsMask() {
			maskSources = append(maskSources, client)
		}
	}
	if cfg.HFAPIToken != "" {
		client := hf.NewClient(hf.Options{
			APIToken:      cfg.HFAPIToken,
			BaseURL:       cfg.HFBaseURL,
			ClassifyModel: cfg.HFClassifyModel,
			DepthModel:    cfg.HFDepthModel,
			Logger:        &logger,
			Timeout:       cfg.ProviderTimeout,
		})
		depthSources = append(depthSources, client)
		labelProvider = client
	}
	if len(depthSources) == 0 {
		logger.Warn().Msg("no provider credentials configured, running in pure fallback mode")
	}

	classifier := vision.NewClassifier(labelProvider, logger, stats)
	depthChain := vision.NewDepthChain(depthSources, logger, stats)
	maskChain := vision.NewMaskChain(maskSources, logger, stats)

	orchestrator := pipeline.NewOrchestrator(ledger, store, classifier, depthChain, maskChain, logger, stats)
	// Workers run on an uncancelable context so queued jobs drain to a
	// terminal state during shutdown instead of failing on cancellation.
	dispatcher := pipeline.NewDispatcher(context.WithoutCancel(ctx), orchestrator, cfg.PipelineWorkers, cfg.PipelineDepth, logger)

	app := &handlers.App{
		Ledger:     ledger,
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
	}
	router := httpapi.NewRouter(app, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Let in-flight jobs finish before exiting.
	dispatcher.Close()
	if err := dispatcher.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("dispatcher stopped with error")
	}
	logger.Info().Msg("server stopped")
}

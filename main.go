package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/relayscout/pkg/config"
	"github.com/ekaya-inc/relayscout/pkg/discovery"
	"github.com/ekaya-inc/relayscout/pkg/handlers"
	"github.com/ekaya-inc/relayscout/pkg/lnurl"
	"github.com/ekaya-inc/relayscout/pkg/mcp"
	"github.com/ekaya-inc/relayscout/pkg/mcp/tools"
	"github.com/ekaya-inc/relayscout/pkg/metrics"
	"github.com/ekaya-inc/relayscout/pkg/middleware"
	"github.com/ekaya-inc/relayscout/pkg/models"
	"github.com/ekaya-inc/relayscout/pkg/relay"
	"github.com/ekaya-inc/relayscout/pkg/retry"
	"github.com/ekaya-inc/relayscout/pkg/services"
	"github.com/ekaya-inc/relayscout/pkg/services/workqueue"
	"github.com/ekaya-inc/relayscout/ui"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	initConfig := flag.String("init-config", "", "write an example config file to `path` and exit")
	flag.Parse()

	if *initConfig != "" {
		if err := config.WriteExample(*initConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write example config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", *initConfig)
		return
	}

	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsLocal() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Int("discovery_cap", cfg.Discovery.Cap),
		zap.Int("default_relays", len(cfg.Relays.Defaults)),
		zap.Bool("verifier", cfg.Verifier.Enabled),
		zap.Bool("mcp", cfg.MCPEnabled),
		zap.Bool("metrics", cfg.Metrics.Enabled))

	collector := metrics.NewCollector()
	var recorder services.MetricsRecorder = services.NopMetrics{}
	if cfg.Metrics.Enabled {
		recorder = collector
	}

	pool := relay.NewPool(relay.ClientConfig{
		ReadLimit:     cfg.Relays.ReadLimit,
		MaxReconnects: cfg.Relays.MaxReconnects,
	}, logger)
	prober := relay.NewProber(cfg.Relays.ProbeTimeout, logger)
	registry := services.NewSourceRegistry(cfg.Relays.Defaults, prober, recorder, logger)

	// Address verification runs on its own queue so lookups never block ingestion.
	var verifier services.AddressVerificationService
	var queue *workqueue.Queue
	if cfg.Verifier.Enabled {
		queue = workqueue.New(logger.Named("verifier-queue"),
			workqueue.WithStrategy(workqueue.NewThrottledStrategy(cfg.Verifier.MaxConcurrent)),
			workqueue.WithRetryConfig(workqueue.DefaultRetryConfig()))

		retryCfg := retry.DefaultConfig()
		retryCfg.MaxRetries = cfg.Verifier.MaxRetries
		resolver := lnurl.NewClient(cfg.Verifier.Timeout, logger, lnurl.WithRetryConfig(retryCfg))
		verifier = services.NewAddressVerificationService(resolver, queue, recorder, logger)
	}

	// The session is created after the engine, so the goal hook resolves it lazily.
	var session services.DiscoverySessionService
	engineOpts := []discovery.Option{
		discovery.WithGoalHook(func() { session.HandleGoal() }),
	}
	if cfg.Metrics.Enabled {
		engineOpts = append(engineOpts, discovery.WithRecorder(collector))
	}
	if verifier != nil {
		engineOpts = append(engineOpts, discovery.WithAdmissionHook(verifier.HandleAdmission))
	}
	engine := discovery.NewEngine(cfg.Discovery.Cap, logger, engineOpts...)

	session = services.NewDiscoverySessionService(engine, registry, pool,
		services.SessionConfig{PerSourceLimit: cfg.Discovery.PerSourceLimit}, recorder, logger)
	enrichment := services.NewDeepEnrichmentService(engine, registry, pool,
		services.EnrichmentConfig{Window: cfg.Discovery.EnrichmentWindow, Label: cfg.Discovery.EnrichmentLabel}, recorder, logger)
	report := services.NewDiscoveryReportService(engine, verifier)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewConfigHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewSourcesHandler(registry, logger).RegisterRoutes(mux)
	handlers.NewDiscoveryHandler(session, report, logger).RegisterRoutes(mux)
	handlers.NewActorsHandler(report, enrichment, logger).RegisterRoutes(mux)
	if verifier != nil {
		handlers.NewVerificationsHandler(verifier, logger).RegisterRoutes(mux)
	}
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, collector.Handler())
	}

	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer("relayscout", cfg.Version, logger)
		tools.RegisterDiscoveryTools(mcpServer.MCP(), &tools.DiscoveryToolDeps{
			Session:  session,
			Report:   report,
			Registry: registry,
			Logger:   logger,
		})
		tools.RegisterActorTools(mcpServer.MCP(), &tools.ActorToolDeps{
			Report:     report,
			Enrichment: enrichment,
			Logger:     logger,
		})
		if verifier != nil {
			tools.RegisterVerificationTools(mcpServer.MCP(), &tools.VerificationToolDeps{
				Verifier: verifier,
				Logger:   logger,
			})
		}
		handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)
	}

	dist, err := fs.Sub(ui.DistFS(), "dist")
	if err != nil {
		return fmt.Errorf("failed to open ui assets: %w", err)
	}
	mux.Handle("/", http.FileServer(http.FS(dist)))

	handler := middleware.Recoverer(logger)(middleware.RequestLogger(logger)(mux))
	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting relayscout",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	session.Stop(models.StopManual)
	enrichment.Shutdown()
	pool.Shutdown()
	if queue != nil {
		queue.Cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

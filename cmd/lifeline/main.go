// Package main is the entry point for the lifeline workflow server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/opero/lifeline/internal/audit"
	"github.com/opero/lifeline/internal/capability"
	"github.com/opero/lifeline/internal/config"
	"github.com/opero/lifeline/internal/definition"
	"github.com/opero/lifeline/internal/effect"
	"github.com/opero/lifeline/internal/observability"
	"github.com/opero/lifeline/internal/transport"
	"github.com/opero/lifeline/internal/workflow"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:      cfg.Observability.Tracing.Enabled,
		Exporter:     cfg.Observability.Tracing.Exporter,
		Endpoint:     cfg.Observability.Tracing.Endpoint,
		SamplingRate: cfg.Observability.Tracing.SamplingRate,
	}, "lifeline", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Register side-effect handlers and permission predicates.
	effects := effect.NewRegistry()
	effects.Register(effect.NewLogHandler("log", logger))
	for _, hook := range cfg.Effects.Webhooks {
		timeout := hook.Timeout
		if timeout == 0 {
			timeout = cfg.Effects.DefaultTimeout
		}
		effects.Register(effect.NewWebhookHandler(hook.Name, hook.URL, timeout, nil))
	}

	customs := capability.NewRegistry()

	// Step 5: Load definitions, validate, build registry.
	loader := definition.NewLoader()
	defs, err := loader.LoadAll(cfg.Definitions.Directories)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}

	validator := definition.NewValidator(effects.Names(), customs.Names())
	verrs := validator.Validate(defs)
	if len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		logger.Error("definition validation failed", zap.Int("errors", len(verrs)))
		return 1
	}

	registry, err := definition.NewRegistry(defs, customs)
	if err != nil {
		logger.Error("definition compilation failed", zap.Error(err))
		return 1
	}
	metrics.DefinitionsLoaded.Set(float64(registry.Len()))

	// Step 6: Initialize document store.
	docStore, docStoreCloser, err := buildDocumentStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("document store initialization failed", zap.Error(err))
		return 1
	}

	// Step 7: Initialize idempotency store (optional).
	idemStore, idemCloser := buildIdempotencyStore(cfg.Idempotency, logger)

	// Step 8: Initialize actor directory (optional).
	annotator := buildAnnotator(cfg.Directory, logger, metrics)

	// Step 9: Build the engine.
	engine := workflow.NewEngine(registry, docStore, effects, logger, metrics)

	// Step 10: Build HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL,
		transport.WithJWKSLogger(logger))

	readinessChecks := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return registry.Len() > 0 },
	}
	if hc, ok := docStore.(observability.HealthChecker); ok {
		readinessChecks.DocumentStore = hc
	}
	if hc, ok := idemStore.(observability.HealthChecker); ok {
		readinessChecks.IdempotencyStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Registry:     registry,
		Engine:       engine,
		Idempotency:  idemStore,
		Annotator:    annotator,
		Metrics:      metrics,
		Gatherer:     prometheus.DefaultGatherer,
		Readiness:    readinessChecks,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 11: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", registry.Len()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Close stores.
	if docStoreCloser != nil {
		docStoreCloser()
	}
	if idemCloser != nil {
		idemCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildDocumentStore creates the document store based on config.
func buildDocumentStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (workflow.DocumentStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory document store")
		return workflow.NewMemoryStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("document store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("document store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("document store: connect: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("document store: ping: %w", err)
		}

		return workflow.NewPgDocumentStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported document store driver: %q", cfg.Driver)
	}
}

// buildIdempotencyStore creates the idempotency store based on config.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (workflow.IdempotencyStore, func()) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Driver {
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			logger.Warn("redis address not configured, using in-memory idempotency store")
			return workflow.NewMemoryIdempotencyStore(), nil
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		logger.Info("using redis idempotency store", zap.String("addr", addr))
		return workflow.NewRedisIdempotencyStore(client), func() { _ = client.Close() }
	default:
		logger.Info("using in-memory idempotency store")
		return workflow.NewMemoryIdempotencyStore(), nil
	}
}

// buildAnnotator creates the history annotator, with a nil directory when
// none is configured. An unconfigured directory means history shows raw
// principal IDs.
func buildAnnotator(cfg config.DirectoryConfig, logger *zap.Logger, metrics *observability.Metrics) *audit.Annotator {
	if cfg.File == "" {
		return audit.NewAnnotator(nil, logger, metrics)
	}
	dir, err := audit.LoadStaticDirectory(cfg.File)
	if err != nil {
		logger.Warn("actor directory load failed, history will show raw IDs", zap.Error(err))
		return audit.NewAnnotator(nil, logger, metrics)
	}
	return audit.NewAnnotator(dir, logger, metrics)
}

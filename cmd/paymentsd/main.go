package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/meditrackpro/payments/pkg/api"
	"github.com/meditrackpro/payments/pkg/config"
	"github.com/meditrackpro/payments/pkg/gateway"
	"github.com/meditrackpro/payments/pkg/intent"
	"github.com/meditrackpro/payments/pkg/observability"
	"github.com/meditrackpro/payments/pkg/orchestrator"
	"github.com/meditrackpro/payments/pkg/pricing"
	"github.com/meditrackpro/payments/pkg/session"
)

// version is stamped at build time with -ldflags
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "meditrack-payments").
		WithField("version", version)
	logger.Info("Starting payments daemon")

	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	// Pricing catalog: built-in unless a YAML catalog is configured
	catalog := pricing.DefaultCatalog()
	if cfg.Checkout.CatalogPath != "" {
		catalog, err = pricing.LoadCatalog(cfg.Checkout.CatalogPath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load pricing catalog")
		}
		logger.WithField("path", cfg.Checkout.CatalogPath).Info("Loaded pricing catalog")
	}
	calc := pricing.NewCalculator(catalog)

	var catalogWatcher *pricing.CatalogWatcher
	if cfg.Checkout.CatalogPath != "" && cfg.Checkout.WatchCatalog {
		catalogWatcher, err = pricing.WatchCatalog(cfg.Checkout.CatalogPath, calc, func(err error) {
			logger.WithError(err).Warn("Catalog reload failed, keeping previous catalog")
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to watch pricing catalog")
		}
		logger.Info("Watching pricing catalog for changes")
	}

	sessions, err := newSessionStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize session store")
	}

	intents := intent.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	adapter := gateway.NewAdapter(cfg.Gateway)
	checker := observability.NewHealthChecker(sessions, cfg.Upstream.BaseURL, version)

	server, err := api.NewServer(api.Options{
		Intents:  intents,
		Gateway:  adapter,
		Calc:     calc,
		Sessions: sessions,
		Orchestrator: orchestrator.Config{
			LoginRedirectURL:     cfg.Checkout.LoginRedirectURL,
			DirectTransferWindow: cfg.Checkout.DirectTransferWindow,
		},
		Logger:           logger,
		Metrics:          metrics,
		Checker:          checker,
		Registry:         registry,
		ReceiptCacheSize: cfg.Checkout.ReceiptCacheSize,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create API server")
	}

	// Stale-session sweep: report hosted checkouts that never completed.
	// The gateway has no cancel event, so abandoned sessions only show up
	// as open sessions past the stale age.
	sweeper := cron.New()
	_, err = sweeper.AddFunc(cfg.Checkout.StaleSweepSchedule, func() {
		sweepStaleSessions(adapter, metrics, logger, cfg.Checkout.StaleSessionAge)
	})
	if err != nil {
		logger.WithError(err).Fatal("Invalid stale sweep schedule")
	}
	sweeper.Start()

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := newHealthServer(cfg, checker, registry)

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopCtx := sweeper.Stop()
		select {
		case <-stopCtx.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	if catalogWatcher != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return catalogWatcher.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return sessions.Close()
	})
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return providers.TracerProvider.Shutdown(ctx)
		})
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("API server failed")
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// newSessionStore builds the configured tenant session store
func newSessionStore(cfg *config.Config, logger *observability.Logger) (session.Store, error) {
	switch cfg.Session.Backend {
	case "memory":
		logger.Warn("Using in-memory session store, sessions will not survive restarts")
		return session.NewMemoryStore(), nil
	default:
		store, err := session.NewRedisStore(cfg.Session.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to Redis session store")
		return store, nil
	}
}

// newHealthServer serves the k8s probes and the metrics scrape on a port
// separate from tenant traffic
func newHealthServer(cfg *config.Config, checker *observability.HealthChecker, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
	if registry != nil {
		mux.Handle("/metrics", observability.MetricsHandler(registry))
	}
	return &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// sweepStaleSessions logs open checkout sessions older than maxAge and
// updates the stale gauge. Sessions are left open: a late completion is
// still valid, the log line is the operator's cue to reconcile manually.
func sweepStaleSessions(adapter *gateway.Adapter, metrics *observability.Metrics, logger *observability.Logger, maxAge time.Duration) {
	pending := adapter.PendingSessions()
	stale := 0
	for _, s := range pending {
		age := time.Since(s.OpenedAt)
		if age < maxAge {
			continue
		}
		stale++
		logger.WithField("order_id", s.OrderID).
			WithField("subscription_id", s.SubscriptionID).
			WithField("age", age.String()).
			Warn("Stale checkout session, gateway never reported completion")
	}
	if metrics != nil {
		metrics.GatewaySessionsPending.Set(float64(len(pending)))
		metrics.GatewaySessionsStale.Set(float64(stale))
	}
}

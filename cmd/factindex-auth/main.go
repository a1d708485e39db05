package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/config"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/httputil"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/observability"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/providers"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/server"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/sessionstore"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("factindex-auth stopped")
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Observability.Log, os.Stdout)
	logger.WithField("version", version).Info("Starting factindex-auth")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.RegisterShutdownFunc(otelProviders.Shutdown)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	var deps []observability.Dependency

	cache, err := newCache(cfg, shutdown, &deps)
	if err != nil {
		return err
	}

	upstream := providers.NewUpstream(providers.NewHTTPClient(cfg.Upstream.Timeout), metrics)
	adapters, err := providers.NewFactory(cfg.Providers, upstream).CreateAll()
	if err != nil {
		return fmt.Errorf("failed to create provider adapters: %w", err)
	}
	logger.WithField("providers", providers.Enabled(adapters)).Info("Providers configured")

	validator, err := session.NewValidator(adapters, cache, session.ValidatorOptions{
		CacheTTL: cfg.Cache.TTL,
		Logger:   logger,
		Recorder: metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	store, closer, err := sessionstore.Open(ctx, cfg.SessionStore)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	switch s := store.(type) {
	case *sessionstore.RedisStore:
		deps = append(deps, observability.RedisDependency("session_store", s.Client(), true))
	case *sessionstore.SQLStore:
		deps = append(deps, observability.DatabaseDependency("session_store", s.DB()))

		sweeper, err := sessionstore.NewSweeper(s, cfg.SessionStore.SweepSchedule, logger)
		if err != nil {
			closer.Close()
			return err
		}
		sweeper.Start()
		// Registered before the closer so no sweep runs against a closed pool
		shutdown.RegisterShutdownFunc(sweeper.Stop)
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error { return closer.Close() })
	logger.WithField("backend", cfg.SessionStore.Backend).Info("Session store ready")

	var opts []server.Option
	if a, ok := validator.Adapter(session.ProviderDev); ok && a.Enabled() {
		if dev, ok := a.(server.DevLogin); ok {
			logger.Warn("Dev login is enabled")
			opts = append(opts, server.WithDevLogin(dev))
		}
	}
	srv := server.New(validator, store, cfg.Session, logger, opts...)

	router := mux.NewRouter()
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	srv.RegisterRoutes(router)

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.CORSMiddleware(cfg.Server.AllowedOrigins),
	)(router)
	if cfg.Observability.OTel.Enabled {
		handler = otelhttp.NewHandler(handler, "factindex-auth")
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ops := http.NewServeMux()
	observability.RegisterHealthRoutes(ops, observability.NewHealthChecker(version, deps...))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(ops, registry)
	}
	opsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           ops,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown.AddServer(apiServer)
	shutdown.AddServer(opsServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(logger, apiServer, "api") })
	g.Go(func() error { return serve(logger, opsServer, "ops") })
	g.Go(func() error { return shutdown.Wait(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// newCache builds the authorization cache selected by cfg
func newCache(cfg *config.Config, shutdown *observability.ShutdownManager, deps *[]observability.Dependency) (session.AuthorizationCache, error) {
	if cfg.Cache.Backend != "redis" {
		return session.NewMemoryCache(cfg.Cache.Size, cfg.Cache.Retention), nil
	}

	client, err := sessionstore.NewRedisClient(cfg.SessionStore)
	if err != nil {
		return nil, fmt.Errorf("failed to connect authorization cache: %w", err)
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error { return client.Close() })

	// Cache outages degrade validation to live checks
	*deps = append(*deps, observability.RedisDependency("authorization_cache", client, false))
	return session.NewRedisCache(client, cfg.Cache.Retention), nil
}

func serve(logger logrus.FieldLogger, s *http.Server, name string) error {
	defer observability.RecoverPanic(logger, name+" server")

	logger.WithFields(logrus.Fields{"server": name, "addr": s.Addr}).Info("Listening")
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

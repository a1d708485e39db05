// Package observability provides structured logging, Prometheus metrics, health checks and
// OpenTelemetry export for the auth service.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info"}, os.Stdout)
//	observability.FromContext(r.Context(), logger).WithField("provider", "discord").Info("refreshed")
//
// # Prometheus Metrics
//
// Metrics implements session.Recorder and providers.UpstreamRecorder, so the same value is
// handed to the validator and to the upstream HTTP layer:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	upstream := providers.NewUpstream(client, metrics)
//	validator, err := session.NewValidator(adapters, cache, session.ValidatorOptions{Recorder: metrics})
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version,
//		observability.RedisDependency("redis", client, false),
//		observability.DatabaseDependency("sessions", db),
//	)
//	observability.RegisterHealthRoutes(opsMux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg.OTel, logger)
//	defer providers.Shutdown(ctx)
package observability

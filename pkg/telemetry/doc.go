// Package telemetry provides observability instrumentation for berthd.
//
// The telemetry package integrates structured logging (zerolog),
// distributed tracing (OpenTelemetry), and Prometheus metrics into a
// unified system for monitoring server connections and deployment
// operations.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "berthd"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("connection-manager")
//	logger = logger.WithServer("web-1").WithDeployment("app.tar.gz")
//	logger.Info("deployment started")
//	logger.WithError(err).Error("deployment failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into connection and deployment flow:
//
//	ctx, span := tel.Tracer.StartDeploySpan(ctx, "web-1", "./app.tar.gz")
//	defer span.End()
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track connection and deployment behavior:
//
//	tel.Metrics.RecordConnectAttempt("web-1", "connected")
//	tel.Metrics.RecordDeployStarted("web-1")
//	tel.Metrics.RecordDeployCompleted("web-1", "deployed", duration)
//
// Metrics are exposed on an HTTP endpoint (default :9090/metrics).
package telemetry

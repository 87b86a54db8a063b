// Package observability provides the logger and tracer shared by every
// avaguard component.
//
// Logging is structured and backed by zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = logger.Sync() }()
//
//	logger.Info("decision resolved",
//	    observability.String("relation", "viewer"),
//	    observability.Bool("allowed", true),
//	)
//
// Tracing uses OpenTelemetry with an optional OTLP gRPC exporter. Metrics are
// owned by the packages that emit them and registered with Prometheus there.
package observability

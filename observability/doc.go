// Package observability provides OpenTelemetry tracing and metrics for
// pipeline runs.
//
// Tracing and metrics are exported over OTLP/HTTP when enabled. When they are
// not, the global otel providers are no-ops and every helper here is cheap.
//
//	shutdown, err := observability.Setup(ctx, cfg.Observability, cfg.Name, cfg.Environment)
//	defer shutdown(context.Background())
//
//	rc := observability.NewRunContext(sessionID, runID, observability.Default())
//	ctx, span := rc.StartRunSpan(ctx)
//	defer rc.EndRun(ctx, span, "completed", nil)
package observability

package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/jae-editor/operate/errors"
)

// RunContext holds observability state for one pipeline run.
type RunContext struct {
	SessionID string
	RunID     string
	StartTime time.Time
	Metrics   *Metrics
}

// NewRunContext creates a run context. If metrics is nil, metric recording is
// silently skipped.
func NewRunContext(sessionID, runID string, metrics *Metrics) *RunContext {
	return &RunContext{
		SessionID: sessionID,
		RunID:     runID,
		StartTime: time.Now(),
		Metrics:   metrics,
	}
}

// StartRunSpan starts the span covering the whole run.
func (rc *RunContext) StartRunSpan(ctx context.Context) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, SpanRun)
	span.SetAttributes(
		attribute.String(AttrSessionID, rc.SessionID),
		attribute.String(AttrRunID, rc.RunID),
	)
	return ctx, span
}

// StartStageSpan starts a child span for a stage; used for barrier stages,
// whose materialisation dominates run latency.
func (rc *RunContext) StartStageSpan(ctx context.Context, name string, stage int, operator string) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, name)
	span.SetAttributes(
		attribute.String(AttrRunID, rc.RunID),
		attribute.Int(AttrStage, stage),
		attribute.String(AttrOperator, operator),
	)
	return ctx, span
}

// EndRun ends the run span and records the run metrics.
func (rc *RunContext) EndRun(ctx context.Context, span trace.Span, status string, degraded bool, err error) {
	duration := time.Since(rc.StartTime)

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String(AttrErrorCode, string(apperrors.CodeOf(err))))
	}

	span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Bool("degraded", degraded),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	span.End()

	rc.Metrics.RecordRun(ctx, status, degraded, duration)
}

// Duration returns the elapsed time since the run started.
func (rc *RunContext) Duration() time.Duration {
	return time.Since(rc.StartTime)
}

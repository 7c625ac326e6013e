package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "github.com/jae-editor/operate/errors"
)

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Endpoint != "" {
		t.Errorf("endpoint must stay empty while export is off, got %q", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 || cfg.Interval != 15*time.Second {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	cfg = Config{Tracing: true}
	cfg.ApplyDefaults()
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected default endpoint, got %q", cfg.Endpoint)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{0.5, sdktrace.TraceIDRatioBased(0.5).Description()},
	}
	for _, tc := range tests {
		if got := sampler(tc.rate).Description(); got != tc.want {
			t.Errorf("sampler(%v) = %s, want %s", tc.rate, got, tc.want)
		}
	}
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{}, "test", "development")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestNewMetrics(t *testing.T) {
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}
	ctx := context.Background()
	metrics.RecordRun(ctx, "completed", false, 10*time.Millisecond)
	metrics.RecordStageRecords(ctx, 0, "lines", 3)
	metrics.RecordSpawn(ctx, "sort", "ok")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordRun(ctx, "failed", true, time.Second)
	m.RecordStageRecords(ctx, 1, "filter", 1)
	m.RecordSpawn(ctx, "cat", "failed")
}

func TestDefaultMetrics(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected default metrics on the global meter")
	}
}

func TestSampler_Endpoints(t *testing.T) {
	if sampler(1).Description() != sdktrace.AlwaysSample().Description() {
		t.Error("expected always sample at 1.0")
	}
	if sampler(0).Description() != sdktrace.NeverSample().Description() {
		t.Error("expected never sample at 0")
	}
}

func TestRunContextSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	rc := NewRunContext("s1", "r1", nil)
	ctx, span := rc.StartRunSpan(context.Background())
	_, stage := rc.StartStageSpan(ctx, SpanBarrier, 2, "sort")
	stage.End()
	rc.EndRun(ctx, span, "failed", false, apperrors.SourceUnavailable("edited"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	run := spans[1]
	if run.Name != SpanRun {
		t.Errorf("expected run span last, got %s", run.Name)
	}
	var code string
	for _, kv := range run.Attributes {
		if kv.Key == AttrErrorCode {
			code = kv.Value.AsString()
		}
	}
	if code != string(apperrors.ErrCodeSourceUnavailable) {
		t.Errorf("expected error code attribute, got %q", code)
	}
	if rc.Duration() <= 0 {
		t.Error("expected positive duration")
	}
}

func TestConfigApplyDefaults_TracingOn(t *testing.T) {
	cfg := Config{Tracing: true}
	cfg.ApplyDefaults()
	if cfg.Endpoint != "localhost:4318" || cfg.SampleRate != 1.0 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	off := Config{}
	off.ApplyDefaults()
	if off.Endpoint != "" {
		t.Errorf("expected no endpoint when nothing is exported, got %q", off.Endpoint)
	}
}

func TestSetupDisabled_ShutdownTolerant(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{}, "operate", "development")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

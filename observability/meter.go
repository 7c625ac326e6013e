package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/jae-editor/operate/logger"
)

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Debug("metrics enabled", logger.Fields("endpoint", cfg.Endpoint, "interval", cfg.Interval.String()))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the engine's metric instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	runTotal        metric.Int64Counter
	runDuration     metric.Float64Histogram
	stageRecords    metric.Int64Counter
	externalSpawned metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	runTotal, err := meter.Int64Counter("operate.run.total",
		metric.WithDescription("Total number of pipeline runs by final state"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operate.run.total counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram("operate.run.duration",
		metric.WithDescription("Duration of pipeline runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operate.run.duration histogram: %w", err)
	}

	stageRecords, err := meter.Int64Counter("operate.stage.records",
		metric.WithDescription("Records emitted per stage"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operate.stage.records counter: %w", err)
	}

	externalSpawned, err := meter.Int64Counter("operate.external.spawned",
		metric.WithDescription("External processes spawned by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operate.external.spawned counter: %w", err)
	}

	return &Metrics{
		runTotal:        runTotal,
		runDuration:     runDuration,
		stageRecords:    stageRecords,
		externalSpawned: externalSpawned,
	}, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns instruments on the global meter provider. Instruments
// created before a provider is installed forward to it once it is.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(Meter(defaultTracerName))
		if err != nil {
			logger.Warn("metrics unavailable", logger.Fields(logger.FieldError, err.Error()))
			return
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(ctx context.Context, status string, degraded bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.runTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStatus, status),
		attribute.Bool("degraded", degraded),
	))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrStatus, status),
	))
}

// RecordStageRecords adds n to the record count of a stage.
func (m *Metrics) RecordStageRecords(ctx context.Context, stage int, operator string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.stageRecords.Add(ctx, n, metric.WithAttributes(
		attribute.Int(AttrStage, stage),
		attribute.String(AttrOperator, operator),
	))
}

// RecordSpawn records an external process spawn attempt.
func (m *Metrics) RecordSpawn(ctx context.Context, command, status string) {
	if m == nil {
		return
	}
	m.externalSpawned.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String(AttrStatus, status),
	))
}

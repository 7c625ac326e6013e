package operator

import (
	"context"
	"time"

	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/observability"
	"github.com/jae-editor/operate/process"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
)

// Operator is one pipeline stage. Apply wires the stage onto its input stream
// without pulling anything; work happens when the returned stream is iterated.
// Operators never modify the records they receive.
type Operator interface {
	Spec() Spec
	Apply(env *Env, in *stream.Stream[record.Record]) *stream.Stream[record.Record]
}

// Env is the per-run environment handed to every stage.
type Env struct {
	// Stage is the index of the stage in its pipeline.
	Stage int
	// Logger is scoped to the run.
	Logger *logger.Logger
	// Spawner starts External processes.
	Spawner process.Spawner
	// ChunkSize is used when wrapping process output as a byte source.
	ChunkSize int
	// GracePeriod is the SIGTERM to SIGKILL delay for External stages that do
	// not set their own.
	GracePeriod time.Duration
	// ExtraEnv is added to the environment of every spawned process.
	ExtraEnv []string
	// Metrics may be nil.
	Metrics *observability.Metrics
	// Degrade marks the run degraded: it still completes, but with err
	// recorded against it.
	Degrade func(err error)
}

// ForStage returns a copy of e for the stage at index i.
func (e *Env) ForStage(i int, spec Spec) *Env {
	c := *e
	c.Stage = i
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	c.Logger = c.Logger.WithFields(logger.Fields(logger.FieldStage, i, logger.FieldOperator, spec.Label()))
	return &c
}

func (e *Env) log() *logger.Logger {
	if e == nil || e.Logger == nil {
		return logger.Nop()
	}
	return e.Logger
}

func (e *Env) degrade(err error) {
	if e != nil && e.Degrade != nil {
		e.Degrade(err)
	}
}

// base carries the spec every operator returns.
type base struct {
	spec Spec
}

func (b base) Spec() Spec { return b.spec }

// label is used in per-record issues and error attribution.
func (b base) label() string { return b.spec.Label() }

// perRecord applies a stateless function to every record. fn returns the
// record to emit and whether to keep it.
func perRecord(in *stream.Stream[record.Record], fn func(record.Record) (record.Record, bool)) *stream.Stream[record.Record] {
	judged := stream.Map(in, func(_ context.Context, r record.Record) (verdict, error) {
		out, keep := fn(r)
		return verdict{rec: out, keep: keep}, nil
	})
	kept := stream.Filter(judged, func(v verdict) bool { return v.keep })
	return stream.Map(kept, func(_ context.Context, v verdict) (record.Record, error) {
		return v.rec, nil
	})
}

type verdict struct {
	rec  record.Record
	keep bool
}

package executor

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/observability"
	"github.com/jae-editor/operate/operator"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
)

// wrapStage instruments the output of one stage: it counts and records the
// records for the memo table, reports progress, attributes errors to the
// stage and traces barrier materialisation.
func (r *Run) wrapStage(s *stream.Stream[record.Record], idx int, spec operator.Spec, gen uint64) *stream.Stream[record.Record] {
	return stream.FromFunc(func(ctx context.Context) stream.Iterator[record.Record] {
		return &stageIter{
			run:     r,
			src:     s.Iter(ctx),
			idx:     idx,
			label:   spec.Label(),
			gen:     gen,
			barrier: spec.Kind.IsBarrier(),
			rec:     newRecorder(r.exec.cfg.MemoLimit),
		}
	})
}

type stageIter struct {
	run     *Run
	src     stream.Iterator[record.Record]
	idx     int
	label   string
	gen     uint64
	barrier bool
	rec     *recorder
	count   int64
	pulled  bool
	done    bool
}

func (it *stageIter) Next(ctx context.Context) (record.Record, bool, error) {
	if it.done {
		return nil, false, nil
	}
	var span trace.Span
	if it.barrier && !it.pulled {
		ctx, span = it.run.rc.StartStageSpan(ctx, observability.SpanBarrier, it.idx, it.label)
	}
	it.pulled = true
	rec, ok, err := it.src.Next(ctx)
	if span != nil {
		if err != nil {
			observability.SetSpanError(ctx, err)
		}
		span.End()
	}
	if err != nil {
		return nil, false, attribute(err, it.idx, it.label)
	}
	if !ok {
		it.finish(ctx)
		return nil, false, nil
	}
	it.count++
	it.rec.add(rec)
	if every := int64(it.run.exec.cfg.ProgressEvery); every > 0 && it.count%every == 0 {
		it.run.notify(Progress{Stage: it.idx, Operator: it.label, Records: it.count})
	}
	return rec, true, nil
}

func (it *stageIter) finish(ctx context.Context) {
	it.done = true
	if !it.rec.abandoned && !it.run.isDegraded() {
		it.run.exec.store(it.idx, it.gen, it.rec.records)
	}
	it.rec = newRecorder(-1)
	it.run.exec.metrics.RecordStageRecords(ctx, it.idx, it.label, it.count)
	it.run.log.Debug("stage finished", logger.Fields(logger.FieldStage, it.idx, logger.FieldOperator, it.label, logger.FieldRecords, it.count))
	it.run.notify(Progress{Stage: it.idx, Operator: it.label, Records: it.count, Done: true})
}

func (it *stageIter) Close() error { return it.src.Close() }

// attribute tags err with the stage it surfaced from. Context errors pass
// through so that cancellation can be told apart from failure.
func attribute(err error, stage int, label string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.WithStage(stage, label)
	}
	return apperrors.Internal(err).WithStage(stage, label)
}

package sink

import (
	"bytes"
	"context"
	stderrors "errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jae-editor/operate/buffer"
	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/executor"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/observability"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
)

// commitPrefetch is how many records evaluation may run ahead of encoding.
const commitPrefetch = 256

// records adapts run to a stream. Closing the stream leaves the run open.
func records(run *executor.Run) *stream.Stream[record.Record] {
	return stream.From(stream.Func(run.Next, nil))
}

// Target is the buffer a commit writes to.
type Target interface {
	ReplaceRegion(start, end int64, data []byte, expect buffer.Revision) error
}

// CommitOptions configures a commit.
type CommitOptions struct {
	// Region is the range replaced in the target.
	Region record.Range
	// Revision is the target revision the region was read at.
	Revision buffer.Revision
	// AllowDegraded permits committing a run that completed degraded.
	AllowDegraded bool
	Logger        *logger.Logger
}

// CommitResult describes an applied commit.
type CommitResult struct {
	Records  int64
	Bytes    int64
	Degraded []error
}

// Commit pulls run to completion, encodes every record and replaces the
// region in one call. On any failure the target is left untouched and the
// error is COMMIT_FAILED, attributed to the stage that caused it.
func Commit(ctx context.Context, run *executor.Run, target Target, opts CommitOptions) (*CommitResult, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	ctx, span := observability.StartSpan(ctx, observability.SpanCommit)
	defer span.End()
	span.SetAttributes(attribute.String(observability.AttrRunID, run.ID()))

	res, err := commit(ctx, run, target, opts)
	if err != nil {
		observability.SetSpanError(ctx, err)
		log.WithError(err).Error("commit failed", logger.Fields(logger.FieldRunID, run.ID(), logger.FieldCode, string(apperrors.CodeOf(err))))
		return nil, err
	}
	span.SetAttributes(attribute.Int64(observability.AttrRecords, res.Records))
	log.Info("committed", logger.Fields(logger.FieldRunID, run.ID(), logger.FieldRecords, res.Records, "bytes", res.Bytes))
	return res, nil
}

func commit(ctx context.Context, run *executor.Run, target Target, opts CommitOptions) (*CommitResult, error) {
	var buf bytes.Buffer
	w := record.NewWriter(&buf)
	written := stream.Tap(stream.Buffer(records(run), commitPrefetch), func(_ context.Context, rec record.Record) error {
		if err := w.Write(rec); err != nil {
			return commitError("cannot encode output", apperrors.Internal(err))
		}
		return nil
	})
	n, err := stream.Count(ctx, written)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeCommitFailed) {
			return nil, err
		}
		return nil, commitError("evaluation failed", err)
	}
	degraded := run.Degraded()
	if len(degraded) > 0 && !opts.AllowDegraded {
		return nil, commitError("run completed degraded", stderrors.Join(degraded...)).
			WithDetail("degraded", len(degraded))
	}
	if err := target.ReplaceRegion(opts.Region.Start, opts.Region.End, buf.Bytes(), opts.Revision); err != nil {
		return nil, commitError("buffer rejected the replace", err)
	}
	return &CommitResult{Records: int64(n), Bytes: w.Written(), Degraded: degraded}, nil
}

// commitError wraps cause, carrying over its stage and code.
func commitError(reason string, cause error) *apperrors.AppError {
	e := apperrors.CommitFailed(reason, cause)
	var app *apperrors.AppError
	if stderrors.As(cause, &app) {
		if app.Stage != apperrors.NoStage {
			e.WithStage(app.Stage, app.Operator)
		}
		e.WithDetail("kind", string(app.Code))
	}
	return e
}

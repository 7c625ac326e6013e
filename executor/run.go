package executor

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/observability"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
)

// Run is one lazy evaluation of the pipeline. It is an Iterator over the
// output of the last stage; pulling it drives every stage.
//
// Next and Close must be called from one goroutine at a time. Cancel, State
// and the other accessors may be called from any goroutine.
type Run struct {
	id      string
	exec    *Executor
	stages  int
	resumed int

	ctx    context.Context
	cancel context.CancelCauseFunc
	rc     *observability.RunContext
	span   trace.Span
	log    *logger.Logger
	iter   stream.Iterator[record.Record]

	mu       sync.Mutex
	state    State
	err      error
	degraded []error
	emitted  int64
	progress []func(Progress)

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ stream.Iterator[record.Record] = (*Run)(nil)

func newRun(parent context.Context, e *Executor, id string, stages, resumed int) *Run {
	r := &Run{
		id:      id,
		exec:    e,
		stages:  stages,
		resumed: resumed,
		rc:      observability.NewRunContext(e.sessionID, id, e.metrics),
		state:   StateIdle,
		done:    make(chan struct{}),
	}
	r.log = e.log.WithFields(logger.Fields(logger.FieldRunID, id))
	if e.sessionID != "" {
		r.log = r.log.WithFields(logger.Fields(logger.FieldSessionID, e.sessionID))
	}
	ctx, cancel := context.WithCancelCause(parent)
	r.ctx, r.span = r.rc.StartRunSpan(ctx)
	r.cancel = cancel
	return r
}

func (r *Run) start(s *stream.Stream[record.Record]) {
	r.iter = s.Iter(r.ctx)
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return
	}
	r.state = StateRunning
	r.mu.Unlock()
	r.log.Debug("run started", logger.Fields("stages", r.stages, "resumed_from", r.resumed))
	r.exec.publish(Event{Kind: EventRunStarted, RunID: r.id, ResumedFrom: r.resumed, State: StateRunning})
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// ResumedFrom returns the index of the first stage this run executes. Stages
// before it were replayed from the memo table.
func (r *Run) ResumedFrom() int { return r.resumed }

// Stages returns the number of stages in the pipeline.
func (r *Run) Stages() int { return r.stages }

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the error a failed or cancelled run ended with.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Degraded returns the problems recorded against a run that still completed,
// such as an External process exiting non-zero after producing output.
func (r *Run) Degraded() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.degraded...)
}

// Emitted returns the number of records pulled from the run so far.
func (r *Run) Emitted() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emitted
}

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// OnProgress registers fn to be called, on the pulling goroutine, as stages
// emit records.
func (r *Run) OnProgress(fn func(Progress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, fn)
}

// Next pulls the next output record.
func (r *Run) Next(ctx context.Context) (record.Record, bool, error) {
	if st := r.State(); st.Terminal() {
		if st == StateCompleted {
			return nil, false, nil
		}
		return nil, false, r.Err()
	}
	if err := ctx.Err(); err != nil {
		r.abort(StateCancelled, apperrors.Cancelled(err))
		return nil, false, r.Err()
	}
	rec, ok, err := r.iter.Next(r.ctx)
	if err != nil {
		r.fail(err)
		return nil, false, r.Err()
	}
	if !ok {
		r.finish(StateCompleted, nil)
		return nil, false, r.Err()
	}
	r.mu.Lock()
	r.emitted++
	r.mu.Unlock()
	return rec, true, nil
}

// Cancel stops the run. Running processes are terminated; the run ends in
// the Cancelled state.
func (r *Run) Cancel() {
	r.abort(StateCancelled, apperrors.Cancelled(nil))
}

// Close cancels the run if it is still active and releases every stage,
// waiting for subprocesses to exit.
func (r *Run) Close() error {
	r.closeOnce.Do(func() {
		r.abort(StateCancelled, apperrors.Cancelled(nil))
		if r.iter != nil {
			r.closeErr = r.iter.Close()
		}
	})
	return r.closeErr
}

// abort cancels the run context with cause and moves to state.
func (r *Run) abort(state State, cause error) {
	r.cancel(cause)
	r.finish(state, cause)
}

// fail classifies an error returned by the pipeline.
func (r *Run) fail(err error) {
	if r.ctx.Err() != nil {
		cause := context.Cause(r.ctx)
		switch {
		case apperrors.HasCode(cause, apperrors.ErrCodeCancelled):
			r.finish(StateCancelled, cause)
		case apperrors.IsAppError(cause):
			r.finish(StateFailed, cause)
		default:
			r.finish(StateCancelled, apperrors.Cancelled(cause))
		}
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.finish(StateCancelled, apperrors.Cancelled(err))
		return
	}
	if !apperrors.IsAppError(err) {
		err = apperrors.Internal(err)
	}
	r.finish(StateFailed, err)
}

func (r *Run) finish(state State, err error) {
	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return
	}
	if !r.state.CanTransition(state) {
		err = apperrors.Internal(err).WithDetail("reason", "invalid transition "+r.state.String()+" -> "+state.String())
		state = StateFailed
	}
	r.state, r.err = state, err
	degraded := len(r.degraded) > 0
	emitted := r.emitted
	r.mu.Unlock()

	ctx := context.WithoutCancel(r.ctx)
	r.rc.EndRun(ctx, r.span, state.String(), degraded, err)
	fields := logger.Fields(logger.FieldStatus, state.String(), logger.FieldRecords, emitted, logger.FieldDuration, r.rc.Duration().Milliseconds())
	switch {
	case state == StateFailed:
		r.log.WithError(err).Error("run failed", fields)
	case degraded:
		r.log.Warn("run completed degraded", fields)
	case state == StateCompleted:
		r.log.Info("run completed", fields)
	default:
		r.log.Debug("run cancelled", fields)
	}
	r.exec.publish(Event{Kind: EventRunFinished, RunID: r.id, Records: emitted, State: state, Degraded: degraded, Err: err})
	r.exec.finished(r)
	close(r.done)
}

// degrade records a non-fatal problem. It may be called from any goroutine.
func (r *Run) degrade(err error) {
	r.mu.Lock()
	r.degraded = append(r.degraded, err)
	r.mu.Unlock()
	r.log.Warn("run degraded", logger.Fields(logger.FieldError, err.Error(), logger.FieldCode, string(apperrors.CodeOf(err))))
}

func (r *Run) isDegraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.degraded) > 0
}

func (r *Run) notify(p Progress) {
	r.mu.Lock()
	callbacks := slices.Clone(r.progress)
	r.mu.Unlock()
	for _, fn := range callbacks {
		fn(p)
	}
	r.exec.publish(Event{Kind: EventStageProgress, RunID: r.id, Stage: p.Stage, Operator: p.Operator, Records: p.Records, Done: p.Done})
}

package executor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/observability"
	"github.com/jae-editor/operate/operator"
	"github.com/jae-editor/operate/process"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/source"
	"github.com/jae-editor/operate/stream"
)

// Executor owns the operator list, the memo table and the active run of one
// session. All methods are safe for concurrent use.
type Executor struct {
	cfg       Config
	registry  *operator.Registry
	spawner   process.Spawner
	metrics   *observability.Metrics
	log       *logger.Logger
	sessionID string

	mu      sync.Mutex
	ops     []operator.Operator
	fps     []operator.Fingerprint
	gens    []uint64
	counter uint64
	memo    *memoTable
	run     *Run
	events  chan Event
	closed  bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithConfig sets the executor configuration.
func WithConfig(cfg Config) Option {
	return func(e *Executor) { e.cfg = cfg }
}

// WithLogger sets the logger runs derive from.
func WithLogger(l *logger.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithSpawner sets the process spawner used by External stages.
func WithSpawner(s process.Spawner) Option {
	return func(e *Executor) { e.spawner = s }
}

// WithMetrics sets the metric instruments. Nil disables metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithRegistry sets the registry operators are built from.
func WithRegistry(r *operator.Registry) Option {
	return func(e *Executor) { e.registry = r }
}

// WithSessionID tags runs with the owning session.
func WithSessionID(id string) Option {
	return func(e *Executor) { e.sessionID = id }
}

// New returns an executor with an empty pipeline.
func New(opts ...Option) *Executor {
	e := &Executor{memo: newMemoTable()}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.ApplyDefaults()
	if e.registry == nil {
		e.registry = operator.NewRegistry()
	}
	if e.spawner == nil {
		e.spawner = process.NewSpawner(e.cfg.GracePeriod)
	}
	if e.log == nil {
		e.log = logger.Nop()
	}
	e.log = e.log.WithComponent("executor")
	e.events = make(chan Event, e.cfg.EventBuffer)
	return e
}

// Events returns the notification channel. It is closed by Close.
func (e *Executor) Events() <-chan Event { return e.events }

// SetOperators validates and installs a new operator list. It returns the
// index of the first stage whose configuration changed, which is len(specs)
// when nothing did. On error the previous list stays installed.
func (e *Executor) SetOperators(specs []operator.Spec) (int, error) {
	ops, err := e.registry.BuildAll(specs)
	if err != nil {
		return 0, err
	}
	fps := make([]operator.Fingerprint, len(ops))
	for i, op := range ops {
		fps[i] = op.Spec().Fingerprint()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	first := len(ops)
	for i := range fps {
		if i >= len(e.fps) || e.fps[i] != fps[i] {
			first = i
			break
		}
	}
	gens := make([]uint64, len(ops))
	copy(gens, e.gens[:min(first, len(e.gens))])
	for i := first; i < len(gens); i++ {
		e.counter++
		gens[i] = e.counter
	}
	e.ops, e.fps, e.gens = ops, fps, gens
	e.memo.prune(gens)
	e.log.Debug("operators set", logger.Fields("stages", len(ops), "first_changed", first))
	return first, nil
}

// Specs returns the installed operator specs.
func (e *Executor) Specs() []operator.Spec {
	e.mu.Lock()
	defer e.mu.Unlock()
	specs := make([]operator.Spec, len(e.ops))
	for i, op := range e.ops {
		specs[i] = op.Spec()
	}
	return specs
}

// Invalidate discards every memoised output and fails the active run with
// cause. It is called when the source content changes.
func (e *Executor) Invalidate(cause error) {
	if cause == nil {
		cause = apperrors.SourceUnavailable("source invalidated")
	}
	e.mu.Lock()
	for i := range e.gens {
		e.counter++
		e.gens[i] = e.counter
	}
	e.memo.clear()
	run := e.run
	e.mu.Unlock()
	if run != nil {
		run.abort(StateFailed, cause)
	}
}

// CancelRun cancels the active run, if any.
func (e *Executor) CancelRun() {
	e.mu.Lock()
	run := e.run
	e.mu.Unlock()
	if run != nil {
		run.Cancel()
	}
}

// Current returns the active run, or nil.
func (e *Executor) Current() *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

// Memoised reports whether the output of stage is memoised for the current
// configuration.
func (e *Executor) Memoised(stage int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stage < 0 || stage >= len(e.gens) {
		return false
	}
	_, ok := e.memo.get(stage, e.gens[stage])
	return ok
}

// Start creates a run over src. The previous run, if still active, is
// cancelled. Cancelling ctx cancels the run.
func (e *Executor) Start(ctx context.Context, src source.ByteSource) (*Run, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, apperrors.Internal(nil).WithDetail("reason", "executor closed")
	}
	ops := slices.Clone(e.ops)
	gens := slices.Clone(e.gens)
	resume := 0
	var memoised []record.Record
	for k := len(ops); k > 0; k-- {
		if recs, ok := e.memo.get(k-1, gens[k-1]); ok {
			resume, memoised = k, recs
			break
		}
	}
	prev := e.run
	run := newRun(ctx, e, uuid.NewString(), len(ops), resume)
	e.run = run
	e.mu.Unlock()

	if prev != nil {
		prev.abort(StateCancelled, apperrors.Cancelled(nil).WithDetail("reason", "superseded"))
	}

	var s *stream.Stream[record.Record]
	if resume > 0 {
		s = stream.FromSlice(memoised)
	} else {
		s = source.Records(src)
	}
	env := &operator.Env{
		Logger:      run.log,
		Spawner:     e.spawner,
		ChunkSize:   e.cfg.ChunkSize,
		GracePeriod: e.cfg.GracePeriod,
		ExtraEnv:    e.cfg.ExtraEnv,
		Metrics:     e.metrics,
		Degrade:     run.degrade,
	}
	for i := resume; i < len(ops); i++ {
		spec := ops[i].Spec()
		s = ops[i].Apply(env.ForStage(i, spec), s)
		s = run.wrapStage(s, i, spec, gens[i])
	}
	run.start(s)
	return run, nil
}

// store memoises the complete output of stage if its generation is still
// current.
func (e *Executor) store(stage int, gen uint64, records []record.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stage < len(e.gens) && e.gens[stage] == gen {
		e.memo.put(stage, gen, records)
	}
}

// publish sends ev without blocking. Events are dropped when nobody reads.
func (e *Executor) publish(ev Event) {
	ev.At = time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}

func (e *Executor) finished(r *Run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == r {
		e.run = nil
	}
}

// Close cancels the active run and closes the Events channel.
func (e *Executor) Close() {
	e.CancelRun()
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}

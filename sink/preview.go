package sink

import (
	"context"

	"github.com/jae-editor/operate/executor"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/stream"
)

// Snapshot is the state of a preview after a Head or Tail call.
type Snapshot struct {
	Rows []Row `json:"rows"`
	// Records is the number of rows pulled from the run so far.
	Records int64 `json:"records"`
	// More is set by Head when it stopped at its limit before the run ended.
	More bool `json:"more"`
	// Skipped is the number of rows Tail dropped from the front.
	Skipped  int64          `json:"skipped,omitempty"`
	State    executor.State `json:"-"`
	Degraded []error        `json:"-"`
	Err      error          `json:"-"`
}

// Status returns the run state as text.
func (s *Snapshot) Status() string { return s.State.String() }

// IssueCount returns the number of rows carrying a per-record issue.
func (s *Snapshot) IssueCount() int {
	n := 0
	for _, r := range s.Rows {
		if r.Degraded() {
			n++
		}
	}
	return n
}

// PreviewOption configures a Preview.
type PreviewOption func(*Preview)

// WithProgress registers fn for stage progress. It is only installed when the
// pipeline has a barrier stage, since streaming pipelines show rows directly.
func WithProgress(fn func(executor.Progress)) PreviewOption {
	return func(p *Preview) { p.progress = fn }
}

// WithBarriers passes the barrier stage indexes of the pipeline.
func WithBarriers(stages []int) PreviewOption {
	return func(p *Preview) { p.barriers = stages }
}

// WithPreviewLogger sets the logger.
func WithPreviewLogger(l *logger.Logger) PreviewOption {
	return func(p *Preview) { p.log = l }
}

// Preview is a bounded display view over a run. Rows are pulled lazily, so a
// Head over a streaming pipeline never evaluates more than it shows.
type Preview struct {
	run      *executor.Run
	barriers []int
	progress func(executor.Progress)
	log      *logger.Logger

	pulled   int64
	finished bool
	err      error
}

// NewPreview wraps run.
func NewPreview(run *executor.Run, opts ...PreviewOption) *Preview {
	p := &Preview{run: run, log: logger.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.progress != nil && p.HasBarrier() {
		run.OnProgress(p.progress)
	}
	return p
}

// Run returns the underlying run.
func (p *Preview) Run() *executor.Run { return p.run }

// HasBarrier reports whether the pipeline materialises its input somewhere,
// in which case the first row may take a while.
func (p *Preview) HasBarrier() bool {
	for _, b := range p.barriers {
		if b >= p.run.ResumedFrom() {
			return true
		}
	}
	return false
}

// Next returns the next row.
func (p *Preview) Next(ctx context.Context) (Row, bool, error) {
	if p.finished {
		return Row{}, false, p.err
	}
	rec, ok, err := p.run.Next(ctx)
	if err != nil || !ok {
		p.finished, p.err = true, err
		return Row{}, false, err
	}
	p.pulled++
	return RowOf(rec), true, nil
}

// rows streams the remaining rows. Closing it leaves the run open.
func (p *Preview) rows() *stream.Stream[Row] {
	return stream.From(stream.Func(p.Next, nil))
}

// Head pulls at most k rows. The run stays open so a later call continues
// where this one stopped.
func (p *Preview) Head(ctx context.Context, k int) (*Snapshot, error) {
	rows, err := stream.CollectIter(ctx, stream.Take(p.rows(), k).Iter(ctx))
	if rows == nil {
		rows = []Row{}
	}
	if err != nil {
		return p.snapshot(rows), err
	}
	snap := p.snapshot(rows)
	snap.More = len(rows) == k && !p.finished
	return snap, nil
}

// Tail pulls every remaining row and keeps the last k.
func (p *Preview) Tail(ctx context.Context, k int) (*Snapshot, error) {
	return p.Follow(ctx, k, 0, nil)
}

// Follow pulls every remaining row keeping the last k, calling fn with the
// current view after every `every` rows. fn returning false stops following
// and leaves the run open.
func (p *Preview) Follow(ctx context.Context, k, every int, fn func(*Snapshot) bool) (*Snapshot, error) {
	buf := newRing[Row](k)
	var seen int64
	for {
		row, ok, err := p.Next(ctx)
		if err != nil {
			return p.tail(buf, seen), err
		}
		if !ok {
			return p.tail(buf, seen), nil
		}
		buf.push(row)
		seen++
		if fn != nil && every > 0 && seen%int64(every) == 0 {
			if !fn(p.tail(buf, seen)) {
				return p.tail(buf, seen), nil
			}
		}
	}
}

func (p *Preview) tail(buf *ring[Row], seen int64) *Snapshot {
	rows := buf.slice()
	snap := p.snapshot(rows)
	snap.Skipped = seen - int64(len(rows))
	return snap
}

func (p *Preview) snapshot(rows []Row) *Snapshot {
	return &Snapshot{
		Rows:     rows,
		Records:  p.pulled,
		State:    p.run.State(),
		Degraded: p.run.Degraded(),
		Err:      p.err,
	}
}

// Close releases the run.
func (p *Preview) Close() error {
	err := p.run.Close()
	if err != nil {
		p.log.Warn("preview close failed", logger.ErrorFields("close", err))
	}
	return err
}

package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jae-editor/operate/buffer"
	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/executor"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/operator"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/sink"
	"github.com/jae-editor/operate/source"
)

// Buffer is the editor buffer a session operates on.
type Buffer interface {
	ReadRegion(start, end int64, opts ...source.Option) (source.ByteSource, buffer.Revision, error)
	ReplaceRegion(start, end int64, data []byte, expect buffer.Revision) error
	Subscribe(fn func(buffer.Change)) (cancel func())
}

var (
	_ Buffer = (*buffer.Buffer)(nil)
	_ Buffer = (*buffer.File)(nil)
)

// Session is an Operate-mode session over one buffer region. At most one run
// is active at a time; starting a preview or a commit cancels the previous
// run and waits for it to release its processes.
type Session struct {
	id   string
	buf  Buffer
	opts options
	log  *logger.Logger
	exec *executor.Executor

	// runMu serialises Preview and Commit.
	runMu sync.Mutex

	mu          sync.Mutex
	region      record.Range
	src         source.ByteSource
	rev         buffer.Revision
	preview     *sink.Preview
	closed      bool
	unsubscribe func()
}

// New creates a session over region of buf.
func New(buf Buffer, region record.Range, opts ...Option) (*Session, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Nop()
	}
	s := &Session{id: uuid.NewString(), buf: buf, opts: o, region: region}
	s.log = o.log.WithComponent("session").WithFields(logger.Fields(logger.FieldSessionID, s.id))

	src, rev, err := buf.ReadRegion(region.Start, region.End, s.sourceOptions()...)
	if err != nil {
		return nil, err
	}
	s.src, s.rev = src, rev

	execOpts := []executor.Option{
		executor.WithConfig(o.exec),
		executor.WithLogger(o.log),
		executor.WithSessionID(s.id),
		executor.WithMetrics(o.metrics),
	}
	if o.spawner != nil {
		execOpts = append(execOpts, executor.WithSpawner(o.spawner))
	}
	if o.registry != nil {
		execOpts = append(execOpts, executor.WithRegistry(o.registry))
	}
	s.exec = executor.New(execOpts...)
	s.unsubscribe = buf.Subscribe(s.onChange)
	s.log.Debug("session created", logger.Fields("start", region.Start, "end", region.End))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Region returns the buffer range the session operates on.
func (s *Session) Region() record.Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region
}

// Specs returns the installed operator list.
func (s *Session) Specs() []operator.Spec { return s.exec.Specs() }

// Events returns executor notifications for this session's runs.
func (s *Session) Events() <-chan executor.Event { return s.exec.Events() }

// Memoised reports whether the output of stage is cached for the current
// configuration and region content.
func (s *Session) Memoised(stage int) bool { return s.exec.Memoised(stage) }

// SetOperators validates and installs the operator list. The active run is
// cancelled. On error the previous list stays installed.
func (s *Session) SetOperators(specs []operator.Spec) error {
	if err := s.check(); err != nil {
		return err
	}
	prev := len(s.exec.Specs())
	first, err := s.exec.SetOperators(specs)
	if err != nil {
		s.log.Debug("operators rejected", logger.Fields(logger.FieldError, err.Error()))
		return err
	}
	if first < len(specs) || prev != len(specs) {
		s.exec.CancelRun()
	}
	s.log.Debug("operators installed", logger.Fields("stages", len(specs), "first_changed", first))
	return nil
}

// Preview starts a run and returns a lazy view of its output. The previous
// preview is closed.
func (s *Session) Preview(ctx context.Context) (*sink.Preview, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	run, err := s.start(ctx)
	if err != nil {
		return nil, err
	}
	previewOpts := []sink.PreviewOption{
		sink.WithBarriers(operator.Barriers(s.exec.Specs())),
		sink.WithPreviewLogger(s.log),
	}
	if s.opts.progress != nil {
		previewOpts = append(previewOpts, sink.WithProgress(s.opts.progress))
	}
	p := sink.NewPreview(run, previewOpts...)
	s.mu.Lock()
	s.preview = p
	s.mu.Unlock()
	return p, nil
}

// Snapshot previews the first rows of the output, up to the configured
// preview limit.
func (s *Session) Snapshot(ctx context.Context) (*sink.Snapshot, error) {
	p, err := s.Preview(ctx)
	if err != nil {
		return nil, err
	}
	limit := s.opts.previewLimit
	if limit <= 0 {
		limit = 200
	}
	return p.Head(ctx, limit)
}

// Commit evaluates the whole pipeline and replaces the region with the
// output. The buffer is left untouched on any failure.
func (s *Session) Commit(ctx context.Context) (*sink.CommitResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	run, err := s.start(ctx)
	if err != nil {
		return nil, apperrors.CommitFailed("cannot start run", err)
	}
	defer func() { _ = run.Close() }()

	s.mu.Lock()
	region, rev := s.region, s.rev
	s.mu.Unlock()
	return sink.Commit(ctx, run, s.buf, sink.CommitOptions{
		Region:        region,
		Revision:      rev,
		AllowDegraded: s.opts.allowDegraded,
		Logger:        s.log,
	})
}

// Cancel stops the active run.
func (s *Session) Cancel() {
	s.exec.CancelRun()
}

// Close cancels the active run, releases it and unsubscribes from the buffer.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	p := s.preview
	s.preview = nil
	s.mu.Unlock()

	s.unsubscribe()
	var err error
	if p != nil {
		err = p.Close()
	}
	s.exec.Close()
	s.log.Debug("session closed")
	return err
}

// start releases the previous preview and starts a run over the region.
func (s *Session) start(ctx context.Context) (*executor.Run, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	prev := s.preview
	s.preview = nil
	s.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	src, err := s.source()
	if err != nil {
		return nil, err
	}
	return s.exec.Start(ctx, src)
}

// source returns the cached region source, reading it again after a change.
func (s *Session) source() (source.ByteSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src != nil {
		return s.src, nil
	}
	src, rev, err := s.buf.ReadRegion(s.region.Start, s.region.End, s.sourceOptions()...)
	if err != nil {
		return nil, err
	}
	s.src, s.rev = src, rev
	return src, nil
}

func (s *Session) sourceOptions() []source.Option {
	return []source.Option{source.WithChunkSize(s.opts.exec.ChunkSize)}
}

func (s *Session) onChange(c buffer.Change) {
	s.mu.Lock()
	region, touched := adjust(s.region, c)
	s.region = region
	s.src = nil
	s.mu.Unlock()

	s.log.Debug("buffer changed", logger.Fields("revision", uint64(c.Revision), "touched", touched, "start", region.Start, "end", region.End))
	s.exec.Invalidate(apperrors.SourceUnavailable("buffer changed during run").
		WithDetail("revision", uint64(c.Revision)))
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.Internal(nil).WithDetail("reason", "session closed")
	}
	return nil
}

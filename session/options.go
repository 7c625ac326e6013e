package session

import (
	"github.com/jae-editor/operate/config"
	"github.com/jae-editor/operate/executor"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/observability"
	"github.com/jae-editor/operate/operator"
	"github.com/jae-editor/operate/process"
)

type options struct {
	exec          executor.Config
	previewLimit  int
	allowDegraded bool
	log           *logger.Logger
	spawner       process.Spawner
	metrics       *observability.Metrics
	registry      *operator.Registry
	progress      func(executor.Progress)
}

// Option configures a Session.
type Option func(*options)

// FromConfig applies the executor, external and commit sections of cfg.
func FromConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.exec = cfg.ExecutorOptions()
		o.previewLimit = cfg.Executor.PreviewLimit
		o.allowDegraded = cfg.Commit.AllowDegraded
	}
}

// WithExecutorConfig sets the executor configuration.
func WithExecutorConfig(cfg executor.Config) Option {
	return func(o *options) { o.exec = cfg }
}

// WithPreviewLimit sets the row count of Snapshot.
func WithPreviewLimit(n int) Option {
	return func(o *options) { o.previewLimit = n }
}

// WithAllowDegraded permits committing degraded runs.
func WithAllowDegraded(allow bool) Option {
	return func(o *options) { o.allowDegraded = allow }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSpawner sets the process spawner for External stages.
func WithSpawner(s process.Spawner) Option {
	return func(o *options) { o.spawner = s }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRegistry sets the operator registry.
func WithRegistry(r *operator.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithProgress registers fn for stage progress of previews over pipelines
// with a barrier stage.
func WithProgress(fn func(executor.Progress)) Option {
	return func(o *options) { o.progress = fn }
}

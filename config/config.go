package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/jae-editor/operate/executor"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/observability"
	"github.com/jae-editor/operate/process"
	"github.com/jae-editor/operate/source"
	"github.com/jae-editor/operate/validation"
)

// DefaultPreviewLimit is the number of rows a preview shows by default.
const DefaultPreviewLimit = 200

// Config is the complete operate configuration.
type Config struct {
	Name          string               `yaml:"name" mapstructure:"name" validate:"required"`
	Environment   string               `yaml:"environment" mapstructure:"environment"`
	Debug         bool                 `yaml:"debug" mapstructure:"debug"`
	Logging       logger.Config        `yaml:"logging" mapstructure:"logging"`
	Executor      ExecutorConfig       `yaml:"executor" mapstructure:"executor"`
	External      ExternalConfig       `yaml:"external" mapstructure:"external"`
	Commit        CommitConfig         `yaml:"commit" mapstructure:"commit"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// ExecutorConfig tunes pipeline evaluation.
type ExecutorConfig struct {
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size" validate:"gte=0"`
	// MemoLimit caps the records memoised per stage; negative disables
	// memoisation.
	MemoLimit     int `yaml:"memo_limit" mapstructure:"memo_limit"`
	PreviewLimit  int `yaml:"preview_limit" mapstructure:"preview_limit" validate:"gte=0"`
	EventBuffer   int `yaml:"event_buffer" mapstructure:"event_buffer" validate:"gte=0"`
	ProgressEvery int `yaml:"progress_every" mapstructure:"progress_every" validate:"gte=0"`
}

// ExternalConfig applies to every External stage.
type ExternalConfig struct {
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period" validate:"gte=0"`
	// Env entries are KEY=VALUE pairs added to every process environment.
	Env []string `yaml:"env" mapstructure:"env" validate:"dive,contains=="`
}

// CommitConfig controls committing results into the buffer.
type CommitConfig struct {
	AllowDegraded bool `yaml:"allow_degraded" mapstructure:"allow_degraded"`
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "operate"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = c.Name
	}
	c.Logging.ApplyDefaults()

	e := &c.Executor
	if e.ChunkSize == 0 {
		e.ChunkSize = source.DefaultChunkSize
	}
	if e.MemoLimit == 0 {
		e.MemoLimit = executor.DefaultMemoLimit
	}
	if e.PreviewLimit == 0 {
		e.PreviewLimit = DefaultPreviewLimit
	}
	if e.EventBuffer == 0 {
		e.EventBuffer = executor.DefaultEventBuffer
	}
	if e.ProgressEvery == 0 {
		e.ProgressEvery = executor.DefaultProgressEvery
	}
	if c.External.GracePeriod == 0 {
		c.External.GracePeriod = process.DefaultGracePeriod
	}
	c.Observability.ApplyDefaults()
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	validEnvs := []string{"development", "staging", "production"}
	if !slices.Contains(validEnvs, c.Environment) {
		return fmt.Errorf("config.environment must be one of %v (got: %s)", validEnvs, c.Environment)
	}
	if err := validation.Struct("config", c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}

// ExecutorOptions converts the executor and external sections.
func (c *Config) ExecutorOptions() executor.Config {
	return executor.Config{
		ChunkSize:     c.Executor.ChunkSize,
		MemoLimit:     c.Executor.MemoLimit,
		EventBuffer:   c.Executor.EventBuffer,
		ProgressEvery: c.Executor.ProgressEvery,
		GracePeriod:   c.External.GracePeriod,
		ExtraEnv:      slices.Clone(c.External.Env),
	}
}

package executor

import (
	"time"

	"github.com/jae-editor/operate/process"
	"github.com/jae-editor/operate/source"
)

// Defaults.
const (
	DefaultMemoLimit     = 100_000
	DefaultEventBuffer   = 64
	DefaultProgressEvery = 1024
)

// Config tunes an Executor.
type Config struct {
	// ChunkSize is the read size for process output sources.
	ChunkSize int
	// MemoLimit caps the records memoised per stage. A stage producing more
	// is not memoised. Negative disables the memo table.
	MemoLimit int
	// EventBuffer is the capacity of the Events channel. Events are dropped
	// when it is full.
	EventBuffer int
	// ProgressEvery is the record interval between stage progress events.
	ProgressEvery int
	// GracePeriod is the SIGTERM to SIGKILL delay for External stages.
	GracePeriod time.Duration
	// ExtraEnv is added to the environment of spawned processes.
	ExtraEnv []string
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = source.DefaultChunkSize
	}
	if c.MemoLimit == 0 {
		c.MemoLimit = DefaultMemoLimit
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = DefaultProgressEvery
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = process.DefaultGracePeriod
	}
}

package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// MaxStderr bounds how much standard error is kept per process.
const MaxStderr = 64 * 1024

// Spawner starts subprocesses with piped standard input and output.
type Spawner interface {
	Spawn(ctx context.Context, cmd Command) (*Handle, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(ctx context.Context, cmd Command) (*Handle, error)

// Spawn calls f.
func (f SpawnerFunc) Spawn(ctx context.Context, cmd Command) (*Handle, error) { return f(ctx, cmd) }

// OSSpawner spawns real operating system processes, each in its own process
// group so that termination reaches the whole tree.
type OSSpawner struct {
	// GracePeriod applies to commands that do not set their own.
	GracePeriod time.Duration
}

var _ Spawner = (*OSSpawner)(nil)

// NewSpawner returns an OSSpawner with the given default grace period.
func NewSpawner(grace time.Duration) *OSSpawner {
	return &OSSpawner{GracePeriod: grace}
}

// Spawn starts cmd. Cancelling ctx sends SIGTERM to the process group and, if
// the process is still alive after the grace period, kills it.
func (s *OSSpawner) Spawn(ctx context.Context, cmd Command) (*Handle, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}

	gracePeriod := cmd.GracePeriod
	if gracePeriod == 0 {
		gracePeriod = s.GracePeriod
	}
	if gracePeriod == 0 {
		gracePeriod = DefaultGracePeriod
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // dynamic args are the purpose of this package
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)

	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("process: stdin pipe: %w", err)
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("process: stdout pipe: %w", err)
	}
	stderr := &cappedBuffer{max: MaxStderr}
	c.Stderr = stderr

	// Use process group so we can kill the entire tree
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	h := &Handle{
		Stdin:  stdin,
		Stdout: stdout,
		grace:  gracePeriod,
		done:   make(chan struct{}),
		stderr: stderr,
	}

	// Don't let exec.CommandContext kill with SIGKILL immediately
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		h.markTerminated()
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = gracePeriod

	h.start = time.Now()
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", cmd.Binary, err)
	}
	h.PID = c.Process.Pid
	h.wait = c.Wait
	h.signal = func(sig syscall.Signal) error {
		err := syscall.Kill(-h.PID, sig)
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	h.exitCode = func() int { return c.ProcessState.ExitCode() }
	return h, nil
}

// Handle owns a running subprocess. Stdout must be read to EOF before Wait
// is called; Terminate may be called from any goroutine.
type Handle struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	PID    int

	start    time.Time
	grace    time.Duration
	stderr   *cappedBuffer
	wait     func() error
	signal   func(syscall.Signal) error
	exitCode func() int

	mu         sync.Mutex
	terminated bool

	once   sync.Once
	done   chan struct{}
	result *Result
	err    error
}

func (h *Handle) markTerminated() {
	h.mu.Lock()
	h.terminated = true
	h.mu.Unlock()
}

// Wait waits for the process to exit. It is safe to call more than once;
// every call returns the same result. A non-zero exit is reported both in the
// result and as an error.
func (h *Handle) Wait() (*Result, error) {
	h.once.Do(func() {
		err := h.wait()
		h.mu.Lock()
		terminated := h.terminated
		h.mu.Unlock()
		h.result = &Result{
			ExitCode:   h.exitCode(),
			Stderr:     h.stderr.Bytes(),
			Terminated: terminated,
			Duration:   time.Since(h.start),
		}
		if err != nil {
			h.err = fmt.Errorf("process: exit code %d: %w", h.result.ExitCode, err)
		}
		close(h.done)
	})
	<-h.done
	return h.result, h.err
}

// Done is closed once Wait has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Stderr returns the standard error captured so far.
func (h *Handle) Stderr() string { return string(h.stderr.Bytes()) }

// GracePeriod returns the SIGTERM to SIGKILL escalation delay.
func (h *Handle) GracePeriod() time.Duration { return h.grace }

// Terminate sends SIGTERM to the process group and SIGKILL if the process has
// not been reaped within the grace period. It waits at most one further grace
// period for the reap and returns whether the process is known to be gone.
func (h *Handle) Terminate() error {
	select {
	case <-h.done:
		return nil
	default:
	}
	h.markTerminated()
	if err := h.signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("process: sigterm %d: %w", h.PID, err)
	}
	timer := time.NewTimer(h.grace)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
	}
	if err := h.signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("process: sigkill %d: %w", h.PID, err)
	}
	timer.Reset(h.grace)
	select {
	case <-h.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("process: %d not reaped after kill", h.PID)
	}
}

// mergeEnv merges additional env vars with the current environment.
func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil // inherit parent env
	}
	env := os.Environ()
	return append(env, extra...)
}

// cappedBuffer keeps the first max bytes written to it and discards the rest.
type cappedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - len(b.buf); room > 0 {
		b.buf = append(b.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}

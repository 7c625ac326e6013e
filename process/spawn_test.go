package process_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jae-editor/operate/process"
)

func spawn(t *testing.T, ctx context.Context, cmd process.Command) *process.Handle {
	t.Helper()
	h, err := process.NewSpawner(200 * time.Millisecond).Spawn(ctx, cmd)
	if err != nil {
		t.Fatalf("spawn %s: %v", cmd, err)
	}
	return h
}

func TestSpawnCat(t *testing.T) {
	h := spawn(t, context.Background(), process.Command{Binary: "cat"})
	go func() {
		_, _ = io.WriteString(h.Stdin, "from stdin")
		_ = h.Stdin.Close()
	}()
	out, err := io.ReadAll(h.Stdout)
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	result, err := h.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "from stdin" {
		t.Fatalf("expected 'from stdin', got %q", out)
	}
	if !result.Success() {
		t.Fatalf("expected success, got %+v", result)
	}
}

func TestSpawnExitCode(t *testing.T) {
	h := spawn(t, context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo oops >&2; exit 42"},
	})
	_, _ = io.ReadAll(h.Stdout)
	result, err := h.Wait()
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if result.ExitCode != 42 {
		t.Fatalf("expected exit code 42, got %d", result.ExitCode)
	}
	if strings.TrimSpace(string(result.Stderr)) != "oops" {
		t.Fatalf("expected 'oops' on stderr, got %q", result.Stderr)
	}
}

func TestSpawnStderrCapped(t *testing.T) {
	h := spawn(t, context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "head -c 100000 /dev/zero >&2"},
	})
	_, _ = io.ReadAll(h.Stdout)
	result, _ := h.Wait()
	if len(result.Stderr) != process.MaxStderr {
		t.Fatalf("expected stderr capped at %d, got %d", process.MaxStderr, len(result.Stderr))
	}
}

func TestSpawnEnv(t *testing.T) {
	h := spawn(t, context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo $MY_TEST_VAR"},
		Env:    []string{"MY_TEST_VAR=hello123"},
	})
	out, _ := io.ReadAll(h.Stdout)
	if _, err := h.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello123" {
		t.Fatalf("expected 'hello123', got %q", out)
	}
}

func TestSpawnEmptyBinary(t *testing.T) {
	if _, err := process.NewSpawner(0).Spawn(context.Background(), process.Command{}); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestSpawnMissingBinary(t *testing.T) {
	_, err := process.NewSpawner(0).Spawn(context.Background(), process.Command{Binary: "/nonexistent/operate-binary"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestTerminate_SigtermWithinGrace(t *testing.T) {
	h := spawn(t, context.Background(), process.Command{Binary: "sleep", Args: []string{"10"}})
	go func() {
		_, _ = io.ReadAll(h.Stdout)
		_, _ = h.Wait()
	}()
	start := time.Now()
	if err := h.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("process took too long to terminate: %v", elapsed)
	}
	result, _ := h.Wait()
	if !result.Terminated || result.Success() {
		t.Fatalf("expected terminated result, got %+v", result)
	}
}

func TestTerminate_EscalatesToKill(t *testing.T) {
	h := spawn(t, context.Background(), process.Command{
		Binary:      "sh",
		Args:        []string{"-c", "trap '' TERM; while :; do sleep 0.05; done"},
		GracePeriod: 100 * time.Millisecond,
	})
	go func() {
		_, _ = io.ReadAll(h.Stdout)
		_, _ = h.Wait()
	}()
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	if err := h.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("kill escalation took too long: %v", elapsed)
	}
	select {
	case <-h.Done():
	default:
		t.Fatal("expected process to be reaped")
	}
}

func TestContextCancelTerminates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	h := spawn(t, ctx, process.Command{Binary: "sleep", Args: []string{"10"}})
	_, _ = io.ReadAll(h.Stdout)
	result, err := h.Wait()
	if err == nil {
		t.Fatal("expected error from context cancellation")
	}
	if result.Duration > 5*time.Second {
		t.Fatalf("process took too long to kill: %v", result.Duration)
	}
	if !result.Terminated {
		t.Fatal("expected Terminated to be set")
	}
}

func TestSpawnerFunc(t *testing.T) {
	var got process.Command
	s := process.SpawnerFunc(func(_ context.Context, cmd process.Command) (*process.Handle, error) {
		got = cmd
		return nil, io.ErrUnexpectedEOF
	})
	if _, err := s.Spawn(context.Background(), process.Command{Binary: "x", Args: []string{"y"}}); err == nil {
		t.Fatal("expected error")
	}
	if got.String() != "x y" {
		t.Fatalf("expected command 'x y', got %q", got.String())
	}
}

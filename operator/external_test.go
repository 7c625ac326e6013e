package operator_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/logger"
	"github.com/jae-editor/operate/operator"
	"github.com/jae-editor/operate/process"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
)

type degradeRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (d *degradeRecorder) env() *operator.Env {
	return &operator.Env{
		Logger:      logger.Nop(),
		Spawner:     process.NewSpawner(200 * time.Millisecond),
		GracePeriod: 200 * time.Millisecond,
		Degrade: func(err error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.errs = append(d.errs, err)
		},
	}
}

func (d *degradeRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.errs)
}

func sh(script string) operator.Spec {
	return spec(operator.KindExternal, "command", "sh", "args", []string{"-c", script})
}

func TestExternal_PipesThrough(t *testing.T) {
	var d degradeRecorder
	s := pipe(t, d.env(), "b\na\nc\n", 2, spec(operator.KindLines), sh("tr a-z A-Z | sort"))
	out, err := stream.Collect(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := texts(out); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Errorf("unexpected output %q", got)
	}
	if out[1].Info().Span != (record.Range{Start: 2, End: 3}) {
		t.Errorf("offsets refer to the process output, got %v", out[1].Info().Span)
	}
	if d.count() != 0 {
		t.Errorf("clean exit must not degrade the run")
	}
}

func TestExternal_RawOutput(t *testing.T) {
	s := pipe(t, nil, "xyz", 64, spec(operator.KindExternal, "command", "cat", "output", "raw"))
	out, err := stream.Collect(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Kind() != record.KindRaw || texts(out)[0] != "xyz" {
		t.Errorf("unexpected output %q", texts(out))
	}
}

func TestExternal_EnvAndDir(t *testing.T) {
	dir := t.TempDir()
	s := pipe(t, nil, "", 64, spec(operator.KindExternal,
		"command", "sh",
		"args", []string{"-c", `echo "$GREETING $(pwd)"`},
		"env", []string{"GREETING=hello"},
		"dir", dir,
	))
	out, err := stream.Collect(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || texts(out)[0] != "hello "+dir {
		t.Errorf("unexpected output %q", texts(out))
	}
}

func TestExternal_NonZeroAfterOutputDegrades(t *testing.T) {
	var d degradeRecorder
	s := pipe(t, d.env(), "x\n", 64, sh("cat; echo failing >&2; exit 3"))
	out, err := stream.Collect(context.Background(), s)
	if err != nil {
		t.Fatalf("degraded run must still complete: %v", err)
	}
	if got := texts(out); !slices.Equal(got, []string{"x"}) {
		t.Errorf("unexpected output %q", got)
	}
	if d.count() != 1 {
		t.Fatalf("expected one degradation, got %d", d.count())
	}
	appErr, ok := errors.AsAppError(d.errs[0])
	if !ok || appErr.Code != errors.ErrCodeExternalExitNonZero {
		t.Fatalf("expected EXTERNAL_EXIT_NONZERO, got %v", d.errs[0])
	}
	if appErr.Details["exit_code"] != 3 || appErr.Details["stderr"] != "failing" {
		t.Errorf("unexpected details %v", appErr.Details)
	}
}

func TestExternal_NonZeroBeforeOutputFails(t *testing.T) {
	var d degradeRecorder
	_, err := stream.Collect(context.Background(), pipe(t, d.env(), "x\n", 64, sh("exit 2")))
	if !errors.HasCode(err, errors.ErrCodeSourceUnavailable) {
		t.Fatalf("expected SOURCE_UNAVAILABLE, got %v", err)
	}
	if !errors.HasCode(err, errors.ErrCodeExternalExitNonZero) {
		t.Errorf("expected the exit status to be wrapped, got %v", err)
	}
	if d.count() != 0 {
		t.Error("a failed run is not degraded")
	}
}

func TestExternal_SpawnFailure(t *testing.T) {
	s := pipe(t, nil, "x", 64, spec(operator.KindExternal, "command", "/definitely/not/here"))
	_, err := stream.Collect(context.Background(), s)
	if !errors.HasCode(err, errors.ErrCodeExternalSpawn) {
		t.Fatalf("expected EXTERNAL_SPAWN, got %v", err)
	}
}

func TestExternal_CancelTerminates(t *testing.T) {
	var d degradeRecorder
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	iter := pipe(t, d.env(), "", 64, sh("echo started; exec sleep 30")).Iter(ctx)

	first, ok, err := iter.Next(ctx)
	if err != nil || !ok || texts([]record.Record{first})[0] != "started" {
		t.Fatalf("expected first line, got %v %v %v", first, ok, err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	begin := time.Now()
	_, _, err = iter.Next(ctx)
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	_ = iter.Close()
	if elapsed := time.Since(begin); elapsed > 3*time.Second {
		t.Errorf("process not terminated within the grace period: %v", elapsed)
	}
}

func TestExternal_CloseTerminates(t *testing.T) {
	iter := pipe(t, nil, "", 64, sh("echo started; exec sleep 30")).Iter(context.Background())
	if _, ok, err := iter.Next(context.Background()); err != nil || !ok {
		t.Fatalf("expected first line: %v", err)
	}
	begin := time.Now()
	if err := iter.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 3*time.Second {
		t.Errorf("close took %v", elapsed)
	}
}

func TestExternal_SpawnerCalledPerRun(t *testing.T) {
	var calls int
	env := &operator.Env{
		Logger: logger.Nop(),
		Spawner: process.SpawnerFunc(func(ctx context.Context, cmd process.Command) (*process.Handle, error) {
			calls++
			return process.NewSpawner(time.Second).Spawn(ctx, cmd)
		}),
	}
	s := pipe(t, env, "a\n", 64, spec(operator.KindExternal, "command", "cat"))
	for range 2 {
		if _, err := stream.Collect(context.Background(), s); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 2 {
		t.Errorf("expected one spawn per iteration, got %d", calls)
	}
}

package sink_test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jae-editor/operate/buffer"
	"github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/executor"
	"github.com/jae-editor/operate/operator"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/sink"
)

func spec(kind operator.Kind, kvs ...any) operator.Spec {
	s := operator.Spec{Kind: kind, Options: map[string]any{}}
	for i := 0; i+1 < len(kvs); i += 2 {
		s.Options[kvs[i].(string)] = kvs[i+1]
	}
	return s
}

type fixture struct {
	buf  *buffer.Buffer
	exec *executor.Executor
	rev  buffer.Revision
	run  *executor.Run
}

func start(t *testing.T, cfg executor.Config, data string, specs ...operator.Spec) *fixture {
	t.Helper()
	f := &fixture{buf: buffer.New([]byte(data))}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 200 * time.Millisecond
	}
	f.exec = executor.New(executor.WithConfig(cfg))
	t.Cleanup(f.exec.Close)
	if _, err := f.exec.SetOperators(specs); err != nil {
		t.Fatalf("SetOperators: %v", err)
	}
	src, rev, err := f.buf.ReadRegion(0, f.buf.Len())
	if err != nil {
		t.Fatal(err)
	}
	f.rev = rev
	if f.run, err = f.exec.Start(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.run.Close() })
	return f
}

func (f *fixture) commit(allowDegraded bool) (*sink.CommitResult, error) {
	return sink.Commit(context.Background(), f.run, f.buf, sink.CommitOptions{
		Region:        record.Range{Start: 0, End: f.buf.Len()},
		Revision:      f.rev,
		AllowDegraded: allowDegraded,
	})
}

func numbered(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	return b.String()
}

func rowTexts(rows []sink.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Text
	}
	return out
}

func TestRowOf(t *testing.T) {
	tests := []struct {
		name string
		rec  record.Record
		want string
	}{
		{"line", record.NewLine("hi", 1, "\n", record.Range{Start: 0, End: 2}), "hi"},
		{"utf8 raw", record.NewRaw([]byte("ok"), record.Range{End: 2}), "ok"},
		{"binary raw", record.NewRaw([]byte{0xff, 0x01}, record.Range{End: 2}), "ff01"},
		{"structured", record.NewStructured(record.FieldsOf("a", int64(1)), record.Range{}), `{"a":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			row := sink.RowOf(tc.rec)
			if row.Text != tc.want || row.Kind != tc.rec.Kind() {
				t.Errorf("expected %q, got %+v", tc.want, row)
			}
		})
	}
	flagged := sink.RowOf(record.WithIssue(record.NewLine("x", 1, "", record.Range{End: 1}), "bad"))
	if !flagged.Degraded() || flagged.Issue != "bad" {
		t.Errorf("expected issue on row, got %+v", flagged)
	}
}

func TestPreview_HeadIsLazy(t *testing.T) {
	f := start(t, executor.Config{}, numbered(1000), spec(operator.KindLines))
	p := sink.NewPreview(f.run)
	snap, err := p.Head(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := rowTexts(snap.Rows); !slices.Equal(got, []string{"1", "2", "3"}) {
		t.Errorf("unexpected rows %q", got)
	}
	if !snap.More || snap.State != executor.StateRunning {
		t.Errorf("expected more rows of a running pipeline, got %+v", snap)
	}
	if f.run.Emitted() > 4 {
		t.Errorf("head must not evaluate the whole source, pulled %d", f.run.Emitted())
	}

	next, err := p.Head(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := rowTexts(next.Rows); !slices.Equal(got, []string{"4", "5"}) {
		t.Errorf("second head should continue, got %q", got)
	}
}

func TestPreview_HeadPastEnd(t *testing.T) {
	f := start(t, executor.Config{}, "a\nb\n", spec(operator.KindLines))
	snap, err := sink.NewPreview(f.run).Head(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Rows) != 2 || snap.More || snap.Status() != "completed" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestPreview_Tail(t *testing.T) {
	f := start(t, executor.Config{}, numbered(10), spec(operator.KindLines))
	snap, err := sink.NewPreview(f.run).Tail(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := rowTexts(snap.Rows); !slices.Equal(got, []string{"8", "9", "10"}) {
		t.Errorf("unexpected tail %q", got)
	}
	if snap.Skipped != 7 || snap.Records != 10 {
		t.Errorf("expected 7 skipped of 10, got %d of %d", snap.Skipped, snap.Records)
	}
}

func TestPreview_FollowStops(t *testing.T) {
	f := start(t, executor.Config{}, numbered(20), spec(operator.KindLines))
	var views []int64
	snap, err := sink.NewPreview(f.run).Follow(context.Background(), 2, 4, func(s *sink.Snapshot) bool {
		views = append(views, s.Records)
		return len(views) < 2
	})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(views, []int64{4, 8}) {
		t.Errorf("unexpected updates %v", views)
	}
	if got := rowTexts(snap.Rows); !slices.Equal(got, []string{"7", "8"}) {
		t.Errorf("unexpected view %q", got)
	}
}

func TestPreview_ProgressOnlyWithBarrier(t *testing.T) {
	tests := []struct {
		name  string
		specs []operator.Spec
		want  bool
	}{
		{"streaming", []operator.Spec{spec(operator.KindLines)}, false},
		{"sorted", []operator.Spec{spec(operator.KindLines), spec(operator.KindSort)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := start(t, executor.Config{ProgressEvery: 1}, "b\na\n", tc.specs...)
			var calls int
			p := sink.NewPreview(f.run,
				sink.WithBarriers(operator.Barriers(tc.specs)),
				sink.WithProgress(func(executor.Progress) { calls++ }),
			)
			if p.HasBarrier() != tc.want {
				t.Errorf("HasBarrier = %v", p.HasBarrier())
			}
			if _, err := p.Tail(context.Background(), 10); err != nil {
				t.Fatal(err)
			}
			if (calls > 0) != tc.want {
				t.Errorf("expected progress=%v, got %d calls", tc.want, calls)
			}
		})
	}
}

func TestPreview_SurfacesIssues(t *testing.T) {
	f := start(t, executor.Config{}, "a,b\n1,2\n3\n", spec(operator.KindTable, "header", true))
	snap, err := sink.NewPreview(f.run).Head(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if snap.IssueCount() != 1 {
		t.Errorf("expected one row with an issue, got %+v", snap.Rows)
	}
}

func TestPreview_Error(t *testing.T) {
	f := start(t, executor.Config{}, "a\n", spec(operator.KindLines), spec(operator.KindExternal, "command", "/nonexistent/operate-binary"))
	snap, err := sink.NewPreview(f.run).Head(context.Background(), 10)
	if !errors.HasCode(err, errors.ErrCodeExternalSpawn) {
		t.Fatalf("expected EXTERNAL_SPAWN, got %v", err)
	}
	if snap.State != executor.StateFailed || snap.Err == nil {
		t.Errorf("snapshot must carry the failure, got %+v", snap)
	}
}

func TestCommit_Replaces(t *testing.T) {
	f := start(t, executor.Config{}, "b\na\nc\n", spec(operator.KindLines), spec(operator.KindSort))
	res, err := f.commit(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(f.buf.Bytes()) != "a\nb\nc\n" {
		t.Errorf("unexpected buffer %q", f.buf.Bytes())
	}
	if res.Records != 3 || res.Bytes != 6 {
		t.Errorf("unexpected result %+v", res)
	}
	if f.buf.Revision() != f.rev+1 {
		t.Error("commit must be a single replace")
	}
}

func TestCommit_FailureLeavesBufferUntouched(t *testing.T) {
	const data = "a\nb\n"
	f := start(t, executor.Config{}, data, spec(operator.KindLines), spec(operator.KindExternal, "command", "/nonexistent/operate-binary"))
	_, err := f.commit(false)
	if !errors.HasCode(err, errors.ErrCodeCommitFailed) {
		t.Fatalf("expected COMMIT_FAILED, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if appErr.Stage != 1 || appErr.Details["kind"] != string(errors.ErrCodeExternalSpawn) {
		t.Errorf("expected stage 1 EXTERNAL_SPAWN attribution, got %+v", appErr)
	}
	if string(f.buf.Bytes()) != data || f.buf.Revision() != f.rev {
		t.Errorf("buffer modified by a failed commit: %q", f.buf.Bytes())
	}
}

func TestCommit_SourceChangedMidRun(t *testing.T) {
	f := start(t, executor.Config{}, "a\nb\n", spec(operator.KindLines))
	if err := f.buf.Insert(0, []byte("x")); err != nil {
		t.Fatal(err)
	}
	_, err := f.commit(false)
	if !errors.HasCode(err, errors.ErrCodeCommitFailed) {
		t.Fatalf("expected COMMIT_FAILED, got %v", err)
	}
	if string(f.buf.Bytes()) != "xa\nb\n" {
		t.Errorf("unexpected buffer %q", f.buf.Bytes())
	}
}

type conflictTarget struct{ calls int }

func (c *conflictTarget) ReplaceRegion(int64, int64, []byte, buffer.Revision) error {
	c.calls++
	return errors.BufferConflict(1, 2)
}

func TestCommit_TargetConflict(t *testing.T) {
	f := start(t, executor.Config{}, "a\n", spec(operator.KindLines))
	target := &conflictTarget{}
	_, err := sink.Commit(context.Background(), f.run, target, sink.CommitOptions{Region: record.Range{End: 2}, Revision: f.rev})
	if !errors.HasCode(err, errors.ErrCodeCommitFailed) {
		t.Fatalf("expected COMMIT_FAILED, got %v", err)
	}
	if !errors.HasCode(err, errors.ErrCodeBufferConflict) {
		t.Errorf("expected cause BUFFER_CONFLICT, got %v", err)
	}
	if target.calls != 1 {
		t.Errorf("expected one replace attempt, got %d", target.calls)
	}
}

func TestCommit_Degraded(t *testing.T) {
	degrading := []operator.Spec{spec(operator.KindExternal, "command", "sh", "args", []string{"-c", "cat; exit 2"})}
	tests := []struct {
		name  string
		allow bool
		want  string
	}{
		{"rejected", false, "in\n"},
		{"allowed", true, "in\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := start(t, executor.Config{}, "in\n", degrading...)
			res, err := f.commit(tc.allow)
			if !tc.allow {
				if !errors.HasCode(err, errors.ErrCodeCommitFailed) {
					t.Fatalf("expected COMMIT_FAILED, got %v", err)
				}
				if f.buf.Revision() != f.rev {
					t.Error("rejected commit must not replace")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Degraded) != 1 || string(f.buf.Bytes()) != tc.want || f.buf.Revision() != f.rev+1 {
				t.Errorf("unexpected result %+v, buffer %q", res, f.buf.Bytes())
			}
		})
	}
}

package source

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/record"
	"github.com/jae-editor/operate/stream"
)

func TestMemory_RoundTrip(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("a"),
		[]byte("hello\nworld\n"),
		bytes.Repeat([]byte{0x00, 0xff, 0x7f}, 1000),
	}
	for _, in := range inputs {
		for _, size := range []int{1, 7, DefaultChunkSize} {
			src := NewMemory(in, WithChunkSize(size))
			whole, err := src.ReadRange(context.Background(), 0, src.Len())
			if err != nil {
				t.Fatalf("ReadRange: %v", err)
			}
			if !bytes.Equal(whole, in) {
				t.Errorf("ReadRange(0, len) did not reconstruct %d bytes", len(in))
			}
			chunks, err := ReadAll(context.Background(), src)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if !bytes.Equal(chunks, in) {
				t.Errorf("chunk size %d: chunks did not reconstruct input", size)
			}
		}
	}
}

func TestMemory_ChunksRestartable(t *testing.T) {
	src := NewMemory([]byte("abcdef"), WithChunkSize(4))
	for i := 0; i < 2; i++ {
		chunks, err := stream.Collect(context.Background(), src.Chunks())
		if err != nil {
			t.Fatal(err)
		}
		if len(chunks) != 2 || chunks[1].Offset != 4 || string(chunks[1].Data) != "ef" {
			t.Errorf("iteration %d: unexpected chunks %+v", i, chunks)
		}
	}
}

func TestMemory_InvalidRange(t *testing.T) {
	src := NewMemory([]byte("abc"))
	_, err := src.ReadRange(context.Background(), 2, 5)
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidRegion) {
		t.Errorf("expected INVALID_REGION, got %v", err)
	}
}

func TestMemory_GuardInvalidates(t *testing.T) {
	valid := true
	src := NewMemory([]byte("abcdef"), WithChunkSize(2), WithGuard(func() error {
		if !valid {
			return errors.New("edited")
		}
		return nil
	}))
	iter := src.Chunks().Iter(context.Background())
	defer iter.Close()
	if _, ok, err := iter.Next(context.Background()); !ok || err != nil {
		t.Fatalf("first chunk: %v %v", ok, err)
	}
	valid = false
	_, _, err := iter.Next(context.Background())
	if !apperrors.HasCode(err, apperrors.ErrCodeSourceUnavailable) {
		t.Errorf("expected SOURCE_UNAVAILABLE, got %v", err)
	}
	if _, err := src.ReadRange(context.Background(), 0, 1); err == nil {
		t.Error("expected ReadRange to fail after invalidation")
	}
}

func TestSection(t *testing.T) {
	r := strings.NewReader("0123456789")
	src := NewSection(r, 3, 5, WithChunkSize(2))
	got, err := ReadAll(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "34567" {
		t.Errorf("expected 34567, got %q", got)
	}
	part, err := src.ReadRange(context.Background(), 1, 2)
	if err != nil || string(part) != "45" {
		t.Errorf("expected 45, got %q (%v)", part, err)
	}
	short := NewSection(r, 8, 5)
	if _, err := ReadAll(context.Background(), short); !apperrors.HasCode(err, apperrors.ErrCodeSourceUnavailable) {
		t.Errorf("expected SOURCE_UNAVAILABLE for truncated section, got %v", err)
	}
}

func TestSection_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewSection(strings.NewReader("abc"), 0, 3)
	if _, err := ReadAll(ctx, src); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAccumulator_FollowsProducer(t *testing.T) {
	acc := NewAccumulator(WithChunkSize(3))
	go func() {
		for _, part := range []string{"ab", "cde", "f"} {
			_, _ = acc.Write([]byte(part))
			time.Sleep(5 * time.Millisecond)
		}
		acc.CloseWithError(nil)
	}()
	got, err := ReadAll(context.Background(), acc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abcdef" {
		t.Errorf("expected abcdef, got %q", got)
	}
	again, _ := ReadAll(context.Background(), acc)
	if string(again) != "abcdef" {
		t.Errorf("replay: expected abcdef, got %q", again)
	}
	if !acc.Done() || acc.Len() != 6 {
		t.Errorf("expected closed accumulator of 6 bytes, got done=%v len=%d", acc.Done(), acc.Len())
	}
}

func TestAccumulator_ReadRangeWaits(t *testing.T) {
	acc := NewAccumulator()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = acc.Write([]byte("hello"))
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := acc.ReadRange(ctx, 1, 3)
	if err != nil || string(got) != "ell" {
		t.Errorf("expected ell, got %q (%v)", got, err)
	}
}

func TestAccumulator_ErrorAfterData(t *testing.T) {
	acc := NewAccumulator()
	_, _ = acc.Write([]byte("partial"))
	acc.CloseWithError(apperrors.SourceUnavailable("process failed"))
	got, err := ReadAll(context.Background(), acc)
	if string(got) != "partial" {
		t.Errorf("expected bytes before the error, got %q", got)
	}
	if !apperrors.HasCode(err, apperrors.ErrCodeSourceUnavailable) {
		t.Errorf("expected SOURCE_UNAVAILABLE, got %v", err)
	}
	if _, err := acc.Write([]byte("more")); err == nil {
		t.Error("expected write after close to fail")
	}
}

func TestAccumulator_CancelWhileWaiting(t *testing.T) {
	acc := NewAccumulator()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ReadAll(ctx, acc)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRecords_SpansMatchChunks(t *testing.T) {
	src := NewMemory([]byte("abcde"), WithChunkSize(2))
	recs, err := stream.Collect(context.Background(), Records(src))
	if err != nil {
		t.Fatal(err)
	}
	want := []record.Range{{Start: 0, End: 2}, {Start: 2, End: 4}, {Start: 4, End: 5}}
	if len(recs) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(recs))
	}
	for i, r := range recs {
		if r.Kind() != record.KindRaw || r.Info().Span != want[i] {
			t.Errorf("record %d: kind %s span %v", i, r.Kind(), r.Info().Span)
		}
	}
}

package buffer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jae-editor/operate/buffer"
	"github.com/jae-editor/operate/errors"
	"github.com/jae-editor/operate/source"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFile_ReadRegion(t *testing.T) {
	f, err := buffer.OpenFile(writeTemp(t, "alpha\nbeta\n"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if f.Len() != 11 {
		t.Errorf("expected length 11, got %d", f.Len())
	}
	src, rev, err := f.ReadRegion(6, 11, source.WithChunkSize(2))
	if err != nil {
		t.Fatal(err)
	}
	if rev != 1 {
		t.Errorf("expected revision 1, got %d", rev)
	}
	got, err := source.ReadAll(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "beta\n" {
		t.Errorf("unexpected region %q", got)
	}
	if _, _, err := f.ReadRegion(4, 20); !errors.HasCode(err, errors.ErrCodeInvalidRegion) {
		t.Errorf("expected INVALID_REGION, got %v", err)
	}
}

func TestFile_ChangedOnDisk(t *testing.T) {
	path := writeTemp(t, "alpha\n")
	f, err := buffer.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	src, _, err := f.ReadRegion(0, f.Len())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("alpha and more\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if _, err := source.ReadAll(context.Background(), src); !errors.HasCode(err, errors.ErrCodeSourceUnavailable) {
		t.Errorf("expected SOURCE_UNAVAILABLE, got %v", err)
	}
}

func TestFile_ReadOnly(t *testing.T) {
	if _, err := buffer.OpenFile(filepath.Join(t.TempDir(), "missing")); !errors.HasCode(err, errors.ErrCodeSourceUnavailable) {
		t.Errorf("expected SOURCE_UNAVAILABLE for a missing file, got %v", err)
	}
	f, err := buffer.OpenFile(writeTemp(t, "alpha\n"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := f.ReplaceRegion(0, 1, []byte("A"), 1); !errors.HasCode(err, errors.ErrCodeCommitFailed) {
		t.Errorf("expected COMMIT_FAILED, got %v", err)
	}
}

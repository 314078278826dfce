package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocal_OpenAndRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	if err := os.WriteFile(path, []byte("a;b;c\n1;2;3\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	src := NewLocal(path)
	rc, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "a;b;c\n1;2;3\n" {
		t.Errorf("read %q", got)
	}
}

func TestLocal_OpenMissingFile(t *testing.T) {
	t.Parallel()

	src := NewLocal(filepath.Join(t.TempDir(), "nope.csv"))
	_, err := src.Open(context.Background())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error %v does not unwrap to os.ErrNotExist", err)
	}
}

func TestLocal_OpenCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewLocal("irrelevant")
	_, err := src.Open(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

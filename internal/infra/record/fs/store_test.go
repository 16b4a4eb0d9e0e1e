package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"metastore/internal/record/core"
	"metastore/testutil"
)

func TestFilesystemTableContract(t *testing.T) {
	testutil.RunTableContract(t, core.DriverFilesystem, func(t *testing.T) core.Table {
		s, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		return s
	})
}

func TestNewCreatesNestedRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Root() != root {
		t.Fatalf("unexpected root %q", s.Root())
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("expected root dir, err=%v", err)
	}
}

func TestRecordFileLayout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	h, err := s.CreateWithID(ctx, "r1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	path := filepath.Join(root, "r1.json")
	data, err := os.ReadFile(path)
	if err != nil || len(data) != 0 {
		t.Fatalf("expected empty marker file, data=%q err=%v", data, err)
	}
	if err := h.Meta().Prefix("cfg").Set(ctx, "mode", "fast"); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"cfg":{"mode":"fast"}}` {
		t.Fatalf("unexpected file contents %s", data)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files cleaned up, got %d entries", len(entries))
	}
}

func TestListSkipsForeignFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := s.CreateWithID(ctx, "keep"); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, name := range []string{"notes.txt", ".tmp-123"} {
		if err := os.WriteFile(filepath.Join(root, name), nil, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(root, "dir.json"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !slices.Equal(ids, []string{"keep"}) {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestOpenTraversalIsNotFound(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := s.Open(context.Background(), "../etc/passwd"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if dropped, err := s.Drop(context.Background(), "../x"); err != nil || dropped {
		t.Fatalf("expected no-op drop, dropped=%t err=%v", dropped, err)
	}
}

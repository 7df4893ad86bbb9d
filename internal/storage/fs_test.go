package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempLibrary(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

const sampleDoc = "<?xml version='1.0' encoding='utf-8'?>\n<feathernotes/>\n"

func TestWriteAndRead(t *testing.T) {
	s := tempLibrary(t)
	if err := s.Write("notes.fnx", []byte(sampleDoc)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("notes.fnx")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != sampleDoc {
		t.Errorf("content mismatch: got %q", got)
	}
	if !s.Exists("notes.fnx") || s.Exists("missing.fnx") {
		t.Error("Exists reports wrong state")
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempLibrary(t)
	if err := s.Write("a/b/c.fnx", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.fnx")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("del.fnx", []byte("bye"))
	if err := s.Delete("del.fnx"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.fnx"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestMove(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("old.fnx", []byte("data"))
	if err := s.Move("old.fnx", "sub/new.fnx"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.Read("sub/new.fnx")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if s.Exists("old.fnx") {
		t.Error("old path should not exist")
	}
}

func TestList(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("a.fnx", []byte("a"))
	_ = s.Write("sub/b.fnx", []byte("b"))
	_ = s.Write("readme.txt", []byte("not a document"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.Checksum == "" || it.Size != 1 {
			t.Errorf("metadata = %+v", it)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempLibrary(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.fnx",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestRel(t *testing.T) {
	s := tempLibrary(t)
	if rel, ok := s.Rel(filepath.Join(s.Root(), "x", "y.fnx")); !ok || rel != "x/y.fnx" {
		t.Errorf("Rel = %q, %v", rel, ok)
	}
	if _, ok := s.Rel(filepath.Dir(s.Root())); ok {
		t.Error("Rel accepted a path outside the root")
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("atomic.fnx", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.fnx", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.fnx")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	// Confirm no leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(s.root, ".fnx-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestOSWriteFileMissingDir(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nope", "doc.fnx")
	if err := (OS{}).WriteFile(target, []byte("x")); err == nil {
		t.Fatal("expected error for a missing directory")
	}
	if (OS{}).Exists(target) {
		t.Error("file created despite the error")
	}
}

func TestOSWriteFileKeepsOldOnFailure(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "doc.fnx")
	if err := (OS{}).WriteFile(target, []byte("v1")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	if err := (OS{}).WriteFile(target, []byte("v2")); err == nil {
		t.Fatal("expected error writing into a read-only directory")
	}
	got, err := (OS{}).ReadFile(target)
	if err != nil || string(got) != "v1" {
		t.Errorf("old content lost: %q, %v", got, err)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/feathernotes-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "feathernotes-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

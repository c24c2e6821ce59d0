package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ferguskendall2k/devman/internal/devmanerr"
)

// TestPathSandboxConfinesReadsAndWrites is the scenario-2 path-sandbox case
// (spec.md §8): writes/reads within the root succeed, and an escape attempt
// fails with PathEscape while leaving the target outside the root untouched.
func TestPathSandboxConfinesReadsAndWrites(t *testing.T) {
	base := t.TempDir()
	ts := Scoped(base, "foo")

	if err := ts.Write("notes.md", "hi", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ts.Read("notes.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "hi" {
		t.Errorf("Read = %q, want %q", got, "hi")
	}

	sentinel := filepath.Join(base, "etc-hosts-sentinel")
	if err := os.WriteFile(sentinel, []byte("untouched"), 0o644); err != nil {
		t.Fatalf("seed sentinel: %v", err)
	}

	err = ts.Write("../../../etc-hosts-sentinel", "x", false)
	if err == nil {
		t.Fatal("expected a path-escape error")
	}
	if !devmanerr.IsKind(err, devmanerr.PathEscape) {
		t.Errorf("error kind = %v, want PathEscape", err)
	}

	data, readErr := os.ReadFile(sentinel)
	if readErr != nil {
		t.Fatalf("reading sentinel: %v", readErr)
	}
	if string(data) != "untouched" {
		t.Errorf("sentinel was modified: %q", data)
	}
}

func TestGlobalStorageRootsAtMemoryRootItself(t *testing.T) {
	base := t.TempDir()
	ts := GlobalStorage(base)

	if err := ts.Write("index.md", "root", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "index.md")); err != nil {
		t.Errorf("expected file directly under memory root, got: %v", err)
	}
}

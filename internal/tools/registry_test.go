package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ferguskendall2k/devman/internal/config"
	"github.com/ferguskendall2k/devman/internal/storage"
)

func TestDispatchUnknownToolIsErrorNotPanic(t *testing.T) {
	r := NewRegistry()
	res := r.Dispatch(context.Background(), Capabilities{}, "no_such_tool", nil)
	if !res.IsError {
		t.Fatalf("expected an error result for an unknown tool name")
	}
}

func TestBuildRegistryGatesWebToolsByConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Tools.WebEnabled = false
	r := BuildRegistry(cfg)
	found := false
	for _, d := range r.Definitions() {
		if d.Name == "web_search" {
			found = true
		}
	}
	if found {
		t.Errorf("web_search should not be registered when web_enabled is false")
	}

	cfg.Tools.WebEnabled = true
	r = BuildRegistry(cfg)
	found = false
	for _, d := range r.Definitions() {
		if d.Name == "web_search" {
			found = true
		}
	}
	if !found {
		t.Errorf("web_search should be registered when web_enabled is true")
	}
}

func TestEditFileRequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("foo bar baz"), 0o644); err != nil {
		t.Fatal(err)
	}
	caps := Capabilities{WorkingDir: dir, RestrictToRoot: true}

	res := EditFileTool{}.Execute(context.Background(), caps, map[string]any{
		"path": "f.txt", "old_string": "bar", "new_string": "qux",
	})
	if res.IsError {
		t.Fatalf("expected unique replace to succeed, got: %s", res.ForLLM)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "foo qux baz" {
		t.Errorf("unexpected content after edit: %q", data)
	}
}

func TestEditFileRejectsAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("foo bar foo bar"), 0o644); err != nil {
		t.Fatal(err)
	}
	caps := Capabilities{WorkingDir: dir, RestrictToRoot: true}

	res := EditFileTool{}.Execute(context.Background(), caps, map[string]any{
		"path": "f.txt", "old_string": "foo bar", "new_string": "x",
	})
	if !res.IsError {
		t.Fatalf("expected ambiguous replace to error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "foo bar foo bar" {
		t.Errorf("file should be unmodified after a rejected ambiguous edit, got: %q", data)
	}
}

func TestWriteFileRestrictedToWorkspace(t *testing.T) {
	dir := t.TempDir()
	caps := Capabilities{WorkingDir: dir, RestrictToRoot: true}

	res := WriteFileTool{}.Execute(context.Background(), caps, map[string]any{
		"path": "../../etc/hosts", "content": "pwned",
	})
	if !res.IsError {
		t.Fatalf("expected a path-escape write to be rejected")
	}
}

func TestStorageToolsRequireCapability(t *testing.T) {
	res := StorageReadTool{}.Execute(context.Background(), Capabilities{}, map[string]any{"path": "x"})
	if !res.IsError {
		t.Fatalf("expected error when TaskStorage capability is absent")
	}
}

func TestStorageWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	caps := Capabilities{TaskStorage: storage.GlobalStorage(dir)}

	res := StorageWriteTool{}.Execute(context.Background(), caps, map[string]any{"path": "note.txt", "content": "hello"})
	if res.IsError {
		t.Fatalf("write failed: %s", res.ForLLM)
	}
	res = StorageReadTool{}.Execute(context.Background(), caps, map[string]any{"path": "note.txt"})
	if res.IsError || res.ForLLM != "hello" {
		t.Fatalf("unexpected read result: %+v", res)
	}
}

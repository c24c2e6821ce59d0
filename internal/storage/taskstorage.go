// Package storage implements scoped, path-sandboxed task storage (§4.5),
// grounded directly in internal/tools/filesystem.go's resolvePath /
// isPathInside / hasMutableSymlinkParent / checkHardlink defense set,
// trimmed of the teacher's virtual-FS interceptor layer (context/memory-file
// shortcuts), which has no spec.md analogue.
package storage

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/ferguskendall2k/devman/internal/devmanerr"
)

// TaskStorage is a filesystem handle whose every operation is confined to
// root by canonical-prefix checking after symlink/".." resolution (§3, §4.5).
type TaskStorage struct {
	Root   string
	Global bool
}

// Scoped builds a TaskStorage rooted at memoryRoot/tasks/<slug>/storage/.
func Scoped(memoryRoot, slug string) *TaskStorage {
	return &TaskStorage{Root: filepath.Join(memoryRoot, "tasks", slug, "storage"), Global: false}
}

// GlobalStorage builds a TaskStorage rooted at memoryRoot itself, for the manager.
func GlobalStorage(memoryRoot string) *TaskStorage {
	return &TaskStorage{Root: memoryRoot, Global: true}
}

// resolve canonicalizes path against the sandbox root, creating root itself
// on demand, and requires the resolved path to stay under the canonical
// root. Any violation is ErrorKind::PathEscape — no operation bypasses it.
func (t *TaskStorage) resolve(path string) (string, error) {
	if err := os.MkdirAll(t.Root, 0o755); err != nil {
		return "", devmanerr.Wrap(devmanerr.PathEscape, "creating storage root", err)
	}
	wsReal, err := filepath.EvalSymlinks(t.Root)
	if err != nil {
		wsReal = t.Root
	}
	wsReal, err = filepath.Abs(wsReal)
	if err != nil {
		return "", devmanerr.Wrap(devmanerr.PathEscape, "resolving storage root", err)
	}

	joined := filepath.Join(t.Root, path)
	clean := filepath.Clean(joined)

	real, err := filepath.EvalSymlinks(clean)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", devmanerr.Wrap(devmanerr.PathEscape, "resolving path", err)
		}
		real, err = resolveThroughExistingAncestors(clean)
		if err != nil {
			return "", devmanerr.Wrap(devmanerr.PathEscape, "resolving path ancestors", err)
		}
	}

	if err := checkMutableSymlinkParent(real); err != nil {
		return "", err
	}

	if !isPathInside(real, wsReal) {
		return "", devmanerr.New(devmanerr.PathEscape, "path escapes storage root: "+path)
	}
	return real, nil
}

// resolveThroughExistingAncestors walks up from a non-existent path to the
// deepest existing ancestor, canonicalizes that ancestor, then rejoins the
// remaining (non-existent) path components verbatim.
func resolveThroughExistingAncestors(path string) (string, error) {
	var tail []string
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			break
		} else if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
	realAncestor, err := filepath.EvalSymlinks(cur)
	if err != nil {
		realAncestor = cur
	}
	return filepath.Join(append([]string{realAncestor}, tail...)...), nil
}

// checkMutableSymlinkParent rejects paths where any symlink component's
// parent directory is writable by this process, defending against a TOCTOU
// symlink-rebind attack between resolution and use.
func checkMutableSymlinkParent(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	cur := string(filepath.Separator)
	parts := strings.Split(strings.Trim(path, string(filepath.Separator)), string(filepath.Separator))
	for _, part := range parts {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			parentDir := filepath.Dir(cur)
			if syscall.Access(parentDir, 0x2) == nil {
				return devmanerr.New(devmanerr.PathEscape, "symlink parent directory is writable: "+cur)
			}
		}
	}
	return nil
}

// checkHardlink rejects hardlinked regular files (directories are exempt),
// defending against a hardlink-based escape from the sandboxed root.
func checkHardlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return nil // doesn't exist yet; nothing to check
	}
	if info.IsDir() {
		return nil
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if stat.Nlink > 1 {
			return devmanerr.New(devmanerr.PathEscape, "refusing to operate on hardlinked file: "+path)
		}
	}
	return nil
}

func isPathInside(child, parent string) bool {
	if child == parent {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(child, strings.TrimSuffix(parent, sep)+sep)
}

// Read returns file contents as UTF-8 text, or a "[base64] "-prefixed
// base64 encoding on decode failure (§4.5).
func (t *TaskStorage) Read(path string) (string, error) {
	real, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	if err := checkHardlink(real); err != nil {
		return "", err
	}
	data, err := os.ReadFile(real)
	if err != nil {
		return "", devmanerr.Wrap(devmanerr.ToolFailure, "read failed", err)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	return "[base64] " + base64.StdEncoding.EncodeToString(data), nil
}

// Write writes content to path, creating parent directories on demand.
// When base64 is true, content is decoded before writing.
func (t *TaskStorage) Write(path, content string, isBase64 bool) error {
	real, err := t.resolve(path)
	if err != nil {
		return err
	}
	if err := checkHardlink(real); err != nil {
		return err
	}
	data := []byte(content)
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return devmanerr.Wrap(devmanerr.BadRequest, "invalid base64 content", err)
		}
		data = decoded
	}
	if err := os.MkdirAll(filepath.Dir(real), 0o755); err != nil {
		return devmanerr.Wrap(devmanerr.ToolFailure, "creating parent dir", err)
	}
	if err := os.WriteFile(real, data, 0o644); err != nil {
		return devmanerr.Wrap(devmanerr.ToolFailure, "write failed", err)
	}
	return nil
}

// List returns a recursive relative-path listing rooted at subdir (or the
// whole storage root if subdir is empty).
func (t *TaskStorage) List(subdir string) ([]string, error) {
	real, err := t.resolve(subdir)
	if err != nil {
		return nil, err
	}
	var out []string
	err = filepath.Walk(real, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(real, p)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, devmanerr.Wrap(devmanerr.ToolFailure, "list failed", err)
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes path (file or, recursively, directory) from the sandbox.
func (t *TaskStorage) Delete(path string) error {
	real, err := t.resolve(path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(real); err != nil {
		return devmanerr.Wrap(devmanerr.ToolFailure, "delete failed", err)
	}
	return nil
}

// Usage returns (total_bytes, file_count) for the whole storage root.
func (t *TaskStorage) Usage() (int64, int, error) {
	var total int64
	var count int
	err := filepath.Walk(t.Root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
			count++
		}
		return nil
	})
	if err != nil {
		return 0, 0, devmanerr.Wrap(devmanerr.ToolFailure, "usage scan failed", err)
	}
	return total, count, nil
}

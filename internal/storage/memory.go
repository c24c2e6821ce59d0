package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ferguskendall2k/devman/internal/devmanerr"
)

// MemoryIndex is the INDEX.md markdown-as-database registry of tasks (§4.5,
// §9 Design Notes): a human-first file used programmatically through
// substring matching and link parsing, not a schema. Its tolerance for
// free-form surrounding text must be preserved by every operation here.
type MemoryIndex struct {
	Root string // memory_root
}

func NewMemoryIndex(root string) *MemoryIndex {
	return &MemoryIndex{Root: root}
}

func (m *MemoryIndex) indexPath() string { return filepath.Join(m.Root, "INDEX.md") }

// SearchResult is one (file, line, text) hit from Search.
type SearchResult struct {
	File string
	Line int
	Text string
}

// Search performs a recursive case-insensitive substring match across every
// file under the memory root.
func (m *MemoryIndex) Search(query string) ([]SearchResult, error) {
	var results []SearchResult
	q := strings.ToLower(query)
	err := filepath.Walk(m.Root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(m.Root, p)
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(strings.ToLower(line), q) {
				results = append(results, SearchResult{File: rel, Line: i + 1, Text: line})
			}
		}
		return nil
	})
	if err != nil {
		return nil, devmanerr.Wrap(devmanerr.ToolFailure, "memory search failed", err)
	}
	return results, nil
}

// Slugify converts a task name to its slug form: lowercase, spaces to
// hyphens, drop anything that isn't alphanumeric or a hyphen.
func Slugify(name string) string {
	lower := strings.ToLower(name)
	lower = strings.ReplaceAll(lower, " ", "-")
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

const taskTemplate = `# %s

Status: NOT STARTED

## Description

(fill in)

## Notes

(fill in)
`

// CreateTask slugifies name, writes tasks/<slug>.md from the fixed template,
// and appends one INDEX.md line.
func (m *MemoryIndex) CreateTask(name string) (slug string, err error) {
	slug = Slugify(name)
	taskPath := filepath.Join(m.Root, "tasks", slug+".md")
	if err := os.MkdirAll(filepath.Dir(taskPath), 0o755); err != nil {
		return "", devmanerr.Wrap(devmanerr.ToolFailure, "creating tasks dir", err)
	}
	if err := os.WriteFile(taskPath, []byte(fmt.Sprintf(taskTemplate, name)), 0o644); err != nil {
		return "", devmanerr.Wrap(devmanerr.ToolFailure, "writing task file", err)
	}

	line := fmt.Sprintf("- [%s](tasks/%s.md) | status: NOT STARTED | summary: (none)\n", name, slug)
	if err := appendLine(m.indexPath(), line); err != nil {
		return "", err
	}
	return slug, nil
}

var linkPattern = regexp.MustCompile(`\]\(([^)]+)\)`)

// LoadTask scans INDEX.md for the first line containing query
// case-insensitively, extracts the linked path, and returns that file's
// content. Returns ErrorKind::NotFound if absent/unmatched.
func (m *MemoryIndex) LoadTask(nameOrAlias string) (content string, err error) {
	data, err := os.ReadFile(m.indexPath())
	if err != nil {
		return "", devmanerr.New(devmanerr.NotFound, "no memory index")
	}
	q := strings.ToLower(nameOrAlias)
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.Contains(strings.ToLower(line), q) {
			continue
		}
		match := linkPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		path := filepath.Join(m.Root, match[1])
		body, err := os.ReadFile(path)
		if err != nil {
			return "", devmanerr.New(devmanerr.NotFound, "task file missing: "+match[1])
		}
		return string(body), nil
	}
	return "", devmanerr.New(devmanerr.NotFound, "no task matches: "+nameOrAlias)
}

// UpdateIndex rewrites the one matching line, preserving the link, with a
// new trailing "| status: S | summary".
func (m *MemoryIndex) UpdateIndex(name, status, summary string) error {
	data, err := os.ReadFile(m.indexPath())
	if err != nil {
		return devmanerr.New(devmanerr.NotFound, "no memory index")
	}
	q := strings.ToLower(name)
	lines := strings.Split(string(data), "\n")
	found := false
	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), q) {
			continue
		}
		match := linkPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		linkIdx := strings.Index(line, "](")
		namePart := line[:linkIdx]
		lines[i] = fmt.Sprintf("%s](%s) | status: %s | summary: %s", namePart, match[1], status, summary)
		found = true
		break
	}
	if !found {
		return devmanerr.New(devmanerr.NotFound, "no index line matches: "+name)
	}
	return os.WriteFile(m.indexPath(), []byte(strings.Join(lines, "\n")), 0o644)
}

func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return devmanerr.Wrap(devmanerr.ToolFailure, "creating memory dir", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return devmanerr.Wrap(devmanerr.ToolFailure, "opening index", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return devmanerr.Wrap(devmanerr.ToolFailure, "appending index line", err)
	}
	return nil
}

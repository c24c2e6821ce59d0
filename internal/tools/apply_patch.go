package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ApplyPatchTool applies unified-diff style patches to text files under the
// agent's workspace, grounded on intelligencedev-manifold's
// internal/tools/patchtool/patch.go — a minimal subset of unified diff
// (hunk headers + context/add/delete lines), no renames, no binary patches.
type ApplyPatchTool struct {
	MaxTotalBytes int
	MaxFiles      int
}

func NewApplyPatchTool() *ApplyPatchTool {
	return &ApplyPatchTool{MaxTotalBytes: 256_000, MaxFiles: 32}
}

func (t *ApplyPatchTool) Name() string        { return "apply_patch" }
func (t *ApplyPatchTool) Description() string { return "Apply a unified diff patch to one or more text files under the workspace" }
func (t *ApplyPatchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"patch": map[string]any{"type": "string", "description": "Unified diff patch text"},
		},
		"required": []string{"patch"},
	}
}

type fileEdit struct {
	path    string
	content []string
	created bool
}

func (t *ApplyPatchTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	patch := stringArg(args, "patch")
	if patch == "" {
		return ErrorResult("patch is required")
	}
	if len(patch) > t.MaxTotalBytes {
		return ErrorResult(fmt.Sprintf("patch size exceeds limit (%d > %d)", len(patch), t.MaxTotalBytes))
	}

	edited := map[string]*fileEdit{}
	if err := t.parseAndApply(patch, caps, edited); err != nil {
		return ErrorResult(err.Error())
	}
	if len(edited) > t.MaxFiles {
		return ErrorResult(fmt.Sprintf("too many files modified (%d > %d)", len(edited), t.MaxFiles))
	}

	var touched []string
	for rel, fe := range edited {
		real, err := resolvePath(rel, caps.WorkingDir, caps.RestrictToRoot)
		if err != nil {
			return ErrorResult(err.Error())
		}
		if err := os.MkdirAll(filepath.Dir(real), 0o755); err != nil {
			return ErrorResult(fmt.Sprintf("creating parent dir: %v", err))
		}
		body := strings.Join(fe.content, "\n")
		if len(fe.content) > 0 {
			body += "\n"
		}
		if err := os.WriteFile(real, []byte(body), 0o644); err != nil {
			return ErrorResult(fmt.Sprintf("writing %s: %v", rel, err))
		}
		touched = append(touched, rel)
	}
	return SilentResult(fmt.Sprintf("patched %d file(s): %s", len(touched), strings.Join(touched, ", ")))
}

func (t *ApplyPatchTool) parseAndApply(patch string, caps Capabilities, edited map[string]*fileEdit) error {
	lines := strings.Split(patch, "\n")
	var current *fileEdit
	var idx int

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ "):
			oldPath := strings.TrimSpace(strings.TrimPrefix(line, "--- "))
			newPath := strings.TrimSpace(strings.TrimPrefix(lines[i+1], "+++ "))
			i++
			path := strings.TrimPrefix(strings.TrimPrefix(newPath, "a/"), "b/")
			if path == "/dev/null" {
				path = strings.TrimPrefix(strings.TrimPrefix(oldPath, "a/"), "b/")
			}
			path = filepath.Clean(path)

			current = edited[path]
			if current == nil {
				real, err := resolvePath(path, caps.WorkingDir, caps.RestrictToRoot)
				if err != nil {
					return fmt.Errorf("path %s rejected: %w", path, err)
				}
				data, err := os.ReadFile(real)
				if err != nil {
					if !os.IsNotExist(err) {
						return err
					}
					current = &fileEdit{path: path, created: true}
				} else {
					current = &fileEdit{path: path, content: strings.Split(string(data), "\n")}
				}
				edited[path] = current
			}
			idx = 0

		case strings.HasPrefix(line, "@@"):
			if current == nil {
				return fmt.Errorf("hunk before file header")
			}
			newContent := append([]string{}, current.content[:min(idx, len(current.content))]...)
			j := i + 1
			for ; j < len(lines); j++ {
				l := lines[j]
				if strings.HasPrefix(l, "@@") || strings.HasPrefix(l, "--- ") {
					break
				}
				if l == `\ No newline at end of file` {
					continue
				}
				if l == "" {
					newContent = append(newContent, "")
					idx++
					continue
				}
				switch l[0] {
				case ' ':
					if idx < len(current.content) {
						newContent = append(newContent, current.content[idx])
					} else {
						newContent = append(newContent, l[1:])
					}
					idx++
				case '+':
					newContent = append(newContent, l[1:])
				case '-':
					idx++
				default:
					newContent = append(newContent, l)
				}
			}
			if idx < len(current.content) {
				newContent = append(newContent, current.content[idx:]...)
			}
			current.content = newContent
			i = j - 1
		}
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolvePath joins path against workspace and, when restrict is true,
// requires the cleaned absolute result to stay under workspace, grounded on
// goclaw's internal/tools/filesystem.go resolvePath. The check is lexical:
// unlike internal/storage's sandbox, symlinks are not resolved.
func resolvePath(path, workspace string, restrict bool) (string, error) {
	if filepath.IsAbs(path) {
		if !restrict {
			return filepath.Clean(path), nil
		}
	}
	joined := path
	if !filepath.IsAbs(path) {
		joined = filepath.Join(workspace, path)
	}
	clean := filepath.Clean(joined)
	if !restrict {
		return clean, nil
	}
	wsAbs, err := filepath.Abs(workspace)
	if err != nil {
		return "", err
	}
	cleanAbs, err := filepath.Abs(clean)
	if err != nil {
		return "", err
	}
	if cleanAbs != wsAbs && !strings.HasPrefix(cleanAbs, wsAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return cleanAbs, nil
}

// ReadFileTool implements the read_file mandatory tool.
type ReadFileTool struct{}

func (ReadFileTool) Name() string        { return "read_file" }
func (ReadFileTool) Description() string { return "Read the contents of a file" }
func (ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Path to the file to read"},
		},
		"required": []string{"path"},
	}
}

func (ReadFileTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	path := stringArg(args, "path")
	if path == "" {
		return ErrorResult("path is required")
	}
	real, err := resolvePath(path, caps.WorkingDir, caps.RestrictToRoot)
	if err != nil {
		return ErrorResult(err.Error())
	}
	data, err := os.ReadFile(real)
	if err != nil {
		return ErrorResult(fmt.Sprintf("read failed: %v", err))
	}
	return SilentResult(string(data))
}

// WriteFileTool implements the write_file mandatory tool.
type WriteFileTool struct{}

func (WriteFileTool) Name() string        { return "write_file" }
func (WriteFileTool) Description() string { return "Write content to a file, creating it if necessary" }
func (WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Path to the file to write"},
			"content": map[string]any{"type": "string", "description": "Content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (WriteFileTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	path := stringArg(args, "path")
	if path == "" {
		return ErrorResult("path is required")
	}
	content := stringArg(args, "content")
	real, err := resolvePath(path, caps.WorkingDir, caps.RestrictToRoot)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(real), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("creating parent dir: %v", err))
	}
	if err := os.WriteFile(real, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("write failed: %v", err))
	}
	return SilentResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

// EditFileTool implements edit_file's exact-unique-match replace (§4.3): the
// old string must appear exactly once in the file, or the call errors
// without modifying anything.
type EditFileTool struct{}

func (EditFileTool) Name() string        { return "edit_file" }
func (EditFileTool) Description() string { return "Replace an exact, uniquely-occurring substring in a file" }
func (EditFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":       map[string]any{"type": "string", "description": "Path to the file to edit"},
			"old_string": map[string]any{"type": "string", "description": "The exact text to replace; must occur exactly once"},
			"new_string": map[string]any{"type": "string", "description": "The replacement text"},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (EditFileTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	path := stringArg(args, "path")
	oldStr := stringArg(args, "old_string")
	newStr := stringArg(args, "new_string")
	if path == "" || oldStr == "" {
		return ErrorResult("path and old_string are required")
	}
	real, err := resolvePath(path, caps.WorkingDir, caps.RestrictToRoot)
	if err != nil {
		return ErrorResult(err.Error())
	}
	data, err := os.ReadFile(real)
	if err != nil {
		return ErrorResult(fmt.Sprintf("read failed: %v", err))
	}
	content := string(data)
	count := strings.Count(content, oldStr)
	switch count {
	case 0:
		return ErrorResult("old_string not found in file")
	case 1:
		updated := strings.Replace(content, oldStr, newStr, 1)
		if err := os.WriteFile(real, []byte(updated), 0o644); err != nil {
			return ErrorResult(fmt.Sprintf("write failed: %v", err))
		}
		return SilentResult("edit applied")
	default:
		return ErrorResult(fmt.Sprintf("old_string is ambiguous: occurs %d times, expected exactly 1", count))
	}
}

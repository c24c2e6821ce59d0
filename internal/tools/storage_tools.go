package tools

import "fmt"
import "context"

// storage_* mandatory tools, thin wrappers over internal/storage.TaskStorage
// (§4.5): every operation is confined to the agent's scoped or global root.

type StorageReadTool struct{}

func (StorageReadTool) Name() string        { return "storage_read" }
func (StorageReadTool) Description() string { return "Read a file from the agent's scoped storage" }
func (StorageReadTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []string{"path"},
	}
}
func (StorageReadTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.TaskStorage == nil {
		return ErrorResult("storage is not available to this agent")
	}
	content, err := caps.TaskStorage.Read(stringArg(args, "path"))
	if err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult(content)
}

type StorageWriteTool struct{}

func (StorageWriteTool) Name() string        { return "storage_write" }
func (StorageWriteTool) Description() string { return "Write a file into the agent's scoped storage" }
func (StorageWriteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
			"base64":  map[string]any{"type": "boolean", "description": "true if content is base64-encoded binary"},
		},
		"required": []string{"path", "content"},
	}
}
func (StorageWriteTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.TaskStorage == nil {
		return ErrorResult("storage is not available to this agent")
	}
	err := caps.TaskStorage.Write(stringArg(args, "path"), stringArg(args, "content"), boolArg(args, "base64"))
	if err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult("written")
}

type StorageListTool struct{}

func (StorageListTool) Name() string        { return "storage_list" }
func (StorageListTool) Description() string { return "Recursively list files under a storage subdirectory" }
func (StorageListTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"subdir": map[string]any{"type": "string"}},
	}
}
func (StorageListTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.TaskStorage == nil {
		return ErrorResult("storage is not available to this agent")
	}
	entries, err := caps.TaskStorage.List(stringArg(args, "subdir"))
	if err != nil {
		return ErrorResult(err.Error())
	}
	out := ""
	for _, e := range entries {
		out += e + "\n"
	}
	return SilentResult(out)
}

type StorageDeleteTool struct{}

func (StorageDeleteTool) Name() string        { return "storage_delete" }
func (StorageDeleteTool) Description() string { return "Delete a file or directory from scoped storage" }
func (StorageDeleteTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []string{"path"},
	}
}
func (StorageDeleteTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.TaskStorage == nil {
		return ErrorResult("storage is not available to this agent")
	}
	if err := caps.TaskStorage.Delete(stringArg(args, "path")); err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult("deleted")
}

type StorageUsageTool struct{}

func (StorageUsageTool) Name() string        { return "storage_usage" }
func (StorageUsageTool) Description() string { return "Report total bytes and file count used in scoped storage" }
func (StorageUsageTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (StorageUsageTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.TaskStorage == nil {
		return ErrorResult("storage is not available to this agent")
	}
	bytes, count, err := caps.TaskStorage.Usage()
	if err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult(fmt.Sprintf("%d bytes across %d file(s)", bytes, count))
}

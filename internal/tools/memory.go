package tools

import (
	"context"
	"fmt"
)

// memory_* mandatory tools, thin wrappers over internal/storage.MemoryIndex
// (§4.5).

type MemorySearchTool struct{}

func (MemorySearchTool) Name() string        { return "memory_search" }
func (MemorySearchTool) Description() string { return "Recursively search the memory index for a substring" }
func (MemorySearchTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []string{"query"},
	}
}
func (MemorySearchTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.MemoryIndex == nil {
		return ErrorResult("memory index is not available to this agent")
	}
	query := stringArg(args, "query")
	results, err := caps.MemoryIndex.Search(query)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if len(results) == 0 {
		return SilentResult("no matches")
	}
	out := ""
	for _, r := range results {
		out += fmt.Sprintf("%s:%d: %s\n", r.File, r.Line, r.Text)
	}
	return SilentResult(out)
}

type MemoryCreateTaskTool struct{}

func (MemoryCreateTaskTool) Name() string        { return "memory_create_task" }
func (MemoryCreateTaskTool) Description() string { return "Create a new task entry in the memory index" }
func (MemoryCreateTaskTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
		"required":   []string{"name"},
	}
}
func (MemoryCreateTaskTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.MemoryIndex == nil {
		return ErrorResult("memory index is not available to this agent")
	}
	name := stringArg(args, "name")
	if name == "" {
		return ErrorResult("name is required")
	}
	slug, err := caps.MemoryIndex.CreateTask(name)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult("created task " + slug)
}

type MemoryLoadTaskTool struct{}

func (MemoryLoadTaskTool) Name() string        { return "memory_load_task" }
func (MemoryLoadTaskTool) Description() string { return "Load a task's content by name or alias" }
func (MemoryLoadTaskTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"name_or_alias": map[string]any{"type": "string"}},
		"required":   []string{"name_or_alias"},
	}
}
func (MemoryLoadTaskTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.MemoryIndex == nil {
		return ErrorResult("memory index is not available to this agent")
	}
	content, err := caps.MemoryIndex.LoadTask(stringArg(args, "name_or_alias"))
	if err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult(content)
}

type MemoryUpdateIndexTool struct{}

func (MemoryUpdateIndexTool) Name() string        { return "memory_update_index" }
func (MemoryUpdateIndexTool) Description() string { return "Update a task's status and summary in the memory index" }
func (MemoryUpdateIndexTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":    map[string]any{"type": "string"},
			"status":  map[string]any{"type": "string"},
			"summary": map[string]any{"type": "string"},
		},
		"required": []string{"name", "status", "summary"},
	}
}
func (MemoryUpdateIndexTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.MemoryIndex == nil {
		return ErrorResult("memory index is not available to this agent")
	}
	err := caps.MemoryIndex.UpdateIndex(stringArg(args, "name"), stringArg(args, "status"), stringArg(args, "summary"))
	if err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult("index updated")
}

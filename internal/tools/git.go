package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// git_* mandatory tools: minimal real wrappers over the host `git` binary
// (§4.3 treats `git` as an out-of-scope external collaborator needing only
// a minimal real implementation, not a full VCS library).

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		msg := errBuf.String()
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s", msg)
	}
	return out.String(), nil
}

type GitStatusTool struct{}

func (GitStatusTool) Name() string        { return "git_status" }
func (GitStatusTool) Description() string { return "Show the working tree status" }
func (GitStatusTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (GitStatusTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	out, err := runGit(ctx, caps.WorkingDir, "status", "--short", "--branch")
	if err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult(out)
}

type GitDiffTool struct{}

func (GitDiffTool) Name() string        { return "git_diff" }
func (GitDiffTool) Description() string { return "Show unstaged changes against the index" }
func (GitDiffTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string", "description": "Limit the diff to a path"}},
	}
}
func (GitDiffTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	gitArgs := []string{"diff"}
	if p := stringArg(args, "path"); p != "" {
		gitArgs = append(gitArgs, "--", p)
	}
	out, err := runGit(ctx, caps.WorkingDir, gitArgs...)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if out == "" {
		out = "(no changes)"
	}
	return SilentResult(out)
}

type GitCommitTool struct{}

func (GitCommitTool) Name() string        { return "git_commit" }
func (GitCommitTool) Description() string { return "Stage all changes and create a commit" }
func (GitCommitTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"message": map[string]any{"type": "string"}},
		"required":   []string{"message"},
	}
}
func (GitCommitTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	message := stringArg(args, "message")
	if message == "" {
		return ErrorResult("message is required")
	}
	if _, err := runGit(ctx, caps.WorkingDir, "add", "-A"); err != nil {
		return ErrorResult(err.Error())
	}
	out, err := runGit(ctx, caps.WorkingDir, "commit", "-m", message)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult(out)
}

type GitLogTool struct{}

func (GitLogTool) Name() string        { return "git_log" }
func (GitLogTool) Description() string { return "Show recent commit history" }
func (GitLogTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"limit": map[string]any{"type": "number", "default": 10}},
	}
}
func (GitLogTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	limit := "10"
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = fmt.Sprintf("%d", int(l))
	}
	out, err := runGit(ctx, caps.WorkingDir, "log", "--oneline", "-n", limit)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult(out)
}

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// vcs_host_* mandatory tools: minimal real wrappers over the GitHub REST API
// (§4.3's "external collaborator" treatment — a single concrete VCS host,
// not a multi-provider abstraction).

func githubRequest(ctx context.Context, token, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, "https://api.github.com"+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}

type VCSHostCreateIssueTool struct{}

func (VCSHostCreateIssueTool) Name() string        { return "vcs_host_create_issue" }
func (VCSHostCreateIssueTool) Description() string { return "Create a GitHub issue on owner/repo" }
func (VCSHostCreateIssueTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"repo":  map[string]any{"type": "string", "description": "owner/repo"},
			"title": map[string]any{"type": "string"},
			"body":  map[string]any{"type": "string"},
		},
		"required": []string{"repo", "title"},
	}
}
func (VCSHostCreateIssueTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.GitHubToken == "" {
		return ErrorResult("vcs host is not configured (no github token)")
	}
	repo := stringArg(args, "repo")
	title := stringArg(args, "title")
	if repo == "" || title == "" {
		return ErrorResult("repo and title are required")
	}
	data, status, err := githubRequest(ctx, caps.GitHubToken, http.MethodPost, "/repos/"+repo+"/issues",
		map[string]any{"title": title, "body": stringArg(args, "body")})
	if err != nil {
		return ErrorResult(err.Error())
	}
	if status >= 300 {
		return ErrorResult(fmt.Sprintf("github returned %d: %s", status, truncate(string(data), 500)))
	}
	return SilentResult(string(data))
}

type VCSHostListIssuesTool struct{}

func (VCSHostListIssuesTool) Name() string        { return "vcs_host_list_issues" }
func (VCSHostListIssuesTool) Description() string { return "List open GitHub issues on owner/repo" }
func (VCSHostListIssuesTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"repo": map[string]any{"type": "string", "description": "owner/repo"}},
		"required":   []string{"repo"},
	}
}
func (VCSHostListIssuesTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.GitHubToken == "" {
		return ErrorResult("vcs host is not configured (no github token)")
	}
	repo := stringArg(args, "repo")
	if repo == "" {
		return ErrorResult("repo is required")
	}
	data, status, err := githubRequest(ctx, caps.GitHubToken, http.MethodGet, "/repos/"+repo+"/issues", nil)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if status >= 300 {
		return ErrorResult(fmt.Sprintf("github returned %d: %s", status, truncate(string(data), 500)))
	}
	return SilentResult(string(data))
}

package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebFetchTool fetches a URL and returns up to maxChars of its body as
// plain text, grounded on goclaw's internal/tools/web_fetch.go request
// shape, trimmed of its HTML-to-markdown conversion, screenshot mode, and
// caching layer — a minimal real implementation sufficient to exercise the
// dispatch contract (§4.3 notes web_fetch as an out-of-scope external
// collaborator needing only this).
type WebFetchTool struct {
	client   *http.Client
	maxChars int
}

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{client: &http.Client{Timeout: 30 * time.Second}, maxChars: 50_000}
}

func (t *WebFetchTool) Name() string        { return "web_fetch" }
func (t *WebFetchTool) Description() string { return "Fetch a URL and return its body as text, truncated to a maximum length" }
func (t *WebFetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":       map[string]any{"type": "string", "description": "HTTP or HTTPS URL to fetch"},
			"max_chars": map[string]any{"type": "number", "description": "Maximum characters to return"},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	rawURL := stringArg(args, "url")
	if rawURL == "" {
		return ErrorResult("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return ErrorResult("url must be http or https")
	}
	maxChars := t.maxChars
	if m, ok := args["max_chars"].(float64); ok && m > 0 {
		maxChars = int(m)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ErrorResult(err.Error())
	}
	req.Header.Set("User-Agent", "devman/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("fetch failed: %v", err))
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, int64(maxChars)+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return ErrorResult(fmt.Sprintf("reading body: %v", err))
	}
	if resp.StatusCode >= 400 {
		return ErrorResult(fmt.Sprintf("fetch returned %d: %s", resp.StatusCode, truncate(string(body), 4000)))
	}
	return SilentResult(truncate(string(body), maxChars))
}

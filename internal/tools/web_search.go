package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// WebSearchTool implements web_search against the Brave Search API (the
// "external collaborator" minimal real function spec.md §4.3 calls for),
// grounded on goclaw's internal/tools/web_search_brave.go request/response
// shape.
type WebSearchTool struct {
	client *http.Client
}

func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{client: &http.Client{Timeout: 15 * time.Second}}
}

func (t *WebSearchTool) Name() string        { return "web_search" }
func (t *WebSearchTool) Description() string { return "Search the web and return titles, URLs, and snippets" }
func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "Search query"},
			"count": map[string]any{"type": "number", "description": "Number of results to return", "default": 5},
		},
		"required": []string{"query"},
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (t *WebSearchTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.BraveAPIKey == "" {
		return ErrorResult("web search is not configured (no brave api key)")
	}
	query := stringArg(args, "query")
	if query == "" {
		return ErrorResult("query is required")
	}
	count := 5
	if c, ok := args["count"].(float64); ok && c > 0 {
		count = int(c)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", count))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.search.brave.com/res/v1/web/search?"+q.Encode(), nil)
	if err != nil {
		return ErrorResult(err.Error())
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", caps.BraveAPIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("search request failed: %v", err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrorResult(fmt.Sprintf("reading response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return ErrorResult(fmt.Sprintf("search API returned %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ErrorResult(fmt.Sprintf("parsing response: %v", err))
	}

	out := ""
	for _, r := range parsed.Web.Results {
		out += fmt.Sprintf("%s\n%s\n%s\n\n", r.Title, r.URL, r.Description)
	}
	if out == "" {
		out = "no results"
	}
	return SilentResult(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package tools

import (
	"context"
	"fmt"
)

// DeepResearchTool runs a web_search followed by a web_fetch of the top
// result, composing the two external-collaborator tools into a single
// multi-step research call — the minimal real implementation spec.md §4.3
// asks for, rather than a genuine multi-source research pipeline.
type DeepResearchTool struct {
	search *WebSearchTool
	fetch  *WebFetchTool
}

func NewDeepResearchTool() *DeepResearchTool {
	return &DeepResearchTool{search: NewWebSearchTool(), fetch: NewWebFetchTool()}
}

func (t *DeepResearchTool) Name() string        { return "deep_research" }
func (t *DeepResearchTool) Description() string {
	return "Search the web for a query and fetch the top result's content"
}
func (t *DeepResearchTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"query": map[string]any{"type": "string"}},
		"required":   []string{"query"},
	}
}

func (t *DeepResearchTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	query := stringArg(args, "query")
	if query == "" {
		return ErrorResult("query is required")
	}
	searchRes := t.search.Execute(ctx, caps, map[string]any{"query": query, "count": float64(3)})
	if searchRes.IsError {
		return searchRes
	}
	firstURL := firstURLInText(searchRes.ForLLM)
	if firstURL == "" {
		return SilentResult(searchRes.ForLLM)
	}
	fetchRes := t.fetch.Execute(ctx, caps, map[string]any{"url": firstURL})
	if fetchRes.IsError {
		return SilentResult(fmt.Sprintf("search results:\n%s\n\n(fetching top result failed: %s)", searchRes.ForLLM, fetchRes.ForLLM))
	}
	return SilentResult(fmt.Sprintf("search results:\n%s\n\ntop result (%s):\n%s", searchRes.ForLLM, firstURL, fetchRes.ForLLM))
}

func firstURLInText(text string) string {
	for _, line := range splitLinesKeep(text) {
		if len(line) > 7 && (line[:7] == "http://" || (len(line) > 8 && line[:8] == "https://")) {
			return line
		}
	}
	return ""
}

func splitLinesKeep(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ferguskendall2k/devman/internal/creds"
	"github.com/ferguskendall2k/devman/internal/devmanerr"
)

const (
	idleChunkTimeout = 60 * time.Second
	totalRequestCeiling = 300 * time.Second
	anthropicVersion = "2023-06-01"
	anthropicBetaThinking = "interleaved-thinking-2025-05-14"
)

// AnthropicClient implements Client against Anthropic's Messages API,
// grounded in internal/providers/anthropic.go + anthropic_stream.go of the
// teacher: the SSE scanner loop, buildRawBlock-style reconstruction, the
// HTTPError+Retry-After pattern, and the structured "thinking" sub-object.
// The reasoning budget numbers are spec.md's, not the teacher's.
type AnthropicClient struct {
	resolver *creds.Resolver
	baseURL  string
	model    string
	http     *http.Client
}

// NewAnthropicClient builds a client against baseURL (default
// https://api.anthropic.com) using resolver for credentials.
func NewAnthropicClient(resolver *creds.Resolver, baseURL, defaultModel string) *AnthropicClient {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicClient{
		resolver: resolver,
		baseURL:  baseURL,
		model:    defaultModel,
		http:     &http.Client{Timeout: totalRequestCeiling},
	}
}

func (c *AnthropicClient) Name() string         { return "anthropic" }
func (c *AnthropicClient) DefaultModel() string { return c.model }

// Send issues one streaming request, retrying exactly once on a 401 after
// re-reading the credential (§4.1 Response handling).
func (c *AnthropicClient) Send(req Request, onEvent OnEvent) (*Reply, error) {
	cred, ok := c.resolver.Resolve()
	if !ok {
		return nil, devmanerr.New(devmanerr.Unauthorized, "no credential available")
	}

	reply, err := c.doSend(req, cred, onEvent)
	if err == nil {
		return reply, nil
	}
	if !devmanerr.IsKind(err, devmanerr.Unauthorized) {
		return nil, err
	}

	refreshed, ok := c.resolver.Resolve()
	if !ok || refreshed.Value == cred.Value {
		return nil, devmanerr.New(devmanerr.Unauthorized, "credential unchanged after refresh")
	}
	return c.doSend(req, refreshed, onEvent)
}

func (c *AnthropicClient) doSend(req Request, cred creds.Credential, onEvent OnEvent) (*Reply, error) {
	ctx, cancel := context.WithTimeout(context.Background(), totalRequestCeiling)
	defer cancel()

	body, err := buildRequestBody(req, c.model)
	if err != nil {
		return nil, devmanerr.Wrap(devmanerr.BadRequest, "encoding request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, devmanerr.Wrap(devmanerr.Transport, "building request", err)
	}
	applyAuthHeaders(httpReq, cred)
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if _, _, enabled := ReasoningBudget(req.ReasoningLevel); enabled {
		httpReq.Header.Set("anthropic-beta", anthropicBetaThinking)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, devmanerr.New(devmanerr.StreamTimeout, "request exceeded 300s ceiling")
		}
		return nil, devmanerr.Wrap(devmanerr.Transport, "http request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp)
	}

	return parseSSE(ctx, resp.Body, onEvent)
}

func applyAuthHeaders(req *http.Request, cred creds.Credential) {
	switch cred.Kind {
	case creds.KindOAuth:
		// Impersonate the vendor's own CLI client identity headers.
		req.Header.Set("authorization", "Bearer "+cred.Value)
		req.Header.Set("anthropic-beta", "oauth-2025-04-20")
		req.Header.Set("x-app", "cli")
	default:
		req.Header.Set("x-api-key", cred.Value)
	}
}

func classifyHTTPError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return devmanerr.New(devmanerr.Unauthorized, string(data))
	case resp.StatusCode == http.StatusTooManyRequests:
		e := devmanerr.WithRetryAfter(parseRetryAfter(resp.Header.Get("Retry-After")))
		e.Message = string(data)
		return e
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return devmanerr.New(devmanerr.BadRequest, fmt.Sprintf("%d: %s", resp.StatusCode, data))
	case resp.StatusCode >= 500:
		return devmanerr.New(devmanerr.ServerError, fmt.Sprintf("%d: %s", resp.StatusCode, data))
	default:
		return devmanerr.New(devmanerr.Transport, fmt.Sprintf("%d: %s", resp.StatusCode, data))
	}
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if n, err := strconv.Atoi(header); err == nil {
		return n
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d > 0 {
			return int(d.Seconds())
		}
	}
	return 0
}

// --- request assembly -------------------------------------------------

type wireBlock struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	Source     *wireImgSource  `json:"source,omitempty"`
	ID         string          `json:"id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	ToolUseID  string          `json:"tool_use_id,omitempty"`
	Content    string          `json:"content,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	Signature  string          `json:"signature,omitempty"`
}

type wireImgSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type wireRequest struct {
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	Messages    []wireMessage  `json:"messages"`
	Tools       []wireTool     `json:"tools,omitempty"`
	MaxTokens   int            `json:"max_tokens"`
	Stream      bool           `json:"stream"`
	Thinking    *wireThinking  `json:"thinking,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

func buildRequestBody(req Request, defaultModel string) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	wr := wireRequest{
		Model:     model,
		System:    req.System,
		MaxTokens: req.MaxTokens,
		Stream:    true,
	}
	if wr.MaxTokens == 0 {
		wr.MaxTokens = 4096
	}

	budget, minMax, enabled := ReasoningBudget(req.ReasoningLevel)
	if enabled {
		wr.Thinking = &wireThinking{Type: "enabled", BudgetTokens: budget}
		if wr.MaxTokens < minMax {
			wr.MaxTokens = minMax
		}
		// Temperature is incompatible with thinking mode.
		wr.Temperature = nil
	}

	for _, m := range req.Messages {
		wr.Messages = append(wr.Messages, toWireMessage(m))
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	return json.Marshal(wr)
}

func toWireMessage(m Message) wireMessage {
	wm := wireMessage{Role: string(m.Role)}
	for _, b := range m.Content {
		switch b.Kind {
		case BlockText:
			wm.Content = append(wm.Content, wireBlock{Type: "text", Text: b.Text})
		case BlockReasoning:
			wm.Content = append(wm.Content, wireBlock{Type: "thinking", Text: b.Text, Signature: b.Signature})
		case BlockImage:
			wm.Content = append(wm.Content, wireBlock{
				Type:   "image",
				Source: &wireImgSource{Type: "base64", MediaType: b.MediaType, Data: b.Base64Data},
			})
		case BlockToolUse:
			input := b.ToolInput
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			wm.Content = append(wm.Content, wireBlock{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: input})
		case BlockToolResult:
			blk := wireBlock{Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.ToolResultContent}
			if b.ToolResultIsError {
				blk.IsError = true
			}
			wm.Content = append(wm.Content, blk)
		}
	}
	return wm
}

// Package providers implements the streaming LLM client (§4.1): request
// assembly, SSE parsing, content-block reconstruction, and 401-refresh retry.
package providers

import "encoding/json"

// Role is a Message's speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind tags a ContentBlock's variant (§3 Data Model).
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockImage      BlockKind = "image"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
	BlockReasoning  BlockKind = "thinking"
)

// ContentBlock is the tagged-union atomic unit of a Message's content, per
// spec.md §3. Only the fields relevant to Kind are populated.
type ContentBlock struct {
	Kind BlockKind

	Text string // Text, Reasoning

	MediaType  string // Image
	Base64Data string // Image

	ToolUseID string          // ToolUse.id, ToolResult.tool_use_id
	ToolName  string          // ToolUse.name
	ToolInput json.RawMessage // ToolUse.input

	ToolResultContent string // ToolResult.content
	ToolResultIsError bool   // ToolResult.is_error

	Signature string // Reasoning.opaque_signature
}

// Message is one turn of the conversation: a role plus an ordered sequence
// of content blocks.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// ToolDefinition is forwarded to the LLM verbatim so it can decide when to
// call a tool (§4.3).
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ReasoningLevel selects the structured "thinking" sub-object per spec.md
// §4.1's literal budget/max_tokens mapping.
type ReasoningLevel string

const (
	ReasoningOff    ReasoningLevel = "off"
	ReasoningLow    ReasoningLevel = "low"
	ReasoningMedium ReasoningLevel = "medium"
	ReasoningHigh   ReasoningLevel = "high"
)

// ReasoningBudget returns the thinking budget_tokens and the minimum
// max_tokens envelope for a reasoning level, per spec.md §4.1:
// Off→omit; Low→2048/8192; Medium→8192/16384; High→32768/65536.
func ReasoningBudget(level ReasoningLevel) (budgetTokens, minMaxTokens int, enabled bool) {
	switch level {
	case ReasoningLow:
		return 2048, 8192, true
	case ReasoningMedium:
		return 8192, 16384, true
	case ReasoningHigh:
		return 32768, 65536, true
	default:
		return 0, 0, false
	}
}

// Usage carries token accounting from one LLM call.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
}

// Total is the sum of input and output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Reply is the fully reconstructed result of one LLM call.
type Reply struct {
	Content    []ContentBlock
	Usage      Usage
	StopReason string
}

// StreamEvent is delivered to on_event as content arrives, so a REPL/streamer
// can print deltas incrementally (§4.1).
type StreamEvent struct {
	TextDelta      string
	ReasoningDelta string
	Done           bool
}

// Request bundles everything send() needs (§4.1 contract).
type Request struct {
	Model          string
	System         string
	Messages       []Message
	Tools          []ToolDefinition
	MaxTokens      int
	ReasoningLevel ReasoningLevel
}

// OnEvent is called for every stream delta, matching spec.md's on_event callback.
type OnEvent func(StreamEvent)

// Client is the streaming LLM client contract (§4.1).
type Client interface {
	Send(req Request, onEvent OnEvent) (*Reply, error)
	Name() string
	DefaultModel() string
}

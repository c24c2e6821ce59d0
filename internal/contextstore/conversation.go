// Package contextstore implements the per-conversation context store (§4.2):
// message log, token estimation, compaction preserving tool-use/tool-result
// pairing, and atomic on-disk persistence.
//
// Grounded on internal/sessions/manager.go's Save (temp-file + Sync + rename)
// and loadAll, adapted from a multi-session in-memory manager keyed by string
// to a single-conversation-per-file store matching spec.md's Conversation type.
package contextstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ferguskendall2k/devman/internal/providers"
)

// compactionThreshold is the estimated-token level at which callers should
// compact before the next LLM call (§4.2, §4.4, §8).
const compactionThreshold = 80000

// Conversation is the per-chat message log (§3 Data Model).
type Conversation struct {
	mu sync.RWMutex

	Messages        []providers.Message `json:"messages"`
	InputTokensCum  int64               `json:"input_tokens_cum"`
	OutputTokensCum int64               `json:"output_tokens_cum"`

	persistPath string
}

// New creates an empty conversation with no persistence.
func New() *Conversation {
	return &Conversation{}
}

// WithPersistence loads an existing conversation from path if it exists and
// parses; otherwise returns a fresh empty conversation bound to path for
// future Save calls. Parse failures fall back to empty (StateCorrupt
// recovery policy: lose history, keep serving).
func WithPersistence(path string) *Conversation {
	c := &Conversation{persistPath: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	var snapshot struct {
		Messages        []providers.Message `json:"messages"`
		InputTokensCum  int64               `json:"input_tokens_cum"`
		OutputTokensCum int64               `json:"output_tokens_cum"`
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return c
	}
	c.Messages = snapshot.Messages
	c.InputTokensCum = snapshot.InputTokensCum
	c.OutputTokensCum = snapshot.OutputTokensCum
	return c
}

// AddUserText appends a single-block user message.
func (c *Conversation) AddUserText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = append(c.Messages, providers.Message{
		Role:    providers.RoleUser,
		Content: []providers.ContentBlock{{Kind: providers.BlockText, Text: text}},
	})
}

// AddAssistantBlocks appends a full assistant reply (possibly including
// ToolUse blocks) as one message.
func (c *Conversation) AddAssistantBlocks(blocks []providers.ContentBlock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = append(c.Messages, providers.Message{Role: providers.RoleAssistant, Content: blocks})
}

// AddToolResult appends a user-role message carrying a single ToolResult
// block paired by tool_use_id, per spec.md §3/§4.4's ordering guarantee.
func (c *Conversation) AddToolResult(toolUseID, content string, isError bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = append(c.Messages, providers.Message{
		Role: providers.RoleUser,
		Content: []providers.ContentBlock{{
			Kind:              providers.BlockToolResult,
			ToolUseID:         toolUseID,
			ToolResultContent: content,
			ToolResultIsError: isError,
		}},
	})
}

// History returns a defensive copy of the message log.
func (c *Conversation) History() []providers.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]providers.Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// MessageCount returns the number of messages without copying the log, for
// callers that only need a length check (e.g. a pre-compaction threshold).
func (c *Conversation) MessageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Messages)
}

// AccumulateUsage adds one LLM call's usage to the cumulative token counters;
// the agent loop calls it after every call within a turn.
func (c *Conversation) AccumulateUsage(u providers.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InputTokensCum += int64(u.InputTokens)
	c.OutputTokensCum += int64(u.OutputTokens)
}

// EstimatedTokens is a design-level approximation (§4.2): the sum of
// character counts across all text-bearing blocks divided by 4, with images
// costed at a fixed ~1000. Not a billing quantity — drives compaction only.
func (c *Conversation) EstimatedTokens() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return estimateTokens(c.Messages)
}

func estimateTokens(messages []providers.Message) int {
	chars := 0
	images := 0
	for _, m := range messages {
		for _, b := range m.Content {
			switch b.Kind {
			case providers.BlockText, providers.BlockReasoning:
				chars += len(b.Text)
			case providers.BlockToolResult:
				chars += len(b.ToolResultContent)
			case providers.BlockToolUse:
				chars += len(b.ToolInput)
			case providers.BlockImage:
				images++
			}
		}
	}
	return chars/4 + images*1000
}

// ShouldCompact reports whether the conversation has crossed the proactive
// compaction threshold (§4.2, §8).
func (c *Conversation) ShouldCompact() bool {
	return c.EstimatedTokens() > compactionThreshold
}

// Save writes the whole serialized conversation to its persist path (if any)
// atomically: write to a temp file in the same directory, fsync, then
// rename over the destination. Mirrors internal/sessions/manager.go's Save.
func (c *Conversation) Save() error {
	c.mu.RLock()
	path := c.persistPath
	snapshot := struct {
		Messages        []providers.Message `json:"messages"`
		InputTokensCum  int64               `json:"input_tokens_cum"`
		OutputTokensCum int64               `json:"output_tokens_cum"`
	}{c.Messages, c.InputTokensCum, c.OutputTokensCum}
	c.mu.RUnlock()

	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "conv-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

package contextstore

import (
	"fmt"
	"strings"

	"github.com/ferguskendall2k/devman/internal/providers"
)

// Compact is the critical invariant of the context store (§4.2): it must
// never leave a dangling ToolUse whose paired ToolResult was dropped. The
// strategy is a deterministic textual summary, not an LLM-driven one — the
// richer summarization goclaw's sessions do is out of scope (improvement-
// journal/stats, §1 Non-goals).
//
// It extracts a short summary of the last keepRecent messages, discards the
// entire message list, and seeds a fresh two-message prelude: one user
// message holding the summary plus a cumulative usage header, then one
// assistant acknowledgement. No tool blocks survive.
func (c *Conversation) Compact(keepRecent int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recent := c.Messages
	if len(recent) > keepRecent {
		recent = recent[len(recent)-keepRecent:]
	}

	summary := summarize(recent, c.InputTokensCum, c.OutputTokensCum)

	c.Messages = []providers.Message{
		{Role: providers.RoleUser, Content: []providers.ContentBlock{{Kind: providers.BlockText, Text: summary}}},
		{Role: providers.RoleAssistant, Content: []providers.ContentBlock{{Kind: providers.BlockText, Text: "Understood, continuing from the summary above."}}},
	}
}

const toolResultPreviewLen = 200

func summarize(messages []providers.Message, inputCum, outputCum int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Conversation summary — cumulative usage: %d input / %d output tokens]\n", inputCum, outputCum)
	for _, m := range messages {
		role := strings.ToUpper(string(m.Role))
		for _, block := range m.Content {
			switch block.Kind {
			case providers.BlockText, providers.BlockReasoning:
				if block.Text == "" {
					continue
				}
				fmt.Fprintf(&b, "%s: %s\n", role, block.Text)
			case providers.BlockToolUse:
				fmt.Fprintf(&b, "%s: [used tool: %s]\n", role, block.ToolName)
			case providers.BlockToolResult:
				preview := block.ToolResultContent
				if len(preview) > toolResultPreviewLen {
					preview = preview[:toolResultPreviewLen] + "..."
				}
				fmt.Fprintf(&b, "%s: [tool result: %s]\n", role, preview)
			case providers.BlockImage:
				fmt.Fprintf(&b, "%s: [image]\n", role)
			}
		}
	}
	return b.String()
}

// contextSizeSignals are substrings in an LLM error message that trigger
// reactive compaction (§4.2, §4.4).
var contextSizeSignals = []string{"tool_use_id", "too long", "token"}

// IsContextSizeError reports whether an error message matches the reactive
// compaction signal set.
func IsContextSizeError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, sig := range contextSizeSignals {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

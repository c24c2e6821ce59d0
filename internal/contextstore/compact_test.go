package contextstore

import (
	"testing"

	"github.com/ferguskendall2k/devman/internal/providers"
)

// buildConversationWithToolPairs appends a user greeting, then 3 interleaved
// (ToolUse, ToolResult) pairs each wrapped in their own assistant-text turn,
// for a total of 20 messages.
func buildConversationWithToolPairs() *Conversation {
	c := New()
	c.AddUserText("start")
	for i := 0; i < 3; i++ {
		c.AddAssistantBlocks([]providers.ContentBlock{{Kind: providers.BlockText, Text: "small talk"}})
		c.AddUserText("go on")
		c.AddAssistantBlocks([]providers.ContentBlock{
			{Kind: providers.BlockText, Text: "thinking"},
			{Kind: providers.BlockToolUse, ToolUseID: "tu-1", ToolName: "shell"},
		})
		c.AddToolResult("tu-1", "ok", false)
		c.AddAssistantBlocks([]providers.ContentBlock{{Kind: providers.BlockText, Text: "done with step"}})
		c.AddUserText("continue")
	}
	c.AddUserText("one more")
	return c
}

// TestCompactYieldsTwoMessagePreludeWithNoToolBlocks is the scenario-3 case
// (spec.md §8): a 20-message conversation with three interleaved tool-use/
// tool-result pairs compacts to exactly 2 seed messages with zero tool
// blocks, and a subsequent AddUserText leaves the history free of any
// orphaned tool_use/tool_result pairing.
func TestCompactYieldsTwoMessagePreludeWithNoToolBlocks(t *testing.T) {
	c := buildConversationWithToolPairs()
	if got := len(c.History()); got != 20 {
		t.Fatalf("precondition: built %d messages, want 20", got)
	}
	c.AccumulateUsage(providers.Usage{InputTokens: 1000, OutputTokens: 500})

	c.Compact(6)

	history := c.History()
	if len(history) != 2 {
		t.Fatalf("post-compact message count = %d, want 2", len(history))
	}
	for _, m := range history {
		for _, b := range m.Content {
			if b.Kind == providers.BlockToolUse || b.Kind == providers.BlockToolResult {
				t.Fatalf("found surviving tool block %v in compacted history", b.Kind)
			}
		}
	}

	c.AddUserText("next")
	final := c.History()
	if len(final) != 3 {
		t.Fatalf("final message count = %d, want 3", len(final))
	}
	for _, m := range final {
		for _, b := range m.Content {
			if b.Kind == providers.BlockToolUse || b.Kind == providers.BlockToolResult {
				t.Fatalf("found an orphaned tool block after resuming: %v", b.Kind)
			}
		}
	}
}

func TestShouldCompactCrossesThresholdOnce(t *testing.T) {
	c := New()
	if c.ShouldCompact() {
		t.Fatal("empty conversation should not need compaction")
	}

	filler := make([]byte, 20000)
	for i := range filler {
		filler[i] = 'x'
	}
	for i := 0; i < 18; i++ {
		c.AddUserText(string(filler))
	}
	if !c.ShouldCompact() {
		t.Fatal("expected threshold to be crossed")
	}

	c.Compact(2)
	if c.ShouldCompact() {
		t.Fatal("expected compaction to bring estimate back under threshold")
	}
}

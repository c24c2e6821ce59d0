// Package agent implements the turn-loop (§4.4): the iterate/dispatch/pair
// contract run_turn(user_text) → { text, usage } | ErrorKind, grounded on
// goclaw's internal/agent/loop.go iteration structure and its
// goroutine+channel tool fan-out with deterministic reordering by index,
// simplified to drop tracing spans, vision-image attachment, the injection
// guard, and bootstrap auto-cleanup (out of scope per SPEC_FULL.md §4.4).
package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ferguskendall2k/devman/internal/contextstore"
	"github.com/ferguskendall2k/devman/internal/devmanerr"
	"github.com/ferguskendall2k/devman/internal/providers"
	"github.com/ferguskendall2k/devman/internal/tools"
)

// maxTurnsReachedText is returned when a turn hits its max_turns ceiling
// (§4.4 step 3a).
const maxTurnsReachedText = "[Turn limit reached]"

// Loop owns everything one conversation needs to run a turn.
type Loop struct {
	Client    providers.Client
	Registry  *tools.Registry
	Caps      tools.Capabilities
	Model     string
	System    string
	MaxTurns  int
	MaxTokens int
	Reasoning providers.ReasoningLevel
}

// RunResult is the turn's outcome (§4.4 contract).
type RunResult struct {
	Text  string
	Usage providers.Usage
}

// Run executes run_turn(user_text) against conv, per §4.4's seven steps.
func (l *Loop) Run(ctx context.Context, conv *contextstore.Conversation, userText string, onEvent providers.OnEvent) (*RunResult, error) {
	conv.AddUserText(userText)

	turns := 0
	var totalUsage providers.Usage
	compacted := false

	for {
		turns++
		if turns > l.MaxTurns {
			conv.Save()
			return &RunResult{Text: maxTurnsReachedText, Usage: totalUsage}, nil
		}

		if conv.ShouldCompact() {
			conv.Compact(6)
		}

		req := providers.Request{
			Model:          l.Model,
			System:         l.System,
			Messages:       conv.History(),
			Tools:          toProviderTools(l.Registry.Definitions()),
			MaxTokens:      l.MaxTokens,
			ReasoningLevel: l.Reasoning,
		}

		reply, err := l.Client.Send(req, onEvent)
		if err != nil {
			if contextstore.IsContextSizeError(err.Error()) && !compacted {
				compacted = true
				conv.Compact(4)
				turns--
				continue
			}
			return nil, err
		}

		totalUsage.InputTokens += reply.Usage.InputTokens
		totalUsage.OutputTokens += reply.Usage.OutputTokens
		totalUsage.CacheCreationTokens += reply.Usage.CacheCreationTokens
		totalUsage.CacheReadTokens += reply.Usage.CacheReadTokens
		conv.AccumulateUsage(reply.Usage)

		conv.AddAssistantBlocks(reply.Content)

		toolCalls := extractToolUse(reply.Content)
		if len(toolCalls) == 0 {
			text := concatenateText(reply.Content)
			if err := conv.Save(); err != nil {
				return nil, devmanerr.Wrap(devmanerr.StateCorrupt, "persisting conversation", err)
			}
			return &RunResult{Text: text, Usage: totalUsage}, nil
		}

		l.dispatchToolCalls(ctx, conv, toolCalls)
		if err := conv.Save(); err != nil {
			return nil, devmanerr.Wrap(devmanerr.StateCorrupt, "persisting conversation", err)
		}
	}
}

// toProviderTools adapts the registry's tool definitions to the provider
// client's wire-facing type. The two are structurally identical but are
// distinct named types in different packages, so the conversion must be
// element-wise.
func toProviderTools(defs []tools.Definition) []providers.ToolDefinition {
	out := make([]providers.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = providers.ToolDefinition{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
	}
	return out
}

func extractToolUse(blocks []providers.ContentBlock) []providers.ContentBlock {
	var out []providers.ContentBlock
	for _, b := range blocks {
		if b.Kind == providers.BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

func concatenateText(blocks []providers.ContentBlock) string {
	text := ""
	for _, b := range blocks {
		if b.Kind == providers.BlockText {
			text += b.Text
		}
	}
	return text
}

// dispatchToolCalls executes every ToolUse block, in order, one result per
// call, paired by id. A single call runs inline; multiple calls run
// concurrently via goroutines and are reassembled in their original index
// order before being appended (§4.4 Ordering guarantee), grounded on
// goclaw's internal/agent/loop.go parallel-tool-execution block.
func (l *Loop) dispatchToolCalls(ctx context.Context, conv *contextstore.Conversation, calls []providers.ContentBlock) {
	if len(calls) == 1 {
		tc := calls[0]
		var args map[string]any
		_ = unmarshalArgs(tc.ToolInput, &args)
		result := l.Registry.Dispatch(ctx, l.Caps, tc.ToolName, args)
		conv.AddToolResult(tc.ToolUseID, result.ForLLM, result.IsError)
		return
	}

	type indexed struct {
		idx    int
		result *tools.Result
	}
	resultCh := make(chan indexed, len(calls))
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(idx int, tc providers.ContentBlock) {
			defer wg.Done()
			var args map[string]any
			_ = unmarshalArgs(tc.ToolInput, &args)
			result := l.Registry.Dispatch(ctx, l.Caps, tc.ToolName, args)
			resultCh <- indexed{idx: idx, result: result}
		}(i, tc)
	}
	go func() { wg.Wait(); close(resultCh) }()

	ordered := make([]*tools.Result, len(calls))
	for r := range resultCh {
		ordered[r.idx] = r.result
	}
	for i, tc := range calls {
		conv.AddToolResult(tc.ToolUseID, ordered[i].ForLLM, ordered[i].IsError)
	}
}

func unmarshalArgs(raw []byte, out *map[string]any) error {
	if len(raw) == 0 {
		*out = map[string]any{}
		return nil
	}
	return json.Unmarshal(raw, out)
}

package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ferguskendall2k/devman/internal/contextstore"
	"github.com/ferguskendall2k/devman/internal/providers"
	"github.com/ferguskendall2k/devman/internal/tools"
)

// scriptedClient replays a fixed sequence of replies, one per Send call.
type scriptedClient struct {
	replies []*providers.Reply
	errs    []error
	calls   int
}

func (c *scriptedClient) Send(req providers.Request, onEvent providers.OnEvent) (*providers.Reply, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	return c.replies[i], nil
}
func (c *scriptedClient) Name() string         { return "scripted" }
func (c *scriptedClient) DefaultModel() string { return "test-model" }

// echoTool returns its "value" argument verbatim, recording call order.
type echoTool struct {
	order *[]string
}

func (echoTool) Name() string                                  { return "echo" }
func (echoTool) Description() string                           { return "echo" }
func (echoTool) Parameters() map[string]any                    { return map[string]any{} }
func (t echoTool) Execute(ctx context.Context, caps tools.Capabilities, args map[string]any) *tools.Result {
	v, _ := args["value"].(string)
	*t.order = append(*t.order, v)
	return tools.SilentResult("echo:" + v)
}

func toolUseBlock(id, value string) providers.ContentBlock {
	input, _ := json.Marshal(map[string]string{"value": value})
	return providers.ContentBlock{Kind: providers.BlockToolUse, ToolUseID: id, ToolName: "echo", ToolInput: input}
}

func TestRunTurnNoToolsReturnsText(t *testing.T) {
	client := &scriptedClient{replies: []*providers.Reply{
		{Content: []providers.ContentBlock{{Kind: providers.BlockText, Text: "hello there"}}, Usage: providers.Usage{InputTokens: 10, OutputTokens: 5}},
	}}
	loop := &Loop{Client: client, Registry: tools.NewRegistry(), MaxTurns: 10}
	conv := contextstore.New()

	res, err := loop.Run(context.Background(), conv, "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hello there" {
		t.Errorf("text = %q, want %q", res.Text, "hello there")
	}
	if res.Usage.InputTokens != 10 || res.Usage.OutputTokens != 5 {
		t.Errorf("unexpected usage: %+v", res.Usage)
	}
}

func TestRunTurnDispatchesSingleToolAndContinues(t *testing.T) {
	var order []string
	reg := tools.NewRegistry()
	reg.Register(echoTool{order: &order})

	client := &scriptedClient{replies: []*providers.Reply{
		{Content: []providers.ContentBlock{toolUseBlock("t1", "a")}},
		{Content: []providers.ContentBlock{{Kind: providers.BlockText, Text: "done"}}},
	}}
	loop := &Loop{Client: client, Registry: reg, MaxTurns: 10}
	conv := contextstore.New()

	res, err := loop.Run(context.Background(), conv, "go", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "done" {
		t.Errorf("text = %q, want done", res.Text)
	}
	if len(order) != 1 || order[0] != "a" {
		t.Errorf("tool call order = %v", order)
	}

	history := conv.History()
	found := false
	for _, m := range history {
		for _, b := range m.Content {
			if b.Kind == providers.BlockToolResult && b.ToolUseID == "t1" {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("expected a paired ToolResult for t1 in history")
	}
}

func TestRunTurnPreservesOrderAcrossParallelTools(t *testing.T) {
	var order []string
	reg := tools.NewRegistry()
	reg.Register(echoTool{order: &order})

	calls := []providers.ContentBlock{
		toolUseBlock("t1", "first"),
		toolUseBlock("t2", "second"),
		toolUseBlock("t3", "third"),
	}
	client := &scriptedClient{replies: []*providers.Reply{
		{Content: calls},
		{Content: []providers.ContentBlock{{Kind: providers.BlockText, Text: "done"}}},
	}}
	loop := &Loop{Client: client, Registry: reg, MaxTurns: 10}
	conv := contextstore.New()

	if _, err := loop.Run(context.Background(), conv, "go", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := conv.History()
	var resultIDs []string
	for _, m := range history {
		for _, b := range m.Content {
			if b.Kind == providers.BlockToolResult {
				resultIDs = append(resultIDs, b.ToolUseID)
			}
		}
	}
	want := []string{"t1", "t2", "t3"}
	if len(resultIDs) != len(want) {
		t.Fatalf("got %v results, want %v", resultIDs, want)
	}
	for i := range want {
		if resultIDs[i] != want[i] {
			t.Errorf("result[%d] = %s, want %s (results must be appended in original call order)", i, resultIDs[i], want[i])
		}
	}
}

func TestRunTurnMaxTurnsReached(t *testing.T) {
	var order []string
	reg := tools.NewRegistry()
	reg.Register(echoTool{order: &order})

	var replies []*providers.Reply
	for i := 0; i < 5; i++ {
		replies = append(replies, &providers.Reply{Content: []providers.ContentBlock{toolUseBlock("t", "x")}})
	}
	client := &scriptedClient{replies: replies}
	loop := &Loop{Client: client, Registry: reg, MaxTurns: 2}
	conv := contextstore.New()

	res, err := loop.Run(context.Background(), conv, "go", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != maxTurnsReachedText {
		t.Errorf("text = %q, want %q", res.Text, maxTurnsReachedText)
	}
}

func TestRunTurnUnknownToolIsFoldedBackNotFatal(t *testing.T) {
	reg := tools.NewRegistry()
	client := &scriptedClient{replies: []*providers.Reply{
		{Content: []providers.ContentBlock{toolUseBlock("t1", "a")}},
		{Content: []providers.ContentBlock{{Kind: providers.BlockText, Text: "recovered"}}},
	}}
	loop := &Loop{Client: client, Registry: reg, MaxTurns: 10}
	conv := contextstore.New()

	res, err := loop.Run(context.Background(), conv, "go", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "recovered" {
		t.Errorf("text = %q", res.Text)
	}
}

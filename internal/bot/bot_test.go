package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/ferguskendall2k/devman/internal/channels"
	"github.com/ferguskendall2k/devman/internal/cost"
	"github.com/ferguskendall2k/devman/internal/cron"
	"github.com/ferguskendall2k/devman/internal/providers"
	"github.com/ferguskendall2k/devman/internal/tools"
)

// fakeFrontend is an in-memory channels.Frontend for exercising handleMessage
// without a real chat SDK.
type fakeFrontend struct {
	sent        []string
	sendErrs    []error
	typingCalls int
}

func (f *fakeFrontend) Name() string { return "fake" }
func (f *fakeFrontend) Poll(ctx context.Context, lastUpdateID int64) ([]channels.Update, error) {
	return nil, nil
}
func (f *fakeFrontend) SendMessage(ctx context.Context, chatID, text string) error {
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, text)
	return nil
}
func (f *fakeFrontend) SendTyping(ctx context.Context, chatID string) error {
	f.typingCalls++
	return nil
}

// scriptedClient returns one canned reply per Send call, matching the
// fixture shape used in internal/agent's own tests.
type scriptedClient struct {
	replies []*providers.Reply
	calls   int
}

func (c *scriptedClient) Send(req providers.Request, onEvent providers.OnEvent) (*providers.Reply, error) {
	r := c.replies[c.calls]
	c.calls++
	return r, nil
}
func (c *scriptedClient) Name() string         { return "scripted" }
func (c *scriptedClient) DefaultModel() string { return "test-model" }

func textReply(s string) *providers.Reply {
	return &providers.Reply{
		Content: []providers.ContentBlock{{Kind: providers.BlockText, Text: s}},
		Usage:   providers.Usage{InputTokens: 1, OutputTokens: 1},
	}
}

func newTestDaemon(client providers.Client) *Daemon {
	return &Daemon{
		Cron:       cron.NewScheduler("", nil),
		Cost:       cost.NewTracker("", nil),
		Registry:   tools.NewRegistry(),
		Client:     client,
		MemoryRoot: "",
	}
}

func TestHandleMessageDropsUnauthorizedUser(t *testing.T) {
	fe := &fakeFrontend{}
	inst := NewInstance("bot1", fe, t.TempDir())
	inst.AllowedUsers = map[string]bool{"42": true}
	inst.MaxTurns = 5

	d := newTestDaemon(&scriptedClient{replies: []*providers.Reply{textReply("should not be called")}})
	d.handleMessage(context.Background(), inst, channels.Update{ChatID: "c1", UserID: "999", Text: "hi"})

	if len(fe.sent) != 0 {
		t.Errorf("expected no reply for unauthorized user, got %v", fe.sent)
	}
}

func TestHandleMessageAnnotatesAttachments(t *testing.T) {
	fe := &fakeFrontend{}
	inst := NewInstance("bot1", fe, t.TempDir())
	inst.MaxTurns = 5

	var captured string
	client := &captureClient{onSend: func(req providers.Request) { captured = lastUserText(req) }, reply: textReply("ok")}
	d := newTestDaemon(client)

	d.handleMessage(context.Background(), inst, channels.Update{
		ChatID: "c1", UserID: "1", Text: "look at this",
		Attachments: []channels.Attachment{{Kind: "image", Filename: "photo.jpg"}},
	})

	if !strings.Contains(captured, "[image downloaded: photo.jpg]") {
		t.Errorf("expected attachment annotation in outgoing text, got %q", captured)
	}
}

func TestHandleMessageTruncatesLongReplyWithMarker(t *testing.T) {
	fe := &fakeFrontend{}
	inst := NewInstance("bot1", fe, t.TempDir())
	inst.MaxTurns = 5

	long := strings.Repeat("x", outgoingCharCap+500)
	d := newTestDaemon(&scriptedClient{replies: []*providers.Reply{textReply(long)}})

	d.handleMessage(context.Background(), inst, channels.Update{ChatID: "c1", UserID: "1", Text: "go long"})

	if len(fe.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(fe.sent))
	}
	if len(fe.sent[0]) != outgoingCharCap {
		t.Errorf("reply length = %d, want %d", len(fe.sent[0]), outgoingCharCap)
	}
	if !strings.HasSuffix(fe.sent[0], truncatedMarker) {
		t.Errorf("reply does not end with truncation marker: %q", fe.sent[0][len(fe.sent[0])-30:])
	}
}

func TestHandleMessageRecordsCostAndReturnsConversation(t *testing.T) {
	fe := &fakeFrontend{}
	inst := NewInstance("bot1", fe, t.TempDir())
	inst.Model = "test-model"
	inst.MaxTurns = 5

	d := newTestDaemon(&scriptedClient{replies: []*providers.Reply{textReply("hi back")}})
	d.handleMessage(context.Background(), inst, channels.Update{ChatID: "c1", UserID: "1", Text: "hi"})

	entries := d.Cost.Snapshot()
	if len(entries) != 1 || entries[0].Bot != "bot1" {
		t.Fatalf("expected one cost entry for bot1, got %+v", entries)
	}

	// The conversation must have been returned to the bot's map (not left
	// "checked out"), so a second message reuses the same history.
	inst.mu.Lock()
	_, held := inst.chatStates["c1"]
	inst.mu.Unlock()
	if !held {
		t.Errorf("expected conversation for c1 to be returned to the bot's map")
	}
}

// captureClient lets a test inspect the outgoing Request before returning a
// fixed reply.
type captureClient struct {
	onSend func(providers.Request)
	reply  *providers.Reply
}

func (c *captureClient) Send(req providers.Request, onEvent providers.OnEvent) (*providers.Reply, error) {
	if c.onSend != nil {
		c.onSend(req)
	}
	return c.reply, nil
}
func (c *captureClient) Name() string         { return "capture" }
func (c *captureClient) DefaultModel() string { return "test-model" }

func lastUserText(req providers.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != providers.RoleUser {
			continue
		}
		for _, b := range req.Messages[i].Content {
			if b.Kind == providers.BlockText {
				return b.Text
			}
		}
	}
	return ""
}

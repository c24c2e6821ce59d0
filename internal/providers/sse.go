package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ferguskendall2k/devman/internal/devmanerr"
)

// sseEvent is one parsed "event: X\ndata: Y" frame.
type sseEvent struct {
	name string
	data string
}

// inProgressBlock accumulates deltas for one content-block index while the
// stream is open (§4.1 Block reconstruction).
type inProgressBlock struct {
	kind      BlockKind
	text      string
	signature string
	toolID    string
	toolName  string
	toolJSON  strings.Builder
}

// parseSSE reads the chunked SSE body, reconstructing ordered content blocks.
// A 60s idle timeout applies between chunks and the whole call is bounded by
// ctx's deadline (the 300s total ceiling set by the caller).
func parseSSE(ctx context.Context, body io.Reader, onEvent OnEvent) (*Reply, error) {
	lines := make(chan string, 64)
	scanErr := make(chan error, 1)

	go func() {
		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			lines <- sc.Text()
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	blocks := map[int]*inProgressBlock{}
	order := []int{}
	var usage Usage
	var stopReason string

	var curEventName string
	var dataLines []string

	flush := func() (*sseEvent, bool) {
		if curEventName == "" && len(dataLines) == 0 {
			return nil, false
		}
		ev := &sseEvent{name: curEventName, data: strings.Join(dataLines, "\n")}
		curEventName = ""
		dataLines = nil
		return ev, true
	}

	timer := newIdleTimer(idleChunkTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, devmanerr.New(devmanerr.StreamTimeout, "request exceeded 300s ceiling")
		case <-timer.C:
			return nil, devmanerr.New(devmanerr.StreamTimeout, "idle timeout waiting for next chunk")
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return nil, devmanerr.Wrap(devmanerr.Transport, "reading stream", err)
				}
				return finalizeReply(blocks, order, usage, stopReason), nil
			}
			timer.Reset(idleChunkTimeout)
			line = strings.TrimSuffix(line, "\r")
			switch {
			case line == "":
				if ev, ok := flush(); ok {
					done, err := handleEvent(ev, blocks, &order, &usage, &stopReason, onEvent)
					if err != nil {
						return nil, err
					}
					if done {
						return finalizeReply(blocks, order, usage, stopReason), nil
					}
				}
			case strings.HasPrefix(line, "event:"):
				curEventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			default:
				// unrecognized line shape: ignore
			}
		}
	}
}

type idleTimerT struct {
	C     <-chan struct{}
	reset chan time.Duration
	stop  chan struct{}
}

// newIdleTimer returns a channel that fires if Reset isn't called within d.
// A plain time.Timer can't be safely reused across goroutines mid-select
// without drain races, so this wraps one behind a small control goroutine.
func newIdleTimer(d time.Duration) *idleTimerT {
	c := make(chan struct{}, 1)
	t := &idleTimerT{C: c, reset: make(chan time.Duration, 1), stop: make(chan struct{})}
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		for {
			select {
			case <-timer.C:
				select {
				case c <- struct{}{}:
				default:
				}
				return
			case nd := <-t.reset:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(nd)
			case <-t.stop:
				return
			}
		}
	}()
	return t
}

func (t *idleTimerT) Reset(d time.Duration) {
	select {
	case t.reset <- d:
	default:
	}
}

func (t *idleTimerT) Stop() {
	close(t.stop)
}

func handleEvent(ev *sseEvent, blocks map[int]*inProgressBlock, order *[]int, usage *Usage, stopReason *string, onEvent OnEvent) (done bool, err error) {
	switch ev.name {
	case "ping":
		return false, nil
	case "message_start":
		var payload struct {
			Message struct {
				Usage struct {
					InputTokens         int `json:"input_tokens"`
					CacheCreationTokens int `json:"cache_creation_input_tokens"`
					CacheReadTokens     int `json:"cache_read_input_tokens"`
				} `json:"usage"`
			} `json:"message"`
		}
		if err := json.Unmarshal([]byte(ev.data), &payload); err == nil {
			usage.InputTokens = payload.Message.Usage.InputTokens
			usage.CacheCreationTokens = payload.Message.Usage.CacheCreationTokens
			usage.CacheReadTokens = payload.Message.Usage.CacheReadTokens
		}
		return false, nil
	case "content_block_start":
		var payload struct {
			Index        int `json:"index"`
			ContentBlock struct {
				Type string `json:"type"`
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"content_block"`
		}
		if jsonErr := json.Unmarshal([]byte(ev.data), &payload); jsonErr != nil {
			return false, nil
		}
		kind := wireTypeToKind(payload.ContentBlock.Type)
		blocks[payload.Index] = &inProgressBlock{kind: kind, toolID: payload.ContentBlock.ID, toolName: payload.ContentBlock.Name}
		*order = append(*order, payload.Index)
		return false, nil
	case "content_block_delta":
		var payload struct {
			Index int `json:"index"`
			Delta struct {
				Type        string `json:"type"`
				Text        string `json:"text"`
				Thinking    string `json:"thinking"`
				PartialJSON string `json:"partial_json"`
				Signature   string `json:"signature"`
			} `json:"delta"`
		}
		if jsonErr := json.Unmarshal([]byte(ev.data), &payload); jsonErr != nil {
			return false, nil
		}
		b, ok := blocks[payload.Index]
		if !ok {
			return false, nil
		}
		switch payload.Delta.Type {
		case "text_delta":
			b.text += payload.Delta.Text
			if onEvent != nil {
				onEvent(StreamEvent{TextDelta: payload.Delta.Text})
			}
		case "thinking_delta":
			b.text += payload.Delta.Thinking
			if onEvent != nil {
				onEvent(StreamEvent{ReasoningDelta: payload.Delta.Thinking})
			}
		case "input_json_delta":
			b.toolJSON.WriteString(payload.Delta.PartialJSON)
		case "signature_delta":
			b.signature += payload.Delta.Signature
		}
		return false, nil
	case "content_block_stop":
		return false, nil
	case "message_delta":
		var payload struct {
			Delta struct {
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
			Usage struct {
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if jsonErr := json.Unmarshal([]byte(ev.data), &payload); jsonErr == nil {
			usage.OutputTokens = payload.Usage.OutputTokens
			*stopReason = mapStopReason(payload.Delta.StopReason)
		}
		return false, nil
	case "message_stop":
		return true, nil
	case "error":
		var payload struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal([]byte(ev.data), &payload)
		return false, devmanerr.New(devmanerr.ServerError, payload.Error.Message)
	default:
		// unknown event name: logged and dropped
		slog.Warn("dropping unknown SSE event", "event", ev.name)
		return false, nil
	}
}

func wireTypeToKind(t string) BlockKind {
	switch t {
	case "tool_use":
		return BlockToolUse
	case "thinking", "redacted_thinking":
		return BlockReasoning
	default:
		return BlockText
	}
}

func mapStopReason(raw string) string {
	switch raw {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

func finalizeReply(blocks map[int]*inProgressBlock, order []int, usage Usage, stopReason string) *Reply {
	content := make([]ContentBlock, 0, len(order))
	for _, idx := range order {
		b := blocks[idx]
		if b == nil {
			continue
		}
		switch b.kind {
		case BlockToolUse:
			raw := json.RawMessage(b.toolJSON.String())
			if len(raw) == 0 || !json.Valid(raw) {
				raw = json.RawMessage("{}")
			}
			content = append(content, ContentBlock{Kind: BlockToolUse, ToolUseID: b.toolID, ToolName: b.toolName, ToolInput: raw})
		case BlockReasoning:
			content = append(content, ContentBlock{Kind: BlockReasoning, Text: b.text, Signature: b.signature})
		default:
			content = append(content, ContentBlock{Kind: BlockText, Text: b.text})
		}
	}
	return &Reply{Content: content, Usage: usage, StopReason: stopReason}
}

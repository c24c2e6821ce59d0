// Package dashboard implements the observability HTTP+WS surface (§4.9):
// status/agents/bots/cost/config/logs/tasks/org/tmp JSON endpoints, a chat
// WebSocket, and a live log-streaming WebSocket, all loopback-bound by
// contract.
//
// Grounded on win30221-genesis's pkg/channels/web/web_channel.go for the
// gorilla/websocket upgrade+read/write-loop pattern (chosen over goclaw's
// coder/websocket pick since gorilla's explicit *websocket.Conn plus
// manual writer goroutine maps directly onto this package's bounded
// broadcast-channel design).
package dashboard

import (
	"strconv"
	"sync"
)

const (
	broadcastCapacity = 256
	ringBufferSize    = 500
)

// Broadcaster fans log lines out to every active /ws/logs subscriber,
// keeping the last ringBufferSize lines for late joiners. A lagged
// subscriber (one whose channel is full) is dropped a synthetic
// "[...skipped N...]" marker rather than blocked or silently starved.
type Broadcaster struct {
	mu          sync.Mutex
	ring        []string
	subscribers map[chan string]*int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan string]*int)}
}

// Publish implements internal/logging.Sink.
func (b *Broadcaster) Publish(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring = append(b.ring, line)
	if len(b.ring) > ringBufferSize {
		b.ring = b.ring[len(b.ring)-ringBufferSize:]
	}

	for ch, skipped := range b.subscribers {
		select {
		case ch <- line:
		default:
			*skipped++
		}
	}
}

// Subscribe registers a new live listener, returning the backlog (ring
// buffer snapshot) and a channel that receives subsequent lines. Lines
// dropped because the channel was full are only counted; DrainSkipped turns
// that count into a "[...skipped N...]" marker, which never enters the channel.
func (b *Broadcaster) Subscribe() (backlog []string, ch chan string, unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	backlog = make([]string, len(b.ring))
	copy(backlog, b.ring)

	ch = make(chan string, broadcastCapacity)
	skipped := new(int)
	b.subscribers[ch] = skipped

	unsubscribe = func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		b.mu.Unlock()
		close(ch)
	}
	return backlog, ch, unsubscribe
}

// DrainSkipped returns ch's current skip count as a marker line, or ""
// if nothing was skipped since the last drain. Callers should check this
// whenever a send to ch would otherwise block, per the lagged-subscriber
// contract.
func (b *Broadcaster) DrainSkipped(ch chan string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	skipped, ok := b.subscribers[ch]
	if !ok || *skipped == 0 {
		return ""
	}
	line := "[...skipped " + strconv.Itoa(*skipped) + "...]"
	*skipped = 0
	return line
}

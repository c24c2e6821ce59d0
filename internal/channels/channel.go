// Package channels defines the generic chat-frontend contract (§4.7): the
// daemon's poll tick calls a frontend's long-poll-updates RPC with its
// last_update_id and a 0-second server-wait, once per bot instance per
// tick — not the push/callback model a chat SDK's own event loop prefers.
//
// Grounded in goclaw's internal/channels/telegram/channel.go for the
// interface shape (Start/Stop, typing indicator, parseChatID), but with a
// custom poll method replacing UpdatesViaLongPolling: the latter's
// internal 30s-timeout goroutine-per-bot model conflicts with the daemon's
// own 500ms poll-tick ownership of the update cursor (§4.7).
package channels

import "context"

// Attachment is a non-text payload carried by an Update (image, voice note, ...).
type Attachment struct {
	Kind     string // "image", "audio", "document"
	Data     []byte
	Filename string
}

// Update is one inbound message, normalized across chat frontends.
type Update struct {
	UpdateID    int64
	ChatID      string
	UserID      string
	Text        string
	Attachments []Attachment
}

// Frontend is a single chat backend (Telegram, Discord, ...) that the daemon
// polls on a fixed cadence and sends replies through.
type Frontend interface {
	Name() string

	// Poll returns updates strictly newer than lastUpdateID, waiting at
	// most the frontend's own 0-second server-side timeout (§4.7).
	Poll(ctx context.Context, lastUpdateID int64) ([]Update, error)

	SendMessage(ctx context.Context, chatID, text string) error
	SendTyping(ctx context.Context, chatID string) error
}

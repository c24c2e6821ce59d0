// Package discord implements the Discord chat frontend (§4.7), adapted from
// goclaw's internal/channels/discord/discord.go. Discord's gateway is
// push/event-driven (discordgo.Session.AddHandler), which doesn't map onto
// a poll(lastUpdateID) RPC the way Telegram's GetUpdates does — so this
// frontend buffers inbound MessageCreate events into an internal queue with
// synthetic, monotonically increasing update IDs, and Poll drains whatever
// has accumulated since lastUpdateID. The gateway connection itself is
// opened once in New and run for the frontend's lifetime; Poll never blocks
// on the network.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/ferguskendall2k/devman/internal/channels"
)

// Frontend is the Discord channels.Frontend implementation.
type Frontend struct {
	session   *discordgo.Session
	botUserID string

	mu      sync.Mutex
	nextID  int64
	pending []channels.Update
}

var _ channels.Frontend = (*Frontend)(nil)

func New(token string) (*Frontend, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	f := &Frontend{session: session}
	session.AddHandler(f.handleMessage)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}
	user, err := session.User("@me")
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("fetch discord bot identity: %w", err)
	}
	f.botUserID = user.ID

	return f, nil
}

func (f *Frontend) Name() string { return "discord" }

func (f *Frontend) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == f.botUserID || m.Author.Bot {
		return
	}

	content := m.Content
	var attachments []channels.Attachment
	for _, att := range m.Attachments {
		attachments = append(attachments, channels.Attachment{Kind: "document", Filename: att.Filename, Data: []byte(att.URL)})
	}
	if content == "" && len(attachments) == 0 {
		content = "[empty message]"
	}

	f.mu.Lock()
	f.nextID++
	f.pending = append(f.pending, channels.Update{
		UpdateID:    f.nextID,
		ChatID:      m.ChannelID,
		UserID:      m.Author.ID,
		Text:        content,
		Attachments: attachments,
	})
	f.mu.Unlock()
}

// Poll returns every buffered update strictly newer than lastUpdateID. No
// network call is made here; the gateway connection delivers events in the
// background via handleMessage.
func (f *Frontend) Poll(_ context.Context, lastUpdateID int64) ([]channels.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []channels.Update
	var keep []channels.Update
	for _, u := range f.pending {
		if u.UpdateID > lastUpdateID {
			out = append(out, u)
			keep = append(keep, u)
		}
	}
	f.pending = keep
	return out, nil
}

func (f *Frontend) SendMessage(_ context.Context, chatID, text string) error {
	_, err := f.session.ChannelMessageSend(chatID, text)
	return err
}

func (f *Frontend) SendTyping(_ context.Context, chatID string) error {
	return f.session.ChannelTyping(chatID)
}

// Close shuts down the Discord gateway connection.
func (f *Frontend) Close() error {
	return f.session.Close()
}

// Package telegram implements the Telegram chat frontend (§4.7), grounded on
// goclaw's internal/channels/telegram/channel.go but driving telego's
// low-level GetUpdates/SendMessage/SendChatAction calls directly with a
// 0-second server wait, instead of telego's UpdatesViaLongPolling helper
// (whose internal 30s-timeout polling goroutine owns the update cursor
// itself — the daemon's §4.7 poll tick needs to own last_update_id).
package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/ferguskendall2k/devman/internal/channels"
)

// Frontend is the Telegram channels.Frontend implementation.
type Frontend struct {
	bot *telego.Bot
}

var _ channels.Frontend = (*Frontend)(nil)

func New(token string) (*Frontend, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Frontend{bot: bot}, nil
}

func (f *Frontend) Name() string { return "telegram" }

// Poll calls GetUpdates with a 0-second server wait (Timeout: 0) and an
// offset of lastUpdateID+1 so Telegram acks and drops everything at or
// below lastUpdateID, per §4.7's poll-tick contract.
func (f *Frontend) Poll(ctx context.Context, lastUpdateID int64) ([]channels.Update, error) {
	updates, err := f.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:  int(lastUpdateID) + 1,
		Timeout: 0,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, err
	}

	out := make([]channels.Update, 0, len(updates))
	for _, u := range updates {
		if u.Message == nil {
			continue
		}
		out = append(out, channels.Update{
			UpdateID: int64(u.UpdateID),
			ChatID:   fmt.Sprintf("%d", u.Message.Chat.ID),
			UserID:   telegramUserID(u.Message),
			Text:     u.Message.Text,
		})
	}
	return out, nil
}

func telegramUserID(msg *telego.Message) string {
	if msg.From == nil {
		return ""
	}
	return fmt.Sprintf("%d", msg.From.ID)
}

func (f *Frontend) SendMessage(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	_, err = f.bot.SendMessage(ctx, tu.Message(tu.ID(id), text))
	return err
}

func (f *Frontend) SendTyping(ctx context.Context, chatID string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	return f.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(id), telego.ChatActionTyping))
}

func parseChatID(chatIDStr string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(chatIDStr, "%d", &id)
	return id, err
}

package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func newMessageEvent(authorID, content string, bot bool) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "chan-1",
		Content:   content,
		Author:    &discordgo.User{ID: authorID, Bot: bot},
	}}
}

func TestHandleMessageBuffersAndPollDrainsByUpdateID(t *testing.T) {
	f := &Frontend{botUserID: "self-id"}

	f.handleMessage(nil, newMessageEvent("user-1", "hello", false))
	f.handleMessage(nil, newMessageEvent("user-1", "world", false))

	first, err := f.Poll(context.Background(), 0)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 buffered updates, got %d", len(first))
	}
	if first[0].UpdateID >= first[1].UpdateID {
		t.Errorf("expected strictly increasing update IDs, got %d then %d", first[0].UpdateID, first[1].UpdateID)
	}

	// Polling again from the last seen UpdateID returns nothing new.
	again, err := f.Poll(context.Background(), first[1].UpdateID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no new updates, got %v", again)
	}

	f.handleMessage(nil, newMessageEvent("user-1", "third", false))
	third, err := f.Poll(context.Background(), first[1].UpdateID)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(third) != 1 || third[0].Text != "third" {
		t.Errorf("expected exactly the new message, got %v", third)
	}
}

func TestHandleMessageIgnoresSelfAndOtherBots(t *testing.T) {
	f := &Frontend{botUserID: "self-id"}

	f.handleMessage(nil, newMessageEvent("self-id", "my own echo", false))
	f.handleMessage(nil, newMessageEvent("other-bot", "beep boop", true))

	out, err := f.Poll(context.Background(), 0)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected self/bot messages to be dropped, got %v", out)
	}
}

package botapi

import (
	"context"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"tgintel/internal/telegram"
	logx "tgintel/pkg/logx"
)

func TestMapChat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		chat *tele.Chat
		want telegram.Entity
	}{
		{
			name: "broadcast channel",
			chat: &tele.Chat{ID: -100123, Type: tele.ChatChannel, Username: "news", Title: "News"},
			want: telegram.Channel{ID: -100123, Username: "news", Title: "News", Broadcast: true},
		},
		{
			name: "supergroup",
			chat: &tele.Chat{ID: -100456, Type: tele.ChatSuperGroup, Username: "room", Title: "Room"},
			want: telegram.Channel{ID: -100456, Username: "room", Title: "Room"},
		},
		{
			name: "basic group",
			chat: &tele.Chat{ID: -789, Type: tele.ChatGroup, Title: "Old Group"},
			want: telegram.Chat{ID: -789, Title: "Old Group"},
		},
		{
			name: "private",
			chat: &tele.Chat{ID: 42, Type: tele.ChatPrivate, Username: "bob", FirstName: "Bob"},
			want: telegram.User{ID: 42, Username: "bob", FirstName: "Bob"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := mapChat(tt.chat); got != tt.want {
				t.Fatalf("mapChat = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestMapMessageCaptionFallback(t *testing.T) {
	t.Parallel()
	m := &tele.Message{ID: 7, Chat: &tele.Chat{ID: -100123}, Caption: "photo caption", Unixtime: 1700000000}
	got := mapMessage(m)
	if got.Text != "photo caption" || got.ID != 7 || got.PeerID != -100123 {
		t.Fatalf("unexpected mapping: %#v", got)
	}
}

func newTailClient() *Client {
	c := New(nil, logx.Nop())
	c.connected = true
	return c
}

func TestTailIterDeliversMatchingPosts(t *testing.T) {
	t.Parallel()

	c := newTailClient()
	ent := telegram.Channel{ID: -100123, Username: "news"}
	it, err := c.IterMessages(context.Background(), ent, telegram.HistoryOptions{Limit: 2})
	if err != nil {
		t.Fatalf("IterMessages: %v", err)
	}
	defer it.Close()

	c.fanout(telegram.Message{ID: 1, PeerID: -100123, Text: "a"})
	c.fanout(telegram.Message{ID: 2, PeerID: -100999, Text: "other peer"})
	c.fanout(telegram.Message{ID: 3, PeerID: -100123, Text: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var ids []int
	for it.Next(ctx) {
		ids = append(ids, it.Message().ID)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("ids = %v, want [1 3]", ids)
	}
}

func TestTailIterStopsOnCancel(t *testing.T) {
	t.Parallel()

	c := newTailClient()
	it, err := c.IterMessages(context.Background(), telegram.Channel{ID: 1}, telegram.HistoryOptions{})
	if err != nil {
		t.Fatalf("IterMessages: %v", err)
	}
	defer it.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if it.Next(ctx) {
		t.Fatalf("Next should return false after cancel")
	}
	// plain cancellation is a clean end of the tail, not an error
	if err := it.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
}

func TestIterMessagesRequiresConnection(t *testing.T) {
	t.Parallel()

	c := New(nil, logx.Nop())
	if _, err := c.IterMessages(context.Background(), telegram.Channel{ID: 1}, telegram.HistoryOptions{}); err != telegram.ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestTailIterCloseUnsubscribes(t *testing.T) {
	t.Parallel()

	c := newTailClient()
	it, err := c.IterMessages(context.Background(), telegram.Channel{ID: 5}, telegram.HistoryOptions{})
	if err != nil {
		t.Fatalf("IterMessages: %v", err)
	}
	it.Close()

	c.smu.Lock()
	n := len(c.subs)
	c.smu.Unlock()
	if n != 0 {
		t.Fatalf("subscribers after Close = %d, want 0", n)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if it.Next(ctx) {
		t.Fatalf("closed iterator must not yield")
	}
}

func TestLoginUnsupported(t *testing.T) {
	t.Parallel()
	c := New(nil, logx.Nop())
	if err := c.Login(context.Background(), nil); err != ErrNoUserLogin {
		t.Fatalf("err = %v, want ErrNoUserLogin", err)
	}
}

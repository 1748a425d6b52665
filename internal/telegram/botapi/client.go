// Package botapi drives Telegram through the Bot API (gopkg.in/telebot.v4).
//
// The Bot API has no user sessions and cannot read backwards through channel
// history, so this driver answers history requests with a live tail: the
// iterator yields channel posts as they arrive. Everything else (resolution,
// channel details) maps onto plain Bot API methods.
package botapi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"tgintel/internal/telegram"
	logx "tgintel/pkg/logx"
)

// ErrNoUserLogin is returned by Login: bot tokens authenticate at
// construction time and have no interactive sign-in.
var ErrNoUserLogin = errors.New("botapi: bot tokens have no interactive login")

// NewBot builds the shared telebot instance. The token is verified against
// getMe, so a returned bot is known-good.
func NewBot(token string, pollTimeout time.Duration) (*tele.Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("botapi: token is empty")
	}
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	return tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
	})
}

type Client struct {
	bot *tele.Bot
	log logx.Logger

	mu        sync.Mutex
	connected bool
	stopped   chan struct{}

	// channel-post fanout for live-tail iterators
	smu  sync.Mutex
	subs map[*tailIter]struct{}
}

var _ telegram.Client = (*Client)(nil)

func New(bot *tele.Bot, log logx.Logger) *Client {
	return &Client{bot: bot, log: log, subs: map[*tailIter]struct{}{}}
}

// RestoreSession is a no-op: the Bot API authenticates with the token alone.
func (c *Client) RestoreSession(ctx context.Context, session string) error { return nil }

// ExportSession returns an empty session for the same reason.
func (c *Client) ExportSession(ctx context.Context) (string, error) { return "", nil }

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	c.bot.Handle(tele.OnChannelPost, func(tc tele.Context) error {
		if m := tc.Message(); m != nil && m.Chat != nil {
			c.fanout(mapMessage(m))
		}
		return nil
	})

	c.stopped = make(chan struct{})
	stopped := c.stopped
	go func() {
		defer close(stopped)
		c.bot.Start()
	}()
	c.connected = true
	c.log.Info("bot api polling started", logx.String("bot", c.bot.Me.Username))
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	stopped := c.stopped
	c.mu.Unlock()

	c.bot.Stop()
	if stopped != nil {
		select {
		case <-stopped:
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			// getUpdates long-poll may still be in flight; don't hold
			// shutdown hostage for it
		}
	}
	c.closeAllTails()
	return nil
}

// Authorized reports true whenever the bot object exists: token validity was
// already proven by getMe in NewBot.
func (c *Client) Authorized(ctx context.Context) (bool, error) {
	return c.bot != nil && c.bot.Me != nil, nil
}

func (c *Client) Login(ctx context.Context, prompt telegram.AuthPrompt) error {
	return ErrNoUserLogin
}

func (c *Client) ResolveEntity(ctx context.Context, ref string) (telegram.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		chat *tele.Chat
		err  error
	)
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		chat, err = c.bot.ChatByID(id)
	} else {
		chat, err = c.bot.ChatByUsername("@" + ref)
	}
	if err != nil {
		return nil, err
	}
	return mapChat(chat), nil
}

func (c *Client) FullChannel(ctx context.Context, ch telegram.Channel) (telegram.FullChannel, error) {
	if err := ctx.Err(); err != nil {
		return telegram.FullChannel{}, err
	}
	chat, err := c.bot.ChatByID(ch.ID)
	if err != nil {
		return telegram.FullChannel{}, err
	}
	count, err := c.bot.Len(chat)
	if err != nil {
		return telegram.FullChannel{}, err
	}
	full := telegram.FullChannel{
		Channel:     ch,
		About:       chat.Description,
		MemberCount: count,
	}
	if mapped, ok := mapChat(chat).(telegram.Channel); ok {
		full.Channel = mapped
	}
	return full, nil
}

// tailWindow bounds how long a live-tail iterator collects posts. Without
// it a quiet channel would block callers that iterate to their limit.
const tailWindow = 30 * time.Second

// IterMessages returns a live tail of posts in the given peer. OffsetID is
// ignored: the Bot API only delivers new updates. The tail ends when the
// limit is reached or the collection window closes, whichever comes first.
func (c *Client) IterMessages(ctx context.Context, e telegram.Entity, opts telegram.HistoryOptions) (telegram.MessageIter, error) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return nil, telegram.ErrNotConnected
	}

	it := &tailIter{
		client:   c,
		peerID:   e.PeerID(),
		limit:    opts.Limit,
		deadline: time.Now().Add(tailWindow),
		ch:       make(chan telegram.Message, 64),
	}
	c.smu.Lock()
	c.subs[it] = struct{}{}
	c.smu.Unlock()
	return it, nil
}

func (c *Client) fanout(m telegram.Message) {
	c.smu.Lock()
	defer c.smu.Unlock()
	for it := range c.subs {
		if it.peerID != 0 && it.peerID != m.PeerID {
			continue
		}
		select {
		case it.ch <- m:
		default:
			// slow consumer loses the post rather than stalling the poll loop
		}
	}
}

func (c *Client) closeAllTails() {
	c.smu.Lock()
	defer c.smu.Unlock()
	for it := range c.subs {
		it.markDone()
		delete(c.subs, it)
	}
}

func (c *Client) unsubscribe(it *tailIter) {
	c.smu.Lock()
	delete(c.subs, it)
	c.smu.Unlock()
}

type tailIter struct {
	client   *Client
	peerID   int64
	limit    int
	deadline time.Time
	ch       chan telegram.Message

	mu      sync.Mutex
	cur     telegram.Message
	seen    int
	done    bool
	lastErr error
}

func (it *tailIter) Next(ctx context.Context) bool {
	it.mu.Lock()
	if it.done || (it.limit > 0 && it.seen >= it.limit) {
		it.mu.Unlock()
		return false
	}
	it.mu.Unlock()

	remaining := time.Until(it.deadline)
	if remaining <= 0 {
		return false
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		it.mu.Lock()
		it.lastErr = ctx.Err()
		it.mu.Unlock()
		return false
	case <-timer.C:
		return false
	case m, ok := <-it.ch:
		it.mu.Lock()
		defer it.mu.Unlock()
		if !ok || it.done {
			return false
		}
		it.cur = m
		it.seen++
		return true
	}
}

func (it *tailIter) Message() telegram.Message {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.cur
}

func (it *tailIter) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if errors.Is(it.lastErr, context.Canceled) {
		return nil
	}
	return it.lastErr
}

func (it *tailIter) Close() {
	it.client.unsubscribe(it)
	it.markDone()
}

func (it *tailIter) markDone() {
	it.mu.Lock()
	it.done = true
	it.mu.Unlock()
}

func mapChat(chat *tele.Chat) telegram.Entity {
	switch chat.Type {
	case tele.ChatChannel:
		return telegram.Channel{ID: chat.ID, Username: chat.Username, Title: chat.Title, Broadcast: true}
	case tele.ChatSuperGroup:
		return telegram.Channel{ID: chat.ID, Username: chat.Username, Title: chat.Title}
	case tele.ChatGroup:
		return telegram.Chat{ID: chat.ID, Title: chat.Title}
	default:
		return telegram.User{
			ID:        chat.ID,
			Username:  chat.Username,
			FirstName: chat.FirstName,
			LastName:  chat.LastName,
		}
	}
}

func mapMessage(m *tele.Message) telegram.Message {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	return telegram.Message{
		ID:     m.ID,
		PeerID: m.Chat.ID,
		Date:   m.Time(),
		Text:   text,
	}
}

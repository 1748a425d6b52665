package telegram

import (
	"context"
	"time"
)

// EntityKind discriminates resolved peers.
type EntityKind string

const (
	KindUser    EntityKind = "user"
	KindChat    EntityKind = "chat"
	KindChannel EntityKind = "channel"
)

// Entity is a resolved Telegram peer.
//
// The concrete types are User, Chat and Channel; Kind() tells callers which
// one they hold without reflection.
type Entity interface {
	Kind() EntityKind
	PeerID() int64
	PeerUsername() string
}

type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Bot       bool
}

func (u User) Kind() EntityKind     { return KindUser }
func (u User) PeerID() int64        { return u.ID }
func (u User) PeerUsername() string { return u.Username }

// Chat is a basic (non-broadcast) group.
type Chat struct {
	ID    int64
	Title string
}

func (c Chat) Kind() EntityKind     { return KindChat }
func (c Chat) PeerID() int64        { return c.ID }
func (c Chat) PeerUsername() string { return "" }

// Channel is a broadcast channel or supergroup.
type Channel struct {
	ID        int64
	Username  string
	Title     string
	Broadcast bool
}

func (c Channel) Kind() EntityKind     { return KindChannel }
func (c Channel) PeerID() int64        { return c.ID }
func (c Channel) PeerUsername() string { return c.Username }

// FullChannel carries the mutable channel metadata.
// It is fetched fresh on every call (never cached: member counts and
// descriptions change).
type FullChannel struct {
	Channel     Channel
	About       string
	MemberCount int
}

// Message is a single channel/group message.
type Message struct {
	ID     int
	PeerID int64
	Date   time.Time
	Text   string
	Views  int
}

// HistoryOptions bounds a message sequence.
type HistoryOptions struct {
	// Limit stops the sequence after N messages. 0 means no bound.
	Limit int
	// OffsetID starts the sequence strictly after this message ID (driver
	// permitting; live-tail drivers ignore it).
	OffsetID int
}

// MessageIter is a lazy message sequence.
//
// Usage:
//
//	it, err := client.IterMessages(ctx, ent, opts)
//	...
//	for it.Next(ctx) {
//	    m := it.Message()
//	    ...
//	}
//	return it.Err()
type MessageIter interface {
	// Next advances the iterator. It returns false when the sequence is
	// exhausted, the context is done, or an error occurred (see Err).
	Next(ctx context.Context) bool
	Message() Message
	Err() error
	Close()
}

// AuthPrompt supplies interactive credentials when the remote account needs a
// sign-in. Implementations decide where the answers come from (terminal,
// test fixture, ...); the collector never branches on the runtime environment.
type AuthPrompt interface {
	Phone(ctx context.Context) (string, error)
	Code(ctx context.Context) (string, error)
	Password(ctx context.Context) (string, error)
}

// Client is the remote capability set the collector consumes.
//
// Implementations wrap a concrete transport (Bot API long-poll, an MTProto
// user client, a test fake). Errors are opaque to the collector except for
// the FLOOD_WAIT textual pattern (see internal/retry).
type Client interface {
	// RestoreSession hands a previously persisted session token to the
	// transport before Connect. The token is opaque to callers.
	RestoreSession(ctx context.Context, token string) error
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	// Authorized reports whether the session can make API calls.
	Authorized(ctx context.Context) (bool, error)
	// Login runs the interactive sign-in flow using prompt.
	Login(ctx context.Context, prompt AuthPrompt) error
	// ExportSession returns the opaque session token to persist.
	ExportSession(ctx context.Context) (string, error)

	// ResolveEntity resolves a normalized username to a peer.
	ResolveEntity(ctx context.Context, username string) (Entity, error)
	// FullChannel fetches full metadata for a previously resolved channel.
	FullChannel(ctx context.Context, ch Channel) (FullChannel, error)
	// IterMessages opens a lazy message sequence for the peer.
	IterMessages(ctx context.Context, e Entity, opts HistoryOptions) (MessageIter, error)
}

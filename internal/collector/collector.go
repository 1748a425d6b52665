package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"tgintel/internal/entitycache"
	"tgintel/internal/eventbus"
	"tgintel/internal/ratelimit"
	"tgintel/internal/retry"
	"tgintel/internal/storage"
	"tgintel/internal/telegram"
	logx "tgintel/pkg/logx"
)

// Rate-limit categories. Each category gets independent spacing; the global
// ceiling applies across all of them.
const (
	CategoryResolve = "resolve"
	CategoryFull    = "full"
	CategoryHistory = "history"
)

// State tracks the collector lifecycle.
type State int32

const (
	StateNotStarted State = iota
	// StateMock means credentials were absent or startup failed; the
	// process stays alive but domain operations report ErrNotConnected.
	StateMock
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateMock:
		return "mock"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Config struct {
	APIID   int
	APIHash string

	RPSGlobal  float64
	RPSResolve float64
	RPSHistory float64

	MaxRetries   int
	RetryBase    time.Duration
	MaxFloodWait time.Duration // 0 = honor floods forever (original behavior)

	CacheCapacity int
	CacheTTL      time.Duration
}

type Collector struct {
	cfg    Config
	log    logx.Logger
	client telegram.Client
	prompt telegram.AuthPrompt

	sessions SessionStore
	store    storage.Store // optional entity snapshots
	bus      *eventbus.Bus[Event]

	limiter *ratelimit.Limiter
	cache   *entitycache.Cache[telegram.Entity]

	mu    sync.Mutex
	state State
}

// Option configures optional collaborators.
type Option func(*Collector)

func WithAuthPrompt(p telegram.AuthPrompt) Option {
	return func(c *Collector) { c.prompt = p }
}

func WithSessionStore(s SessionStore) Option {
	return func(c *Collector) { c.sessions = s }
}

// WithStore enables best-effort entity snapshot persistence.
func WithStore(s storage.Store) Option {
	return func(c *Collector) { c.store = s }
}

func WithBus(b *eventbus.Bus[Event]) Option {
	return func(c *Collector) { c.bus = b }
}

// New builds a collector around client. The limiter and cache are fresh per
// instance. client may be nil; Start then enters mock mode.
func New(cfg Config, client telegram.Client, log logx.Logger, opts ...Option) *Collector {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Collector{
		cfg:     cfg,
		log:     log,
		client:  client,
		limiter: ratelimit.New(cfg.RPSGlobal),
		cache:   entitycache.New[telegram.Entity](cfg.CacheCapacity, cfg.CacheTTL),
		state:   StateNotStarted,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Collector) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start brings the collector online. Missing credentials and auth failures
// are absorbed: the process keeps running in a degraded state and domain
// operations surface ErrNotConnected instead of Start crashing the caller.
func (c *Collector) Start(ctx context.Context) error {
	if st := c.State(); st != StateNotStarted {
		c.log.Debug("start skipped", logx.String("state", st.String()))
		return nil
	}

	if c.cfg.APIID == 0 || c.cfg.APIHash == "" || c.client == nil {
		c.log.Info("telegram credentials absent; running in mock mode")
		c.setState(StateMock)
		return nil
	}

	if c.sessions != nil {
		token, ok, err := c.sessions.Load()
		if err != nil {
			c.log.Warn("session load failed; starting without a session", logx.Err(err))
		} else if ok {
			if err := c.client.RestoreSession(ctx, token); err != nil {
				c.log.Warn("session restore rejected; starting without a session", logx.Err(err))
			}
		}
	}

	if err := c.client.Connect(ctx); err != nil {
		c.log.Error("telegram connect failed; staying offline", logx.Err(err))
		return nil
	}

	authorized, err := c.client.Authorized(ctx)
	if err != nil {
		c.log.Error("authorization check failed; staying offline", logx.Err(err))
		c.disconnectQuietly(ctx)
		return nil
	}
	if !authorized {
		if c.prompt == nil {
			c.log.Warn("account needs sign-in but no auth prompt is wired; staying offline")
			c.disconnectQuietly(ctx)
			return nil
		}
		if err := c.client.Login(ctx, c.prompt); err != nil {
			c.log.Error("sign-in failed; staying offline", logx.Err(err))
			c.disconnectQuietly(ctx)
			return nil
		}
	}

	if c.sessions != nil {
		if token, err := c.client.ExportSession(ctx); err != nil {
			c.log.Warn("session export failed", logx.Err(err))
		} else if err := c.sessions.Save(token); err != nil {
			c.log.Warn("session save failed", logx.Err(err))
		}
	}

	c.setState(StateConnected)
	c.log.Info("telegram connected",
		logx.Float64("rps_global", c.cfg.RPSGlobal),
		logx.Float64("rps_resolve", c.cfg.RPSResolve),
		logx.Float64("rps_history", c.cfg.RPSHistory))
	return nil
}

// Stop disconnects best-effort. Shutdown never surfaces transport errors.
func (c *Collector) Stop(ctx context.Context) error {
	st := c.State()
	c.setState(StateStopped)
	if st == StateConnected {
		c.disconnectQuietly(ctx)
	}
	c.log.Info("collector stopped")
	return nil
}

func (c *Collector) disconnectQuietly(ctx context.Context) {
	if c.client == nil {
		return
	}
	if err := c.client.Disconnect(ctx); err != nil {
		c.log.Warn("disconnect failed", logx.Err(err))
	}
}

func (c *Collector) requireConnected() error {
	if c.State() != StateConnected {
		return telegram.ErrNotConnected
	}
	return nil
}

// Resolve maps a channel identifier ("@Foo", "t.me/Foo", "foo") to a peer.
// Hits on the normalized key skip both the limiter and the remote call.
func (c *Collector) Resolve(ctx context.Context, identifier string) (telegram.Entity, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	key := Normalize(identifier)
	if key == "" {
		return nil, errors.New("collector: empty identifier")
	}

	if e, ok := c.cache.Get(key); ok {
		c.log.Trace("resolve cache hit", logx.String("key", key))
		return e, nil
	}

	if err := c.limiter.Wait(ctx, CategoryResolve, c.cfg.RPSResolve); err != nil {
		return nil, err
	}
	e, err := retry.Do(ctx, c.retryConfig(CategoryResolve), func(ctx context.Context) (telegram.Entity, error) {
		return c.client.ResolveEntity(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, e)
	c.snapshotEntity(ctx, key, e)
	return e, nil
}

// GetFullChannel fetches mutable channel metadata. Never cached.
func (c *Collector) GetFullChannel(ctx context.Context, ch telegram.Channel) (telegram.FullChannel, error) {
	if err := c.requireConnected(); err != nil {
		return telegram.FullChannel{}, err
	}
	if err := c.limiter.Wait(ctx, CategoryFull, c.cfg.RPSResolve); err != nil {
		return telegram.FullChannel{}, err
	}
	return retry.Do(ctx, c.retryConfig(CategoryFull), func(ctx context.Context) (telegram.FullChannel, error) {
		return c.client.FullChannel(ctx, ch)
	})
}

// IterMessages opens the client's lazy message sequence after the history
// rate-limit wait. The sequence itself is NOT retry-wrapped: replaying a
// partially consumed stream would re-deliver messages, which is a different
// contract than retrying a unary call. Callers that want at-least-once
// delivery can re-open the iterator themselves.
func (c *Collector) IterMessages(ctx context.Context, e telegram.Entity, opts telegram.HistoryOptions) (telegram.MessageIter, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx, CategoryHistory, c.cfg.RPSHistory); err != nil {
		return nil, err
	}
	return c.client.IterMessages(ctx, e, opts)
}

// Publish forwards an event to the bus, if one is wired. The scanner uses
// this for scan summaries so observers see one event stream.
func (c *Collector) Publish(ev Event) {
	if c.bus == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	c.bus.Publish(ev)
}

func (c *Collector) retryConfig(category string) retry.Config {
	return retry.Config{
		MaxRetries:   c.cfg.MaxRetries,
		Base:         c.cfg.RetryBase,
		MaxFloodWait: c.cfg.MaxFloodWait,
		OnRetry: func(err error, attempt int, backoff time.Duration) {
			c.log.Warn("remote call retry scheduled",
				logx.String("category", category),
				logx.Int("attempt", attempt),
				logx.Duration("backoff", backoff),
				logx.Err(err))
			c.Publish(Event{Kind: EventRetry, Category: category, Attempt: attempt, Backoff: backoff, Err: err.Error()})
		},
		OnFloodWait: func(seconds int) {
			c.log.Warn("server flood wait",
				logx.String("category", category),
				logx.Int("seconds", seconds))
			c.Publish(Event{Kind: EventFloodWait, Category: category, Seconds: seconds})
		},
	}
}

func (c *Collector) snapshotEntity(ctx context.Context, key string, e telegram.Entity) {
	if c.store == nil {
		return
	}
	rec := storage.EntityRecord{
		Key:        key,
		Kind:       string(e.Kind()),
		ID:         e.PeerID(),
		Username:   e.PeerUsername(),
		ResolvedAt: time.Now(),
	}
	if ch, ok := e.(telegram.Channel); ok {
		rec.Title = ch.Title
	}
	if chat, ok := e.(telegram.Chat); ok {
		rec.Title = chat.Title
	}
	if err := c.store.PutEntity(ctx, rec); err != nil {
		c.log.Debug("entity snapshot failed", logx.String("key", key), logx.Err(err))
	}
}

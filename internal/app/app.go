// Package app wires the process together: config, logging, storage, the
// Telegram client, the collector, and the services that feed off it.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"tgintel/internal/collector"
	"tgintel/internal/config"
	"tgintel/internal/eventbus"
	"tgintel/internal/notify"
	"tgintel/internal/scanner"
	"tgintel/internal/storage"
	"tgintel/internal/telegram"
	"tgintel/internal/telegram/botapi"
	logx "tgintel/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	bus   *eventbus.Bus[collector.Event]
	store storage.Store

	bot *tele.Bot
	col *collector.Collector

	scan  *scanner.Service
	notif *notify.Service

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm: cfgm,
		log:  log,
		logs: logSvc,
		bus:  eventbus.New[collector.Event](),
	}

	if cfg.Storage != nil {
		st, err := a.openStorage(cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.store = st
	}

	// Keep the interface nil when no driver was built; a typed nil would
	// defeat the collector's mock-mode check.
	var client telegram.Client
	if bc := a.buildClient(cfg); bc != nil {
		client = bc
	}

	colCfg, err := mapCollectorConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts := []collector.Option{collector.WithBus(a.bus)}
	if a.store != nil {
		opts = append(opts, collector.WithStore(a.store))
	}
	if p := strings.TrimSpace(cfg.Telegram.SessionPath); p != "" {
		opts = append(opts, collector.WithSessionStore(collector.NewFileSessionStore(p)))
	}
	a.col = collector.New(colCfg, client, log.With(logx.String("comp", "collector")), opts...)

	if cfg.Scanner != nil && cfg.Scanner.Enabled {
		a.scan = scanner.New(scanner.Config{
			Schedule:     cfg.Scanner.Schedule,
			Channels:     cfg.Scanner.Channels,
			HistoryLimit: cfg.Scanner.HistoryLimit,
		}, a.col, a.store, log.With(logx.String("comp", "scanner")))
	}

	if cfg.Notify != nil && cfg.Notify.Enabled && a.bot != nil {
		sender := notify.NewTelebotSender(a.bot, cfg.Notify.ChatID, cfg.Notify.ThreadID)
		a.notif = notify.New(notify.Config{
			Enabled:    true,
			RatePerSec: cfg.Notify.RatePerSec,
		}, sender, log.With(logx.String("comp", "notify")))
		log.Info("notifier wired",
			logx.Int64("chat_id", cfg.Notify.ChatID),
			logx.Bool("threaded", cfg.Notify.ThreadID != 0))
	}

	return a, nil
}

// buildClient constructs the Bot API client when a token is configured.
// Construction failures degrade to mock mode instead of aborting startup.
func (a *App) buildClient(cfg *config.Config) *botapi.Client {
	token := strings.TrimSpace(cfg.Telegram.BotToken)
	if token == "" {
		return nil
	}
	pollTimeout, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	bot, err := botapi.NewBot(token, pollTimeout)
	if err != nil {
		a.log.Error("bot api init failed; continuing without telegram", logx.Err(err))
		return nil
	}
	a.bot = bot
	return botapi.New(bot, a.log.With(logx.String("comp", "botapi")))
}

func (a *App) openStorage(sc *config.StorageConfig) (storage.Store, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if st != nil {
		a.log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}
	return st, nil
}

func mapCollectorConfig(cfg *config.Config) (collector.Config, error) {
	retryBase, err := config.ParseDurationOrDefault("retry.base", cfg.Retry.Base, time.Second)
	if err != nil {
		return collector.Config{}, err
	}
	maxFlood, err := config.ParseDurationField("retry.max_flood_wait", cfg.Retry.MaxFloodWait)
	if err != nil {
		return collector.Config{}, err
	}
	ttl, err := config.ParseDurationOrDefault("cache.ttl", cfg.Cache.TTL, 0)
	if err != nil {
		return collector.Config{}, err
	}

	c := collector.Config{
		APIID:   cfg.Telegram.APIID,
		APIHash: cfg.Telegram.APIHash,

		RPSGlobal:  cfg.Rates.Global,
		RPSResolve: cfg.Rates.Resolve,
		RPSHistory: cfg.Rates.History,

		MaxRetries:   3,
		RetryBase:    retryBase,
		MaxFloodWait: maxFlood,

		CacheCapacity: cfg.Cache.Capacity,
		CacheTTL:      ttl,
	}
	if c.RPSGlobal == 0 {
		c.RPSGlobal = 10
	}
	if c.RPSResolve == 0 {
		c.RPSResolve = 1
	}
	if c.RPSHistory == 0 {
		c.RPSHistory = 2
	}
	// An explicit max_retries of 0 is a real setting (fail fast on the first
	// non-flood error), so only the omitted field takes the default above.
	if cfg.Retry.MaxRetries != nil {
		c.MaxRetries = *cfg.Retry.MaxRetries
	}
	return c, nil
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetValidator(func(ctx context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})
	a.goNamed("config.watch", func() {
		_ = a.cfgm.Watch(runCtx)
	})
	a.goNamed("config.apply", func() {
		a.applyConfigUpdates(runCtx)
	})

	if err := a.col.Start(runCtx); err != nil {
		// Start absorbs transport failures; an error here is a programming
		// problem worth surfacing.
		return err
	}
	a.log.Info("collector state", logx.String("state", a.col.State().String()))

	if a.notif != nil {
		a.notif.Start(runCtx)
		events, unsub := a.bus.Subscribe(64)
		a.goNamed("notify.observe", func() {
			defer unsub()
			a.notif.Observe(runCtx, events)
		})
	}

	if a.store != nil {
		events, unsub := a.bus.Subscribe(64)
		a.goNamed("storage.audit", func() {
			defer unsub()
			a.auditLoop(runCtx, events)
		})
	}

	if a.scan != nil {
		if err := a.scan.Start(runCtx); err != nil {
			return err
		}
	}

	a.log.Info("started")
	return nil
}

// Stop shuts down in reverse dependency order. Transport errors are logged,
// not returned.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	started := a.started
	a.started = false
	a.mu.Unlock()
	if !started {
		return nil
	}

	if a.scan != nil {
		a.scan.Stop()
	}
	if a.notif != nil {
		a.notif.Stop(ctx)
	}
	_ = a.col.Stop(ctx)

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

// Collector exposes the domain surface for embedding callers.
func (a *App) Collector() *collector.Collector { return a.col }

// goNamed runs fn in a goroutine with panic containment. A panicking
// background loop must not take the process down.
func (a *App) goNamed(name string, fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("background loop panicked",
					logx.String("loop", name),
					logx.Any("panic", r))
			}
		}()
		fn()
	}()
}

// applyConfigUpdates reacts to live config edits. Only logging settings are
// hot-applied; rate, retry and cache changes require a restart because the
// collector owns those at construction time.
func (a *App) applyConfigUpdates(ctx context.Context) {
	updates := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(updates)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

// auditLoop persists flood events so limits can be tuned from real data.
func (a *App) auditLoop(ctx context.Context, events <-chan collector.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != collector.EventFloodWait {
				continue
			}
			err := a.store.AppendFlood(ctx, storage.FloodEvent{
				At:       ev.Time,
				Category: ev.Category,
				Seconds:  ev.Seconds,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("flood audit write failed", logx.Err(err))
			}
		}
	}
}

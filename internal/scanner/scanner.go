// Package scanner refreshes a configured set of channels on a schedule.
//
// Each tick resolves every configured reference, pulls channel details and a
// bounded slice of recent messages, then records the outcome. All Telegram
// traffic goes through the collector so its rate limits and retries apply.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tgintel/internal/collector"
	"tgintel/internal/storage"
	"tgintel/internal/telegram"
	logx "tgintel/pkg/logx"
)

const defaultHistoryLimit = 50

// Source is the slice of the collector the scanner needs.
type Source interface {
	Resolve(ctx context.Context, identifier string) (telegram.Entity, error)
	GetFullChannel(ctx context.Context, ch telegram.Channel) (telegram.FullChannel, error)
	IterMessages(ctx context.Context, e telegram.Entity, opts telegram.HistoryOptions) (telegram.MessageIter, error)
	Publish(ev collector.Event)
}

type Config struct {
	Schedule     string
	Channels     []string
	HistoryLimit int
}

type Service struct {
	cfg   Config
	src   Source
	store storage.Store
	log   logx.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

func New(cfg Config, src Source, store storage.Store, log logx.Logger) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &Service{cfg: cfg, src: src, store: store, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	sched, err := ParseSchedule(s.cfg.Schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return nil
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	// The loop must see the channels created under this lock; Stop nils the
	// fields, so the goroutine never reads them from the struct.
	go s.loop(ctx, sched, s.stopCh, s.done)
	s.log.Info("scanner started",
		logx.String("schedule", s.cfg.Schedule),
		logx.Int("channels", len(s.cfg.Channels)))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	stopCh, done := s.stopCh, s.done
	s.stopCh, s.done = nil, nil
	s.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

func (s *Service) loop(ctx context.Context, sched cron.Schedule, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		next := NextAfter(sched, time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
		s.RunOnce(ctx)
	}
}

// RunOnce scans every configured channel sequentially. Failures on one
// target never abort the sweep.
func (s *Service) RunOnce(ctx context.Context) {
	for _, ref := range s.cfg.Channels {
		if ctx.Err() != nil {
			return
		}
		s.scanOne(ctx, ref)
	}
}

func (s *Service) scanOne(ctx context.Context, ref string) {
	started := time.Now()

	count, err := s.collect(ctx, ref)
	took := time.Since(started)

	rec := storage.ScanRecord{
		At:       started,
		Target:   ref,
		Messages: count,
		TookMS:   took.Milliseconds(),
	}
	ev := collector.Event{
		Kind:     collector.EventScan,
		Time:     started,
		Target:   ref,
		Messages: count,
	}
	if err != nil {
		rec.Error = err.Error()
		ev.Err = err.Error()
		s.log.Warn("scan failed",
			logx.String("target", ref),
			logx.Duration("took", took),
			logx.Err(err))
	} else {
		s.log.Info("scan complete",
			logx.String("target", ref),
			logx.Int("messages", count),
			logx.Duration("took", took))
	}

	if s.store != nil {
		if serr := s.store.RecordScan(ctx, rec); serr != nil {
			s.log.Warn("scan record write failed", logx.String("target", ref), logx.Err(serr))
		}
	}
	s.src.Publish(ev)
}

func (s *Service) collect(ctx context.Context, ref string) (int, error) {
	entity, err := s.src.Resolve(ctx, ref)
	if err != nil {
		return 0, err
	}

	if ch, ok := entity.(telegram.Channel); ok {
		if _, err := s.src.GetFullChannel(ctx, ch); err != nil {
			return 0, err
		}
	}

	iter, err := s.src.IterMessages(ctx, entity, telegram.HistoryOptions{Limit: s.cfg.HistoryLimit})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	for iter.Next(ctx) {
		count++
	}
	return count, iter.Err()
}

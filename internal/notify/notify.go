// Package notify pushes operational alerts (flood waits, retry storms, scan
// results) to an operator chat. Delivery is best-effort: a full queue drops
// the alert rather than slowing the collector down.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tgintel/internal/collector"
	logx "tgintel/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notify disabled")
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify stopped")
)

// Sender delivers one rendered alert. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, text string) error
}

type Config struct {
	Enabled    bool
	RatePerSec int
	QueueSize  int
}

// Service is an async alert pipeline: bounded queue, one worker, token
// bucket in front of the sender.
type Service struct {
	mu sync.Mutex

	cfg     Config
	sender  Sender
	log     logx.Logger
	limiter *rate.Limiter

	accepting bool
	queue     chan string
	done      chan struct{}
	cancel    context.CancelFunc
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	return &Service{
		cfg:    cfg,
		sender: sender,
		log:    log,
		// burst = rate per sec so short spikes don't block too hard
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil || !s.cfg.Enabled || s.sender == nil {
		return
	}

	wctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.queue = make(chan string, s.cfg.QueueSize)
	s.done = make(chan struct{})
	s.accepting = true

	go s.workerLoop(wctx, s.queue, s.done)
}

// Stop blocks intake and drains the queue until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, done, cancel := s.queue, s.done, s.cancel
	s.queue, s.done, s.cancel = nil, nil, nil
	s.accepting = false
	s.mu.Unlock()

	if q == nil {
		return
	}
	close(q)
	select {
	case <-done:
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}
}

// Notify enqueues one alert. It never blocks.
func (s *Service) Notify(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		return ErrStopped
	}
	select {
	case s.queue <- text:
		return nil
	default:
		s.log.Debug("alert dropped", logx.Int("queue_cap", cap(s.queue)))
		return ErrQueueFull
	}
}

// Observe consumes collector events until the channel closes or ctx ends.
// Run it in its own goroutine.
func (s *Service) Observe(ctx context.Context, events <-chan collector.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if text := FormatEvent(ev); text != "" {
				_ = s.Notify(text)
			}
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan string, done chan<- struct{}) {
	defer close(done)
	for text := range q {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.sender.Send(sctx, text)
		cancel()
		if err != nil {
			s.log.Warn("alert delivery failed", logx.Err(err))
		}
	}
}

// Package ratelimit spaces outgoing API calls per category and globally.
//
// Each category ("resolve", "history", ...) gets its own limiter; a shared
// global limiter enforces the aggregate ceiling regardless of category.
// Burst is fixed at 1, so two consecutive permitted calls on the same
// category are always at least 1/rps apart. rate.Limiter queues waiters
// FIFO internally, which keeps the read-delay-sleep-update sequence atomic
// per category even under concurrent callers.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

type Limiter struct {
	mu     sync.Mutex
	global *rate.Limiter
	cats   map[string]*rate.Limiter
}

// New creates a limiter with the given aggregate requests-per-second ceiling.
// globalRPS <= 0 disables the global ceiling.
func New(globalRPS float64) *Limiter {
	l := &Limiter{cats: map[string]*rate.Limiter{}}
	if globalRPS > 0 {
		l.global = rate.NewLimiter(rate.Limit(globalRPS), 1)
	}
	return l
}

// Wait blocks until a call in the given category may proceed, honoring both
// the per-category rps and the global ceiling. rps <= 0 disables the
// per-category limit for this call. The only error is ctx cancellation.
func (l *Limiter) Wait(ctx context.Context, category string, rps float64) error {
	cat := l.category(category, rps)
	if cat != nil {
		if err := cat.Wait(ctx); err != nil {
			return err
		}
	}
	if l.global != nil {
		if err := l.global.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (l *Limiter) category(name string, rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lim := l.cats[name]
	if lim == nil {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
		l.cats[name] = lim
		return lim
	}
	// Config reloads may retune a category.
	if lim.Limit() != rate.Limit(rps) {
		lim.SetLimit(rate.Limit(rps))
	}
	return lim
}

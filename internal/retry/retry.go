// Package retry executes remote calls with bounded exponential backoff and
// unconditional handling of server-mandated FLOOD_WAIT cooldowns.
//
// Telegram embeds throttle directives in error text as FLOOD_WAIT_<seconds>.
// Those are not failures in the usual sense: the server names the exact wait
// and expects the caller to honor it, so the flood path neither counts
// against MaxRetries nor has a retry ceiling of its own. MaxFloodWait caps
// the cumulative flood sleep as a safety valve for servers that keep
// flooding forever.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"time"
)

// ErrFloodBudget wraps the underlying flood error once the cumulative
// server-mandated wait exceeds Config.MaxFloodWait.
var ErrFloodBudget = errors.New("retry: flood wait budget exhausted")

const (
	backoffFactor = 1.6
	backoffCap    = 15 * time.Second
	jitterRange   = 250 * time.Millisecond
)

var floodRe = regexp.MustCompile(`(?i)FLOOD_WAIT_(\d+)`)

// FloodWait extracts the server-mandated cooldown from an error, matching the
// FLOOD_WAIT_<seconds> pattern case-insensitively anywhere in the message.
func FloodWait(err error) (seconds int, ok bool) {
	if err == nil {
		return 0, false
	}
	m := floodRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0, false
	}
	return n, true
}

type Config struct {
	// MaxRetries bounds non-flood retries. 0 means any non-flood failure is
	// immediately terminal.
	MaxRetries int
	// Base is the first backoff step (subsequent steps grow by 1.6x, capped
	// at 15s, plus up to 250ms of jitter).
	Base time.Duration
	// MaxFloodWait caps cumulative flood-mandated sleep. 0 means unbounded.
	MaxFloodWait time.Duration

	// OnRetry observes scheduled non-flood retries.
	OnRetry func(err error, attempt int, backoff time.Duration)
	// OnFloodWait observes server cooldown directives.
	OnFloodWait func(seconds int)
}

// Do runs fn until it succeeds, retries are exhausted, or ctx is done.
//
// Flood-wait failures sleep (seconds+1)s and retry without incrementing the
// attempt counter. Other failures back off exponentially and surface the
// original error once attempt exceeds cfg.MaxRetries.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.Base <= 0 {
		cfg.Base = 500 * time.Millisecond
	}

	attempt := 0
	var floodSlept time.Duration
	for {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		if secs, ok := FloodWait(err); ok {
			wait := time.Duration(secs+1) * time.Second
			if cfg.MaxFloodWait > 0 && floodSlept+wait > cfg.MaxFloodWait {
				return zero, fmt.Errorf("%w after %v: %w", ErrFloodBudget, floodSlept, err)
			}
			if cfg.OnFloodWait != nil {
				cfg.OnFloodWait(secs)
			}
			if serr := sleep(ctx, wait); serr != nil {
				return zero, serr
			}
			floodSlept += wait
			continue
		}

		attempt++
		if attempt > cfg.MaxRetries {
			return zero, err
		}

		backoff := time.Duration(float64(cfg.Base) * math.Pow(backoffFactor, float64(attempt-1)))
		backoff += time.Duration(rand.Int63n(int64(jitterRange)))
		if backoff > backoffCap {
			backoff = backoffCap
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(err, attempt, backoff)
		}
		if serr := sleep(ctx, backoff); serr != nil {
			return zero, serr
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}

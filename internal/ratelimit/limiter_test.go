package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitSpacesCategoryCalls(t *testing.T) {
	t.Parallel()
	l := New(0)
	ctx := context.Background()

	const rps = 100.0 // 10ms min interval
	const calls = 8

	stamps := make([]time.Time, 0, calls)
	for i := 0; i < calls; i++ {
		if err := l.Wait(ctx, "resolve", rps); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		stamps = append(stamps, time.Now())
	}

	// Allow a little scheduler jitter below the theoretical 10ms.
	const minGap = 8 * time.Millisecond
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < minGap {
			t.Fatalf("calls %d and %d only %v apart, want >= %v", i-1, i, gap, minGap)
		}
	}
}

func TestWaitGlobalCeilingDominates(t *testing.T) {
	t.Parallel()
	l := New(50) // 20ms min interval across all categories
	ctx := context.Background()

	var prev time.Time
	for i := 0; i < 5; i++ {
		cat := "a"
		if i%2 == 1 {
			cat = "b"
		}
		if err := l.Wait(ctx, cat, 1000); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		now := time.Now()
		if !prev.IsZero() {
			if gap := now.Sub(prev); gap < 17*time.Millisecond {
				t.Fatalf("global spacing violated: %v", gap)
			}
		}
		prev = now
	}
}

func TestWaitZeroRatesNeverBlock(t *testing.T) {
	t.Parallel()
	l := New(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background(), "anything", 0); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if el := time.Since(start); el > 100*time.Millisecond {
		t.Fatalf("unlimited waits took %v", el)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	t.Parallel()
	l := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	// Exhaust the single burst token, then the next wait must block ~1s
	// and get cut short by the deadline.
	if err := l.Wait(ctx, "slow", 1); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	if err := l.Wait(ctx, "slow", 1); err == nil {
		t.Fatal("expected cancellation error")
	}
}

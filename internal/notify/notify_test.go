package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tgintel/internal/collector"
	logx "tgintel/pkg/logx"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	block chan struct{} // when non-nil, Send waits for it
}

func (r *recordingSender) Send(ctx context.Context, text string) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.sent = append(r.sent, text)
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	svc := New(Config{Enabled: true, RatePerSec: 100}, sender, logx.Nop())
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if err := svc.Notify("hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return len(sender.all()) == 1 })
	if got := sender.all()[0]; got != "hello" {
		t.Fatalf("sent %q, want %q", got, "hello")
	}
}

func TestNotifyDisabled(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: false}, &recordingSender{}, logx.Nop())
	svc.Start(context.Background())
	if err := svc.Notify("x"); err != ErrDisabled {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestNotifyQueueFullDrops(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	sender := &recordingSender{block: block}
	svc := New(Config{Enabled: true, RatePerSec: 100, QueueSize: 1}, sender, logx.Nop())
	svc.Start(context.Background())
	defer func() {
		close(block)
		svc.Stop(context.Background())
	}()

	// The worker blocks on the first alert, so the single-slot queue
	// saturates after at most two accepted enqueues.
	var sawFull bool
	for i := 0; i < 10; i++ {
		if svc.Notify("x") == ErrQueueFull {
			sawFull = true
			break
		}
	}
	if !sawFull {
		t.Fatalf("expected ErrQueueFull once the queue saturated")
	}
}

func TestStopDrainsQueue(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	svc := New(Config{Enabled: true, RatePerSec: 1000}, sender, logx.Nop())
	svc.Start(context.Background())

	for i := 0; i < 5; i++ {
		if err := svc.Notify("msg"); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	svc.Stop(context.Background())

	if got := len(sender.all()); got != 5 {
		t.Fatalf("delivered %d alerts, want 5", got)
	}
	if err := svc.Notify("late"); err != ErrStopped {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestObserveFormatsEvents(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	svc := New(Config{Enabled: true, RatePerSec: 100}, sender, logx.Nop())
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	events := make(chan collector.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Observe(ctx, events)

	events <- collector.Event{Kind: collector.EventFloodWait, Category: "resolve", Seconds: 17}
	events <- collector.Event{Kind: collector.EventScan, Target: "alpha", Messages: 12}
	close(events)

	waitFor(t, func() bool { return len(sender.all()) == 2 })
	all := sender.all()
	if !strings.Contains(all[0], "17") || !strings.Contains(all[0], "resolve") {
		t.Fatalf("flood alert malformed: %q", all[0])
	}
	if !strings.Contains(all[1], "alpha") || !strings.Contains(all[1], "12") {
		t.Fatalf("scan alert malformed: %q", all[1])
	}
}

func TestFormatEventUnknownKindEmpty(t *testing.T) {
	t.Parallel()
	if got := FormatEvent(collector.Event{Kind: "mystery"}); got != "" {
		t.Fatalf("FormatEvent = %q, want empty", got)
	}
}

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tgintel/internal/collector"
	"tgintel/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestAppStartsInMockModeWithoutToken(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, `
telegram:
  api_id: 0
  api_hash: ""
  session_path: ""
logging:
  level: "error"
  console: false
  file:
    enabled: false
    path: ""
`)

	a, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := a.Collector().State(); got != collector.StateMock {
		t.Fatalf("collector state = %v, want mock", got)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stop is idempotent.
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestNewRejectsBrokenConfig(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, `
telegram:
  api_id: 1
unknown_knob: true
logging:
  level: "info"
  console: true
`)
	if _, err := New(p); err == nil {
		t.Fatalf("expected strict decode failure")
	}
}

func TestMapCollectorConfigDefaults(t *testing.T) {
	t.Parallel()

	got, err := mapCollectorConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapCollectorConfig: %v", err)
	}
	if got.RPSGlobal != 10 || got.RPSResolve != 1 || got.RPSHistory != 2 {
		t.Fatalf("rate defaults = %v/%v/%v, want 10/1/2", got.RPSGlobal, got.RPSResolve, got.RPSHistory)
	}
	if got.MaxRetries != 3 || got.RetryBase != time.Second {
		t.Fatalf("retry defaults = %d/%v, want 3/1s", got.MaxRetries, got.RetryBase)
	}
}

func intPtr(n int) *int { return &n }

func TestMapCollectorConfigExplicitZeroRetries(t *testing.T) {
	t.Parallel()

	// An explicit 0 means fail fast on the first non-flood error; it must
	// not be upgraded to the omitted-field default.
	got, err := mapCollectorConfig(&config.Config{
		Retry: config.RetryConfig{MaxRetries: intPtr(0)},
	})
	if err != nil {
		t.Fatalf("mapCollectorConfig: %v", err)
	}
	if got.MaxRetries != 0 {
		t.Fatalf("max_retries = %d, want 0", got.MaxRetries)
	}
}

func TestMapCollectorConfigRespectsExplicitValues(t *testing.T) {
	t.Parallel()

	got, err := mapCollectorConfig(&config.Config{
		Telegram: config.TelegramConfig{APIID: 7, APIHash: "h"},
		Rates:    config.RatesConfig{Global: 5, Resolve: 0.5, History: 1},
		Retry:    config.RetryConfig{MaxRetries: intPtr(1), Base: "250ms", MaxFloodWait: "2m"},
		Cache:    config.CacheConfig{Capacity: 10, TTL: "1h"},
	})
	if err != nil {
		t.Fatalf("mapCollectorConfig: %v", err)
	}
	if got.APIID != 7 || got.RPSResolve != 0.5 || got.MaxRetries != 1 {
		t.Fatalf("unexpected mapping: %+v", got)
	}
	if got.RetryBase != 250*time.Millisecond || got.MaxFloodWait != 2*time.Minute {
		t.Fatalf("durations = %v/%v", got.RetryBase, got.MaxFloodWait)
	}
	if got.CacheCapacity != 10 || got.CacheTTL != time.Hour {
		t.Fatalf("cache = %d/%v", got.CacheCapacity, got.CacheTTL)
	}
}

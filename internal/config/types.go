package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`

	// Rates throttles outgoing API calls (requests per second).
	Rates RatesConfig `json:"rates"`

	Retry RetryConfig `json:"retry"`
	Cache CacheConfig `json:"cache"`

	Logging LoggingConfig `json:"logging"`

	Scanner *ScannerConfig `json:"scanner,omitempty"`
	Notify  *NotifyConfig  `json:"notify,omitempty"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

// TelegramConfig carries the remote-account credentials and transport knobs.
//
// api_id/api_hash are required for connected mode; when either is missing the
// collector starts in mock mode (useful for CI and local development).
type TelegramConfig struct {
	APIID   int    `json:"api_id"`
	APIHash string `json:"api_hash"`

	// SessionPath stores the opaque session token between runs.
	SessionPath string `json:"session_path"`

	// BotToken feeds the Bot API driver and the operator notifier.
	BotToken string `json:"bot_token,omitempty"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// RatesConfig holds requests-per-second ceilings.
//
// Defaults (when fields are omitted/zero):
//   - global: 10
//   - resolve: 1
//   - history: 2
type RatesConfig struct {
	Global  float64 `json:"global,omitempty"`
	Resolve float64 `json:"resolve,omitempty"`
	History float64 `json:"history,omitempty"`
}

// RetryConfig controls the retry executor.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// max_flood_wait caps the cumulative server-mandated cooldown honored per
// call; "0s" (the default) honors floods forever.
//
// max_retries is a pointer so an explicit 0 (fail fast on the first
// non-flood error) is distinguishable from the field being omitted
// (default 3).
type RetryConfig struct {
	MaxRetries   *int   `json:"max_retries,omitempty"`
	Base         string `json:"base,omitempty"`
	MaxFloodWait string `json:"max_flood_wait,omitempty"`
}

// CacheConfig bounds the entity cache.
//
// Defaults: capacity 800, ttl "6h".
type CacheConfig struct {
	Capacity int    `json:"capacity,omitempty"`
	TTL      string `json:"ttl,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ScannerConfig controls the scheduled channel refresh.
//
// Schedule accepts a cron expression ("*/15 * * * *", "cron:0 3 * * *") or a
// Go duration ("30m", "interval:1h").
type ScannerConfig struct {
	Enabled      bool     `json:"enabled"`
	Schedule     string   `json:"schedule"`
	Channels     []string `json:"channels"`
	HistoryLimit int      `json:"history_limit,omitempty"`
}

// NotifyConfig controls operator alerts sent to a Telegram chat.
type NotifyConfig struct {
	Enabled    bool  `json:"enabled"`
	ChatID     int64 `json:"chat_id"`
	ThreadID   int   `json:"thread_id,omitempty"`
	RatePerSec int   `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./tgintel.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Validate rejects configs that would misbehave at runtime.
// It is also installed as the watch-time validator, so live edits that break
// these rules never get committed or published.
func (c *Config) Validate() error {
	if c.Rates.Global < 0 || c.Rates.Resolve < 0 || c.Rates.History < 0 {
		return fmt.Errorf("rates must be >= 0")
	}
	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if _, err := ParseDurationField("retry.base", c.Retry.Base); err != nil {
		return err
	}
	if _, err := ParseDurationField("retry.max_flood_wait", c.Retry.MaxFloodWait); err != nil {
		return err
	}
	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache.capacity must be >= 0")
	}
	if _, err := ParseDurationField("cache.ttl", c.Cache.TTL); err != nil {
		return err
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if c.Scanner != nil && c.Scanner.Enabled {
		if strings.TrimSpace(c.Scanner.Schedule) == "" {
			return fmt.Errorf("scanner.schedule is required when scanner is enabled")
		}
		if len(c.Scanner.Channels) == 0 {
			return fmt.Errorf("scanner.channels must not be empty when scanner is enabled")
		}
		if c.Scanner.HistoryLimit < 0 {
			return fmt.Errorf("scanner.history_limit must be >= 0")
		}
	}
	if c.Notify != nil && c.Notify.Enabled {
		if c.Notify.ChatID == 0 {
			return fmt.Errorf("notify.chat_id is required when notify is enabled")
		}
		if strings.TrimSpace(c.Telegram.BotToken) == "" {
			return fmt.Errorf("telegram.bot_token is required when notify is enabled")
		}
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// ParseDurationField parses an optional Go duration string; empty means 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for 0.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

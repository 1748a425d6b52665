package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// EntityRecord is a snapshot of a resolved peer.
// Keep it compact and schema-stable.
type EntityRecord struct {
	Key        string    `json:"key"`
	Kind       string    `json:"kind"`
	ID         int64     `json:"id"`
	Username   string    `json:"username,omitempty"`
	Title      string    `json:"title,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// FloodEvent records a server-mandated cooldown occurrence.
type FloodEvent struct {
	At       time.Time `json:"at"`
	Category string    `json:"category"`
	Seconds  int       `json:"seconds"`
}

// ScanRecord summarizes one scheduled channel refresh.
type ScanRecord struct {
	At       time.Time `json:"at"`
	Target   string    `json:"target"`
	Messages int       `json:"messages"`
	TookMS   int64     `json:"took_ms"`
	Error    string    `json:"error,omitempty"`
}

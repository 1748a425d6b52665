// Package storage provides a minimal persistence layer for the collector.
//
// It currently supports:
//   - Resolved entity snapshots (so other tooling can inspect what the
//     collector has seen without hitting the rate-limited API)
//   - Flood-wait audit events
//   - Scan summaries from the scheduled scanner
package storage

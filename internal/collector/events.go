package collector

import "time"

type EventKind string

const (
	// EventFloodWait is published whenever the server mandates a cooldown.
	EventFloodWait EventKind = "flood_wait"
	// EventRetry is published when a transient failure schedules a retry.
	EventRetry EventKind = "retry"
	// EventScan is published by the scanner after each channel refresh.
	EventScan EventKind = "scan"
)

// Event is the operational signal fanned out to observers (notifier,
// storage audit). Fields are populated per kind; unused fields stay zero.
type Event struct {
	Kind EventKind
	Time time.Time

	// Category is the rate-limit bucket the call belonged to.
	Category string

	// Seconds is the server-mandated wait (flood_wait).
	Seconds int

	// Attempt and Backoff describe a scheduled retry (retry).
	Attempt int
	Backoff time.Duration

	// Target and Messages summarize a scan (scan).
	Target   string
	Messages int

	Err string
}

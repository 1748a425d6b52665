package notify

import (
	"fmt"

	"tgintel/internal/collector"
)

// FormatEvent renders a collector event as a short operator message.
// Unknown kinds render empty and are skipped by the observer.
func FormatEvent(ev collector.Event) string {
	switch ev.Kind {
	case collector.EventFloodWait:
		return fmt.Sprintf("⏳ flood wait %ds (%s)", ev.Seconds, ev.Category)
	case collector.EventRetry:
		return fmt.Sprintf("↻ retry #%d in %s (%s): %s", ev.Attempt, ev.Backoff, ev.Category, ev.Err)
	case collector.EventScan:
		if ev.Err != "" {
			return fmt.Sprintf("✗ scan %s failed: %s", ev.Target, ev.Err)
		}
		return fmt.Sprintf("✓ scan %s: %d messages", ev.Target, ev.Messages)
	default:
		return ""
	}
}

package scanner

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"tgintel/internal/config"
)

// specParser accepts standard 5-field cron specs plus descriptors
// (@hourly, @every 30m, ...).
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule turns a config schedule string into a cron.Schedule.
//
// Accepted forms:
//
//	30m                 fixed delay, Go duration syntax
//	interval:30m        same, explicit prefix
//	cron:*/15 * * * *   explicit cron spec
//	*/15 * * * *        bare cron spec
//	@every 1h           cron descriptor
func ParseSchedule(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("schedule is empty")
	}

	if rest, ok := strings.CutPrefix(s, "interval:"); ok {
		d, err := config.ParseDurationField("scanner.schedule", rest)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("scanner.schedule: interval must be > 0")
		}
		return cron.Every(d), nil
	}

	// A bare Go duration is unambiguous next to cron specs (no spaces) and
	// descriptors (leading @).
	if !strings.ContainsAny(s, " \t") && !strings.HasPrefix(s, "@") {
		if d, err := time.ParseDuration(s); err == nil {
			if d <= 0 {
				return nil, fmt.Errorf("scanner.schedule: interval must be > 0")
			}
			return cron.Every(d), nil
		}
	}

	if rest, ok := strings.CutPrefix(s, "cron:"); ok {
		s = strings.TrimSpace(rest)
	}

	sched, err := specParser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("scanner.schedule: %w", err)
	}
	return sched, nil
}

// NextAfter returns the next firing after t, clamped to a minimum spacing so
// a pathological spec can never spin the scan loop.
func NextAfter(sched cron.Schedule, t time.Time) time.Time {
	next := sched.Next(t)
	if min := t.Add(time.Second); next.Before(min) {
		return min
	}
	return next
}

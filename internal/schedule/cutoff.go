package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a daily cutoff boundary, e.g. 17:00.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "HH:MM" or a bare hour. Out-of-range parts are
// clamped rather than rejected, matching how operators type these in.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TimeOfDay{Hour: 17}, nil
	}

	hourPart := raw
	minutePart := ""
	if idx := strings.Index(raw, ":"); idx >= 0 {
		hourPart = raw[:idx]
		minutePart = raw[idx+1:]
	}

	hour, err := strconv.Atoi(strings.TrimSpace(hourPart))
	if err != nil {
		return TimeOfDay{Hour: 17}, fmt.Errorf("invalid cutoff time %q: %w", raw, err)
	}
	minute := 0
	if minutePart != "" {
		minute, err = strconv.Atoi(strings.TrimSpace(minutePart))
		if err != nil {
			return TimeOfDay{Hour: 17}, fmt.Errorf("invalid cutoff time %q: %w", raw, err)
		}
	}

	if hour > 23 {
		hour = 23
	}
	if minute > 59 {
		minute = 59
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

// LastCutoff returns the most recent daily cutoff at or before now:
// today's if the cutoff has already passed, otherwise yesterday's.
func LastCutoff(now time.Time, cutoff TimeOfDay, skipWeekends bool) time.Time {
	last := cutoff.on(now)
	if now.Before(last) {
		last = cutoff.on(now.AddDate(0, 0, -1))
	}
	if skipWeekends {
		last = skipWeekend(last, cutoff, -1)
	}
	return last
}

// NextCutoff returns the upcoming daily cutoff strictly describing the
// end of the current collection period.
func NextCutoff(now time.Time, cutoff TimeOfDay, skipWeekends bool) time.Time {
	next := cutoff.on(now)
	if !now.Before(next) {
		next = cutoff.on(now.AddDate(0, 0, 1))
	}
	if skipWeekends {
		next = skipWeekend(next, cutoff, 1)
	}
	return next
}

// SearchWindow bounds the inbound-message search. The start is the
// later of the last recorded check and the computed last cutoff, so no
// message is missed across restarts. The end is always now; the window
// never waits for a future cutoff.
func SearchWindow(now time.Time, lastChecked *time.Time, cutoff TimeOfDay, skipWeekends bool) (time.Time, time.Time) {
	start := LastCutoff(now, cutoff, skipWeekends)
	if lastChecked != nil && lastChecked.After(start) {
		start = *lastChecked
	}
	return start, now
}

// skipWeekend walks one day at a time in the given direction until the
// date lands on a weekday, re-anchoring the cutoff time of day on each
// step.
func skipWeekend(dt time.Time, cutoff TimeOfDay, direction int) time.Time {
	for dt.Weekday() == time.Saturday || dt.Weekday() == time.Sunday {
		dt = cutoff.on(dt.AddDate(0, 0, direction))
	}
	return dt
}

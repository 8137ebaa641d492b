package schedule

import (
	"encoding/json"
	"time"
)

// DeliveryCalendar holds one allowed/blocked flag per weekday,
// Monday first.
type DeliveryCalendar [7]bool

var weekdayNames = [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// DefaultCalendar allows weekday deliveries only.
func DefaultCalendar() DeliveryCalendar {
	return DeliveryCalendar{true, true, true, true, true, false, false}
}

// ParseCalendar decodes the stored JSON form, e.g.
// {"monday":true,...,"sunday":false}. Empty input yields the default.
func ParseCalendar(raw string) (DeliveryCalendar, error) {
	if raw == "" {
		return DefaultCalendar(), nil
	}
	var m map[string]bool
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return DefaultCalendar(), err
	}
	var cal DeliveryCalendar
	for i, name := range weekdayNames {
		cal[i] = m[name]
	}
	return cal, nil
}

func (c DeliveryCalendar) String() string {
	m := make(map[string]bool, 7)
	for i, name := range weekdayNames {
		m[name] = c[i]
	}
	blob, _ := json.Marshal(m)
	return string(blob)
}

// Allows reports whether the calendar permits delivery on the weekday
// of t.
func (c DeliveryCalendar) Allows(t time.Time) bool {
	return c[mondayIndex(t.Weekday())]
}

// NearestAllowedDay returns the first day on or after from that the
// calendar allows, searching up to seven days ahead. When no day is
// allowed at all (a degenerate calendar) it returns from unchanged with
// ok=false so the caller can surface the fallback instead of looping.
func (c DeliveryCalendar) NearestAllowedDay(from time.Time) (time.Time, bool) {
	for ahead := 0; ahead <= 7; ahead++ {
		candidate := from.AddDate(0, 0, ahead)
		if c.Allows(candidate) {
			return candidate, true
		}
	}
	return from, false
}

// EndOfMonth returns the last calendar day of t's month, keeping t's
// time of day.
func EndOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), 0, t.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// DueDate computes the payment due date: last day of the invoice month
// plus the customer's payment terms.
func DueDate(invoiceDate time.Time, paymentTermsDays int) time.Time {
	return EndOfMonth(invoiceDate).AddDate(0, 0, paymentTermsDays)
}

// mondayIndex maps time.Weekday (Sunday=0) onto the Monday-first layout
// used by the stored calendars.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

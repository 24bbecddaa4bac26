package ledger

import (
	"strings"
	"time"
)

// CycleDay is the day of month on which a billing cycle starts.
const CycleDay = 25

// CycleStart returns the start of the billing cycle containing now:
// the 25th of this month when today is on or after it, otherwise the 25th of the previous month.
func CycleStart(now time.Time) time.Time {
	y, m, d := now.Date()
	if d < CycleDay {
		m--
	}
	// time.Date normalises month 0 to December of the previous year.
	return time.Date(y, m, CycleDay, 0, 0, 0, 0, now.Location())
}

var timestampLayouts = []string{
	time.RFC3339,
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp reads the collector's free-form timestamp. Unparseable values fall back to fallback.
func ParseTimestamp(s string, loc *time.Location, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return fallback
}

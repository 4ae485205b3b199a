package classify

import (
	"fmt"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// Supported defaults for a date given without a time of day.
const (
	DefaultTimeNoon      = "12:00"
	DefaultTimeEndOfDay  = "23:59"
	defaultTimeFormat    = "15:04"
	dateOnlyLength       = len("2006-01-02")
	promptDateTimeLayout = "Monday, 2006-01-02 15:04 MST"
)

// clockTime is an hour and minute of day.
type clockTime struct {
	hour, minute int
}

func parseClockTime(s string) (clockTime, error) {
	t, err := time.Parse(defaultTimeFormat, s)
	if err != nil {
		return clockTime{}, fmt.Errorf("default time %q: want HH:MM", s)
	}
	return clockTime{hour: t.Hour(), minute: t.Minute()}, nil
}

// parseDueDate interprets a model-supplied due date. Instants with an explicit
// offset are kept as-is; zone-less values are read as wall time in loc; a bare
// date gets the default time of day. ok is false when s is not ISO-8601.
func parseDueDate(s string, loc *time.Location, def clockTime) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if len(s) == dateOnlyLength {
		d, err := time.ParseInLocation(time.DateOnly, s, loc)
		if err != nil {
			return time.Time{}, false
		}
		return time.Date(d.Year(), d.Month(), d.Day(), def.hour, def.minute, 0, 0, loc), true
	}

	parsed, err := iso8601.ParseString(s)
	if err != nil {
		return parseWallClock(s, loc)
	}
	if hasZone(s) {
		return parsed, true
	}

	y, m, d := parsed.Date()
	return time.Date(y, m, d, parsed.Hour(), parsed.Minute(), parsed.Second(), parsed.Nanosecond(), loc), true
}

// wallClockLayouts are zone-less forms models produce that strict ISO-8601
// parsing rejects.
var wallClockLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

func parseWallClock(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// hasZone reports whether the time portion of an ISO-8601 string carries a
// UTC designator or numeric offset.
func hasZone(s string) bool {
	i := strings.IndexAny(s, "Tt ")
	if i < 0 {
		return false
	}
	clock := s[i+1:]
	if strings.HasSuffix(clock, "Z") || strings.HasSuffix(clock, "z") {
		return true
	}
	return strings.ContainsAny(clock, "+-")
}

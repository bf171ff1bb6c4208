package publication

import (
	"strings"
	"time"

	// zone ids must resolve on hosts without a system zoneinfo database
	_ "time/tzdata"
)

// TimestampLayout is the wire format of every instant stored in a property record.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Layouts accepted at input boundaries before normalization. Layouts without a
// zone are read in the caller supplied time zone.
var inputLayouts = []struct {
	layout string
	zoned  bool
}{
	{TimestampLayout, true},
	{time.RFC3339Nano, true},
	{"01/02/2006 15:04:05 -0700", true},
	{"01/02/2006 15:04:05-0700", true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02T15:04", false},
	{"01/02/2006 15:04:05", false},
	{"01/02/2006 15:04", false},
}

// ParseTimestamp reads a wire-format timestamp. Any other shape is a DateParseError.
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, value)
	if err != nil {
		return time.Time{}, &DateParseError{Value: value, Err: err}
	}
	return t.UTC(), nil
}

// FormatTimestamp renders t in the wire format, in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// IsDue reports whether an instant scheduled at scheduled has been reached at now.
func IsDue(scheduled, now time.Time) bool {
	return !scheduled.After(now)
}

// IsDueValue parses a wire timestamp and reports whether it is due. A value
// that does not parse is never due.
func IsDueValue(value string, now time.Time) (bool, error) {
	t, err := ParseTimestamp(value)
	if err != nil {
		return false, err
	}
	return IsDue(t, now), nil
}

// NormalizeScheduleDate turns a schedule date received at an input boundary
// into a UTC instant truncated to milliseconds. timeZone is an IANA zone id used
// for layouts that carry no offset; empty means UTC.
func NormalizeScheduleDate(value, timeZone string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &DateParseError{Value: value}
	}

	loc := time.UTC
	if timeZone != "" {
		l, err := time.LoadLocation(timeZone)
		if err != nil {
			return time.Time{}, &DateParseError{Value: timeZone, Err: err}
		}
		loc = l
	}

	var lastErr error
	for _, in := range inputLayouts {
		var (
			t   time.Time
			err error
		)
		if in.zoned {
			t, err = time.Parse(in.layout, value)
		} else {
			t, err = time.ParseInLocation(in.layout, value, loc)
		}
		if err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
		lastErr = err
	}
	return time.Time{}, &DateParseError{Value: value, Err: lastErr}
}

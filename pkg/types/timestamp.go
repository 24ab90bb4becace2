package types

import "time"

// TimestampLayout is a fixed-width UTC layout with nanosecond precision.
// Timestamps formatted with it sort lexicographically in chronological order,
// which range queries on the remote store rely on, and parse back to the
// same instant.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp formats t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a timestamp in TimestampLayout or RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

package storage

import "time"

// timeFormat is the space-separated SQLite timestamp form used on write.
const timeFormat = "2006-01-02 15:04:05"

// formatTime renders t in UTC using the space form.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// parseTime accepts the space form and RFC 3339; other inputs yield the zero
// time rather than an error, since timestamps are advisory on read.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeFormat, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

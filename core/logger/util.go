package logger

import (
	"strings"
	"time"
)

// Status is the outcome value for a finished call: "ok" or "fail".
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return "fail"
}

// Took is the time since start, rounded with RoundMS.
func Took(start time.Time) time.Duration { return RoundMS(time.Since(start)) }

// RoundMS rounds d to whole milliseconds; negative values become zero.
func RoundMS(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// Preview joins at most limit values with ", ". cut is true when values
// were left out.
func Preview(values []string, limit int) (joined string, cut bool) {
	n := min(len(values), max(limit, 0))
	return strings.Join(values[:n], ", "), n < len(values)
}

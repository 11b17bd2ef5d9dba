package helpers

import (
	"strings"
	"time"
)

var flexibleDateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"2.1.06",
	"02/01/2006",
	"2006-01-02 15:04",
	"02.01.2006 15:04",
}

// ParseFlexibleDate tries several common date formats used in Telegram flows.
// It returns the parsed time in loc (time.Local when nil) and true on success.
func ParseFlexibleDate(input string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range flexibleDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeISODate rewrites a user supplied date into YYYY-MM-DD. Input that
// does not parse is returned trimmed with ok=false.
func NormalizeISODate(input string, loc *time.Location) (string, bool) {
	t, ok := ParseFlexibleDate(input, loc)
	if !ok {
		return strings.TrimSpace(input), false
	}
	return t.Format(time.DateOnly), true
}

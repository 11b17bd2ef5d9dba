package mensa

import (
	"slices"
	"time"
)

const isoLayout = "2006-01-02"

// SelectDate picks the day to order for. An explicit date is returned only
// when the menu offers it. Without one, the earliest day whose local noon
// (in now's location) is still ahead of now wins. Unparsable dates are
// skipped.
func SelectDate(dates []string, explicit string, now time.Time) (string, bool) {
	if explicit != "" {
		if slices.Contains(dates, explicit) {
			return explicit, true
		}
		return "", false
	}

	var (
		best   string
		bestAt time.Time
	)
	for _, d := range dates {
		day, err := time.ParseInLocation(isoLayout, d, now.Location())
		if err != nil {
			continue
		}
		noon := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, now.Location())
		if !noon.After(now) {
			continue
		}
		if best == "" || noon.Before(bestAt) {
			best, bestAt = d, noon
		}
	}
	return best, best != ""
}

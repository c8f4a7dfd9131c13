package extract

import (
	"strings"
	"time"
)

// weekdays maps spoken day names to time.Weekday for "call them Friday"
// style due dates.
var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseDueDate resolves a due-date expression relative to now. It handles
// ISO dates ("2026-09-15"), relative spans ("6 months", "2 weeks", "10 days",
// "next week"), and weekday names ("Friday" means the next occurrence).
//
// Unparseable input defaults to one month from now rather than failing; a
// follow-up with a fuzzy date is more useful than a dropped one.
func ParseDueDate(raw string, now time.Time) time.Time {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return now.AddDate(0, 1, 0)
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil && t.After(now) {
			return t
		}
	}

	switch s {
	case "today":
		return now
	case "tomorrow":
		return now.AddDate(0, 0, 1)
	}

	if wd, ok := weekdays[strings.TrimPrefix(s, "next ")]; ok {
		days := (int(wd) - int(now.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return now.AddDate(0, 0, days)
	}

	n := firstNumber(s)
	switch {
	case strings.Contains(s, "month"):
		return now.AddDate(0, n, 0)
	case strings.Contains(s, "week"):
		return now.AddDate(0, 0, 7*n)
	case strings.Contains(s, "year"):
		return now.AddDate(n, 0, 0)
	case strings.Contains(s, "day"):
		return now.AddDate(0, 0, n)
	}

	return now.AddDate(0, 1, 0)
}

// firstNumber extracts the digits from s, defaulting to 1 so that
// "next month" and "a week" resolve to a single unit.
func firstNumber(s string) int {
	n := 0
	seen := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
			seen = true
		} else if seen {
			break
		}
	}
	if !seen || n == 0 {
		return 1
	}
	return n
}

// Package timeparsing turns the time expressions accepted by CLI flags
// into concrete instants. Three forms are understood, tried in order:
// compact offsets (+6h, -1d, +2w), natural language ("yesterday",
// "next monday at 9am"), and absolute dates (2006-01-02 or RFC3339).
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// compactRe matches an optional sign, an amount, and a single unit letter.
var compactRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration resolves a compact offset against base. Units are
// h hours, d days, w weeks, m months, y years. No sign means forward, so
// "3m" and "+3m" agree; "-1d" is yesterday at the same clock time. Days
// and larger go through AddDate, which keeps wall-clock time across DST
// and carries Go's month-overflow behavior.
func ParseCompactDuration(s string, base time.Time) (time.Time, error) {
	m := compactRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}
	amount, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", m[2])
	}
	if m[1] == "-" {
		amount = -amount
	}
	switch m[3] {
	case "h":
		return base.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return base.AddDate(0, 0, amount), nil
	case "w":
		return base.AddDate(0, 0, 7*amount), nil
	case "m":
		return base.AddDate(0, amount, 0), nil
	case "y":
		return base.AddDate(amount, 0, 0), nil
	}
	return base, nil
}

// IsCompactDuration reports whether s looks like a compact offset.
func IsCompactDuration(s string) bool {
	return compactRe.MatchString(s)
}

// ParseRelativeTime resolves any accepted time expression against base.
// Compact offsets win over natural language so "+1d" never reaches the
// NLP layer, and absolute forms are the fallback: a bare date parses at
// midnight in base's location, and RFC3339 is taken as written.
func ParseRelativeTime(s string, base time.Time) (time.Time, error) {
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, base)
	}
	if t, err := ParseNaturalLanguage(s, base); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, base.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time expression %q", s)
}

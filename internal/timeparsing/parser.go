// Package timeparsing turns the grace periods operators type on the command
// line into durations.
//
// Expressions are tried in layers:
//  1. Go duration (720h, 90m)
//  2. Compact duration (30d, 2w, 3m, 1y)
//  3. Absolute timestamp (RFC3339, date-only)
//  4. Natural language (3 days ago, last monday)
//
// Layers 3 and 4 name a point in the past; the grace period is the time
// elapsed since then.
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// compactDurationRe matches [+-]?(\d+)([hdwmy]).
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration applies a compact duration to now. Units are h
// (hours), d (days), w (weeks), m (months) and y (years); no sign means
// forward in time.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}

	switch matches[3] {
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	case "m":
		return now.AddDate(0, amount, 0), nil
	default:
		return now.AddDate(amount, 0, 0), nil
	}
}

// IsCompactDuration reports whether s uses compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseNaturalLanguage resolves an English date expression relative to now.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("not a recognised time expression: %q", s)
	}
	return r.Time, nil
}

// ParseRelativeTime resolves s to a point in time, trying compact durations,
// then absolute timestamps, then natural language.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	return ParseNaturalLanguage(s, now)
}

// ParseGracePeriod parses how long completed work stays unarchived.
// Go durations win over compact ones, so "3m" is three minutes. Compact
// durations count backwards ("30d" is thirty calendar days), and expressions
// naming a moment must lie in the past.
func ParseGracePeriod(s string, now time.Time) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty grace period")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative grace period: %q", s)
		}
		return d, nil
	}

	if IsCompactDuration(s) {
		if strings.HasPrefix(s, "-") {
			return 0, fmt.Errorf("negative grace period: %q", s)
		}
		since, err := ParseCompactDuration("-"+strings.TrimPrefix(s, "+"), now)
		if err != nil {
			return 0, err
		}
		return now.Sub(since), nil
	}

	since, err := ParseRelativeTime(s, now)
	if err != nil {
		return 0, err
	}
	if since.After(now) {
		return 0, fmt.Errorf("grace period %q ends in the future", s)
	}
	return now.Sub(since), nil
}

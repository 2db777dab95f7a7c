// Package timeparsing provides layered parsing for due-date expressions.
//
// Parsing tries three layers in order:
//  1. Compact duration (+6h, -1d, +2w)
//  2. Natural language (tomorrow, next monday)
//  3. Absolute date (2025-01-15, RFC3339)
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

// compactDurationRe matches compact duration patterns: [+-]?(\d+)([hdwmy])
// Examples: +6h, -1d, +2w, 3m, 1y
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

var nlpParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

// ParseCompactDuration parses compact duration syntax relative to now.
//
// Format: [+-]?(\d+)([hdwmy])
//
// Units:
//   - h = hours
//   - d = days
//   - w = weeks
//   - m = months
//   - y = years
//
// Returns an error if input doesn't match the compact duration pattern.
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

	return applyDuration(now, amount, matches[3]), nil
}

// applyDuration applies the given amount and unit to the base time.
func applyDuration(base time.Time, amount int, unit string) time.Time {
	switch unit {
	case "h":
		return base.Add(time.Duration(amount) * time.Hour)
	case "d":
		return base.AddDate(0, 0, amount)
	case "w":
		return base.AddDate(0, 0, amount*7)
	case "m":
		return base.AddDate(0, amount, 0)
	case "y":
		return base.AddDate(amount, 0, 0)
	default:
		return base
	}
}

// IsCompactDuration returns true if the string matches compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// ParseNaturalLanguage parses expressions like "tomorrow" or "next monday"
// relative to now. Returns an error when no rule matches the full input.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	r, err := nlpParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("not a recognized date expression: %q", s)
	}
	return r.Time, nil
}

// absoluteFormats are tried in order for absolute date input.
var absoluteFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006",
	"Jan 2 2006",
	"Jan 2",
}

// ParseAbsolute parses an absolute date. Formats without a year use the
// year from now.
func ParseAbsolute(s string, now time.Time) (time.Time, error) {
	for _, layout := range absoluteFormats {
		parsed, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if parsed.Year() == 0 {
			parsed = parsed.AddDate(now.Year(), 0, 0)
		}
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("not an absolute date: %q", s)
}

// ParseRelativeTime parses any supported due-date expression, trying each
// layer in order: compact duration, natural language, absolute date.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	if parsed, err := ParseAbsolute(s, now); err == nil {
		return parsed, nil
	}
	return ParseNaturalLanguage(s, now)
}

// ParseDueDate parses a due-date expression and truncates the result to a
// calendar date at midnight UTC. Tasks are dated, not timed.
func ParseDueDate(s string, now time.Time) (time.Time, error) {
	parsed, err := ParseRelativeTime(s, now)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
}

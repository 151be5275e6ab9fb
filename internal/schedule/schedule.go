// Package schedule parses 5-field cron patterns and computes firing times for
// organization training schedules.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidPattern is returned when a pattern does not parse as five valid
// cron fields (minute 0-59, hour 0-23, day-of-month 1-31, month 1-12,
// day-of-week 0-6).
var ErrInvalidPattern = errors.New("invalid schedule pattern")

// ErrNoFireTime is returned when no firing time exists within the search
// horizon. A valid 5-field pattern always fires within a few years, so hitting
// this indicates a logic error rather than an empty schedule.
var ErrNoFireTime = errors.New("no firing time found within search horizon")

// parser accepts exactly the standard five fields. Descriptor shorthands
// (@daily, @every) are rejected: stored patterns must be plain cron.
//
// Step values are accepted in every field, including day-of-week: "a/b" means
// "from a through the field maximum in increments of b", so "0/2" in the
// day-of-week field fires Sun, Tue, Thu, Sat. The day-of-month/day-of-week OR
// rule follows convention: when both fields are restricted, a time matching
// either one fires.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Spec is a parsed, immutable cron pattern. Safe for concurrent use.
type Spec struct {
	pattern string
	sched   cron.Schedule
}

// Parse validates pattern and returns a Spec that can compute firing times.
func Parse(pattern string) (*Spec, error) {
	trimmed := strings.TrimSpace(pattern)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: pattern is empty", ErrInvalidPattern)
	}
	if fields := strings.Fields(trimmed); len(fields) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidPattern, len(fields))
	}
	sched, err := parser.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &Spec{pattern: trimmed, sched: sched}, nil
}

// Validate reports whether pattern is a valid 5-field cron expression.
func Validate(pattern string) error {
	_, err := Parse(pattern)
	return err
}

// Pattern returns the normalized pattern string.
func (s *Spec) Pattern() string { return s.pattern }

// NextFireAfter returns the earliest time strictly after from that satisfies
// the pattern.
func (s *Spec) NextFireAfter(from time.Time) (time.Time, error) {
	next := s.sched.Next(from)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: pattern %q after %s", ErrNoFireTime, s.pattern, from)
	}
	return next, nil
}

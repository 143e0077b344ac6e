// Package schedule turns a delayed-start expression into an absolute instant
// and sleeps until it.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	// ErrInPast means the expression resolved to a time that is not in the future.
	ErrInPast = errors.New("start time is in the past")
	// ErrInvalid means the expression could not be understood.
	ErrInvalid = errors.New("invalid start time")
)

var clockRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(?::(\d{2}))?\s*(am|pm)?$`)

// Parse resolves expr relative to now. Accepted forms:
//
//	+30m, in 2h, 45m           relative to now (Go durations)
//	21:30, 9pm, 9:15am         clock time today
//	2024-06-01 19:00, ...      anything dateparse understands, in now's location
//
// The result must lie after now; otherwise ErrInPast.
func Parse(expr string, now time.Time) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	t, err := parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalid, expr, err)
	}
	if !t.After(now) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInPast, t.Format(time.RFC3339))
	}
	return t, nil
}

func parse(s string, now time.Time) (time.Time, error) {
	if rel, ok := strings.CutPrefix(s, "in "); ok {
		d, err := time.ParseDuration(strings.ReplaceAll(rel, " ", ""))
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}
	if rel, ok := strings.CutPrefix(s, "+"); ok {
		d, err := time.ParseDuration(rel)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d), nil
	}
	if m := clockRe.FindStringSubmatch(s); m != nil {
		return clockToday(m, now)
	}
	return dateparse.ParseIn(s, now.Location())
}

func clockToday(m []string, now time.Time) (time.Time, error) {
	h, _ := strconv.Atoi(m[1])
	var min, sec int
	if m[2] != "" {
		min, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}
	switch m[4] {
	case "am":
		if h < 1 || h > 12 {
			return time.Time{}, fmt.Errorf("hour %d out of range", h)
		}
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 1 || h > 12 {
			return time.Time{}, fmt.Errorf("hour %d out of range", h)
		}
		if h != 12 {
			h += 12
		}
	default:
		if m[2] == "" {
			// A bare number is not a clock time.
			return time.Time{}, fmt.Errorf("ambiguous %q", m[0])
		}
	}
	if h > 23 || min > 59 || sec > 59 {
		return time.Time{}, fmt.Errorf("clock %q out of range", m[0])
	}
	y, mo, d := now.Date()
	return time.Date(y, mo, d, h, min, sec, 0, now.Location()), nil
}

// SleepUntil blocks until t or until ctx is done.
func SleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// Package scheduler implements the time-driven job table firing internal
// tasks at fixed cadences (spec.md §4.7). No cron library is present in
// any complete repo in the retrieval pack, so cadences are a small
// hand-parsed DSL over time.Ticker — the one deliberately stdlib-only
// piece of the domain stack.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cadence computes the next fire time strictly after `after`.
type Cadence interface {
	Next(after time.Time) time.Time
}

// Every fires every Interval, with no phase alignment to a wall-clock
// boundary.
type Every struct {
	Interval time.Duration
}

func (e Every) Next(after time.Time) time.Time {
	return after.Add(e.Interval)
}

// Daily fires once per day at Hour:Minute.
type Daily struct {
	Hour, Minute int
}

func (d Daily) Next(after time.Time) time.Time {
	candidate := time.Date(after.Year(), after.Month(), after.Day(), d.Hour, d.Minute, 0, 0, after.Location())
	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// Weekly fires once per week on Weekday at Hour:Minute.
type Weekly struct {
	Weekday      time.Weekday
	Hour, Minute int
}

func (w Weekly) Next(after time.Time) time.Time {
	candidate := time.Date(after.Year(), after.Month(), after.Day(), w.Hour, w.Minute, 0, 0, after.Location())
	for candidate.Weekday() != w.Weekday || !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

var weekdayNames = map[string]time.Weekday{
	"Sun": time.Sunday, "Mon": time.Monday, "Tue": time.Tuesday, "Wed": time.Wednesday,
	"Thu": time.Thursday, "Fri": time.Friday, "Sat": time.Saturday,
}

// Parse parses one of the DSL's three cadence forms:
//
//	@every <duration>       e.g. "@every 30m", "@every 5m"
//	@daily <HH:MM>          e.g. "@daily 08:00"
//	@weekly <Day> <HH:MM>   e.g. "@weekly Mon 07:00"
func Parse(s string) (Cadence, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("scheduler: empty cadence string")
	}

	switch fields[0] {
	case "@every":
		if len(fields) != 2 {
			return nil, fmt.Errorf("scheduler: @every expects one duration argument, got %q", s)
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil {
			return nil, fmt.Errorf("scheduler: parse @every duration: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("scheduler: @every duration must be positive, got %s", d)
		}
		return Every{Interval: d}, nil

	case "@daily":
		if len(fields) != 2 {
			return nil, fmt.Errorf("scheduler: @daily expects one HH:MM argument, got %q", s)
		}
		h, m, err := parseClock(fields[1])
		if err != nil {
			return nil, err
		}
		return Daily{Hour: h, Minute: m}, nil

	case "@weekly":
		if len(fields) != 3 {
			return nil, fmt.Errorf("scheduler: @weekly expects <Day> <HH:MM>, got %q", s)
		}
		wd, ok := weekdayNames[fields[1]]
		if !ok {
			return nil, fmt.Errorf("scheduler: unknown weekday %q", fields[1])
		}
		h, m, err := parseClock(fields[2])
		if err != nil {
			return nil, err
		}
		return Weekly{Weekday: wd, Hour: h, Minute: m}, nil

	default:
		return nil, fmt.Errorf("scheduler: unknown cadence form %q", fields[0])
	}
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("scheduler: expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("scheduler: invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("scheduler: invalid minute in %q", s)
	}
	return h, m, nil
}

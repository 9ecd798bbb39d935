// Package schedule fires a job at fixed wall-clock times of day in an
// explicit time zone.
//
// Trigger times are stored as hour and minute and resolved against a
// *time.Location for each calendar day, so a trigger keeps its local time
// across DST changes. Triggers missed while the process was down or busy
// are skipped, never replayed.
package schedule

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/reelbot/internal/reelerr"
)

// DefaultTimes is the daily posting schedule used when none is configured.
var DefaultTimes = []string{"06:00", "10:00", "15:00", "18:00", "20:00", "22:00"}

// Trigger is a time of day.
type Trigger struct {
	Hour   int
	Minute int
}

func (t Trigger) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// minutes is the trigger's offset from midnight, used for ordering.
func (t Trigger) minutes() int {
	return t.Hour*60 + t.Minute
}

// ParseTrigger parses "HH:MM" (24-hour; a single-digit hour is accepted).
func ParseTrigger(s string) (Trigger, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return Trigger{}, reelerr.Wrap(reelerr.ErrConfig, "parse trigger", fmt.Errorf("%q is not HH:MM", s))
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return Trigger{}, reelerr.Wrap(reelerr.ErrConfig, "parse trigger", fmt.Errorf("%q is not a valid time of day", s))
	}
	return Trigger{Hour: h, Minute: m}, nil
}

// ParseTriggers parses a list of times, accepting comma-separated entries
// within each element. The result is sorted and free of duplicates.
func ParseTriggers(values []string) ([]Trigger, error) {
	var out []Trigger
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			t, err := ParseTrigger(part)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, reelerr.Wrap(reelerr.ErrConfig, "parse triggers", fmt.Errorf("no trigger times given"))
	}
	slices.SortFunc(out, func(a, b Trigger) int { return a.minutes() - b.minutes() })
	return slices.Compact(out), nil
}

// Schedule is a set of daily triggers in one location.
type Schedule struct {
	triggers []Trigger
	loc      *time.Location
}

// New returns a schedule. A nil location means UTC.
func New(triggers []Trigger, loc *time.Location) (*Schedule, error) {
	if len(triggers) == 0 {
		return nil, reelerr.Wrap(reelerr.ErrConfig, "schedule", fmt.Errorf("no trigger times"))
	}
	if loc == nil {
		loc = time.UTC
	}
	sorted := slices.Clone(triggers)
	slices.SortFunc(sorted, func(a, b Trigger) int { return a.minutes() - b.minutes() })
	return &Schedule{triggers: slices.Compact(sorted), loc: loc}, nil
}

// Parse builds a schedule from "HH:MM" strings and an IANA zone name.
func Parse(times []string, zone string) (*Schedule, error) {
	triggers, err := ParseTriggers(times)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if zone != "" {
		loc, err = time.LoadLocation(zone)
		if err != nil {
			return nil, reelerr.Wrap(reelerr.ErrConfig, "load time zone "+zone, err)
		}
	}
	return New(triggers, loc)
}

func (s *Schedule) Triggers() []Trigger { return slices.Clone(s.triggers) }

func (s *Schedule) Location() *time.Location { return s.loc }

// Next returns the first trigger instant strictly after t.
func (s *Schedule) Next(t time.Time) time.Time {
	local := t.In(s.loc)
	y, m, d := local.Date()
	var next time.Time
	// Local times inside a DST gap are normalized by time.Date, which can
	// reorder them, so take the minimum rather than the first match.
	for day := 0; day <= 2; day++ {
		for _, tr := range s.triggers {
			at := time.Date(y, m, d+day, tr.Hour, tr.Minute, 0, 0, s.loc)
			if at.After(t) && (next.IsZero() || at.Before(next)) {
				next = at
			}
		}
		if !next.IsZero() {
			return next
		}
	}
	return next
}

// Upcoming returns the next n trigger instants after t.
func (s *Schedule) Upcoming(t time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for range n {
		t = s.Next(t)
		out = append(out, t)
	}
	return out
}

// String renders the schedule as "06:00,18:00 Europe/Berlin".
func (s *Schedule) String() string {
	parts := make([]string, len(s.triggers))
	for i, t := range s.triggers {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",") + " " + s.loc.String()
}

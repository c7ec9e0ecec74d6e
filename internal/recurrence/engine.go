// Package recurrence expands repeating daily voting windows into dated slots.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/campus-voting/internal/application"
)

// MaxDays bounds how many calendar days one rule may span.
const MaxDays = 366

const clockLayout = "15:04"

// Rule describes a voting window that opens at the same local clock time on
// every selected day between From and To inclusive.
type Rule struct {
	From string
	To   string
	// Start and End are local "HH:MM" clock times; End must follow Start on the same day.
	Start    string
	End      string
	Weekdays []time.Weekday
	// Label names each slot. A "%d" verb is replaced with the 1-based day number.
	Label string
}

// Engine expands rules in a fixed location.
type Engine struct {
	location *time.Location
}

// NewEngine returns an Engine that interprets dates and clock times in loc.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// ErrInvalidRange indicates the date range is malformed, reversed or too long.
var ErrInvalidRange = errors.New("recurrence: invalid date range")

// ErrInvalidClock indicates a start or end clock time is not HH:MM.
var ErrInvalidClock = errors.New("recurrence: clock times must be HH:MM")

// ErrInvalidDuration indicates the daily window is empty or wraps past midnight.
var ErrInvalidDuration = errors.New("recurrence: end must be after start")

// Expand produces one slot per selected day, ordered by date. Slot dates are
// the local calendar date; start and end instants are returned in UTC.
func (e *Engine) Expand(rule Rule) ([]application.Slot, error) {
	loc := e.location
	if loc == nil {
		loc = time.UTC
	}

	from, err := time.ParseInLocation(application.DateLayout, strings.TrimSpace(rule.From), loc)
	if err != nil {
		return nil, fmt.Errorf("%w: from %q", ErrInvalidRange, rule.From)
	}
	to, err := time.ParseInLocation(application.DateLayout, strings.TrimSpace(rule.To), loc)
	if err != nil {
		return nil, fmt.Errorf("%w: to %q", ErrInvalidRange, rule.To)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to precedes from", ErrInvalidRange)
	}

	start, err := time.Parse(clockLayout, strings.TrimSpace(rule.Start))
	if err != nil {
		return nil, fmt.Errorf("%w: start %q", ErrInvalidClock, rule.Start)
	}
	end, err := time.Parse(clockLayout, strings.TrimSpace(rule.End))
	if err != nil {
		return nil, fmt.Errorf("%w: end %q", ErrInvalidClock, rule.End)
	}
	if !end.After(start) {
		return nil, ErrInvalidDuration
	}

	weekdaySet := make(map[time.Weekday]struct{}, len(rule.Weekdays))
	for _, day := range rule.Weekdays {
		weekdaySet[day] = struct{}{}
	}

	slots := make([]application.Slot, 0)
	y, m, d := from.Date()
	for i := 0; ; i++ {
		if i >= MaxDays {
			return nil, fmt.Errorf("%w: spans more than %d days", ErrInvalidRange, MaxDays)
		}
		// time.Date normalizes day overflow and keeps wall clock across DST changes.
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		if day.After(to) {
			break
		}
		if len(weekdaySet) > 0 {
			if _, ok := weekdaySet[day.Weekday()]; !ok {
				continue
			}
		}
		slots = append(slots, application.Slot{
			Date:      day.Format(application.DateLayout),
			StartTime: combine(day, start, loc).UTC(),
			EndTime:   combine(day, end, loc).UTC(),
			Label:     label(rule.Label, len(slots)+1),
		})
	}
	return slots, nil
}

func combine(day, clock time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, loc)
}

func label(format string, n int) string {
	if strings.Contains(format, "%d") {
		return fmt.Sprintf(format, n)
	}
	return format
}

// ParseWeekdays converts names such as "mon" or "Monday" into weekdays.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if len(key) < 3 {
			return nil, fmt.Errorf("recurrence: unknown weekday %q", name)
		}
		found := false
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			full := strings.ToLower(wd.String())
			if key == full || key == full[:3] {
				out = append(out, wd)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("recurrence: unknown weekday %q", name)
		}
	}
	return out, nil
}

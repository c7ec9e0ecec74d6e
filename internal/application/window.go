package application

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for slots, session dates and scores.
const DateLayout = "2006-01-02"

// WindowMode names the regime that produced a Window.
type WindowMode string

const (
	// ModeSlot means a configured slot contains the current time.
	ModeSlot WindowMode = "slot"
	// ModeSessionDate means the currentSessionDate override is in effect.
	ModeSessionDate WindowMode = "session_date"
	// ModeLegacy means neither slots nor a session date are configured.
	ModeLegacy WindowMode = "legacy"
)

// Boundary is an inclusive createdAt range used for quota accounting.
type Boundary struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies inside the boundary, both ends inclusive.
func (b Boundary) Contains(t time.Time) bool {
	return !t.Before(b.Start) && !t.After(b.End)
}

// Window is the resolved voting regime for one request.
type Window struct {
	Mode          WindowMode
	EffectiveDate time.Time
	Boundary      Boundary
	Slot          *Slot
}

// EffectiveDateString formats the effective date as YYYY-MM-DD.
func (w Window) EffectiveDateString() string {
	return w.EffectiveDate.Format(DateLayout)
}

// ResolveWindow picks the voting regime for now from a config snapshot.
// Slots take precedence over the session date, which takes precedence over
// the legacy window. The global switch is not consulted.
func ResolveWindow(cfg VotingConfig, now time.Time) (Window, error) {
	now = now.UTC()

	if len(cfg.Slots) > 0 {
		for i := range cfg.Slots {
			slot := cfg.Slots[i]
			if now.Before(slot.StartTime) || now.After(slot.EndTime) {
				continue
			}
			date, err := ParseDate(slot.Date)
			if err != nil {
				return Window{}, fmt.Errorf("slot %q has invalid date: %w", slot.Label, err)
			}
			return Window{
				Mode:          ModeSlot,
				EffectiveDate: date,
				Boundary:      Boundary{Start: slot.StartTime.UTC(), End: slot.EndTime.UTC()},
				Slot:          &slot,
			}, nil
		}
		return Window{}, &VotingClosedError{Reason: ClosedNoActiveSlot}
	}

	if cfg.CurrentSessionDate != nil && *cfg.CurrentSessionDate != "" {
		date, err := ParseDate(*cfg.CurrentSessionDate)
		if err != nil {
			return Window{}, fmt.Errorf("session date %q is invalid: %w", *cfg.CurrentSessionDate, err)
		}
		return Window{Mode: ModeSessionDate, EffectiveDate: date, Boundary: DayBoundary(date)}, nil
	}

	if cfg.StartTime != nil && cfg.EndTime != nil {
		if now.Before(*cfg.StartTime) || now.After(*cfg.EndTime) {
			return Window{}, &VotingClosedError{Reason: ClosedOutsideWindow}
		}
	}
	today := StartOfDay(now)
	return Window{Mode: ModeLegacy, EffectiveDate: today, Boundary: DayBoundary(today)}, nil
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayBoundary spans 00:00:00.000 to 23:59:59.999 UTC of the given date.
func DayBoundary(date time.Time) Boundary {
	start := StartOfDay(date)
	return Boundary{Start: start, End: start.Add(24*time.Hour - time.Millisecond)}
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}

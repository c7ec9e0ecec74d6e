package application

import (
	"errors"
	"testing"
	"time"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestResolveWindow_SlotMode(t *testing.T) {
	t.Parallel()

	cfg := VotingConfig{
		IsVotingOpen: true,
		DailyQuota:   100,
		Slots: []Slot{
			{Date: "2024-03-01", StartTime: mustTime(t, "2024-03-10T08:00:00Z"), EndTime: mustTime(t, "2024-03-10T09:00:00Z"), Label: "morning"},
			{Date: "2024-03-02", StartTime: mustTime(t, "2024-03-10T12:00:00Z"), EndTime: mustTime(t, "2024-03-10T13:00:00Z"), Label: "noon"},
		},
	}

	t.Run("stamps the slot date regardless of wall clock", func(t *testing.T) {
		window, err := ResolveWindow(cfg, mustTime(t, "2024-03-10T12:30:00Z"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if window.Mode != ModeSlot {
			t.Fatalf("expected slot mode, got %s", window.Mode)
		}
		if got := window.EffectiveDateString(); got != "2024-03-02" {
			t.Fatalf("expected effective date 2024-03-02, got %s", got)
		}
		if !window.Boundary.Start.Equal(cfg.Slots[1].StartTime) || !window.Boundary.End.Equal(cfg.Slots[1].EndTime) {
			t.Fatalf("expected slot boundary, got %+v", window.Boundary)
		}
		if window.Slot == nil || window.Slot.Label != "noon" {
			t.Fatalf("expected noon slot, got %+v", window.Slot)
		}
	})

	t.Run("slot edges are inclusive", func(t *testing.T) {
		for _, at := range []string{"2024-03-10T08:00:00Z", "2024-03-10T09:00:00Z"} {
			window, err := ResolveWindow(cfg, mustTime(t, at))
			if err != nil {
				t.Fatalf("at %s: unexpected error: %v", at, err)
			}
			if window.EffectiveDateString() != "2024-03-01" {
				t.Fatalf("at %s: expected morning slot, got %s", at, window.EffectiveDateString())
			}
		}
	})

	t.Run("closed between slots even with a session date", func(t *testing.T) {
		withDate := cfg
		date := "2024-03-05"
		withDate.CurrentSessionDate = &date

		_, err := ResolveWindow(withDate, mustTime(t, "2024-03-10T10:00:00Z"))
		var closed *VotingClosedError
		if !errors.As(err, &closed) {
			t.Fatalf("expected VotingClosedError, got %v", err)
		}
		if closed.Reason != ClosedNoActiveSlot {
			t.Fatalf("expected no_active_slot, got %s", closed.Reason)
		}
		if !errors.Is(err, ErrVotingClosed) {
			t.Fatalf("expected ErrVotingClosed in chain")
		}
	})
}

func TestResolveWindow_SessionDateMode(t *testing.T) {
	t.Parallel()

	date := "2024-02-20"
	start := mustTime(t, "2024-03-10T09:00:00Z")
	end := mustTime(t, "2024-03-10T10:00:00Z")
	cfg := VotingConfig{CurrentSessionDate: &date, StartTime: &start, EndTime: &end}

	window, err := ResolveWindow(cfg, mustTime(t, "2024-03-10T23:00:00Z"))
	if err != nil {
		t.Fatalf("session date must supersede the legacy window: %v", err)
	}
	if window.Mode != ModeSessionDate {
		t.Fatalf("expected session date mode, got %s", window.Mode)
	}
	if window.EffectiveDateString() != date {
		t.Fatalf("expected %s, got %s", date, window.EffectiveDateString())
	}
	wantStart := mustTime(t, "2024-02-20T00:00:00Z")
	wantEnd := wantStart.Add(24*time.Hour - time.Millisecond)
	if !window.Boundary.Start.Equal(wantStart) || !window.Boundary.End.Equal(wantEnd) {
		t.Fatalf("unexpected boundary %+v", window.Boundary)
	}
}

func TestResolveWindow_LegacyMode(t *testing.T) {
	t.Parallel()

	start := mustTime(t, "2024-03-10T09:00:00Z")
	end := mustTime(t, "2024-03-10T10:00:00Z")
	cfg := VotingConfig{StartTime: &start, EndTime: &end}

	t.Run("rejects outside the window", func(t *testing.T) {
		_, err := ResolveWindow(cfg, mustTime(t, "2024-03-10T11:00:00Z"))
		var closed *VotingClosedError
		if !errors.As(err, &closed) || closed.Reason != ClosedOutsideWindow {
			t.Fatalf("expected outside_window, got %v", err)
		}
	})

	t.Run("accepts inside and dates today", func(t *testing.T) {
		window, err := ResolveWindow(cfg, mustTime(t, "2024-03-10T09:30:00Z"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if window.Mode != ModeLegacy || window.EffectiveDateString() != "2024-03-10" {
			t.Fatalf("unexpected window %+v", window)
		}
		if !window.Boundary.Contains(mustTime(t, "2024-03-10T00:00:00Z")) {
			t.Fatalf("boundary should start at midnight")
		}
		if window.Boundary.Contains(mustTime(t, "2024-03-11T00:00:00Z")) {
			t.Fatalf("boundary should end before the next midnight")
		}
	})

	t.Run("a half-configured window never rejects", func(t *testing.T) {
		onlyStart := VotingConfig{StartTime: &start}
		if _, err := ResolveWindow(onlyStart, mustTime(t, "2024-03-10T05:00:00Z")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

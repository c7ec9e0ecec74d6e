package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfigService_Snapshot(t *testing.T) {
	t.Parallel()

	store := &memConfig{}
	svc := NewConfigService(store, 0, nil, nil, fixedClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	cfg, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if cfg.DailyQuota != DefaultDailyQuota || cfg.IsVotingOpen || cfg.Version != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := svc.Snapshot(context.Background()); err != nil {
		t.Fatalf("second Snapshot: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("defaults should be created once, saved %d times", store.saves)
	}
}

func TestConfigService_Update(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	newService := func() (*ConfigService, *memAudit, *recordingNotifier) {
		audit := &memAudit{}
		notifier := &recordingNotifier{}
		svc := NewConfigService(&memConfig{}, 100, NewAuditRecorder(audit, sequenceIDs("audit"), fixedClock(now), nil), notifier, fixedClock(now))
		return svc, audit, notifier
	}

	t.Run("applies partial input and publishes", func(t *testing.T) {
		svc, audit, notifier := newService()
		open := true
		quota := 40
		date := "2024-03-02"
		cfg, err := svc.Update(ctx, adminPrincipal, ConfigInput{IsVotingOpen: &open, DailyQuota: &quota, CurrentSessionDate: &date}, 0, RequestMeta{})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if !cfg.IsVotingOpen || cfg.DailyQuota != 40 || cfg.CurrentSessionDate == nil || *cfg.CurrentSessionDate != date {
			t.Fatalf("unexpected config %+v", cfg)
		}
		if cfg.UpdatedBy != "ops" {
			t.Fatalf("expected updated_by ops, got %q", cfg.UpdatedBy)
		}
		if !containsString(notifier.types(), EventConfigChanged) || !containsString(notifier.types(), EventDataChanged) {
			t.Fatalf("expected config-changed and data-changed, got %v", notifier.types())
		}
		if !containsString(audit.actions(), AuditUpdateConfig) {
			t.Fatalf("expected UPDATE_CONFIG audit")
		}

		empty := ""
		cfg, err = svc.Update(ctx, adminPrincipal, ConfigInput{CurrentSessionDate: &empty}, cfg.Version, RequestMeta{})
		if err != nil {
			t.Fatalf("clear session date: %v", err)
		}
		if cfg.CurrentSessionDate != nil || cfg.DailyQuota != 40 {
			t.Fatalf("expected only the session date to clear, got %+v", cfg)
		}
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		svc, _, _ := newService()
		quota := 10
		first, err := svc.Update(ctx, adminPrincipal, ConfigInput{DailyQuota: &quota}, 0, RequestMeta{})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if _, err := svc.Update(ctx, adminPrincipal, ConfigInput{DailyQuota: &quota}, first.Version, RequestMeta{}); err != nil {
			t.Fatalf("fresh version should succeed: %v", err)
		}
		if _, err := svc.Update(ctx, adminPrincipal, ConfigInput{DailyQuota: &quota}, first.Version, RequestMeta{}); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		svc, _, _ := newService()
		zero := 0
		start := now.Add(2 * time.Hour)
		end := now.Add(time.Hour)
		cases := map[string]ConfigInput{
			"quota":        {DailyQuota: &zero},
			"slot order":   {Slots: &[]Slot{{Date: "2024-03-01", StartTime: start, EndTime: end}}},
			"slot date":    {Slots: &[]Slot{{Date: "03/01/2024", StartTime: end, EndTime: start}}},
			"legacy order": {LegacyWindow: &LegacyWindow{Start: &start, End: &end}},
		}
		for name, input := range cases {
			var vErr *ValidationError
			if _, err := svc.Update(ctx, adminPrincipal, input, 0, RequestMeta{}); !errors.As(err, &vErr) {
				t.Fatalf("%s: expected ValidationError, got %v", name, err)
			}
		}
	})

	t.Run("slots keep the submitted order", func(t *testing.T) {
		svc, _, _ := newService()
		wide := Slot{Date: "2024-03-01", StartTime: now, EndTime: now.Add(4 * time.Hour), Label: "all morning"}
		narrow := Slot{Date: "2024-03-02", StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), Label: "early"}
		cfg, err := svc.Update(ctx, adminPrincipal, ConfigInput{Slots: &[]Slot{wide, narrow}}, 0, RequestMeta{})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if len(cfg.Slots) != 2 || cfg.Slots[0].Label != "all morning" || cfg.Slots[1].Label != "early" {
			t.Fatalf("unexpected slots %+v", cfg.Slots)
		}

		window, err := ResolveWindow(cfg, now.Add(30*time.Minute))
		if err != nil {
			t.Fatalf("ResolveWindow: %v", err)
		}
		if window.Slot == nil || window.Slot.Label != "all morning" || window.EffectiveDateString() != "2024-03-01" {
			t.Fatalf("expected the first listed overlapping slot, got %+v", window)
		}
	})

	t.Run("students are forbidden", func(t *testing.T) {
		svc, _, _ := newService()
		if _, err := svc.Update(ctx, student("acct-1", nil), ConfigInput{}, 0, RequestMeta{}); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

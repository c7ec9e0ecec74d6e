package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/campus-voting/internal/persistence"
)

func TestConfigRepository_CompareAndSwap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStorage(t)

	_, found, err := s.Config.GetConfig(ctx)
	if err != nil || found {
		t.Fatalf("expected no config row, found=%v err=%v", found, err)
	}

	start := baseTime
	end := baseTime.Add(time.Hour)
	date := "2024-03-05"
	cfg := persistence.VotingConfig{
		IsVotingOpen:       true,
		StartTime:          &start,
		EndTime:            &end,
		CurrentSessionDate: &date,
		DailyQuota:         40,
		Slots: []persistence.Slot{
			{Date: "2024-03-05", StartTime: start, EndTime: end, Label: "Morning"},
		},
		UpdatedAt: baseTime,
		UpdatedBy: "root",
	}

	if _, err := s.Config.SaveConfig(ctx, cfg, 3); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected conflict creating with non-zero version, got %v", err)
	}

	first, err := s.Config.SaveConfig(ctx, cfg, 0)
	if err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	if first.Version != 1 || len(first.Slots) != 1 || first.Slots[0].Label != "Morning" {
		t.Fatalf("unexpected stored config %+v", first)
	}
	if first.StartTime == nil || !first.StartTime.Equal(start) || *first.CurrentSessionDate != date {
		t.Fatalf("optional fields lost: %+v", first)
	}

	cfg.DailyQuota = 50
	second, err := s.Config.SaveConfig(ctx, cfg, 1)
	if err != nil || second.Version != 2 || second.DailyQuota != 50 {
		t.Fatalf("SaveConfig v1 = %+v, %v", second, err)
	}

	if _, err := s.Config.SaveConfig(ctx, cfg, 1); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected stale version conflict, got %v", err)
	}

	cfg.Slots = nil
	cfg.StartTime = nil
	cfg.CurrentSessionDate = nil
	third, err := s.Config.SaveConfig(ctx, cfg, 0)
	if err != nil || third.Version != 3 {
		t.Fatalf("unconditional save = %+v, %v", third, err)
	}
	if len(third.Slots) != 0 || third.StartTime != nil || third.CurrentSessionDate != nil {
		t.Fatalf("cleared fields should read back empty: %+v", third)
	}

	loaded, found, err := s.Config.GetConfig(ctx)
	if err != nil || !found || loaded.Version != 3 {
		t.Fatalf("GetConfig = %+v, %v, %v", loaded, found, err)
	}
}

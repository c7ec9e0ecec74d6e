package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTeamService_CRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newMemTeams()
	audit := &memAudit{}
	lb := &countingInvalidator{}
	notifier := &recordingNotifier{}
	svc := NewTeamService(TeamServiceDeps{
		Teams:       store,
		Leaderboard: lb,
		Notifier:    notifier,
		Audit:       NewAuditRecorder(audit, sequenceIDs("audit"), fixedClock(now), nil),
		IDGenerator: sequenceIDs("team"),
		Now:         fixedClock(now),
	})

	if _, err := svc.Create(ctx, student("acct-1", nil), TeamInput{Name: "Alpha"}, RequestMeta{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	var vErr *ValidationError
	if _, err := svc.Create(ctx, adminPrincipal, TeamInput{Name: "  "}, RequestMeta{}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	alpha, err := svc.Create(ctx, adminPrincipal, TeamInput{Name: " Alpha ", Description: "first"}, RequestMeta{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if alpha.ID != "team-1" || alpha.Name != "Alpha" {
		t.Fatalf("unexpected team %+v", alpha)
	}
	if _, err := svc.Create(ctx, adminPrincipal, TeamInput{Name: "alpha"}, RequestMeta{}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := svc.Create(ctx, adminPrincipal, TeamInput{Name: "bravo"}, RequestMeta{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := svc.Update(ctx, adminPrincipal, alpha.ID, TeamInput{Name: "Zulu", ImageURL: "https://img/zulu.png"}, RequestMeta{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Zulu" || !updated.CreatedAt.Equal(alpha.CreatedAt) {
		t.Fatalf("unexpected update %+v", updated)
	}

	teams, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(teams) != 2 || teams[0].Name != "bravo" || teams[1].Name != "Zulu" {
		t.Fatalf("expected case-insensitive name order, got %+v", teams)
	}

	if _, err := svc.Update(ctx, adminPrincipal, "missing", TeamInput{Name: "x"}, RequestMeta{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if lb.count() != 3 {
		t.Fatalf("expected invalidation on each write, got %d", lb.count())
	}
}

func TestTeamService_DeleteCascades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ledger := &memLedger{txs: []VoteTransaction{
		{ID: "v1", AccountID: "only-alpha", TeamID: "team-a", VoteCount: 3, EffectiveDate: day, CreatedAt: day},
		{ID: "v2", AccountID: "mixed", TeamID: "team-a", VoteCount: 1, EffectiveDate: day, CreatedAt: day},
		{ID: "v3", AccountID: "mixed", TeamID: "team-b", VoteCount: 2, EffectiveDate: day, CreatedAt: day.Add(time.Minute)},
	}}
	store := newMemTeams(Team{ID: "team-a", Name: "Alpha"}, Team{ID: "team-b", Name: "Bravo"})
	store.ledger = ledger
	audit := &memAudit{}
	lb := &countingInvalidator{}
	notifier := &recordingNotifier{}
	svc := NewTeamService(TeamServiceDeps{
		Teams:       store,
		Leaderboard: lb,
		Notifier:    notifier,
		Audit:       NewAuditRecorder(audit, sequenceIDs("audit"), nil, nil),
	})

	if err := svc.Delete(ctx, adminPrincipal, "team-a", RequestMeta{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	summaries, _ := ledger.Summaries(ctx)
	if _, ok := summaries["only-alpha"]; ok {
		t.Fatalf("account whose only vote was for the deleted team should have no summary")
	}
	mixed := summaries["mixed"]
	if mixed.Votes["team-a"] != 0 || mixed.Votes["team-b"] != 2 || mixed.LastVotedAt == nil {
		t.Fatalf("unexpected remaining summary %+v", mixed)
	}
	if !containsString(audit.actions(), AuditDeleteTeam) {
		t.Fatalf("expected DELETE_TEAM audit")
	}
	if lb.count() != 1 || !containsString(notifier.types(), EventLeaderboardChanged) {
		t.Fatalf("expected invalidation and events")
	}
	if err := svc.Delete(ctx, adminPrincipal, "team-a", RequestMeta{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

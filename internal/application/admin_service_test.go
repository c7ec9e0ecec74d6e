package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

type adminFixture struct {
	svc      *AdminService
	accounts *memAccounts
	admins   *memAdmins
	ledger   *memLedger
	white    *memList
	audit    *memAudit
	notifier *recordingNotifier
}

type fixedPresence PresenceSnapshot

func (p fixedPresence) Presence() PresenceSnapshot { return PresenceSnapshot(p) }

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	sid := "sid-1"
	fx := &adminFixture{
		accounts: newMemAccounts(
			Account{ID: "acct-1", Email: "one@campus.edu", PasswordHash: "h", Status: AccountApproved, SessionToken: &sid, CreatedAt: now.Add(-time.Hour)},
			Account{ID: "acct-2", Email: "two@campus.edu", PasswordHash: "h", Status: AccountPending, CreatedAt: now},
		),
		admins: newMemAdmins(
			Admin{Username: "root", PasswordHash: "h", Role: RoleSuperAdmin},
			Admin{Username: "ops", PasswordHash: "h", Role: RoleAdmin},
		),
		ledger: &memLedger{txs: []VoteTransaction{
			{ID: "v1", AccountID: "acct-1", TeamID: "team-a", VoteCount: 4, EffectiveDate: now, CreatedAt: now.Add(-2 * time.Hour)},
			{ID: "v2", AccountID: "acct-1", TeamID: "team-b", VoteCount: 1, EffectiveDate: now, CreatedAt: now.Add(-time.Hour)},
			{ID: "v3", AccountID: "acct-1", TeamID: "team-a", VoteCount: 2, EffectiveDate: now.AddDate(0, 0, -1), CreatedAt: now.AddDate(0, 0, -1)},
		}},
		white:    newMemList(),
		audit:    &memAudit{},
		notifier: &recordingNotifier{},
	}
	teams := newMemTeams(Team{ID: "team-a", Name: "Alpha"}, Team{ID: "team-b", Name: "Bravo"})
	lb := NewLeaderboardService(LeaderboardServiceDeps{Teams: teams, Ledger: fx.ledger, Now: fixedClock(now)})
	fx.svc = NewAdminService(AdminServiceDeps{
		Accounts:    fx.accounts,
		Admins:      fx.admins,
		Teams:       teams,
		Ledger:      fx.ledger,
		Config:      staticConfig{cfg: VotingConfig{IsVotingOpen: true, DailyQuota: 100}},
		Whitelist:   fx.white,
		Audits:      fx.audit,
		Presence:    fixedPresence{Students: 2, Admins: 1, Connections: 3},
		Standings:   lb,
		Leaderboard: lb,
		Notifier:    fx.notifier,
		Audit:       NewAuditRecorder(fx.audit, sequenceIDs("audit"), fixedClock(now), nil),
		Hash:        NewPasswordHasher(FastArgon2idParams),
		Now:         fixedClock(now),
	})
	return fx
}

func TestAdminService_Dashboard(t *testing.T) {
	t.Parallel()

	fx := newAdminFixture(t)
	dash, err := fx.svc.Dashboard(context.Background(), adminPrincipal)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if dash.Accounts != 2 || dash.PendingAccounts != 1 || dash.LoggedIn != 1 || dash.Teams != 2 {
		t.Fatalf("unexpected counts %+v", dash)
	}
	if dash.TotalVotes != 7 || dash.VotesInBoundary != 5 {
		t.Fatalf("expected 7 total and 5 today, got %d/%d", dash.TotalVotes, dash.VotesInBoundary)
	}
	if dash.Presence.Connections != 3 || len(dash.TopStandings) != 2 || dash.TopStandings[0].TeamID != "team-a" {
		t.Fatalf("unexpected presence or standings %+v", dash)
	}
	if _, err := fx.svc.Dashboard(context.Background(), student("acct-1", nil)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAdminService_ListAccountsComputesTotals(t *testing.T) {
	t.Parallel()

	fx := newAdminFixture(t)
	views, err := fx.svc.ListAccounts(context.Background(), adminPrincipal)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(views) != 2 || views[0].ID != "acct-2" {
		t.Fatalf("expected newest first, got %+v", views)
	}
	one := views[1]
	if one.TotalVotes != 7 || one.Votes["team-a"] != 6 || !one.LoggedIn || one.PasswordHash != "" || one.SessionToken != nil {
		t.Fatalf("unexpected view %+v", one)
	}
	if one.LastVotedAt == nil || one.LastVotedAt.Format(DateLayout) != "2024-03-10" {
		t.Fatalf("expected lastVotedAt from the latest created transaction, got %v", one.LastVotedAt)
	}
}

func TestAdminService_ApproveAccount(t *testing.T) {
	t.Parallel()

	fx := newAdminFixture(t)
	ctx := context.Background()
	account, err := fx.svc.ApproveAccount(ctx, adminPrincipal, "acct-2", RequestMeta{})
	if err != nil {
		t.Fatalf("ApproveAccount: %v", err)
	}
	if account.Status != AccountApproved {
		t.Fatalf("expected APPROVED, got %s", account.Status)
	}
	if ok, _ := fx.white.HasEntry(ctx, "two@campus.edu"); !ok {
		t.Fatalf("expected auto-whitelist")
	}
	// A second approval finds the email already whitelisted and still succeeds.
	if _, err := fx.svc.ApproveAccount(ctx, adminPrincipal, "acct-2", RequestMeta{}); err != nil {
		t.Fatalf("repeat approval: %v", err)
	}
}

func TestAdminService_DeleteVotes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("requires super admin", func(t *testing.T) {
		fx := newAdminFixture(t)
		if _, err := fx.svc.DeleteAccountVotes(ctx, adminPrincipal, "acct-1", "team-a", RequestMeta{}); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("one team", func(t *testing.T) {
		fx := newAdminFixture(t)
		deleted, err := fx.svc.DeleteAccountVotes(ctx, superPrincipal, "acct-1", "team-a", RequestMeta{})
		if err != nil || deleted != 2 {
			t.Fatalf("expected 2 deleted, got %d (%v)", deleted, err)
		}
		if _, err := fx.svc.DeleteAccountVotes(ctx, superPrincipal, "acct-1", "team-a", RequestMeta{}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound when no votes remain, got %v", err)
		}
		if !containsString(fx.audit.actions(), AuditDeleteUserTeamVotes) {
			t.Fatalf("expected DELETE_USER_TEAM_VOTES audit")
		}
	})

	t.Run("all teams resets lastVotedAt", func(t *testing.T) {
		fx := newAdminFixture(t)
		if _, err := fx.svc.DeleteAccountVotes(ctx, superPrincipal, "acct-1", "", RequestMeta{}); err != nil {
			t.Fatalf("delete all: %v", err)
		}
		views, _ := fx.svc.ListAccounts(ctx, adminPrincipal)
		for _, view := range views {
			if view.ID == "acct-1" && (view.LastVotedAt != nil || view.TotalVotes != 0) {
				t.Fatalf("expected cleared totals, got %+v", view)
			}
		}
		if !containsString(fx.audit.actions(), AuditDeleteUserVotes) {
			t.Fatalf("expected DELETE_USER_VOTES audit")
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		fx := newAdminFixture(t)
		if _, err := fx.svc.DeleteAccountVotes(ctx, superPrincipal, "ghost", "", RequestMeta{}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAdminService_DeleteAccount(t *testing.T) {
	t.Parallel()

	fx := newAdminFixture(t)
	ctx := context.Background()
	if err := fx.svc.DeleteAccount(ctx, adminPrincipal, "acct-1", RequestMeta{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := fx.svc.DeleteAccount(ctx, superPrincipal, "acct-1", RequestMeta{}); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := fx.accounts.GetAccount(ctx, "acct-1"); err == nil {
		t.Fatalf("account should be gone")
	}
	if !containsString(fx.audit.actions(), AuditDeleteUser) || !containsString(fx.notifier.types(), EventForceLogout) {
		t.Fatalf("expected audit and force-logout event")
	}
}

func TestAdminService_AdminAccounts(t *testing.T) {
	t.Parallel()

	fx := newAdminFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.CreateAdmin(ctx, adminPrincipal, AdminInput{Username: "x", Password: "secret-pass"}, RequestMeta{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	created, err := fx.svc.CreateAdmin(ctx, superPrincipal, AdminInput{Username: "judge", Password: "secret-pass", Role: "admin"}, RequestMeta{})
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	if created.Role != RoleAdmin || created.PasswordHash != "" {
		t.Fatalf("unexpected admin %+v", created)
	}
	if _, err := fx.svc.CreateAdmin(ctx, superPrincipal, AdminInput{Username: "judge", Password: "secret-pass"}, RequestMeta{}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	var vErr *ValidationError
	if _, err := fx.svc.CreateAdmin(ctx, superPrincipal, AdminInput{Username: "y", Password: "secret-pass", Role: "OWNER"}, RequestMeta{}); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for role, got %v", err)
	}

	if err := fx.svc.DeleteAdmin(ctx, superPrincipal, "root", RequestMeta{}); !errors.As(err, &vErr) {
		t.Fatalf("expected self-delete rejection, got %v", err)
	}
	if err := fx.svc.DeleteAdmin(ctx, superPrincipal, "judge", RequestMeta{}); err != nil {
		t.Fatalf("DeleteAdmin: %v", err)
	}

	admins, err := fx.svc.ListAdmins(ctx, superPrincipal)
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if len(admins) != 2 {
		t.Fatalf("expected 2 admins, got %d", len(admins))
	}
	for _, admin := range admins {
		if admin.PasswordHash != "" {
			t.Fatalf("password hashes must not leak")
		}
	}
}

func TestAdminService_ListingsRequireSuperAdmin(t *testing.T) {
	t.Parallel()

	fx := newAdminFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.ListTransactions(ctx, adminPrincipal, TransactionFilter{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	page, err := fx.svc.ListTransactions(ctx, superPrincipal, TransactionFilter{TeamID: "team-a", Limit: 1})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(page.Transactions) != 1 || page.Total != 2 {
		t.Fatalf("unexpected page %+v", page)
	}

	if _, err := fx.svc.ListAudit(ctx, adminPrincipal, AuditQuery{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	audit, err := fx.svc.ListAudit(ctx, superPrincipal, AuditQuery{})
	if err != nil || audit.Limit != 50 {
		t.Fatalf("expected default limit 50, got %+v (%v)", audit, err)
	}
}

package persistence

import (
	"context"
	"time"
)

// AccountRepository stores student accounts.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account Account) error
	UpdateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	DeleteAccount(ctx context.Context, id string) error
	SetSessionToken(ctx context.Context, id string, token *string) error
	CountAccounts(ctx context.Context) (int, error)
}

// AdminRepository stores administrator accounts.
type AdminRepository interface {
	CreateAdmin(ctx context.Context, admin Admin) error
	GetAdmin(ctx context.Context, username string) (Admin, error)
	ListAdmins(ctx context.Context) ([]Admin, error)
	DeleteAdmin(ctx context.Context, username string) error
	SetSessionToken(ctx context.Context, username string, token *string) error
}

// TeamRepository stores teams. DeleteTeam removes dependent votes and scores atomically.
type TeamRepository interface {
	CreateTeam(ctx context.Context, team Team) error
	UpdateTeam(ctx context.Context, team Team) error
	GetTeam(ctx context.Context, id string) (Team, error)
	ListTeams(ctx context.Context) ([]Team, error)
	DeleteTeam(ctx context.Context, id string) error
}

// VoteDecision receives the transactions already recorded inside the accounting window and
// returns the transactions to append. Returning an error aborts the write.
type VoteDecision func(existing []VoteTransaction) ([]VoteTransaction, error)

// VoteRepository stores the append-only vote ledger.
type VoteRepository interface {
	AppendVotes(ctx context.Context, accountID string, from, to time.Time, decide VoteDecision) ([]VoteTransaction, error)
	ListVotes(ctx context.Context, filter VoteFilter) ([]VoteTransaction, error)
	CountVotes(ctx context.Context, filter VoteFilter) (int, error)
	TotalsByTeam(ctx context.Context, filter VoteFilter) ([]TeamVoteTotal, error)
	SummaryForAccount(ctx context.Context, accountID string) (AccountVoteSummary, error)
	SummariesForAccounts(ctx context.Context) (map[string]AccountVoteSummary, error)
	DeleteVotes(ctx context.Context, accountID, teamID string) (int, error)
}

// ConfigRepository stores the voting config singleton with optimistic versioning.
type ConfigRepository interface {
	GetConfig(ctx context.Context) (VotingConfig, bool, error)
	// SaveConfig writes cfg when the stored version equals expectedVersion and returns the stored row.
	SaveConfig(ctx context.Context, cfg VotingConfig, expectedVersion int64) (VotingConfig, error)
}

// ScoreRepository stores judged team scores.
type ScoreRepository interface {
	UpsertScore(ctx context.Context, score TeamScore) (TeamScore, error)
	ListScores(ctx context.Context, filter ScoreFilter) ([]TeamScore, error)
	DeleteScore(ctx context.Context, id string) error
}

// AuditRepository stores audit records.
type AuditRepository interface {
	AppendAudit(ctx context.Context, entry AuditLog) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditLog, int, error)
}

// AccessListRepository stores one email-keyed gating list.
type AccessListRepository interface {
	AddEntry(ctx context.Context, entry AccessListEntry) error
	RemoveEntry(ctx context.Context, email string) error
	HasEntry(ctx context.Context, email string) (bool, error)
	ListEntries(ctx context.Context) ([]AccessListEntry, error)
}

// EventRepository is the sequenced event outbox.
type EventRepository interface {
	AppendEvent(ctx context.Context, event Event) (Event, error)
	ListEventsAfter(ctx context.Context, after int64, limit int) ([]Event, error)
	PruneEventsBefore(ctx context.Context, before time.Time) (int, error)
}

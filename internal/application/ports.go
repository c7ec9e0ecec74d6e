package application

import (
	"context"
	"time"
)

// AccountStore persists student accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) error
	UpdateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	DeleteAccount(ctx context.Context, id string) error
	SetSessionToken(ctx context.Context, id string, token *string) error
	CountAccounts(ctx context.Context) (int, error)
}

// AdminStore persists administrator accounts.
type AdminStore interface {
	CreateAdmin(ctx context.Context, admin Admin) error
	GetAdmin(ctx context.Context, username string) (Admin, error)
	ListAdmins(ctx context.Context) ([]Admin, error)
	DeleteAdmin(ctx context.Context, username string) error
	SetSessionToken(ctx context.Context, username string, token *string) error
}

// TeamStore persists teams. DeleteTeam removes the team's votes and scores atomically.
type TeamStore interface {
	CreateTeam(ctx context.Context, team Team) error
	UpdateTeam(ctx context.Context, team Team) error
	GetTeam(ctx context.Context, id string) (Team, error)
	ListTeams(ctx context.Context) ([]Team, error)
	DeleteTeam(ctx context.Context, id string) error
}

// VoteDecider inspects the transactions already inside the boundary and
// returns the ones to append, or an error to abort.
type VoteDecider func(existing []VoteTransaction) ([]VoteTransaction, error)

// VoteLedger persists vote transactions. AppendVotes runs decide and the
// insert inside one write transaction.
type VoteLedger interface {
	AppendVotes(ctx context.Context, accountID string, boundary Boundary, decide VoteDecider) ([]VoteTransaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]VoteTransaction, error)
	CountTransactions(ctx context.Context, filter TransactionFilter) (int, error)
	TeamTotals(ctx context.Context, filter TransactionFilter) ([]TeamTotal, error)
	Summary(ctx context.Context, accountID string) (VoteSummary, error)
	Summaries(ctx context.Context) (map[string]VoteSummary, error)
	DeleteVotes(ctx context.Context, accountID, teamID string) (int, error)
}

// ConfigStore persists the voting config with optimistic versioning.
type ConfigStore interface {
	GetConfig(ctx context.Context) (VotingConfig, bool, error)
	SaveConfig(ctx context.Context, cfg VotingConfig, expectedVersion int64) (VotingConfig, error)
}

// ScoreStore persists team scores.
type ScoreStore interface {
	UpsertScore(ctx context.Context, score TeamScore) (TeamScore, error)
	ListScores(ctx context.Context, teamID, dateFrom, dateTo string) ([]TeamScore, error)
	DeleteScore(ctx context.Context, id string) error
}

// AuditStore persists audit records.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, query AuditQuery) ([]AuditEntry, int, error)
}

// AccessListStore persists one email list.
type AccessListStore interface {
	AddEntry(ctx context.Context, entry AccessEntry) error
	RemoveEntry(ctx context.Context, email string) error
	HasEntry(ctx context.Context, email string) (bool, error)
	ListEntries(ctx context.Context) ([]AccessEntry, error)
}

// SessionClaims are the fields carried by a signed session token.
type SessionClaims struct {
	Subject   string
	SessionID string
	Kind      PrincipalKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionCodec signs and verifies session tokens.
type SessionCodec interface {
	Issue(claims SessionClaims) (string, error)
	Parse(token string) (SessionClaims, error)
}

// Limiter counts attempts per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// PasswordHasher derives a storable hash from a password.
type PasswordHasher func(password string) (string, error)

// PresenceSnapshot counts live push connections.
type PresenceSnapshot struct {
	Students    int
	Admins      int
	Connections int
	ByIdentity  map[string]int
}

// PresenceReporter exposes live connection counts.
type PresenceReporter interface {
	Presence() PresenceSnapshot
}

package persistence

import "time"

// Account represents a student account.
type Account struct {
	ID                  string
	Name                string
	RollNumber          string
	Email               string
	Phone               string
	Department          string
	Year                string
	Gender              string
	TeamID              *string
	PasswordHash        string
	CurrentSessionToken *string
	Status              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AccountVoteSummary aggregates an account's vote transactions.
type AccountVoteSummary struct {
	AccountID   string
	Votes       map[string]int
	LastVotedAt *time.Time
}

// Admin represents an administrator account.
type Admin struct {
	Username            string
	PasswordHash        string
	Role                string
	CurrentSessionToken *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Team represents a competing team.
type Team struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VoteTransaction is an immutable vote ledger entry.
type VoteTransaction struct {
	ID            string
	AccountID     string
	TeamID        string
	VoteCount     int
	EffectiveDate time.Time
	CreatedAt     time.Time
}

// VoteFilter narrows vote transaction queries. Zero values are ignored.
type VoteFilter struct {
	AccountID     string
	TeamID        string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	Limit         int
	Offset        int
}

// TeamVoteTotal is a per-team aggregate over a filtered set of transactions.
type TeamVoteTotal struct {
	TeamID string
	Votes  int
}

// Slot is a dated voting window stored inside the voting config.
type Slot struct {
	Date      string    `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Label     string    `json:"label"`
}

// VotingConfig is the singleton voting configuration row.
type VotingConfig struct {
	IsVotingOpen       bool
	StartTime          *time.Time
	EndTime            *time.Time
	CurrentSessionDate *string
	DailyQuota         int
	Slots              []Slot
	Version            int64
	UpdatedAt          time.Time
	UpdatedBy          string
}

// TeamScore is a judged score for a team on a calendar date.
type TeamScore struct {
	ID          string
	TeamID      string
	Date        string
	Advantage   int
	Main        int
	Special     int
	Elimination int
	Immunity    int
	Total       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScoreFilter narrows score queries by inclusive date range.
type ScoreFilter struct {
	TeamID   string
	DateFrom string
	DateTo   string
}

// AuditLog is an append-only record of an administrative or security action.
type AuditLog struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	Details   string
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// AuditFilter paginates audit log queries.
type AuditFilter struct {
	Actor  string
	Action string
	Limit  int
	Offset int
}

// AccessListEntry is a whitelist or blacklist row keyed by email.
type AccessListEntry struct {
	Email     string
	Reason    string
	AddedBy   string
	CreatedAt time.Time
}

// Event is a sequenced outbox record.
type Event struct {
	Seq int64
	// Target is empty for broadcasts, otherwise "student:<id>" or "admin:<username>".
	Target    string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

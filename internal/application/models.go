package application

import "time"

// PrincipalKind distinguishes student and administrator sessions.
type PrincipalKind string

const (
	// PrincipalStudent is a student account session.
	PrincipalStudent PrincipalKind = "student"
	// PrincipalAdmin is an administrator session.
	PrincipalAdmin PrincipalKind = "admin"
)

// Administrator roles.
const (
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// Account approval states.
const (
	AccountApproved = "APPROVED"
	AccountPending  = "PENDING"
)

// Audit actor types.
const (
	ActorStudent = "STUDENT"
	ActorAdmin   = "ADMIN"
	ActorSystem  = "SYSTEM"
)

// Principal represents the authenticated identity invoking a service method.
type Principal struct {
	Kind      PrincipalKind
	AccountID string
	Username  string
	Role      string
	TeamID    *string
}

// IsStudent reports whether the principal is a student session.
func (p Principal) IsStudent() bool { return p.Kind == PrincipalStudent && p.AccountID != "" }

// IsAdmin reports whether the principal is any administrator.
func (p Principal) IsAdmin() bool { return p.Kind == PrincipalAdmin && p.Username != "" }

// IsSuperAdmin reports whether the principal is a SUPER_ADMIN administrator.
func (p Principal) IsSuperAdmin() bool { return p.IsAdmin() && p.Role == RoleSuperAdmin }

// Subject returns the account ID or admin username.
func (p Principal) Subject() string {
	if p.Kind == PrincipalAdmin {
		return p.Username
	}
	return p.AccountID
}

// ActorType returns the audit actor type for the principal.
func (p Principal) ActorType() string {
	switch p.Kind {
	case PrincipalAdmin:
		return ActorAdmin
	case PrincipalStudent:
		return ActorStudent
	default:
		return ActorSystem
	}
}

// Target returns the push notification address of the principal.
func (p Principal) Target() string {
	return NotificationTarget(p.Kind, p.Subject())
}

// RequestMeta carries client details recorded in audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Account is a student account.
type Account struct {
	ID           string
	Name         string
	RollNumber   string
	Email        string
	Phone        string
	Department   string
	Year         string
	Gender       string
	TeamID       *string
	PasswordHash string
	SessionToken *string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountView is an account with vote aggregates computed from the ledger.
type AccountView struct {
	Account
	Votes       map[string]int
	TotalVotes  int
	LastVotedAt *time.Time
	LoggedIn    bool
}

// Admin is an administrator account.
type Admin struct {
	Username     string
	PasswordHash string
	Role         string
	SessionToken *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Team is a competing team.
type Team struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TeamInput captures caller provided team fields.
type TeamInput struct {
	Name        string
	Description string
	ImageURL    string
}

// VoteTransaction is one immutable ledger entry.
type VoteTransaction struct {
	ID            string
	AccountID     string
	TeamID        string
	VoteCount     int
	EffectiveDate time.Time
	CreatedAt     time.Time
}

// VoteSummary aggregates one account's ledger entries.
type VoteSummary struct {
	Votes       map[string]int
	LastVotedAt *time.Time
}

// TransactionFilter narrows ledger queries. Nil bounds are open.
type TransactionFilter struct {
	AccountID     string
	TeamID        string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	Limit         int
	Offset        int
}

// TeamTotal is a per-team vote sum.
type TeamTotal struct {
	TeamID string
	Votes  int
}

// Slot is a dated voting window.
type Slot struct {
	Date      string
	StartTime time.Time
	EndTime   time.Time
	Label     string
}

// VotingConfig is an immutable snapshot of the voting configuration.
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

// LegacyWindow is the absolute start/end window used when no slots or session date exist.
type LegacyWindow struct {
	Start *time.Time
	End   *time.Time
}

// ConfigInput is a partial config update. Nil fields keep their current value;
// an empty CurrentSessionDate or a LegacyWindow with nil bounds clears it.
type ConfigInput struct {
	IsVotingOpen       *bool
	DailyQuota         *int
	Slots              *[]Slot
	LegacyWindow       *LegacyWindow
	CurrentSessionDate *string
}

// TeamScore is a judged score for a team on one date.
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

// ScoreInput captures caller provided score fields.
type ScoreInput struct {
	TeamID      string
	Date        string
	Advantage   int
	Main        int
	Special     int
	Elimination int
	Immunity    int
}

// AuditEntry is one audit record.
type AuditEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	Details   string
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// AuditQuery paginates audit records.
type AuditQuery struct {
	Actor  string
	Action string
	Limit  int
	Offset int
}

// AuditPage is one page of audit records.
type AuditPage struct {
	Entries []AuditEntry
	Total   int
	Limit   int
	Offset  int
}

// AccessEntry is a whitelist or blacklist row.
type AccessEntry struct {
	Email     string
	Reason    string
	AddedBy   string
	CreatedAt time.Time
}

// AccessListKind selects the whitelist or the blacklist.
type AccessListKind string

const (
	// Whitelist pre-approves registrations.
	Whitelist AccessListKind = "whitelist"
	// Blacklist blocks registration and login.
	Blacklist AccessListKind = "blacklist"
)

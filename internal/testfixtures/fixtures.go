package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/campus-voting/internal/application"
	"github.com/example/campus-voting/internal/persistence"
)

var (
	accountCounter uint64
	teamCounter    uint64
	voteCounter    uint64
)

var referenceTime = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate returns ReferenceTime formatted as a session date.
func ReferenceDate() string {
	return referenceTime.Format(application.DateLayout)
}

// ---------------------------- Account fixtures ----------------------------

// AccountFixture is a deterministic student account.
type AccountFixture struct {
	ID           string
	Name         string
	RollNumber   string
	Email        string
	Department   string
	Year         string
	TeamID       *string
	PasswordHash string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountOption mutates an AccountFixture.
type AccountOption func(*AccountFixture)

// NewAccountFixture builds an approved account with unique identifiers.
func NewAccountFixture(opts ...AccountOption) AccountFixture {
	n := atomic.AddUint64(&accountCounter, 1)
	fixture := AccountFixture{
		ID:           fmt.Sprintf("account-%03d", n),
		Name:         fmt.Sprintf("Student %03d", n),
		RollNumber:   fmt.Sprintf("R%05d", n),
		Email:        fmt.Sprintf("student%03d@campus.test", n),
		Department:   "CSE",
		Year:         "3",
		PasswordHash: "hashed-password",
		Status:       application.AccountApproved,
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAccountID overrides the account identifier.
func WithAccountID(id string) AccountOption {
	return func(f *AccountFixture) { f.ID = id }
}

// WithAccountEmail overrides the account email.
func WithAccountEmail(email string) AccountOption {
	return func(f *AccountFixture) { f.Email = email }
}

// WithAccountTeam marks the account as a member of teamID.
func WithAccountTeam(teamID string) AccountOption {
	return func(f *AccountFixture) {
		id := teamID
		f.TeamID = &id
	}
}

// WithAccountPasswordHash overrides the stored hash.
func WithAccountPasswordHash(hash string) AccountOption {
	return func(f *AccountFixture) { f.PasswordHash = hash }
}

// WithAccountPending leaves the account awaiting approval.
func WithAccountPending() AccountOption {
	return func(f *AccountFixture) { f.Status = application.AccountPending }
}

// Application returns the fixture as an application account.
func (f AccountFixture) Application() application.Account {
	return application.Account{
		ID:           f.ID,
		Name:         f.Name,
		RollNumber:   f.RollNumber,
		Email:        f.Email,
		Department:   f.Department,
		Year:         f.Year,
		TeamID:       copyStringPtr(f.TeamID),
		PasswordHash: f.PasswordHash,
		Status:       f.Status,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Persistence returns the fixture as a stored account row.
func (f AccountFixture) Persistence() persistence.Account {
	return persistence.Account{
		ID:           f.ID,
		Name:         f.Name,
		RollNumber:   f.RollNumber,
		Email:        f.Email,
		Department:   f.Department,
		Year:         f.Year,
		TeamID:       copyStringPtr(f.TeamID),
		PasswordHash: f.PasswordHash,
		Status:       f.Status,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Principal returns the student principal for the account.
func (f AccountFixture) Principal() application.Principal {
	return application.Principal{Kind: application.PrincipalStudent, AccountID: f.ID, TeamID: copyStringPtr(f.TeamID)}
}

// ----------------------------- Team fixtures ------------------------------

// TeamFixture is a deterministic team.
type TeamFixture struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TeamOption mutates a TeamFixture.
type TeamOption func(*TeamFixture)

// NewTeamFixture builds a team with unique identifiers.
func NewTeamFixture(opts ...TeamOption) TeamFixture {
	n := atomic.AddUint64(&teamCounter, 1)
	fixture := TeamFixture{
		ID:          fmt.Sprintf("team-%03d", n),
		Name:        fmt.Sprintf("Team %03d", n),
		Description: "Demo day entry",
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithTeamID overrides the team identifier.
func WithTeamID(id string) TeamOption {
	return func(f *TeamFixture) { f.ID = id }
}

// WithTeamName overrides the team name.
func WithTeamName(name string) TeamOption {
	return func(f *TeamFixture) { f.Name = name }
}

// Application returns the fixture as an application team.
func (f TeamFixture) Application() application.Team {
	return application.Team{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		ImageURL:    f.ImageURL,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Persistence returns the fixture as a stored team row.
func (f TeamFixture) Persistence() persistence.Team {
	return persistence.Team{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		ImageURL:    f.ImageURL,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Input returns the caller supplied team fields.
func (f TeamFixture) Input() application.TeamInput {
	return application.TeamInput{Name: f.Name, Description: f.Description, ImageURL: f.ImageURL}
}

// ----------------------------- Vote fixtures ------------------------------

// VoteFixture is a deterministic ledger entry.
type VoteFixture struct {
	ID            string
	AccountID     string
	TeamID        string
	VoteCount     int
	EffectiveDate time.Time
	CreatedAt     time.Time
}

// VoteOption mutates a VoteFixture.
type VoteOption func(*VoteFixture)

// NewVoteFixture builds a single vote dated on the reference day.
func NewVoteFixture(accountID, teamID string, opts ...VoteOption) VoteFixture {
	n := atomic.AddUint64(&voteCounter, 1)
	fixture := VoteFixture{
		ID:            fmt.Sprintf("vote-%03d", n),
		AccountID:     accountID,
		TeamID:        teamID,
		VoteCount:     1,
		EffectiveDate: application.StartOfDay(referenceTime),
		CreatedAt:     referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithVoteCount overrides the number of votes in the entry.
func WithVoteCount(count int) VoteOption {
	return func(f *VoteFixture) { f.VoteCount = count }
}

// WithVoteCreatedAt sets the creation instant and derives the effective date from it.
func WithVoteCreatedAt(t time.Time) VoteOption {
	return func(f *VoteFixture) {
		f.CreatedAt = t
		f.EffectiveDate = application.StartOfDay(t)
	}
}

// Application returns the fixture as an application transaction.
func (f VoteFixture) Application() application.VoteTransaction {
	return application.VoteTransaction{
		ID:            f.ID,
		AccountID:     f.AccountID,
		TeamID:        f.TeamID,
		VoteCount:     f.VoteCount,
		EffectiveDate: f.EffectiveDate,
		CreatedAt:     f.CreatedAt,
	}
}

// Persistence returns the fixture as a stored ledger row.
func (f VoteFixture) Persistence() persistence.VoteTransaction {
	return persistence.VoteTransaction{
		ID:            f.ID,
		AccountID:     f.AccountID,
		TeamID:        f.TeamID,
		VoteCount:     f.VoteCount,
		EffectiveDate: f.EffectiveDate,
		CreatedAt:     f.CreatedAt,
	}
}

// ---------------------------- Config fixtures -----------------------------

// OpenSlotInput returns a config update that opens voting with one slot
// covering the whole reference day.
func OpenSlotInput(quota int) application.ConfigInput {
	open := true
	start := application.StartOfDay(referenceTime)
	return application.ConfigInput{
		IsVotingOpen: &open,
		DailyQuota:   &quota,
		Slots: &[]application.Slot{{
			Date:      ReferenceDate(),
			StartTime: start,
			EndTime:   start.Add(24*time.Hour - time.Second),
			Label:     "Day 1",
		}},
	}
}

// SuperAdminPrincipal is an administrator principal with full rights.
func SuperAdminPrincipal() application.Principal {
	return application.Principal{Kind: application.PrincipalAdmin, Username: "root", Role: application.RoleSuperAdmin}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

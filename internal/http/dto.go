package http

import (
	"time"

	"github.com/example/campus-voting/internal/application"
)

// Request and response payloads. Times are RFC 3339 in UTC; dates are YYYY-MM-DD.

type principalDTO struct {
	Kind      string  `json:"kind"`
	AccountID string  `json:"account_id,omitempty"`
	Username  string  `json:"username,omitempty"`
	Role      string  `json:"role,omitempty"`
	TeamID    *string `json:"team_id,omitempty"`
}

func toPrincipalDTO(p application.Principal) principalDTO {
	return principalDTO{
		Kind:      string(p.Kind),
		AccountID: p.AccountID,
		Username:  p.Username,
		Role:      p.Role,
		TeamID:    p.TeamID,
	}
}

type accountDTO struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	RollNumber string    `json:"roll_number"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Department string    `json:"department,omitempty"`
	Year       string    `json:"year,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	TeamID     *string   `json:"team_id,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toAccountDTO(a application.Account) accountDTO {
	return accountDTO{
		ID:         a.ID,
		Name:       a.Name,
		RollNumber: a.RollNumber,
		Email:      a.Email,
		Phone:      a.Phone,
		Department: a.Department,
		Year:       a.Year,
		Gender:     a.Gender,
		TeamID:     a.TeamID,
		Status:     a.Status,
		CreatedAt:  a.CreatedAt.UTC(),
		UpdatedAt:  a.UpdatedAt.UTC(),
	}
}

type accountViewDTO struct {
	accountDTO
	Votes       map[string]int `json:"votes"`
	TotalVotes  int            `json:"total_votes"`
	LastVotedAt *string        `json:"last_voted_at"`
	LoggedIn    bool           `json:"logged_in"`
}

func toAccountViewDTO(v application.AccountView) accountViewDTO {
	votes := v.Votes
	if votes == nil {
		votes = map[string]int{}
	}
	return accountViewDTO{
		accountDTO:  toAccountDTO(v.Account),
		Votes:       votes,
		TotalVotes:  v.TotalVotes,
		LastVotedAt: datePointer(v.LastVotedAt),
		LoggedIn:    v.LoggedIn,
	}
}

type adminDTO struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	LoggedIn  bool      `json:"logged_in"`
	CreatedAt time.Time `json:"created_at"`
}

func toAdminDTO(a application.Admin) adminDTO {
	return adminDTO{
		Username:  a.Username,
		Role:      a.Role,
		LoggedIn:  a.SessionToken != nil,
		CreatedAt: a.CreatedAt.UTC(),
	}
}

type teamDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toTeamDTO(t application.Team) teamDTO {
	return teamDTO{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		ImageURL:    t.ImageURL,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
}

type transactionDTO struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	TeamID        string    `json:"team_id"`
	VoteCount     int       `json:"vote_count"`
	EffectiveDate string    `json:"effective_date"`
	CreatedAt     time.Time `json:"created_at"`
}

func toTransactionDTO(tx application.VoteTransaction) transactionDTO {
	return transactionDTO{
		ID:            tx.ID,
		AccountID:     tx.AccountID,
		TeamID:        tx.TeamID,
		VoteCount:     tx.VoteCount,
		EffectiveDate: tx.EffectiveDate.Format(application.DateLayout),
		CreatedAt:     tx.CreatedAt.UTC(),
	}
}

type slotDTO struct {
	Date      string    `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Label     string    `json:"label,omitempty"`
}

func toSlotDTO(s application.Slot) slotDTO {
	return slotDTO{Date: s.Date, StartTime: s.StartTime.UTC(), EndTime: s.EndTime.UTC(), Label: s.Label}
}

func (s slotDTO) toSlot() application.Slot {
	return application.Slot{Date: s.Date, StartTime: s.StartTime, EndTime: s.EndTime, Label: s.Label}
}

type configDTO struct {
	IsVotingOpen       bool       `json:"is_voting_open"`
	StartTime          *time.Time `json:"start_time"`
	EndTime            *time.Time `json:"end_time"`
	CurrentSessionDate *string    `json:"current_session_date"`
	DailyQuota         int        `json:"daily_quota"`
	Slots              []slotDTO  `json:"slots"`
	Version            int64      `json:"version"`
	UpdatedAt          time.Time  `json:"updated_at"`
	UpdatedBy          string     `json:"updated_by"`
}

func toConfigDTO(cfg application.VotingConfig) configDTO {
	slots := make([]slotDTO, 0, len(cfg.Slots))
	for _, slot := range cfg.Slots {
		slots = append(slots, toSlotDTO(slot))
	}
	return configDTO{
		IsVotingOpen:       cfg.IsVotingOpen,
		StartTime:          utcPointer(cfg.StartTime),
		EndTime:            utcPointer(cfg.EndTime),
		CurrentSessionDate: cfg.CurrentSessionDate,
		DailyQuota:         cfg.DailyQuota,
		Slots:              slots,
		Version:            cfg.Version,
		UpdatedAt:          cfg.UpdatedAt.UTC(),
		UpdatedBy:          cfg.UpdatedBy,
	}
}

type windowDTO struct {
	Mode          string    `json:"mode"`
	EffectiveDate string    `json:"effective_date"`
	BoundaryStart time.Time `json:"boundary_start"`
	BoundaryEnd   time.Time `json:"boundary_end"`
	Slot          *slotDTO  `json:"slot,omitempty"`
}

func toWindowDTO(w *application.Window) *windowDTO {
	if w == nil {
		return nil
	}
	dto := &windowDTO{
		Mode:          string(w.Mode),
		EffectiveDate: w.EffectiveDateString(),
		BoundaryStart: w.Boundary.Start.UTC(),
		BoundaryEnd:   w.Boundary.End.UTC(),
	}
	if w.Slot != nil {
		slot := toSlotDTO(*w.Slot)
		dto.Slot = &slot
	}
	return dto
}

type personalUsageDTO struct {
	Used        int            `json:"used"`
	Remaining   int            `json:"remaining"`
	PerTeamUsed map[string]int `json:"per_team_used"`
	TeamID      *string        `json:"team_id"`
}

type votingStatusDTO struct {
	Config       configDTO         `json:"config"`
	Open         bool              `json:"open"`
	ClosedReason string            `json:"closed_reason,omitempty"`
	Window       *windowDTO        `json:"window,omitempty"`
	PerTeamCap   int               `json:"per_team_cap"`
	ServerTime   time.Time         `json:"server_time"`
	Personal     *personalUsageDTO `json:"personal,omitempty"`
}

func toVotingStatusDTO(s application.VotingStatus) votingStatusDTO {
	dto := votingStatusDTO{
		Config:       toConfigDTO(s.Config),
		Open:         s.Open,
		ClosedReason: string(s.ClosedReason),
		Window:       toWindowDTO(s.Window),
		PerTeamCap:   s.PerTeamCap,
		ServerTime:   s.ServerTime.UTC(),
	}
	if s.Personal != nil {
		used := s.Personal.PerTeamUsed
		if used == nil {
			used = map[string]int{}
		}
		dto.Personal = &personalUsageDTO{
			Used:        s.Personal.Used,
			Remaining:   s.Personal.Remaining,
			PerTeamUsed: used,
			TeamID:      s.Personal.TeamID,
		}
	}
	return dto
}

type castRequest struct {
	Votes map[string]int `json:"votes"`
}

type castResultDTO struct {
	Accepted      map[string]int   `json:"accepted"`
	Transactions  []transactionDTO `json:"transactions"`
	EffectiveDate string           `json:"effective_date"`
	Mode          string           `json:"mode"`
	SlotLabel     string           `json:"slot_label,omitempty"`
	Used          int              `json:"used"`
	Remaining     int              `json:"remaining"`
	DailyQuota    int              `json:"daily_quota"`
	PerTeamCap    int              `json:"per_team_cap"`
	PerTeamUsed   map[string]int   `json:"per_team_used"`
}

func toCastResultDTO(r application.CastResult) castResultDTO {
	txs := make([]transactionDTO, 0, len(r.Transactions))
	for _, tx := range r.Transactions {
		txs = append(txs, toTransactionDTO(tx))
	}
	return castResultDTO{
		Accepted:      r.Accepted,
		Transactions:  txs,
		EffectiveDate: r.EffectiveDate,
		Mode:          string(r.Mode),
		SlotLabel:     r.SlotLabel,
		Used:          r.Used,
		Remaining:     r.Remaining,
		DailyQuota:    r.DailyQuota,
		PerTeamCap:    r.PerTeamCap,
		PerTeamUsed:   r.PerTeamUsed,
	}
}

type standingDTO struct {
	Rank     int    `json:"rank"`
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
	ImageURL string `json:"image_url,omitempty"`
	Votes    int    `json:"votes"`
	Score    int    `json:"score"`
}

func toStandingDTOs(standings []application.Standing) []standingDTO {
	out := make([]standingDTO, 0, len(standings))
	for _, s := range standings {
		out = append(out, standingDTO{
			Rank:     s.Rank,
			TeamID:   s.TeamID,
			TeamName: s.TeamName,
			ImageURL: s.ImageURL,
			Votes:    s.Votes,
			Score:    s.Score,
		})
	}
	return out
}

type leaderboardDTO struct {
	Scope     string        `json:"scope"`
	From      string        `json:"from,omitempty"`
	To        string        `json:"to,omitempty"`
	Standings []standingDTO `json:"standings"`
}

func toLeaderboardDTO(l application.Leaderboard) leaderboardDTO {
	return leaderboardDTO{Scope: string(l.Scope), From: l.From, To: l.To, Standings: toStandingDTOs(l.Standings)}
}

type scoreDTO struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	Date        string    `json:"date"`
	Advantage   int       `json:"advantage"`
	Main        int       `json:"main"`
	Special     int       `json:"special"`
	Elimination int       `json:"elimination"`
	Immunity    int       `json:"immunity"`
	Total       int       `json:"total"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toScoreDTO(s application.TeamScore) scoreDTO {
	return scoreDTO{
		ID:          s.ID,
		TeamID:      s.TeamID,
		Date:        s.Date,
		Advantage:   s.Advantage,
		Main:        s.Main,
		Special:     s.Special,
		Elimination: s.Elimination,
		Immunity:    s.Immunity,
		Total:       s.Total,
		CreatedAt:   s.CreatedAt.UTC(),
		UpdatedAt:   s.UpdatedAt.UTC(),
	}
}

type auditDTO struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	ActorType string    `json:"actor_type"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

func toAuditDTO(e application.AuditEntry) auditDTO {
	return auditDTO{
		ID:        e.ID,
		Actor:     e.Actor,
		ActorType: e.ActorType,
		Action:    e.Action,
		Details:   e.Details,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: e.CreatedAt.UTC(),
	}
}

type accessEntryDTO struct {
	Email     string    `json:"email"`
	Reason    string    `json:"reason,omitempty"`
	AddedBy   string    `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

func toAccessEntryDTO(e application.AccessEntry) accessEntryDTO {
	return accessEntryDTO{Email: e.Email, Reason: e.Reason, AddedBy: e.AddedBy, CreatedAt: e.CreatedAt.UTC()}
}

type presenceDTO struct {
	Students    int            `json:"students"`
	Admins      int            `json:"admins"`
	Connections int            `json:"connections"`
	ByIdentity  map[string]int `json:"by_identity"`
}

func toPresenceDTO(p application.PresenceSnapshot) presenceDTO {
	byIdentity := p.ByIdentity
	if byIdentity == nil {
		byIdentity = map[string]int{}
	}
	return presenceDTO{Students: p.Students, Admins: p.Admins, Connections: p.Connections, ByIdentity: byIdentity}
}

type dashboardDTO struct {
	Accounts        int           `json:"accounts"`
	PendingAccounts int           `json:"pending_accounts"`
	LoggedIn        int           `json:"logged_in"`
	Teams           int           `json:"teams"`
	TotalVotes      int           `json:"total_votes"`
	VotesInBoundary int           `json:"votes_in_boundary"`
	Window          *windowDTO    `json:"window,omitempty"`
	ClosedReason    string        `json:"closed_reason,omitempty"`
	Config          configDTO     `json:"config"`
	Presence        presenceDTO   `json:"presence"`
	TopStandings    []standingDTO `json:"top_standings"`
}

func toDashboardDTO(d application.Dashboard) dashboardDTO {
	return dashboardDTO{
		Accounts:        d.Accounts,
		PendingAccounts: d.PendingAccounts,
		LoggedIn:        d.LoggedIn,
		Teams:           d.Teams,
		TotalVotes:      d.TotalVotes,
		VotesInBoundary: d.VotesInBoundary,
		Window:          toWindowDTO(d.Window),
		ClosedReason:    string(d.ClosedReason),
		Config:          toConfigDTO(d.Config),
		Presence:        toPresenceDTO(d.Presence),
		TopStandings:    toStandingDTOs(d.TopStandings),
	}
}

type pageDTO[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func mapSlice[S, T any](in []S, convert func(S) T) []T {
	out := make([]T, 0, len(in))
	for _, item := range in {
		out = append(out, convert(item))
	}
	return out
}

func datePointer(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(application.DateLayout)
	return &s
}

func utcPointer(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

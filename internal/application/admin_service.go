package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// StandingsSource yields the overall leaderboard.
type StandingsSource interface {
	Overall(ctx context.Context) (Leaderboard, error)
}

// AdminServiceDeps groups the collaborators of AdminService.
type AdminServiceDeps struct {
	Accounts    AccountStore
	Admins      AdminStore
	Teams       TeamStore
	Ledger      VoteLedger
	Config      ConfigSource
	Whitelist   AccessListStore
	Audits      AuditStore
	Presence    PresenceReporter
	Standings   StandingsSource
	Leaderboard Invalidator
	Notifier    Notifier
	Audit       *AuditRecorder
	Hash        PasswordHasher
	Now         func() time.Time
	Logger      *slog.Logger
}

// AdminService implements the administrator surface that is not covered by
// the team, config, score and access list services.
type AdminService struct {
	accounts    AccountStore
	admins      AdminStore
	teams       TeamStore
	ledger      VoteLedger
	config      ConfigSource
	whitelist   AccessListStore
	audits      AuditStore
	presence    PresenceReporter
	standings   StandingsSource
	leaderboard Invalidator
	notifier    Notifier
	audit       *AuditRecorder
	hash        PasswordHasher
	now         func() time.Time
	logger      *slog.Logger
}

// NewAdminService constructs an AdminService.
func NewAdminService(deps AdminServiceDeps) *AdminService {
	if deps.Hash == nil {
		deps.Hash = HashPassword
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &AdminService{
		accounts:    deps.Accounts,
		admins:      deps.Admins,
		teams:       deps.Teams,
		ledger:      deps.Ledger,
		config:      deps.Config,
		whitelist:   deps.Whitelist,
		audits:      deps.Audits,
		presence:    deps.Presence,
		standings:   deps.Standings,
		leaderboard: deps.Leaderboard,
		notifier:    deps.Notifier,
		audit:       deps.Audit,
		hash:        deps.Hash,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
	}
}

func (s *AdminService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AdminService", operation, attrs...)
}

// Dashboard summarises the current state for administrators.
type Dashboard struct {
	Accounts        int
	PendingAccounts int
	LoggedIn        int
	Teams           int
	TotalVotes      int
	VotesInBoundary int
	Window          *Window
	ClosedReason    ClosedReason
	Config          VotingConfig
	Presence        PresenceSnapshot
	TopStandings    []Standing
}

// Dashboard collects counts, current-boundary votes, presence and the top standings.
func (s *AdminService) Dashboard(ctx context.Context, principal Principal) (dash Dashboard, err error) {
	if s == nil {
		err = fmt.Errorf("AdminService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Dashboard", "principal", principal.Subject())
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to build dashboard", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.IsAdmin() {
		err = ErrForbidden
		return
	}
	if s.accounts == nil || s.teams == nil || s.ledger == nil || s.config == nil {
		err = fmt.Errorf("admin service not configured")
		return
	}

	var accounts []Account
	accounts, err = s.accounts.ListAccounts(ctx)
	if err != nil {
		return
	}
	dash.Accounts = len(accounts)
	for _, account := range accounts {
		if account.Status == AccountPending {
			dash.PendingAccounts++
		}
		if account.SessionToken != nil {
			dash.LoggedIn++
		}
	}

	var teams []Team
	teams, err = s.teams.ListTeams(ctx)
	if err != nil {
		return
	}
	dash.Teams = len(teams)

	dash.Config, err = s.config.Snapshot(ctx)
	if err != nil {
		return
	}
	now := s.now().UTC()
	boundary := DayBoundary(now)
	if window, windowErr := ResolveWindow(dash.Config, now); windowErr == nil {
		dash.Window = &window
		boundary = window.Boundary
	} else {
		var closed *VotingClosedError
		if errors.As(windowErr, &closed) {
			dash.ClosedReason = closed.Reason
		}
	}
	if !dash.Config.IsVotingOpen {
		dash.ClosedReason = ClosedDisabled
	}

	var totals []TeamTotal
	totals, err = s.ledger.TeamTotals(ctx, TransactionFilter{})
	if err != nil {
		return
	}
	for _, total := range totals {
		dash.TotalVotes += total.Votes
	}
	from, to := boundary.Start, boundary.End
	totals, err = s.ledger.TeamTotals(ctx, TransactionFilter{CreatedFrom: &from, CreatedTo: &to})
	if err != nil {
		return
	}
	for _, total := range totals {
		dash.VotesInBoundary += total.Votes
	}

	if s.presence != nil {
		dash.Presence = s.presence.Presence()
	}
	if s.standings != nil {
		var board Leaderboard
		board, err = s.standings.Overall(ctx)
		if err != nil {
			return
		}
		top := board.Standings
		if len(top) > 5 {
			top = top[:5]
		}
		dash.TopStandings = top
	}
	return
}

// Presence reports live push connections.
func (s *AdminService) Presence(ctx context.Context, principal Principal) (PresenceSnapshot, error) {
	if s == nil {
		return PresenceSnapshot{}, fmt.Errorf("AdminService is nil")
	}
	if !principal.IsAdmin() {
		return PresenceSnapshot{}, ErrForbidden
	}
	if s.presence == nil {
		return PresenceSnapshot{ByIdentity: map[string]int{}}, nil
	}
	return s.presence.Presence(), nil
}

// ListAccounts returns every account with vote totals computed from the ledger.
func (s *AdminService) ListAccounts(ctx context.Context, principal Principal) (views []AccountView, err error) {
	if s == nil {
		err = fmt.Errorf("AdminService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListAccounts", "principal", principal.Subject())
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list accounts", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(views)).InfoContext(ctx, "accounts listed")
	}()

	if !principal.IsAdmin() {
		err = ErrForbidden
		return
	}
	if s.accounts == nil {
		err = fmt.Errorf("account store not configured")
		return
	}

	var accounts []Account
	accounts, err = s.accounts.ListAccounts(ctx)
	if err != nil {
		return
	}
	summaries := map[string]VoteSummary{}
	if s.ledger != nil {
		summaries, err = s.ledger.Summaries(ctx)
		if err != nil {
			return
		}
	}

	views = make([]AccountView, 0, len(accounts))
	for _, account := range accounts {
		view := AccountView{Account: account, Votes: map[string]int{}, LoggedIn: account.SessionToken != nil}
		if summary, ok := summaries[account.ID]; ok {
			applySummary(&view, summary)
		}
		view.PasswordHash = ""
		view.SessionToken = nil
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].CreatedAt.After(views[j].CreatedAt) })
	return
}

// ApproveAccount marks a pending account approved and whitelists its email
// best-effort.
func (s *AdminService) ApproveAccount(ctx context.Context, principal Principal, accountID string, meta RequestMeta) (account Account, err error) {
	if s == nil {
		err = fmt.Errorf("AdminService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ApproveAccount", "principal", principal.Subject(), "account_id", accountID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to approve account", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "account approved")
	}()

	if !principal.IsAdmin() {
		err = ErrForbidden
		return
	}
	if s.accounts == nil {
		err = fmt.Errorf("account store not configured")
		return
	}

	account, err = s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if account.Status != AccountApproved {
		account.Status = AccountApproved
		account.UpdatedAt = s.now().UTC()
		if err = s.accounts.UpdateAccount(ctx, account); err != nil {
			err = mapStoreError(err)
			return
		}
	}

	if s.whitelist != nil {
		entry := AccessEntry{Email: account.Email, Reason: "approved", AddedBy: principal.Subject(), CreatedAt: s.now().UTC()}
		if wlErr := s.whitelist.AddEntry(ctx, entry); wlErr != nil && !isAlreadyExists(wlErr) {
			logger.WarnContext(ctx, "auto-whitelist failed", "error", wlErr, "error_kind", ErrorKind(wlErr))
		}
	}

	s.audit.RecordFor(ctx, principal, AuditApproveUser, meta, map[string]string{"account_id": account.ID, "email": account.Email})
	publish(ctx, s.notifier, logger, Notification{Type: EventDataChanged, Payload: map[string]string{"scope": "accounts"}})
	account.PasswordHash = ""
	account.SessionToken = nil
	return
}

// DeleteAccount removes an account and its transactions. SUPER_ADMIN only.
func (s *AdminService) DeleteAccount(ctx context.Context, principal Principal, accountID string, meta RequestMeta) (err error) {
	if s == nil {
		return fmt.Errorf("AdminService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteAccount", "principal", principal.Subject(), "account_id", accountID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete account", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "account deleted")
	}()

	if !principal.IsSuperAdmin() {
		return ErrForbidden
	}
	if s.accounts == nil {
		return fmt.Errorf("account store not configured")
	}

	var account Account
	account, err = s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if err = s.accounts.DeleteAccount(ctx, accountID); err != nil {
		err = mapStoreError(err)
		return
	}

	s.audit.RecordFor(ctx, principal, AuditDeleteUser, meta, map[string]string{"account_id": accountID, "email": account.Email})
	s.invalidate()
	publish(ctx, s.notifier, logger, changedEvents("accounts", Notification{
		Type:    EventForceLogout,
		Target:  NotificationTarget(PrincipalStudent, accountID),
		Payload: map[string]string{"account_id": accountID, "reason": "deleted"},
	})...)
	return nil
}

// DeleteAccountVotes removes an account's transactions for one team, or for
// every team when teamID is empty. SUPER_ADMIN only. Deleting one team's
// votes fails with ErrNotFound when the account has none.
func (s *AdminService) DeleteAccountVotes(ctx context.Context, principal Principal, accountID, teamID string, meta RequestMeta) (deleted int, err error) {
	if s == nil {
		err = fmt.Errorf("AdminService is nil")
		return
	}

	logger := s.loggerWith(ctx, "DeleteAccountVotes", "principal", principal.Subject(), "account_id", accountID, "team_id", teamID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete votes", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("deleted", deleted).InfoContext(ctx, "votes deleted")
	}()

	if !principal.IsSuperAdmin() {
		err = ErrForbidden
		return
	}
	if s.accounts == nil || s.ledger == nil {
		err = fmt.Errorf("admin service not configured")
		return
	}

	if _, err = s.accounts.GetAccount(ctx, accountID); err != nil {
		err = mapStoreError(err)
		return
	}
	deleted, err = s.ledger.DeleteVotes(ctx, accountID, teamID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	if teamID != "" && deleted == 0 {
		err = fmt.Errorf("%w: no votes for team %s", ErrNotFound, teamID)
		return
	}

	action := AuditDeleteUserVotes
	details := map[string]any{"account_id": accountID, "deleted": deleted}
	if teamID != "" {
		action = AuditDeleteUserTeamVotes
		details["team_id"] = teamID
	}
	s.audit.RecordFor(ctx, principal, action, meta, details)
	s.invalidate()
	publish(ctx, s.notifier, logger, changedEvents("votes")...)
	return
}

// TransactionPage is one page of ledger entries.
type TransactionPage struct {
	Transactions []VoteTransaction
	Total        int
	Limit        int
	Offset       int
}

// ListTransactions pages through the ledger. SUPER_ADMIN only. A zero limit
// returns every match.
func (s *AdminService) ListTransactions(ctx context.Context, principal Principal, filter TransactionFilter) (page TransactionPage, err error) {
	if s == nil {
		err = fmt.Errorf("AdminService is nil")
		return
	}
	if !principal.IsSuperAdmin() {
		err = ErrForbidden
		return
	}
	if s.ledger == nil {
		err = fmt.Errorf("vote ledger not configured")
		return
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		err = NewValidationError("limit", "limit and offset must be non-negative")
		return
	}

	page.Transactions, err = s.ledger.ListTransactions(ctx, filter)
	if err == nil {
		page.Total, err = s.ledger.CountTransactions(ctx, filter)
	}
	if err != nil {
		err = mapStoreError(err)
		s.loggerWith(ctx, "ListTransactions").ErrorContext(ctx, "failed to list transactions", "error", err, "error_kind", ErrorKind(err))
		return
	}
	page.Limit, page.Offset = filter.Limit, filter.Offset
	return
}

// ListAudit pages through audit records. SUPER_ADMIN only.
func (s *AdminService) ListAudit(ctx context.Context, principal Principal, query AuditQuery) (page AuditPage, err error) {
	if s == nil {
		err = fmt.Errorf("AdminService is nil")
		return
	}
	if !principal.IsSuperAdmin() {
		err = ErrForbidden
		return
	}
	if s.audits == nil {
		err = fmt.Errorf("audit store not configured")
		return
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 500 {
		query.Limit = 500
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	page.Entries, page.Total, err = s.audits.ListAudit(ctx, query)
	if err != nil {
		err = mapStoreError(err)
		s.loggerWith(ctx, "ListAudit").ErrorContext(ctx, "failed to list audit logs", "error", err, "error_kind", ErrorKind(err))
		return
	}
	page.Limit, page.Offset = query.Limit, query.Offset
	return
}

// AdminInput captures a new administrator.
type AdminInput struct {
	Username string
	Password string
	Role     string
}

// ListAdmins returns administrators without credentials. SUPER_ADMIN only.
func (s *AdminService) ListAdmins(ctx context.Context, principal Principal) ([]Admin, error) {
	if s == nil {
		return nil, fmt.Errorf("AdminService is nil")
	}
	if !principal.IsSuperAdmin() {
		return nil, ErrForbidden
	}
	if s.admins == nil {
		return nil, fmt.Errorf("admin store not configured")
	}
	admins, err := s.admins.ListAdmins(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	for i := range admins {
		admins[i].PasswordHash = ""
		admins[i].SessionToken = nil
	}
	return admins, nil
}

// CreateAdmin adds an administrator. SUPER_ADMIN only.
func (s *AdminService) CreateAdmin(ctx context.Context, principal Principal, input AdminInput, meta RequestMeta) (admin Admin, err error) {
	if s == nil {
		err = fmt.Errorf("AdminService is nil")
		return
	}

	username := strings.TrimSpace(input.Username)
	logger := s.loggerWith(ctx, "CreateAdmin", "principal", principal.Subject(), "username", username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create admin", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "admin created")
	}()

	if !principal.IsSuperAdmin() {
		err = ErrForbidden
		return
	}
	if s.admins == nil {
		err = fmt.Errorf("admin store not configured")
		return
	}

	role := strings.ToUpper(strings.TrimSpace(input.Role))
	if role == "" {
		role = RoleAdmin
	}
	vErr := &ValidationError{}
	if username == "" {
		vErr.add("username", "username is required")
	}
	if len(input.Password) < MinPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if role != RoleAdmin && role != RoleSuperAdmin {
		vErr.add("role", "role must be ADMIN or SUPER_ADMIN")
	}
	if vErr.HasErrors() {
		vErr.Message = "invalid admin"
		err = vErr
		return
	}

	var hash string
	hash, err = s.hash(input.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}
	now := s.now().UTC()
	admin = Admin{Username: username, PasswordHash: hash, Role: role, CreatedAt: now, UpdatedAt: now}
	if err = s.admins.CreateAdmin(ctx, admin); err != nil {
		err = mapStoreError(err)
		return
	}

	s.audit.RecordFor(ctx, principal, AuditCreateAdmin, meta, map[string]string{"username": username, "role": role})
	admin.PasswordHash = ""
	return
}

// DeleteAdmin removes an administrator other than the caller. SUPER_ADMIN only.
func (s *AdminService) DeleteAdmin(ctx context.Context, principal Principal, username string, meta RequestMeta) (err error) {
	if s == nil {
		return fmt.Errorf("AdminService is nil")
	}

	username = strings.TrimSpace(username)
	logger := s.loggerWith(ctx, "DeleteAdmin", "principal", principal.Subject(), "username", username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete admin", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "admin deleted")
	}()

	if !principal.IsSuperAdmin() {
		return ErrForbidden
	}
	if s.admins == nil {
		return fmt.Errorf("admin store not configured")
	}
	if strings.EqualFold(username, principal.Username) {
		return NewValidationError("username", "administrators cannot delete themselves")
	}
	if err = s.admins.DeleteAdmin(ctx, username); err != nil {
		err = mapStoreError(err)
		return
	}

	s.audit.RecordFor(ctx, principal, AuditDeleteAdmin, meta, map[string]string{"username": username})
	publish(ctx, s.notifier, logger, Notification{
		Type:    EventForceLogout,
		Target:  NotificationTarget(PrincipalAdmin, username),
		Payload: map[string]string{"username": username, "reason": "deleted"},
	})
	return nil
}

func (s *AdminService) invalidate() {
	if s.leaderboard != nil {
		s.leaderboard.Invalidate()
	}
}

func isAlreadyExists(err error) bool {
	return errors.Is(mapStoreError(err), ErrAlreadyExists)
}

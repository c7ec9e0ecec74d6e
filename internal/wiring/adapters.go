package wiring

import (
	"context"

	"github.com/example/campus-voting/internal/application"
	"github.com/example/campus-voting/internal/persistence"
)

type accountStoreAdapter struct {
	repo persistence.AccountRepository
}

func newAccountStoreAdapter(repo persistence.AccountRepository) *accountStoreAdapter {
	return &accountStoreAdapter{repo: repo}
}

func (a *accountStoreAdapter) CreateAccount(ctx context.Context, account application.Account) error {
	return a.repo.CreateAccount(ctx, toPersistenceAccount(account))
}

func (a *accountStoreAdapter) UpdateAccount(ctx context.Context, account application.Account) error {
	return a.repo.UpdateAccount(ctx, toPersistenceAccount(account))
}

func (a *accountStoreAdapter) GetAccount(ctx context.Context, id string) (application.Account, error) {
	stored, err := a.repo.GetAccount(ctx, id)
	if err != nil {
		return application.Account{}, err
	}
	return toApplicationAccount(stored), nil
}

func (a *accountStoreAdapter) GetAccountByEmail(ctx context.Context, email string) (application.Account, error) {
	stored, err := a.repo.GetAccountByEmail(ctx, email)
	if err != nil {
		return application.Account{}, err
	}
	return toApplicationAccount(stored), nil
}

func (a *accountStoreAdapter) ListAccounts(ctx context.Context) ([]application.Account, error) {
	stored, err := a.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	accounts := make([]application.Account, 0, len(stored))
	for _, account := range stored {
		accounts = append(accounts, toApplicationAccount(account))
	}
	return accounts, nil
}

func (a *accountStoreAdapter) DeleteAccount(ctx context.Context, id string) error {
	return a.repo.DeleteAccount(ctx, id)
}

func (a *accountStoreAdapter) SetSessionToken(ctx context.Context, id string, token *string) error {
	return a.repo.SetSessionToken(ctx, id, token)
}

func (a *accountStoreAdapter) CountAccounts(ctx context.Context) (int, error) {
	return a.repo.CountAccounts(ctx)
}

func toPersistenceAccount(account application.Account) persistence.Account {
	return persistence.Account{
		ID:                  account.ID,
		Name:                account.Name,
		RollNumber:          account.RollNumber,
		Email:               account.Email,
		Phone:               account.Phone,
		Department:          account.Department,
		Year:                account.Year,
		Gender:              account.Gender,
		TeamID:              account.TeamID,
		PasswordHash:        account.PasswordHash,
		CurrentSessionToken: account.SessionToken,
		Status:              account.Status,
		CreatedAt:           account.CreatedAt,
		UpdatedAt:           account.UpdatedAt,
	}
}

func toApplicationAccount(account persistence.Account) application.Account {
	return application.Account{
		ID:           account.ID,
		Name:         account.Name,
		RollNumber:   account.RollNumber,
		Email:        account.Email,
		Phone:        account.Phone,
		Department:   account.Department,
		Year:         account.Year,
		Gender:       account.Gender,
		TeamID:       account.TeamID,
		PasswordHash: account.PasswordHash,
		SessionToken: account.CurrentSessionToken,
		Status:       account.Status,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.UpdatedAt,
	}
}

type adminStoreAdapter struct {
	repo persistence.AdminRepository
}

func newAdminStoreAdapter(repo persistence.AdminRepository) *adminStoreAdapter {
	return &adminStoreAdapter{repo: repo}
}

func (a *adminStoreAdapter) CreateAdmin(ctx context.Context, admin application.Admin) error {
	return a.repo.CreateAdmin(ctx, persistence.Admin{
		Username:            admin.Username,
		PasswordHash:        admin.PasswordHash,
		Role:                admin.Role,
		CurrentSessionToken: admin.SessionToken,
		CreatedAt:           admin.CreatedAt,
		UpdatedAt:           admin.UpdatedAt,
	})
}

func (a *adminStoreAdapter) GetAdmin(ctx context.Context, username string) (application.Admin, error) {
	stored, err := a.repo.GetAdmin(ctx, username)
	if err != nil {
		return application.Admin{}, err
	}
	return toApplicationAdmin(stored), nil
}

func (a *adminStoreAdapter) ListAdmins(ctx context.Context) ([]application.Admin, error) {
	stored, err := a.repo.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	admins := make([]application.Admin, 0, len(stored))
	for _, admin := range stored {
		admins = append(admins, toApplicationAdmin(admin))
	}
	return admins, nil
}

func (a *adminStoreAdapter) DeleteAdmin(ctx context.Context, username string) error {
	return a.repo.DeleteAdmin(ctx, username)
}

func (a *adminStoreAdapter) SetSessionToken(ctx context.Context, username string, token *string) error {
	return a.repo.SetSessionToken(ctx, username, token)
}

func toApplicationAdmin(admin persistence.Admin) application.Admin {
	return application.Admin{
		Username:     admin.Username,
		PasswordHash: admin.PasswordHash,
		Role:         admin.Role,
		SessionToken: admin.CurrentSessionToken,
		CreatedAt:    admin.CreatedAt,
		UpdatedAt:    admin.UpdatedAt,
	}
}

type teamStoreAdapter struct {
	repo persistence.TeamRepository
}

func newTeamStoreAdapter(repo persistence.TeamRepository) *teamStoreAdapter {
	return &teamStoreAdapter{repo: repo}
}

func (a *teamStoreAdapter) CreateTeam(ctx context.Context, team application.Team) error {
	return a.repo.CreateTeam(ctx, persistence.Team(team))
}

func (a *teamStoreAdapter) UpdateTeam(ctx context.Context, team application.Team) error {
	return a.repo.UpdateTeam(ctx, persistence.Team(team))
}

func (a *teamStoreAdapter) GetTeam(ctx context.Context, id string) (application.Team, error) {
	stored, err := a.repo.GetTeam(ctx, id)
	if err != nil {
		return application.Team{}, err
	}
	return application.Team(stored), nil
}

func (a *teamStoreAdapter) ListTeams(ctx context.Context) ([]application.Team, error) {
	stored, err := a.repo.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	teams := make([]application.Team, 0, len(stored))
	for _, team := range stored {
		teams = append(teams, application.Team(team))
	}
	return teams, nil
}

func (a *teamStoreAdapter) DeleteTeam(ctx context.Context, id string) error {
	return a.repo.DeleteTeam(ctx, id)
}

type voteLedgerAdapter struct {
	repo persistence.VoteRepository
}

func newVoteLedgerAdapter(repo persistence.VoteRepository) *voteLedgerAdapter {
	return &voteLedgerAdapter{repo: repo}
}

func (a *voteLedgerAdapter) AppendVotes(ctx context.Context, accountID string, boundary application.Boundary, decide application.VoteDecider) ([]application.VoteTransaction, error) {
	stored, err := a.repo.AppendVotes(ctx, accountID, boundary.Start, boundary.End, func(existing []persistence.VoteTransaction) ([]persistence.VoteTransaction, error) {
		additions, err := decide(toApplicationVotes(existing))
		if err != nil {
			return nil, err
		}
		out := make([]persistence.VoteTransaction, 0, len(additions))
		for _, vote := range additions {
			out = append(out, persistence.VoteTransaction(vote))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return toApplicationVotes(stored), nil
}

func (a *voteLedgerAdapter) ListTransactions(ctx context.Context, filter application.TransactionFilter) ([]application.VoteTransaction, error) {
	stored, err := a.repo.ListVotes(ctx, persistence.VoteFilter(filter))
	if err != nil {
		return nil, err
	}
	return toApplicationVotes(stored), nil
}

func (a *voteLedgerAdapter) CountTransactions(ctx context.Context, filter application.TransactionFilter) (int, error) {
	return a.repo.CountVotes(ctx, persistence.VoteFilter(filter))
}

func (a *voteLedgerAdapter) TeamTotals(ctx context.Context, filter application.TransactionFilter) ([]application.TeamTotal, error) {
	stored, err := a.repo.TotalsByTeam(ctx, persistence.VoteFilter(filter))
	if err != nil {
		return nil, err
	}
	totals := make([]application.TeamTotal, 0, len(stored))
	for _, total := range stored {
		totals = append(totals, application.TeamTotal(total))
	}
	return totals, nil
}

func (a *voteLedgerAdapter) Summary(ctx context.Context, accountID string) (application.VoteSummary, error) {
	stored, err := a.repo.SummaryForAccount(ctx, accountID)
	if err != nil {
		return application.VoteSummary{}, err
	}
	return application.VoteSummary{Votes: stored.Votes, LastVotedAt: stored.LastVotedAt}, nil
}

func (a *voteLedgerAdapter) Summaries(ctx context.Context) (map[string]application.VoteSummary, error) {
	stored, err := a.repo.SummariesForAccounts(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make(map[string]application.VoteSummary, len(stored))
	for id, summary := range stored {
		summaries[id] = application.VoteSummary{Votes: summary.Votes, LastVotedAt: summary.LastVotedAt}
	}
	return summaries, nil
}

func (a *voteLedgerAdapter) DeleteVotes(ctx context.Context, accountID, teamID string) (int, error) {
	return a.repo.DeleteVotes(ctx, accountID, teamID)
}

func toApplicationVotes(stored []persistence.VoteTransaction) []application.VoteTransaction {
	votes := make([]application.VoteTransaction, 0, len(stored))
	for _, vote := range stored {
		votes = append(votes, application.VoteTransaction(vote))
	}
	return votes
}

type configStoreAdapter struct {
	repo persistence.ConfigRepository
}

func newConfigStoreAdapter(repo persistence.ConfigRepository) *configStoreAdapter {
	return &configStoreAdapter{repo: repo}
}

func (a *configStoreAdapter) GetConfig(ctx context.Context) (application.VotingConfig, bool, error) {
	stored, found, err := a.repo.GetConfig(ctx)
	if err != nil || !found {
		return application.VotingConfig{}, found, err
	}
	return toApplicationConfig(stored), true, nil
}

func (a *configStoreAdapter) SaveConfig(ctx context.Context, cfg application.VotingConfig, expectedVersion int64) (application.VotingConfig, error) {
	slots := make([]persistence.Slot, 0, len(cfg.Slots))
	for _, slot := range cfg.Slots {
		slots = append(slots, persistence.Slot(slot))
	}
	saved, err := a.repo.SaveConfig(ctx, persistence.VotingConfig{
		IsVotingOpen:       cfg.IsVotingOpen,
		StartTime:          cfg.StartTime,
		EndTime:            cfg.EndTime,
		CurrentSessionDate: cfg.CurrentSessionDate,
		DailyQuota:         cfg.DailyQuota,
		Slots:              slots,
		Version:            cfg.Version,
		UpdatedAt:          cfg.UpdatedAt,
		UpdatedBy:          cfg.UpdatedBy,
	}, expectedVersion)
	if err != nil {
		return application.VotingConfig{}, err
	}
	return toApplicationConfig(saved), nil
}

func toApplicationConfig(cfg persistence.VotingConfig) application.VotingConfig {
	slots := make([]application.Slot, 0, len(cfg.Slots))
	for _, slot := range cfg.Slots {
		slots = append(slots, application.Slot(slot))
	}
	return application.VotingConfig{
		IsVotingOpen:       cfg.IsVotingOpen,
		StartTime:          cfg.StartTime,
		EndTime:            cfg.EndTime,
		CurrentSessionDate: cfg.CurrentSessionDate,
		DailyQuota:         cfg.DailyQuota,
		Slots:              slots,
		Version:            cfg.Version,
		UpdatedAt:          cfg.UpdatedAt,
		UpdatedBy:          cfg.UpdatedBy,
	}
}

type scoreStoreAdapter struct {
	repo persistence.ScoreRepository
}

func newScoreStoreAdapter(repo persistence.ScoreRepository) *scoreStoreAdapter {
	return &scoreStoreAdapter{repo: repo}
}

func (a *scoreStoreAdapter) UpsertScore(ctx context.Context, score application.TeamScore) (application.TeamScore, error) {
	saved, err := a.repo.UpsertScore(ctx, persistence.TeamScore(score))
	if err != nil {
		return application.TeamScore{}, err
	}
	return application.TeamScore(saved), nil
}

func (a *scoreStoreAdapter) ListScores(ctx context.Context, teamID, dateFrom, dateTo string) ([]application.TeamScore, error) {
	stored, err := a.repo.ListScores(ctx, persistence.ScoreFilter{TeamID: teamID, DateFrom: dateFrom, DateTo: dateTo})
	if err != nil {
		return nil, err
	}
	scores := make([]application.TeamScore, 0, len(stored))
	for _, score := range stored {
		scores = append(scores, application.TeamScore(score))
	}
	return scores, nil
}

func (a *scoreStoreAdapter) DeleteScore(ctx context.Context, id string) error {
	return a.repo.DeleteScore(ctx, id)
}

type auditStoreAdapter struct {
	repo persistence.AuditRepository
}

func newAuditStoreAdapter(repo persistence.AuditRepository) *auditStoreAdapter {
	return &auditStoreAdapter{repo: repo}
}

func (a *auditStoreAdapter) AppendAudit(ctx context.Context, entry application.AuditEntry) error {
	return a.repo.AppendAudit(ctx, persistence.AuditLog(entry))
}

func (a *auditStoreAdapter) ListAudit(ctx context.Context, query application.AuditQuery) ([]application.AuditEntry, int, error) {
	stored, total, err := a.repo.ListAudit(ctx, persistence.AuditFilter(query))
	if err != nil {
		return nil, 0, err
	}
	entries := make([]application.AuditEntry, 0, len(stored))
	for _, entry := range stored {
		entries = append(entries, application.AuditEntry(entry))
	}
	return entries, total, nil
}

type accessListAdapter struct {
	repo persistence.AccessListRepository
}

func newAccessListAdapter(repo persistence.AccessListRepository) *accessListAdapter {
	return &accessListAdapter{repo: repo}
}

func (a *accessListAdapter) AddEntry(ctx context.Context, entry application.AccessEntry) error {
	return a.repo.AddEntry(ctx, persistence.AccessListEntry(entry))
}

func (a *accessListAdapter) RemoveEntry(ctx context.Context, email string) error {
	return a.repo.RemoveEntry(ctx, email)
}

func (a *accessListAdapter) HasEntry(ctx context.Context, email string) (bool, error) {
	return a.repo.HasEntry(ctx, email)
}

func (a *accessListAdapter) ListEntries(ctx context.Context) ([]application.AccessEntry, error) {
	stored, err := a.repo.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]application.AccessEntry, 0, len(stored))
	for _, entry := range stored {
		entries = append(entries, application.AccessEntry(entry))
	}
	return entries, nil
}

var (
	_ application.AccountStore    = (*accountStoreAdapter)(nil)
	_ application.AdminStore      = (*adminStoreAdapter)(nil)
	_ application.TeamStore       = (*teamStoreAdapter)(nil)
	_ application.VoteLedger      = (*voteLedgerAdapter)(nil)
	_ application.ConfigStore     = (*configStoreAdapter)(nil)
	_ application.ScoreStore      = (*scoreStoreAdapter)(nil)
	_ application.AuditStore      = (*auditStoreAdapter)(nil)
	_ application.AccessListStore = (*accessListAdapter)(nil)
)

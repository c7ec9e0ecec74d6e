package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/campus-voting/internal/persistence"
)

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]Account
}

func newMemAccounts(accounts ...Account) *memAccounts {
	m := &memAccounts{accounts: map[string]Account{}}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memAccounts) CreateAccount(ctx context.Context, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Email == account.Email {
			return fmt.Errorf("%w: email", persistence.ErrDuplicate)
		}
		if strings.EqualFold(existing.RollNumber, account.RollNumber) {
			return fmt.Errorf("%w: roll_number", persistence.ErrDuplicate)
		}
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *memAccounts) UpdateAccount(ctx context.Context, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *memAccounts) GetAccount(ctx context.Context, id string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return Account{}, persistence.ErrNotFound
	}
	return account, nil
}

func (m *memAccounts) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return Account{}, persistence.ErrNotFound
}

func (m *memAccounts) ListAccounts(ctx context.Context) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAccounts) DeleteAccount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *memAccounts) SetSessionToken(ctx context.Context, id string, token *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if token != nil {
		value := *token
		token = &value
	}
	account.SessionToken = token
	m.accounts[id] = account
	return nil
}

func (m *memAccounts) CountAccounts(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts), nil
}

type memAdmins struct {
	mu     sync.Mutex
	admins map[string]Admin
}

func newMemAdmins(admins ...Admin) *memAdmins {
	m := &memAdmins{admins: map[string]Admin{}}
	for _, a := range admins {
		m.admins[a.Username] = a
	}
	return m
}

func (m *memAdmins) CreateAdmin(ctx context.Context, admin Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[admin.Username]; ok {
		return persistence.ErrDuplicate
	}
	m.admins[admin.Username] = admin
	return nil
}

func (m *memAdmins) GetAdmin(ctx context.Context, username string) (Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	admin, ok := m.admins[username]
	if !ok {
		return Admin{}, persistence.ErrNotFound
	}
	return admin, nil
}

func (m *memAdmins) ListAdmins(ctx context.Context) ([]Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Admin, 0, len(m.admins))
	for _, admin := range m.admins {
		out = append(out, admin)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memAdmins) DeleteAdmin(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[username]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.admins, username)
	return nil
}

func (m *memAdmins) SetSessionToken(ctx context.Context, username string, token *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	admin, ok := m.admins[username]
	if !ok {
		return persistence.ErrNotFound
	}
	admin.SessionToken = token
	m.admins[username] = admin
	return nil
}

type memTeams struct {
	mu      sync.Mutex
	teams   map[string]Team
	ledger  *memLedger
	deleted []string
}

func newMemTeams(teams ...Team) *memTeams {
	m := &memTeams{teams: map[string]Team{}}
	for _, team := range teams {
		m.teams[team.ID] = team
	}
	return m
}

func (m *memTeams) CreateTeam(ctx context.Context, team Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.teams {
		if strings.EqualFold(existing.Name, team.Name) {
			return persistence.ErrDuplicate
		}
	}
	m.teams[team.ID] = team
	return nil
}

func (m *memTeams) UpdateTeam(ctx context.Context, team Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[team.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.teams[team.ID] = team
	return nil
}

func (m *memTeams) GetTeam(ctx context.Context, id string) (Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	team, ok := m.teams[id]
	if !ok {
		return Team{}, persistence.ErrNotFound
	}
	return team, nil
}

func (m *memTeams) ListTeams(ctx context.Context) ([]Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Team, 0, len(m.teams))
	for _, team := range m.teams {
		out = append(out, team)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTeams) DeleteTeam(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.teams, id)
	m.deleted = append(m.deleted, id)
	if m.ledger != nil {
		m.ledger.dropTeam(id)
	}
	return nil
}

// memLedger reads and writes under separate critical sections, so it does not
// serialize AppendVotes by itself.
type memLedger struct {
	mu          sync.Mutex
	txs         []VoteTransaction
	appendCalls int
	decideDelay time.Duration
}

func (m *memLedger) AppendVotes(ctx context.Context, accountID string, boundary Boundary, decide VoteDecider) ([]VoteTransaction, error) {
	m.mu.Lock()
	m.appendCalls++
	var existing []VoteTransaction
	for _, tx := range m.txs {
		if tx.AccountID == accountID && boundary.Contains(tx.CreatedAt) {
			existing = append(existing, tx)
		}
	}
	m.mu.Unlock()

	if m.decideDelay > 0 {
		time.Sleep(m.decideDelay)
	}
	additions, err := decide(existing)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.txs = append(m.txs, additions...)
	m.mu.Unlock()
	return additions, nil
}

func (m *memLedger) matching(filter TransactionFilter) []VoteTransaction {
	var out []VoteTransaction
	for _, tx := range m.txs {
		if filter.AccountID != "" && tx.AccountID != filter.AccountID {
			continue
		}
		if filter.TeamID != "" && tx.TeamID != filter.TeamID {
			continue
		}
		if filter.CreatedFrom != nil && tx.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && tx.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		if filter.EffectiveFrom != nil && tx.EffectiveDate.Before(*filter.EffectiveFrom) {
			continue
		}
		if filter.EffectiveTo != nil && tx.EffectiveDate.After(*filter.EffectiveTo) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func (m *memLedger) ListTransactions(ctx context.Context, filter TransactionFilter) ([]VoteTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.matching(filter)
	if filter.Limit > 0 {
		start := min(filter.Offset, len(out))
		end := min(start+filter.Limit, len(out))
		out = out[start:end]
	}
	return out, nil
}

func (m *memLedger) CountTransactions(ctx context.Context, filter TransactionFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(filter)), nil
}

func (m *memLedger) TeamTotals(ctx context.Context, filter TransactionFilter) ([]TeamTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := map[string]int{}
	for _, tx := range m.matching(filter) {
		sums[tx.TeamID] += tx.VoteCount
	}
	out := make([]TeamTotal, 0, len(sums))
	for teamID, votes := range sums {
		out = append(out, TeamTotal{TeamID: teamID, Votes: votes})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })
	return out, nil
}

func (m *memLedger) Summary(ctx context.Context, accountID string) (VoteSummary, error) {
	all, _ := m.Summaries(ctx)
	if summary, ok := all[accountID]; ok {
		return summary, nil
	}
	return VoteSummary{Votes: map[string]int{}}, nil
}

func (m *memLedger) Summaries(ctx context.Context) (map[string]VoteSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]VoteSummary{}
	latest := map[string]VoteTransaction{}
	for _, tx := range m.txs {
		summary, ok := out[tx.AccountID]
		if !ok {
			summary = VoteSummary{Votes: map[string]int{}}
		}
		summary.Votes[tx.TeamID] += tx.VoteCount
		out[tx.AccountID] = summary
		if prev, ok := latest[tx.AccountID]; !ok || !tx.CreatedAt.Before(prev.CreatedAt) {
			latest[tx.AccountID] = tx
		}
	}
	for accountID, tx := range latest {
		summary := out[accountID]
		date := tx.EffectiveDate
		summary.LastVotedAt = &date
		out[accountID] = summary
	}
	return out, nil
}

func (m *memLedger) DeleteVotes(ctx context.Context, accountID, teamID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.txs[:0]
	deleted := 0
	for _, tx := range m.txs {
		if tx.AccountID == accountID && (teamID == "" || tx.TeamID == teamID) {
			deleted++
			continue
		}
		kept = append(kept, tx)
	}
	m.txs = kept
	return deleted, nil
}

func (m *memLedger) dropTeam(teamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.txs[:0]
	for _, tx := range m.txs {
		if tx.TeamID != teamID {
			kept = append(kept, tx)
		}
	}
	m.txs = kept
}

func (m *memLedger) all() []VoteTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]VoteTransaction, len(m.txs))
	copy(out, m.txs)
	return out
}

type memConfig struct {
	mu    sync.Mutex
	cfg   *VotingConfig
	saves int
}

func (m *memConfig) GetConfig(ctx context.Context) (VotingConfig, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return VotingConfig{}, false, nil
	}
	return *m.cfg, true, nil
}

func (m *memConfig) SaveConfig(ctx context.Context, cfg VotingConfig, expectedVersion int64) (VotingConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		if expectedVersion != 0 {
			return VotingConfig{}, persistence.ErrConflict
		}
		cfg.Version = 1
	} else {
		if expectedVersion != 0 && expectedVersion != m.cfg.Version {
			return VotingConfig{}, persistence.ErrConflict
		}
		cfg.Version = m.cfg.Version + 1
	}
	m.saves++
	m.cfg = &cfg
	return cfg, nil
}

// staticConfig serves a fixed snapshot.
type staticConfig struct {
	cfg VotingConfig
}

func (s staticConfig) Snapshot(ctx context.Context) (VotingConfig, error) { return s.cfg, nil }

type memScores struct {
	mu     sync.Mutex
	scores map[string]TeamScore
}

func newMemScores() *memScores { return &memScores{scores: map[string]TeamScore{}} }

func (m *memScores) UpsertScore(ctx context.Context, score TeamScore) (TeamScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.scores {
		if existing.TeamID == score.TeamID && existing.Date == score.Date {
			score.ID = id
			score.CreatedAt = existing.CreatedAt
		}
	}
	m.scores[score.ID] = score
	return score, nil
}

func (m *memScores) ListScores(ctx context.Context, teamID, dateFrom, dateTo string) ([]TeamScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TeamScore
	for _, score := range m.scores {
		if teamID != "" && score.TeamID != teamID {
			continue
		}
		if dateFrom != "" && score.Date < dateFrom {
			continue
		}
		if dateTo != "" && score.Date > dateTo {
			continue
		}
		out = append(out, score)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memScores) DeleteScore(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scores[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.scores, id)
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
	failing bool
}

func (m *memAudit) AppendAudit(ctx context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("audit store down")
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAudit) ListAudit(ctx context.Context, query AuditQuery) ([]AuditEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out, len(out), nil
}

func (m *memAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry.Action)
	}
	return out
}

type memList struct {
	mu      sync.Mutex
	entries map[string]AccessEntry
}

func newMemList(emails ...string) *memList {
	m := &memList{entries: map[string]AccessEntry{}}
	for _, email := range emails {
		m.entries[email] = AccessEntry{Email: email}
	}
	return m
}

func (m *memList) AddEntry(ctx context.Context, entry AccessEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.Email]; ok {
		return persistence.ErrDuplicate
	}
	m.entries[entry.Email] = entry
	return nil
}

func (m *memList) RemoveEntry(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[email]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.entries, email)
	return nil
}

func (m *memList) HasEntry(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[email]
	return ok, nil
}

func (m *memList) ListEntries(ctx context.Context) ([]AccessEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AccessEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, entry)
	}
	return out, nil
}

// plainCodec encodes claims as kind|subject|sid|expiry without signing.
type plainCodec struct {
	now func() time.Time
}

func (c plainCodec) Issue(claims SessionClaims) (string, error) {
	return fmt.Sprintf("%s|%s|%s|%d", claims.Kind, claims.Subject, claims.SessionID, claims.ExpiresAt.Unix()), nil
}

func (c plainCodec) Parse(token string) (SessionClaims, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 4 {
		return SessionClaims{}, errors.New("malformed token")
	}
	var expires int64
	if _, err := fmt.Sscan(parts[3], &expires); err != nil {
		return SessionClaims{}, err
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	if now().Unix() > expires {
		return SessionClaims{}, errors.New("token expired")
	}
	return SessionClaims{Kind: PrincipalKind(parts[0]), Subject: parts[1], SessionID: parts[2], ExpiresAt: time.Unix(expires, 0)}, nil
}

type stubLimiter struct {
	mu      sync.Mutex
	allowed int
	calls   []string
	err     error
}

func (l *stubLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, key)
	if l.err != nil {
		return false, l.err
	}
	if l.allowed <= 0 {
		return false, nil
	}
	l.allowed--
	return true, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingNotifier) Notify(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingInvalidator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func sequenceIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

var (
	adminPrincipal = Principal{Kind: PrincipalAdmin, Username: "ops", Role: RoleAdmin}
	superPrincipal = Principal{Kind: PrincipalAdmin, Username: "root", Role: RoleSuperAdmin}
)

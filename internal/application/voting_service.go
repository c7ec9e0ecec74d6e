package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// DefaultPerTeamCap is the per-team vote cap used when none is configured.
const DefaultPerTeamCap = 15

// Invalidator drops cached projections after a write.
type Invalidator interface {
	Invalidate()
}

// VotingServiceDeps groups the collaborators of VotingService.
type VotingServiceDeps struct {
	Config      ConfigSource
	Teams       TeamStore
	Ledger      VoteLedger
	Leaderboard Invalidator
	Notifier    Notifier
	Audit       *AuditRecorder
	PerTeamCap  int
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// VotingService validates and records vote submissions.
type VotingService struct {
	config      ConfigSource
	teams       TeamStore
	ledger      VoteLedger
	leaderboard Invalidator
	notifier    Notifier
	audit       *AuditRecorder
	perTeamCap  int
	idGenerator func() string
	now         func() time.Time
	locks       *keyedMutex
	logger      *slog.Logger
}

// NewVotingService constructs a VotingService.
func NewVotingService(deps VotingServiceDeps) *VotingService {
	if deps.PerTeamCap <= 0 {
		deps.PerTeamCap = DefaultPerTeamCap
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &VotingService{
		config:      deps.Config,
		teams:       deps.Teams,
		ledger:      deps.Ledger,
		leaderboard: deps.Leaderboard,
		notifier:    deps.Notifier,
		audit:       deps.Audit,
		perTeamCap:  deps.PerTeamCap,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		locks:       newKeyedMutex(),
		logger:      defaultLogger(deps.Logger),
	}
}

func (s *VotingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "VotingService", operation, attrs...)
}

// CastResult reports an accepted submission.
type CastResult struct {
	Accepted      map[string]int
	Transactions  []VoteTransaction
	EffectiveDate string
	Mode          WindowMode
	SlotLabel     string
	Used          int
	Remaining     int
	DailyQuota    int
	PerTeamCap    int
	PerTeamUsed   map[string]int
}

// Cast validates a {teamId: count} submission against the resolved window and
// records one transaction per team with a positive count. Validation of
// existing usage and the insert share one write transaction, and submissions
// from the same account are serialized.
func (s *VotingService) Cast(ctx context.Context, principal Principal, submission map[string]int, meta RequestMeta) (result CastResult, err error) {
	if s == nil {
		err = fmt.Errorf("VotingService is nil")
		return
	}
	if s.config == nil || s.teams == nil || s.ledger == nil {
		err = fmt.Errorf("voting service not configured")
		return
	}

	logger := s.loggerWith(ctx, "Cast", "account_id", principal.AccountID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "vote rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"effective_date", result.EffectiveDate,
			"used", result.Used,
			"remaining", result.Remaining,
		).InfoContext(ctx, "vote accepted")
	}()

	if !principal.IsStudent() {
		err = ErrForbidden
		return
	}

	var cfg VotingConfig
	cfg, err = s.config.Snapshot(ctx)
	if err != nil {
		return
	}
	if !cfg.IsVotingOpen {
		err = &VotingClosedError{Reason: ClosedDisabled}
		return
	}

	now := s.now().UTC()
	var window Window
	window, err = ResolveWindow(cfg, now)
	if err != nil {
		return
	}

	var known map[string]bool
	known, err = s.knownTeams(ctx)
	if err != nil {
		return
	}

	normalized, total, shapeErr := ValidateSubmissionShape(submission, known, principal.TeamID)
	if shapeErr != nil {
		err = shapeErr
		return
	}

	unlock := s.locks.Lock(principal.AccountID)
	defer unlock()

	policy := QuotaPolicy{PerTeamCap: s.perTeamCap, DailyQuota: cfg.DailyQuota}
	var usage Usage
	decide := func(existing []VoteTransaction) ([]VoteTransaction, error) {
		usage = SummarizeUsage(existing)
		if err := CheckQuota(normalized, total, usage, policy); err != nil {
			return nil, err
		}
		return s.buildTransactions(principal.AccountID, normalized, window.EffectiveDate, now), nil
	}

	var inserted []VoteTransaction
	inserted, err = s.ledger.AppendVotes(ctx, principal.AccountID, window.Boundary, decide)
	if err != nil {
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			err = mapStoreError(err)
		}
		return
	}

	perTeam := make(map[string]int, len(usage.PerTeam)+len(normalized))
	for teamID, count := range usage.PerTeam {
		perTeam[teamID] = count
	}
	for teamID, count := range normalized {
		perTeam[teamID] += count
	}
	used := usage.Total + total

	result = CastResult{
		Accepted:      normalized,
		Transactions:  inserted,
		EffectiveDate: window.EffectiveDateString(),
		Mode:          window.Mode,
		Used:          used,
		Remaining:     policy.Remaining(Usage{Total: used}),
		DailyQuota:    cfg.DailyQuota,
		PerTeamCap:    s.perTeamCap,
		PerTeamUsed:   perTeam,
	}
	if window.Slot != nil {
		result.SlotLabel = window.Slot.Label
	}

	if s.leaderboard != nil {
		s.leaderboard.Invalidate()
	}
	publish(ctx, s.notifier, logger, changedEvents("votes", Notification{
		Type: EventVoteCast,
		Payload: map[string]any{
			"account_id":     principal.AccountID,
			"votes":          normalized,
			"effective_date": result.EffectiveDate,
		},
	})...)
	s.audit.RecordFor(ctx, principal, AuditCastVote, meta, map[string]any{
		"votes":          normalized,
		"effective_date": result.EffectiveDate,
	})
	return
}

func (s *VotingService) buildTransactions(accountID string, normalized map[string]int, effectiveDate, now time.Time) []VoteTransaction {
	teamIDs := make([]string, 0, len(normalized))
	for teamID := range normalized {
		teamIDs = append(teamIDs, teamID)
	}
	sort.Strings(teamIDs)

	out := make([]VoteTransaction, 0, len(teamIDs))
	for _, teamID := range teamIDs {
		out = append(out, VoteTransaction{
			ID:            s.idGenerator(),
			AccountID:     accountID,
			TeamID:        teamID,
			VoteCount:     normalized[teamID],
			EffectiveDate: effectiveDate,
			CreatedAt:     now,
		})
	}
	return out
}

func (s *VotingService) knownTeams(ctx context.Context) (map[string]bool, error) {
	teams, err := s.teams.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(teams))
	for _, team := range teams {
		known[team.ID] = true
	}
	return known, nil
}

// PersonalUsage is a student's usage inside the current boundary.
type PersonalUsage struct {
	Used        int
	Remaining   int
	PerTeamUsed map[string]int
	TeamID      *string
}

// VotingStatus describes whether voting is open right now.
type VotingStatus struct {
	Config       VotingConfig
	Open         bool
	ClosedReason ClosedReason
	Window       *Window
	PerTeamCap   int
	ServerTime   time.Time
	Personal     *PersonalUsage
}

// Status resolves the current window. When principal is a student the
// response includes that student's usage inside the boundary.
func (s *VotingService) Status(ctx context.Context, principal *Principal) (status VotingStatus, err error) {
	if s == nil {
		err = fmt.Errorf("VotingService is nil")
		return
	}
	if s.config == nil {
		err = fmt.Errorf("voting service not configured")
		return
	}

	var cfg VotingConfig
	cfg, err = s.config.Snapshot(ctx)
	if err != nil {
		return
	}

	now := s.now().UTC()
	status = VotingStatus{Config: cfg, PerTeamCap: s.perTeamCap, ServerTime: now}

	window, windowErr := ResolveWindow(cfg, now)
	var closed *VotingClosedError
	switch {
	case windowErr == nil:
		status.Window = &window
		status.Open = cfg.IsVotingOpen
		if !cfg.IsVotingOpen {
			status.ClosedReason = ClosedDisabled
		}
	case errors.As(windowErr, &closed):
		status.ClosedReason = closed.Reason
		if !cfg.IsVotingOpen {
			status.ClosedReason = ClosedDisabled
		}
	default:
		err = windowErr
		return
	}

	if principal == nil || !principal.IsStudent() || s.ledger == nil {
		return
	}

	boundary := DayBoundary(now)
	if status.Window != nil {
		boundary = status.Window.Boundary
	}
	from, to := boundary.Start, boundary.End
	var existing []VoteTransaction
	existing, err = s.ledger.ListTransactions(ctx, TransactionFilter{
		AccountID:   principal.AccountID,
		CreatedFrom: &from,
		CreatedTo:   &to,
	})
	if err != nil {
		err = mapStoreError(err)
		return
	}
	usage := SummarizeUsage(existing)
	policy := QuotaPolicy{PerTeamCap: s.perTeamCap, DailyQuota: cfg.DailyQuota}
	status.Personal = &PersonalUsage{
		Used:        usage.Total,
		Remaining:   policy.Remaining(usage),
		PerTeamUsed: usage.PerTeam,
		TeamID:      principal.TeamID,
	}
	return
}

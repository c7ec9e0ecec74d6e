package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LeaderboardScope names the aggregation period of a Leaderboard.
type LeaderboardScope string

const (
	ScopeOverall LeaderboardScope = "overall"
	ScopeRange   LeaderboardScope = "range"
	ScopeDaily   LeaderboardScope = "daily"
)

// Standing is one team's row in a leaderboard.
type Standing struct {
	Rank     int
	TeamID   string
	TeamName string
	ImageURL string
	Votes    int
	Score    int
}

// Leaderboard is a ranked projection over votes and scores.
type Leaderboard struct {
	Scope     LeaderboardScope
	From      string
	To        string
	Standings []Standing
}

// LeaderboardServiceDeps groups the collaborators of LeaderboardService.
type LeaderboardServiceDeps struct {
	Teams     TeamStore
	Ledger    VoteLedger
	Scores    ScoreStore
	CacheSize int
	CacheTTL  time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// LeaderboardService computes standings from the ledger and caches them until
// the next write.
type LeaderboardService struct {
	teams  TeamStore
	ledger VoteLedger
	scores ScoreStore
	cache  *expirable.LRU[string, Leaderboard]
	now    func() time.Time
	logger *slog.Logger

	// generation counts invalidations. A projection is cached only if no
	// invalidation happened while it was being computed.
	mu         sync.Mutex
	generation uint64
}

// NewLeaderboardService constructs a LeaderboardService.
func NewLeaderboardService(deps LeaderboardServiceDeps) *LeaderboardService {
	if deps.CacheSize <= 0 {
		deps.CacheSize = 128
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 30 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &LeaderboardService{
		teams:  deps.Teams,
		ledger: deps.Ledger,
		scores: deps.Scores,
		cache:  expirable.NewLRU[string, Leaderboard](deps.CacheSize, nil, deps.CacheTTL),
		now:    deps.Now,
		logger: defaultLogger(deps.Logger),
	}
}

func (s *LeaderboardService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LeaderboardService", operation, attrs...)
}

// Invalidate purges every cached projection.
func (s *LeaderboardService) Invalidate() {
	if s == nil || s.cache == nil {
		return
	}
	s.mu.Lock()
	s.generation++
	s.cache.Purge()
	s.mu.Unlock()
}

func (s *LeaderboardService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// store caches board unless the cache was invalidated after generation was read.
func (s *LeaderboardService) store(key string, board Leaderboard, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false
	}
	s.cache.Add(key, cloneLeaderboard(board))
	return true
}

// Overall ranks teams by all-time votes and score totals.
func (s *LeaderboardService) Overall(ctx context.Context) (Leaderboard, error) {
	return s.project(ctx, ScopeOverall, "", "")
}

// Range ranks teams over an inclusive effective-date range.
func (s *LeaderboardService) Range(ctx context.Context, from, to string) (Leaderboard, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	vErr := &ValidationError{}
	fromDate, fromErr := ParseDate(from)
	if fromErr != nil {
		vErr.add("from", "from must be YYYY-MM-DD")
	}
	toDate, toErr := ParseDate(to)
	if toErr != nil {
		vErr.add("to", "to must be YYYY-MM-DD")
	}
	if fromErr == nil && toErr == nil && toDate.Before(fromDate) {
		vErr.add("to", "to must not be before from")
	}
	if vErr.HasErrors() {
		vErr.Message = "invalid date range"
		return Leaderboard{}, vErr
	}
	return s.project(ctx, ScopeRange, from, to)
}

// Daily ranks teams for one effective date; an empty date means today (UTC).
func (s *LeaderboardService) Daily(ctx context.Context, date string) (Leaderboard, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = StartOfDay(s.now()).Format(DateLayout)
	}
	if _, err := ParseDate(date); err != nil {
		return Leaderboard{}, NewValidationError("date", "date must be YYYY-MM-DD")
	}
	return s.project(ctx, ScopeDaily, date, date)
}

func (s *LeaderboardService) project(ctx context.Context, scope LeaderboardScope, from, to string) (board Leaderboard, err error) {
	if s == nil {
		err = fmt.Errorf("LeaderboardService is nil")
		return
	}
	if s.teams == nil || s.ledger == nil {
		err = fmt.Errorf("leaderboard service not configured")
		return
	}

	key := string(scope) + "|" + from + "|" + to
	generation := s.currentGeneration()
	if cached, ok := s.cache.Get(key); ok {
		return cloneLeaderboard(cached), nil
	}

	logger := s.loggerWith(ctx, "project", "scope", scope, "from", from, "to", to)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute leaderboard", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("teams", len(board.Standings)).DebugContext(ctx, "leaderboard computed")
	}()

	filter := TransactionFilter{}
	if from != "" {
		fromDate, _ := ParseDate(from)
		toDate, _ := ParseDate(to)
		filter.EffectiveFrom = &fromDate
		filter.EffectiveTo = &toDate
	}

	var teams []Team
	teams, err = s.teams.ListTeams(ctx)
	if err != nil {
		return
	}
	var totals []TeamTotal
	totals, err = s.ledger.TeamTotals(ctx, filter)
	if err != nil {
		return
	}
	votes := make(map[string]int, len(totals))
	for _, total := range totals {
		votes[total.TeamID] = total.Votes
	}

	scores := make(map[string]int)
	if s.scores != nil {
		var rows []TeamScore
		rows, err = s.scores.ListScores(ctx, "", from, to)
		if err != nil {
			return
		}
		for _, row := range rows {
			scores[row.TeamID] += row.Total
		}
	}

	standings := make([]Standing, 0, len(teams))
	for _, team := range teams {
		standings = append(standings, Standing{
			TeamID:   team.ID,
			TeamName: team.Name,
			ImageURL: team.ImageURL,
			Votes:    votes[team.ID],
			Score:    scores[team.ID],
		})
	}
	rankStandings(standings)

	board = Leaderboard{Scope: scope, From: from, To: to, Standings: standings}
	if !s.store(key, board, generation) {
		logger.DebugContext(ctx, "leaderboard invalidated during computation; not cached")
	}
	return
}

// rankStandings orders by votes desc, score desc, then name, and assigns
// competition ranks where equal votes and scores share a rank.
func rankStandings(standings []Standing) {
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !strings.EqualFold(a.TeamName, b.TeamName) {
			return strings.ToLower(a.TeamName) < strings.ToLower(b.TeamName)
		}
		return a.TeamID < b.TeamID
	})
	for i := range standings {
		if i > 0 && standings[i].Votes == standings[i-1].Votes && standings[i].Score == standings[i-1].Score {
			standings[i].Rank = standings[i-1].Rank
			continue
		}
		standings[i].Rank = i + 1
	}
}

func cloneLeaderboard(board Leaderboard) Leaderboard {
	out := board
	if board.Standings != nil {
		out.Standings = make([]Standing, len(board.Standings))
		copy(out.Standings, board.Standings)
	}
	return out
}

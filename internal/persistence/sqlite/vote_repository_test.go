package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/campus-voting/internal/persistence"
)

func voteAt(id, account, team string, count int, effective, created time.Time) persistence.VoteTransaction {
	return persistence.VoteTransaction{
		ID:            id,
		AccountID:     account,
		TeamID:        team,
		VoteCount:     count,
		EffectiveDate: effective,
		CreatedAt:     created,
	}
}

func appendOne(t *testing.T, s *Storage, vote persistence.VoteTransaction) {
	t.Helper()
	_, err := s.Votes.AppendVotes(context.Background(), vote.AccountID, vote.CreatedAt, vote.CreatedAt,
		func([]persistence.VoteTransaction) ([]persistence.VoteTransaction, error) {
			return []persistence.VoteTransaction{vote}, nil
		})
	if err != nil {
		t.Fatalf("AppendVotes(%s): %v", vote.ID, err)
	}
}

func TestVoteRepository_AppendVotesPassesBoundaryTransactions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStorage(t)
	seedTeam(t, s, "t1", "Alpha")
	seedAccount(t, s, "a1", nil)

	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	appendOne(t, s, voteAt("v-before", "a1", "t1", 1, day.AddDate(0, 0, -1), day.Add(-time.Nanosecond)))
	appendOne(t, s, voteAt("v-start", "a1", "t1", 2, day, day))
	appendOne(t, s, voteAt("v-end", "a1", "t1", 3, day, day.Add(24*time.Hour-time.Millisecond)))
	appendOne(t, s, voteAt("v-after", "a1", "t1", 4, day.AddDate(0, 0, 1), day.Add(24*time.Hour)))

	var seen []string
	_, err := s.Votes.AppendVotes(ctx, "a1", day, day.Add(24*time.Hour-time.Millisecond),
		func(existing []persistence.VoteTransaction) ([]persistence.VoteTransaction, error) {
			for _, v := range existing {
				seen = append(seen, v.ID)
			}
			return nil, nil
		})
	if err != nil {
		t.Fatalf("AppendVotes: %v", err)
	}
	if len(seen) != 2 || seen[0] != "v-start" || seen[1] != "v-end" {
		t.Fatalf("expected inclusive boundary [v-start v-end], got %v", seen)
	}
}

func TestVoteRepository_DecisionErrorAbortsWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStorage(t)
	seedTeam(t, s, "t1", "Alpha")
	seedAccount(t, s, "a1", nil)

	rejected := errors.New("over quota")
	_, err := s.Votes.AppendVotes(ctx, "a1", baseTime, baseTime, func([]persistence.VoteTransaction) ([]persistence.VoteTransaction, error) {
		return nil, rejected
	})
	if !errors.Is(err, rejected) {
		t.Fatalf("expected decision error, got %v", err)
	}

	_, err = s.Votes.AppendVotes(ctx, "a1", baseTime, baseTime, func([]persistence.VoteTransaction) ([]persistence.VoteTransaction, error) {
		return []persistence.VoteTransaction{
			voteAt("v1", "a1", "t1", 1, baseTime, baseTime),
			voteAt("v2", "a1", "missing-team", 1, baseTime, baseTime),
		}, nil
	})
	if !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected foreign key failure, got %v", err)
	}
	count, err := s.Votes.CountVotes(ctx, persistence.VoteFilter{AccountID: "a1"})
	if err != nil || count != 0 {
		t.Fatalf("partial batch must roll back, count=%d err=%v", count, err)
	}

	if _, err := s.Votes.AppendVotes(ctx, "ghost", baseTime, baseTime, func([]persistence.VoteTransaction) ([]persistence.VoteTransaction, error) {
		return nil, nil
	}); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown account, got %v", err)
	}
}

func TestVoteRepository_SummariesAndTotals(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStorage(t)
	seedTeam(t, s, "t1", "Alpha")
	seedTeam(t, s, "t2", "Beta")
	seedAccount(t, s, "a1", nil)
	seedAccount(t, s, "a2", nil)

	d1 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	// Effective dates need not follow creation order; the latest created wins.
	appendOne(t, s, voteAt("v1", "a1", "t1", 3, d2, baseTime))
	appendOne(t, s, voteAt("v2", "a1", "t2", 2, d1, baseTime.Add(time.Minute)))
	appendOne(t, s, voteAt("v3", "a1", "t1", 1, d1, baseTime.Add(2*time.Minute)))
	appendOne(t, s, voteAt("v4", "a2", "t2", 5, d2, baseTime.Add(3*time.Minute)))

	summary, err := s.Votes.SummaryForAccount(ctx, "a1")
	if err != nil {
		t.Fatalf("SummaryForAccount: %v", err)
	}
	if summary.Votes["t1"] != 4 || summary.Votes["t2"] != 2 {
		t.Fatalf("unexpected totals %v", summary.Votes)
	}
	if summary.LastVotedAt == nil || !summary.LastVotedAt.Equal(d1) {
		t.Fatalf("expected lastVotedAt %v, got %v", d1, summary.LastVotedAt)
	}

	empty, err := s.Votes.SummaryForAccount(ctx, "nobody")
	if err != nil || len(empty.Votes) != 0 || empty.LastVotedAt != nil {
		t.Fatalf("expected empty summary, got %+v, %v", empty, err)
	}

	all, err := s.Votes.SummariesForAccounts(ctx)
	if err != nil || len(all) != 2 || all["a2"].Votes["t2"] != 5 {
		t.Fatalf("SummariesForAccounts = %+v, %v", all, err)
	}

	totals, err := s.Votes.TotalsByTeam(ctx, persistence.VoteFilter{EffectiveFrom: &d2, EffectiveTo: &d2})
	if err != nil {
		t.Fatalf("TotalsByTeam: %v", err)
	}
	got := map[string]int{}
	for _, total := range totals {
		got[total.TeamID] = total.Votes
	}
	if got["t1"] != 3 || got["t2"] != 5 {
		t.Fatalf("unexpected day totals %v", got)
	}

	page, err := s.Votes.ListVotes(ctx, persistence.VoteFilter{AccountID: "a1", Limit: 2})
	if err != nil || len(page) != 2 || page[0].ID != "v3" {
		t.Fatalf("ListVotes newest first = %+v, %v", page, err)
	}
}

func TestVoteRepository_DeleteVotes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStorage(t)
	seedTeam(t, s, "t1", "Alpha")
	seedTeam(t, s, "t2", "Beta")
	seedAccount(t, s, "a1", nil)
	appendOne(t, s, voteAt("v1", "a1", "t1", 1, baseTime, baseTime))
	appendOne(t, s, voteAt("v2", "a1", "t1", 1, baseTime, baseTime.Add(time.Second)))
	appendOne(t, s, voteAt("v3", "a1", "t2", 1, baseTime, baseTime.Add(2*time.Second)))

	n, err := s.Votes.DeleteVotes(ctx, "a1", "t1")
	if err != nil || n != 2 {
		t.Fatalf("DeleteVotes(team) = %d, %v", n, err)
	}
	n, err = s.Votes.DeleteVotes(ctx, "a1", "t1")
	if err != nil || n != 0 {
		t.Fatalf("second DeleteVotes(team) = %d, %v", n, err)
	}
	n, err = s.Votes.DeleteVotes(ctx, "a1", "")
	if err != nil || n != 1 {
		t.Fatalf("DeleteVotes(all) = %d, %v", n, err)
	}
}

func TestVoteRepository_ConcurrentAppendsRespectDecision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStorage(t)
	seedTeam(t, s, "t1", "Alpha")
	seedAccount(t, s, "a1", nil)

	const limit = 5
	const workers = 12
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Votes.AppendVotes(ctx, "a1", baseTime.Add(-time.Hour), baseTime.Add(time.Hour),
				func(existing []persistence.VoteTransaction) ([]persistence.VoteTransaction, error) {
					used := 0
					for _, v := range existing {
						used += v.VoteCount
					}
					if used+1 > limit {
						return nil, errors.New("cap reached")
					}
					return []persistence.VoteTransaction{voteAt(fmt.Sprintf("v%d", i), "a1", "t1", 1, baseTime, baseTime)}, nil
				})
		}(i)
	}
	wg.Wait()

	count, err := s.Votes.CountVotes(ctx, persistence.VoteFilter{AccountID: "a1"})
	if err != nil {
		t.Fatalf("CountVotes: %v", err)
	}
	if count > limit {
		t.Fatalf("cap exceeded under concurrency: %d > %d", count, limit)
	}
}

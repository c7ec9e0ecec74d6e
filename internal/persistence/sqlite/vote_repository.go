package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/campus-voting/internal/persistence"
)

const voteColumns = `id, account_id, team_id, vote_count, effective_date, created_at`

// VoteRepository implements persistence.VoteRepository using SQLite
type VoteRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewVoteRepository creates a new SQLite vote ledger
func NewVoteRepository(pool *ConnectionPool) *VoteRepository {
	return &VoteRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// AppendVotes reads the account's transactions created within [from, to], hands
// them to decide and inserts whatever it returns, all inside one write
// transaction. The account row is touched first so the write lock is held
// before the read. Lock contention is retried with backoff.
func (r *VoteRepository) AppendVotes(ctx context.Context, accountID string, from, to time.Time, decide persistence.VoteDecision) ([]persistence.VoteTransaction, error) {
	if accountID == "" {
		return nil, persistence.ErrNotFound
	}
	if decide == nil {
		return nil, fmt.Errorf("vote decision is required")
	}

	var inserted []persistence.VoteTransaction
	err := r.retry.WithRetry(ctx, func() error {
		inserted = nil
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := r.helper.ExecTx(ctx, tx, `UPDATE accounts SET updated_at = updated_at WHERE id = ?`, accountID)
			if err != nil {
				return r.mapper.MapError(err)
			}
			if err := rowsAffectedOrNotFound(result); err != nil {
				return err
			}

			rows, err := r.helper.QueryTx(ctx, tx, `
				SELECT `+voteColumns+` FROM vote_transactions
				WHERE account_id = ? AND created_at >= ? AND created_at <= ?
				ORDER BY created_at ASC, id ASC`,
				accountID, formatTime(from), formatTime(to))
			if err != nil {
				return r.mapper.MapError(err)
			}
			existing, err := scanVotes(rows, r.mapper)
			if err != nil {
				return err
			}

			additions, err := decide(existing)
			if err != nil {
				return err
			}
			for _, vote := range additions {
				if vote.AccountID != accountID {
					return fmt.Errorf("%w: transaction for account %q in batch for %q", persistence.ErrConstraintViolation, vote.AccountID, accountID)
				}
				if _, err := r.helper.ExecTx(ctx, tx, `
					INSERT INTO vote_transactions (`+voteColumns+`)
					VALUES (?, ?, ?, ?, ?, ?)`,
					vote.ID,
					vote.AccountID,
					vote.TeamID,
					vote.VoteCount,
					formatDate(vote.EffectiveDate),
					formatTime(vote.CreatedAt),
				); err != nil {
					return r.mapper.MapError(err)
				}
			}
			inserted = additions
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// ListVotes returns matching transactions, newest first.
func (r *VoteRepository) ListVotes(ctx context.Context, filter persistence.VoteFilter) ([]persistence.VoteTransaction, error) {
	where, args := voteWhere(filter)
	query := `SELECT ` + voteColumns + ` FROM vote_transactions` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	return scanVotes(rows, r.mapper)
}

// CountVotes counts matching transactions, ignoring Limit and Offset.
func (r *VoteRepository) CountVotes(ctx context.Context, filter persistence.VoteFilter) (int, error) {
	where, args := voteWhere(filter)
	var count int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM vote_transactions`+where, args...).Scan(&count); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

// TotalsByTeam sums vote counts per team over matching transactions.
func (r *VoteRepository) TotalsByTeam(ctx context.Context, filter persistence.VoteFilter) ([]persistence.TeamVoteTotal, error) {
	where, args := voteWhere(filter)
	rows, err := r.helper.Query(ctx, `
		SELECT team_id, SUM(vote_count) FROM vote_transactions`+where+`
		GROUP BY team_id ORDER BY team_id`, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var totals []persistence.TeamVoteTotal
	for rows.Next() {
		var total persistence.TeamVoteTotal
		if err := rows.Scan(&total.TeamID, &total.Votes); err != nil {
			return nil, r.mapper.MapError(err)
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return totals, nil
}

// SummaryForAccount computes the per-team totals and last effective date for one account.
func (r *VoteRepository) SummaryForAccount(ctx context.Context, accountID string) (persistence.AccountVoteSummary, error) {
	summaries, err := r.summaries(ctx, ` WHERE account_id = ?`, accountID)
	if err != nil {
		return persistence.AccountVoteSummary{}, err
	}
	if summary, ok := summaries[accountID]; ok {
		return summary, nil
	}
	return persistence.AccountVoteSummary{AccountID: accountID, Votes: map[string]int{}}, nil
}

// SummariesForAccounts computes summaries for every account that has transactions.
func (r *VoteRepository) SummariesForAccounts(ctx context.Context) (map[string]persistence.AccountVoteSummary, error) {
	return r.summaries(ctx, "")
}

func (r *VoteRepository) summaries(ctx context.Context, where string, args ...any) (map[string]persistence.AccountVoteSummary, error) {
	result := make(map[string]persistence.AccountVoteSummary)

	rows, err := r.helper.Query(ctx, `
		SELECT account_id, team_id, SUM(vote_count) FROM vote_transactions`+where+`
		GROUP BY account_id, team_id`, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	for rows.Next() {
		var (
			accountID, teamID string
			votes             int
		)
		if err := rows.Scan(&accountID, &teamID, &votes); err != nil {
			rows.Close()
			return nil, r.mapper.MapError(err)
		}
		summary, ok := result[accountID]
		if !ok {
			summary = persistence.AccountVoteSummary{AccountID: accountID, Votes: map[string]int{}}
		}
		summary.Votes[teamID] = votes
		result[accountID] = summary
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	// The latest-created transaction per account supplies lastVotedAt.
	latest, err := r.helper.Query(ctx, `
		SELECT account_id, effective_date FROM (
			SELECT account_id, effective_date,
				ROW_NUMBER() OVER (PARTITION BY account_id ORDER BY created_at DESC, id DESC) AS rn
			FROM vote_transactions`+where+`
		) WHERE rn = 1`, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer latest.Close()
	for latest.Next() {
		var accountID, effective string
		if err := latest.Scan(&accountID, &effective); err != nil {
			return nil, r.mapper.MapError(err)
		}
		date, err := parseDate(effective)
		if err != nil {
			return nil, err
		}
		if summary, ok := result[accountID]; ok {
			summary.LastVotedAt = &date
			result[accountID] = summary
		}
	}
	if err := latest.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return result, nil
}

// DeleteVotes removes an account's transactions, optionally for one team, and
// reports how many rows were deleted.
func (r *VoteRepository) DeleteVotes(ctx context.Context, accountID, teamID string) (int, error) {
	query := `DELETE FROM vote_transactions WHERE account_id = ?`
	args := []any{accountID}
	if teamID != "" {
		query += ` AND team_id = ?`
		args = append(args, teamID)
	}
	result, err := r.helper.Exec(ctx, query, args...)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

func voteWhere(filter persistence.VoteFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.AccountID != "" {
		clauses = append(clauses, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.TeamID != "" {
		clauses = append(clauses, "team_id = ?")
		args = append(args, filter.TeamID)
	}
	if filter.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(*filter.CreatedFrom))
	}
	if filter.CreatedTo != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, formatTime(*filter.CreatedTo))
	}
	if filter.EffectiveFrom != nil {
		clauses = append(clauses, "effective_date >= ?")
		args = append(args, formatDate(*filter.EffectiveFrom))
	}
	if filter.EffectiveTo != nil {
		clauses = append(clauses, "effective_date <= ?")
		args = append(args, formatDate(*filter.EffectiveTo))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanVotes(rows *sql.Rows, mapper *ErrorMapper) ([]persistence.VoteTransaction, error) {
	defer rows.Close()

	var votes []persistence.VoteTransaction
	for rows.Next() {
		var (
			vote                 persistence.VoteTransaction
			effective, createdAt string
		)
		if err := rows.Scan(&vote.ID, &vote.AccountID, &vote.TeamID, &vote.VoteCount, &effective, &createdAt); err != nil {
			return nil, mapper.MapError(err)
		}
		var err error
		if vote.EffectiveDate, err = parseDate(effective); err != nil {
			return nil, err
		}
		if vote.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, mapper.MapError(err)
	}
	return votes, nil
}

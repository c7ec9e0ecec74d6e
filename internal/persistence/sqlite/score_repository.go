package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/campus-voting/internal/persistence"
)

const scoreColumns = `id, team_id, score_date, advantage, main, special, elimination, immunity, total, created_at, updated_at`

// ScoreRepository implements persistence.ScoreRepository using SQLite
type ScoreRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewScoreRepository creates a new SQLite score repository
func NewScoreRepository(pool *ConnectionPool) *ScoreRepository {
	return &ScoreRepository{pool: pool, helper: NewQueryHelper(pool), mapper: NewErrorMapper()}
}

// UpsertScore inserts the score or replaces the categories of the existing
// (team, date) row, keeping its ID and creation time.
func (r *ScoreRepository) UpsertScore(ctx context.Context, score persistence.TeamScore) (persistence.TeamScore, error) {
	var stored persistence.TeamScore
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := r.helper.ExecTx(ctx, tx, `
			INSERT INTO team_scores (`+scoreColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (team_id, score_date) DO UPDATE SET
				advantage = excluded.advantage,
				main = excluded.main,
				special = excluded.special,
				elimination = excluded.elimination,
				immunity = excluded.immunity,
				total = excluded.total,
				updated_at = excluded.updated_at`,
			score.ID,
			score.TeamID,
			score.Date,
			score.Advantage,
			score.Main,
			score.Special,
			score.Elimination,
			score.Immunity,
			score.Total,
			formatTime(score.CreatedAt),
			formatTime(score.UpdatedAt),
		); err != nil {
			return r.mapper.MapError(err)
		}
		var err error
		stored, err = r.scanScore(r.helper.QueryRowTx(ctx, tx,
			`SELECT `+scoreColumns+` FROM team_scores WHERE team_id = ? AND score_date = ?`,
			score.TeamID, score.Date))
		return err
	})
	if err != nil {
		return persistence.TeamScore{}, err
	}
	return stored, nil
}

// ListScores returns scores ordered by date then team.
func (r *ScoreRepository) ListScores(ctx context.Context, filter persistence.ScoreFilter) ([]persistence.TeamScore, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.TeamID != "" {
		clauses = append(clauses, "team_id = ?")
		args = append(args, filter.TeamID)
	}
	if filter.DateFrom != "" {
		clauses = append(clauses, "score_date >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		clauses = append(clauses, "score_date <= ?")
		args = append(args, filter.DateTo)
	}
	query := `SELECT ` + scoreColumns + ` FROM team_scores`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY score_date ASC, team_id ASC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var scores []persistence.TeamScore
	for rows.Next() {
		score, err := r.scanScore(rows)
		if err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return scores, nil
}

// DeleteScore removes a score by ID.
func (r *ScoreRepository) DeleteScore(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM team_scores WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffectedOrNotFound(result)
}

func (r *ScoreRepository) scanScore(row rowScanner) (persistence.TeamScore, error) {
	var (
		score                persistence.TeamScore
		createdAt, updatedAt string
	)
	err := row.Scan(&score.ID, &score.TeamID, &score.Date, &score.Advantage, &score.Main,
		&score.Special, &score.Elimination, &score.Immunity, &score.Total, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.TeamScore{}, persistence.ErrNotFound
		}
		return persistence.TeamScore{}, r.mapper.MapError(err)
	}
	if score.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.TeamScore{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if score.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.TeamScore{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return score, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/campus-voting/internal/persistence"
)

// TeamRepository implements persistence.TeamRepository using SQLite
type TeamRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewTeamRepository creates a new SQLite team repository
func NewTeamRepository(pool *ConnectionPool) *TeamRepository {
	return &TeamRepository{pool: pool, helper: NewQueryHelper(pool), mapper: NewErrorMapper()}
}

// CreateTeam inserts a new team. Names are unique case-insensitively.
func (r *TeamRepository) CreateTeam(ctx context.Context, team persistence.Team) error {
	if team.ID == "" || strings.TrimSpace(team.Name) == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO teams (id, name, description, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		team.ID,
		strings.TrimSpace(team.Name),
		team.Description,
		team.ImageURL,
		formatTime(team.CreatedAt),
		formatTime(team.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateTeam rewrites an existing team.
func (r *TeamRepository) UpdateTeam(ctx context.Context, team persistence.Team) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE teams SET name = ?, description = ?, image_url = ?, updated_at = ?
		WHERE id = ?`,
		strings.TrimSpace(team.Name),
		team.Description,
		team.ImageURL,
		formatTime(team.UpdatedAt),
		team.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffectedOrNotFound(result)
}

// GetTeam retrieves a team by ID.
func (r *TeamRepository) GetTeam(ctx context.Context, id string) (persistence.Team, error) {
	if id == "" {
		return persistence.Team{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `
		SELECT id, name, description, image_url, created_at, updated_at
		FROM teams WHERE id = ?`, id)
	return r.scanTeam(row)
}

// ListTeams returns teams ordered by name.
func (r *TeamRepository) ListTeams(ctx context.Context) ([]persistence.Team, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, name, description, image_url, created_at, updated_at
		FROM teams ORDER BY name COLLATE NOCASE ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var teams []persistence.Team
	for rows.Next() {
		team, err := r.scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return teams, nil
}

// DeleteTeam removes the team with its vote transactions and scores, and clears
// account affiliations, all in one transaction.
func (r *TeamRepository) DeleteTeam(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		steps := []string{
			`DELETE FROM vote_transactions WHERE team_id = ?`,
			`DELETE FROM team_scores WHERE team_id = ?`,
			`UPDATE accounts SET team_id = NULL WHERE team_id = ?`,
		}
		for _, stmt := range steps {
			if _, err := r.helper.ExecTx(ctx, tx, stmt, id); err != nil {
				return r.mapper.MapError(err)
			}
		}
		result, err := r.helper.ExecTx(ctx, tx, `DELETE FROM teams WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return rowsAffectedOrNotFound(result)
	})
}

func (r *TeamRepository) scanTeam(row rowScanner) (persistence.Team, error) {
	var (
		team                 persistence.Team
		createdAt, updatedAt string
	)
	err := row.Scan(&team.ID, &team.Name, &team.Description, &team.ImageURL, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Team{}, persistence.ErrNotFound
		}
		return persistence.Team{}, r.mapper.MapError(err)
	}
	if team.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Team{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if team.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Team{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return team, nil
}

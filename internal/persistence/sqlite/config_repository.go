package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/campus-voting/internal/persistence"
)

// ConfigRepository implements persistence.ConfigRepository using SQLite.
// The config is a single row guarded by a version column.
type ConfigRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewConfigRepository creates a new SQLite voting config repository
func NewConfigRepository(pool *ConnectionPool) *ConfigRepository {
	return &ConfigRepository{pool: pool, helper: NewQueryHelper(pool), mapper: NewErrorMapper()}
}

const configSelect = `
	SELECT is_voting_open, start_time, end_time, current_session_date, daily_quota, slots,
		version, updated_at, updated_by
	FROM voting_config WHERE id = 1`

// GetConfig returns the stored config; found is false when no row exists yet.
func (r *ConfigRepository) GetConfig(ctx context.Context) (persistence.VotingConfig, bool, error) {
	cfg, err := r.scanConfig(r.helper.QueryRow(ctx, configSelect))
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.VotingConfig{}, false, nil
	}
	if err != nil {
		return persistence.VotingConfig{}, false, err
	}
	return cfg, true, nil
}

// SaveConfig writes cfg when the stored version equals expectedVersion. An
// expectedVersion of zero writes against whatever version is current. The
// stored version is incremented and the saved row returned.
func (r *ConfigRepository) SaveConfig(ctx context.Context, cfg persistence.VotingConfig, expectedVersion int64) (persistence.VotingConfig, error) {
	slots, err := json.Marshal(nonNilSlots(cfg.Slots))
	if err != nil {
		return persistence.VotingConfig{}, fmt.Errorf("encode slots: %w", err)
	}

	var saved persistence.VotingConfig
	err = r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var current int64
		err := r.helper.QueryRowTx(ctx, tx, `SELECT version FROM voting_config WHERE id = 1`).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if expectedVersion != 0 {
				return persistence.ErrConflict
			}
			if _, err := r.helper.ExecTx(ctx, tx, `
				INSERT INTO voting_config (id, is_voting_open, start_time, end_time, current_session_date,
					daily_quota, slots, version, updated_at, updated_by)
				VALUES (1, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
				cfg.IsVotingOpen,
				nullableTime(cfg.StartTime),
				nullableTime(cfg.EndTime),
				nullableString(cfg.CurrentSessionDate),
				cfg.DailyQuota,
				string(slots),
				formatTime(cfg.UpdatedAt),
				cfg.UpdatedBy,
			); err != nil {
				return r.mapper.MapError(err)
			}
		case err != nil:
			return r.mapper.MapError(err)
		default:
			if expectedVersion == 0 {
				expectedVersion = current
			}
			result, err := r.helper.ExecTx(ctx, tx, `
				UPDATE voting_config
				SET is_voting_open = ?, start_time = ?, end_time = ?, current_session_date = ?,
					daily_quota = ?, slots = ?, version = version + 1, updated_at = ?, updated_by = ?
				WHERE id = 1 AND version = ?`,
				cfg.IsVotingOpen,
				nullableTime(cfg.StartTime),
				nullableTime(cfg.EndTime),
				nullableString(cfg.CurrentSessionDate),
				cfg.DailyQuota,
				string(slots),
				formatTime(cfg.UpdatedAt),
				cfg.UpdatedBy,
				expectedVersion,
			)
			if err != nil {
				return r.mapper.MapError(err)
			}
			if err := rowsAffectedOrNotFound(result); err != nil {
				return persistence.ErrConflict
			}
		}

		saved, err = r.scanConfig(r.helper.QueryRowTx(ctx, tx, configSelect))
		return err
	})
	if err != nil {
		return persistence.VotingConfig{}, err
	}
	return saved, nil
}

func (r *ConfigRepository) scanConfig(row rowScanner) (persistence.VotingConfig, error) {
	var (
		cfg                 persistence.VotingConfig
		start, end, session sql.NullString
		slots, updatedAt    string
	)
	err := row.Scan(&cfg.IsVotingOpen, &start, &end, &session, &cfg.DailyQuota, &slots,
		&cfg.Version, &updatedAt, &cfg.UpdatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.VotingConfig{}, persistence.ErrNotFound
		}
		return persistence.VotingConfig{}, r.mapper.MapError(err)
	}
	if cfg.StartTime, err = timePointer(start); err != nil {
		return persistence.VotingConfig{}, err
	}
	if cfg.EndTime, err = timePointer(end); err != nil {
		return persistence.VotingConfig{}, err
	}
	cfg.CurrentSessionDate = stringPointer(session)
	if err := json.Unmarshal([]byte(slots), &cfg.Slots); err != nil {
		return persistence.VotingConfig{}, fmt.Errorf("decode slots: %w", err)
	}
	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.VotingConfig{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return cfg, nil
}

func nonNilSlots(slots []persistence.Slot) []persistence.Slot {
	if slots == nil {
		return []persistence.Slot{}
	}
	return slots
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePointer(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

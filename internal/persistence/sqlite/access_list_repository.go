package sqlite

import (
	"context"
	"fmt"

	"github.com/example/campus-voting/internal/persistence"
)

// Access list tables.
const (
	WhitelistTable = "whitelist_entries"
	BlacklistTable = "blacklist_entries"
)

// AccessListRepository implements persistence.AccessListRepository over one
// email-keyed table.
type AccessListRepository struct {
	table  string
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAccessListRepository creates a repository for WhitelistTable or BlacklistTable.
func NewAccessListRepository(pool *ConnectionPool, table string) *AccessListRepository {
	if table != WhitelistTable && table != BlacklistTable {
		panic(fmt.Sprintf("sqlite: unknown access list table %q", table))
	}
	return &AccessListRepository{table: table, helper: NewQueryHelper(pool), mapper: NewErrorMapper()}
}

// AddEntry inserts an email; an existing email yields persistence.ErrDuplicate.
func (r *AccessListRepository) AddEntry(ctx context.Context, entry persistence.AccessListEntry) error {
	email := normalizeEmail(entry.Email)
	if email == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx,
		`INSERT INTO `+r.table+` (email, reason, added_by, created_at) VALUES (?, ?, ?, ?)`,
		email, entry.Reason, entry.AddedBy, formatTime(entry.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// RemoveEntry deletes an email.
func (r *AccessListRepository) RemoveEntry(ctx context.Context, email string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM `+r.table+` WHERE email = ?`, normalizeEmail(email))
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffectedOrNotFound(result)
}

// HasEntry reports whether email is on the list.
func (r *AccessListRepository) HasEntry(ctx context.Context, email string) (bool, error) {
	var exists int
	err := r.helper.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+r.table+` WHERE email = ?)`, normalizeEmail(email),
	).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists == 1, nil
}

// ListEntries returns entries ordered by email.
func (r *AccessListRepository) ListEntries(ctx context.Context) ([]persistence.AccessListEntry, error) {
	rows, err := r.helper.Query(ctx, `SELECT email, reason, added_by, created_at FROM `+r.table+` ORDER BY email ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var entries []persistence.AccessListEntry
	for rows.Next() {
		var (
			entry     persistence.AccessListEntry
			createdAt string
		)
		if err := rows.Scan(&entry.Email, &entry.Reason, &entry.AddedBy, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return entries, nil
}

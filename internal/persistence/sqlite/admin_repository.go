package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/campus-voting/internal/persistence"
)

// AdminRepository implements persistence.AdminRepository using SQLite
type AdminRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAdminRepository creates a new SQLite admin repository
func NewAdminRepository(pool *ConnectionPool) *AdminRepository {
	return &AdminRepository{pool: pool, helper: NewQueryHelper(pool), mapper: NewErrorMapper()}
}

// CreateAdmin inserts a new administrator.
func (r *AdminRepository) CreateAdmin(ctx context.Context, admin persistence.Admin) error {
	username := strings.TrimSpace(admin.Username)
	if username == "" || admin.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO admins (username, password_hash, role, current_session_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		username,
		admin.PasswordHash,
		admin.Role,
		nullableString(admin.CurrentSessionToken),
		formatTime(admin.CreatedAt),
		formatTime(admin.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetAdmin retrieves an administrator by username.
func (r *AdminRepository) GetAdmin(ctx context.Context, username string) (persistence.Admin, error) {
	row := r.helper.QueryRow(ctx, `
		SELECT username, password_hash, role, current_session_token, created_at, updated_at
		FROM admins WHERE username = ?`, strings.TrimSpace(username))
	return r.scanAdmin(row)
}

// ListAdmins returns administrators ordered by username.
func (r *AdminRepository) ListAdmins(ctx context.Context) ([]persistence.Admin, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT username, password_hash, role, current_session_token, created_at, updated_at
		FROM admins ORDER BY username ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var admins []persistence.Admin
	for rows.Next() {
		admin, err := r.scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, admin)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return admins, nil
}

// DeleteAdmin removes an administrator.
func (r *AdminRepository) DeleteAdmin(ctx context.Context, username string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM admins WHERE username = ?`, username)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffectedOrNotFound(result)
}

// SetSessionToken stores or clears the administrator's active session token.
func (r *AdminRepository) SetSessionToken(ctx context.Context, username string, token *string) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE admins SET current_session_token = ? WHERE username = ?`,
		nullableString(token), username,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffectedOrNotFound(result)
}

func (r *AdminRepository) scanAdmin(row rowScanner) (persistence.Admin, error) {
	var (
		admin                persistence.Admin
		token                sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&admin.Username, &admin.PasswordHash, &admin.Role, &token, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Admin{}, persistence.ErrNotFound
		}
		return persistence.Admin{}, r.mapper.MapError(err)
	}
	admin.CurrentSessionToken = stringPointer(token)
	if admin.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Admin{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if admin.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Admin{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return admin, nil
}

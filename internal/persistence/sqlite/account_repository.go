package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/campus-voting/internal/persistence"
)

const accountColumns = `id, name, roll_number, email, phone, department, year, gender, team_id,
	password_hash, current_session_token, status, created_at, updated_at`

// AccountRepository implements persistence.AccountRepository using SQLite
type AccountRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAccountRepository creates a new SQLite account repository
func NewAccountRepository(pool *ConnectionPool) *AccountRepository {
	return &AccountRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateAccount inserts a new account.
func (r *AccountRepository) CreateAccount(ctx context.Context, account persistence.Account) error {
	if account.ID == "" || account.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.helper.Exec(ctx, query,
		account.ID,
		account.Name,
		strings.TrimSpace(account.RollNumber),
		normalizeEmail(account.Email),
		account.Phone,
		account.Department,
		account.Year,
		account.Gender,
		nullableString(account.TeamID),
		account.PasswordHash,
		nullableString(account.CurrentSessionToken),
		account.Status,
		formatTime(account.CreatedAt),
		formatTime(account.UpdatedAt),
	)
	if err != nil {
		return r.mapAccountError(err)
	}
	return nil
}

// UpdateAccount rewrites every mutable column of an existing account.
func (r *AccountRepository) UpdateAccount(ctx context.Context, account persistence.Account) error {
	if account.ID == "" || account.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		UPDATE accounts
		SET name = ?, roll_number = ?, email = ?, phone = ?, department = ?, year = ?, gender = ?,
			team_id = ?, password_hash = ?, current_session_token = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.helper.Exec(ctx, query,
		account.Name,
		strings.TrimSpace(account.RollNumber),
		normalizeEmail(account.Email),
		account.Phone,
		account.Department,
		account.Year,
		account.Gender,
		nullableString(account.TeamID),
		account.PasswordHash,
		nullableString(account.CurrentSessionToken),
		account.Status,
		formatTime(account.UpdatedAt),
		account.ID,
	)
	if err != nil {
		return r.mapAccountError(err)
	}
	return rowsAffectedOrNotFound(result)
}

// GetAccount retrieves an account by ID.
func (r *AccountRepository) GetAccount(ctx context.Context, id string) (persistence.Account, error) {
	if id == "" {
		return persistence.Account{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return r.scanAccount(row)
}

// GetAccountByEmail retrieves an account by normalized email.
func (r *AccountRepository) GetAccountByEmail(ctx context.Context, email string) (persistence.Account, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.Account{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, normalized)
	return r.scanAccount(row)
}

// ListAccounts returns all accounts ordered by creation time then ID.
func (r *AccountRepository) ListAccounts(ctx context.Context) ([]persistence.Account, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var accounts []persistence.Account
	for rows.Next() {
		account, err := r.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return accounts, nil
}

// DeleteAccount removes an account and its vote transactions in one transaction.
func (r *AccountRepository) DeleteAccount(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := r.helper.ExecTx(ctx, tx, `DELETE FROM vote_transactions WHERE account_id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		result, err := r.helper.ExecTx(ctx, tx, `DELETE FROM accounts WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return rowsAffectedOrNotFound(result)
	})
}

// SetSessionToken stores or clears the account's active session token.
func (r *AccountRepository) SetSessionToken(ctx context.Context, id string, token *string) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE accounts SET current_session_token = ? WHERE id = ?`,
		nullableString(token), id,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return rowsAffectedOrNotFound(result)
}

// CountAccounts returns the number of registered accounts.
func (r *AccountRepository) CountAccounts(ctx context.Context) (int, error) {
	var count int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, r.mapper.MapError(err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AccountRepository) scanAccount(row rowScanner) (persistence.Account, error) {
	var (
		account              persistence.Account
		teamID, sessionToken sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.RollNumber,
		&account.Email,
		&account.Phone,
		&account.Department,
		&account.Year,
		&account.Gender,
		&teamID,
		&account.PasswordHash,
		&sessionToken,
		&account.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Account{}, persistence.ErrNotFound
		}
		return persistence.Account{}, r.mapper.MapError(err)
	}
	account.TeamID = stringPointer(teamID)
	account.CurrentSessionToken = stringPointer(sessionToken)
	if account.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Account{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if account.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Account{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return account, nil
}

// mapAccountError names the column behind a uniqueness failure so callers can report it.
func (r *AccountRepository) mapAccountError(err error) error {
	msg := err.Error()
	switch {
	case containsAny(msg, "accounts.email"):
		return fmt.Errorf("%w: email", persistence.ErrDuplicate)
	case containsAny(msg, "accounts.roll_number"):
		return fmt.Errorf("%w: roll_number", persistence.ErrDuplicate)
	case containsAny(msg, "accounts.id"):
		return fmt.Errorf("%w: id", persistence.ErrDuplicate)
	}
	return r.mapper.MapError(err)
}

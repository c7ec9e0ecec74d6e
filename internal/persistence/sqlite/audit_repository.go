package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/campus-voting/internal/persistence"
)

// AuditRepository implements persistence.AuditRepository using SQLite
type AuditRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAuditRepository creates a new SQLite audit repository
func NewAuditRepository(pool *ConnectionPool) *AuditRepository {
	return &AuditRepository{helper: NewQueryHelper(pool), mapper: NewErrorMapper()}
}

// AppendAudit stores one audit record.
func (r *AuditRepository) AppendAudit(ctx context.Context, entry persistence.AuditLog) error {
	_, err := r.helper.Exec(ctx, `
		INSERT INTO audit_logs (id, actor, actor_type, action, details, ip, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Actor,
		entry.ActorType,
		entry.Action,
		entry.Details,
		entry.IP,
		entry.UserAgent,
		formatTime(entry.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// ListAudit returns one page of records, newest first, and the total matching count.
func (r *AuditRepository) ListAudit(ctx context.Context, filter persistence.AuditFilter) ([]persistence.AuditLog, int, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Actor != "" {
		clauses = append(clauses, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, filter.Action)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, r.mapper.MapError(err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	pageArgs := append(append([]any{}, args...), limit, max(filter.Offset, 0))
	rows, err := r.helper.Query(ctx, `
		SELECT id, actor, actor_type, action, details, ip, user_agent, created_at
		FROM audit_logs`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, r.mapper.MapError(err)
	}
	defer rows.Close()

	var entries []persistence.AuditLog
	for rows.Next() {
		var (
			entry     persistence.AuditLog
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.ActorType, &entry.Action,
			&entry.Details, &entry.IP, &entry.UserAgent, &createdAt); err != nil {
			return nil, 0, r.mapper.MapError(err)
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, 0, fmt.Errorf("failed to parse created_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, r.mapper.MapError(err)
	}
	return entries, total, nil
}

package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Audit actions.
const (
	AuditLogin               = "LOGIN"
	AuditAdminLogin          = "ADMIN_LOGIN"
	AuditLogout              = "LOGOUT"
	AuditRegister            = "REGISTER"
	AuditCastVote            = "CAST_VOTE"
	AuditUpdateConfig        = "UPDATE_CONFIG"
	AuditCreateTeam          = "CREATE_TEAM"
	AuditUpdateTeam          = "UPDATE_TEAM"
	AuditDeleteTeam          = "DELETE_TEAM"
	AuditDeleteUser          = "DELETE_USER"
	AuditDeleteUserVotes     = "DELETE_USER_VOTES"
	AuditDeleteUserTeamVotes = "DELETE_USER_TEAM_VOTES"
	AuditApproveUser         = "APPROVE_USER"
	AuditRevokeDevice        = "REVOKE_DEVICE"
	AuditForceLogout         = "FORCE_LOGOUT"
	AuditResetPassword       = "RESET_PASSWORD"
	AuditCreateAdmin         = "CREATE_ADMIN"
	AuditDeleteAdmin         = "DELETE_ADMIN"
	AuditWhitelistAdd        = "WHITELIST_ADD"
	AuditWhitelistRemove     = "WHITELIST_REMOVE"
	AuditBlacklistAdd        = "BLACKLIST_ADD"
	AuditBlacklistRemove     = "BLACKLIST_REMOVE"
	AuditUpsertScore         = "UPSERT_SCORE"
	AuditDeleteScore         = "DELETE_SCORE"
)

// AuditRecorder appends audit entries without failing the caller.
type AuditRecorder struct {
	store       AuditStore
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAuditRecorder constructs an AuditRecorder. A nil store disables recording.
func NewAuditRecorder(store AuditStore, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AuditRecorder {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AuditRecorder{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

// Record writes one entry. details is stored as-is when it is a string and as
// JSON otherwise.
func (r *AuditRecorder) Record(ctx context.Context, actor, actorType, action string, meta RequestMeta, details any) {
	if r == nil || r.store == nil {
		return
	}
	entry := AuditEntry{
		ID:        r.idGenerator(),
		Actor:     actor,
		ActorType: actorType,
		Action:    action,
		Details:   renderDetails(details),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		serviceLogger(ctx, r.logger, "AuditRecorder", "Record", "action", action).
			WarnContext(ctx, "audit write failed", "error", err, "error_kind", ErrorKind(err))
	}
}

// RecordFor writes an entry attributed to principal.
func (r *AuditRecorder) RecordFor(ctx context.Context, principal Principal, action string, meta RequestMeta, details any) {
	r.Record(ctx, principal.Subject(), principal.ActorType(), action, meta, details)
}

func renderDetails(details any) string {
	switch v := details.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Sprintf("%v", details)
	}
	return string(raw)
}

package http

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/campus-voting/internal/application"
	"github.com/example/campus-voting/internal/realtime"
)

type adminService interface {
	Dashboard(ctx context.Context, principal application.Principal) (application.Dashboard, error)
	Presence(ctx context.Context, principal application.Principal) (application.PresenceSnapshot, error)
	ListAccounts(ctx context.Context, principal application.Principal) ([]application.AccountView, error)
	ApproveAccount(ctx context.Context, principal application.Principal, accountID string, meta application.RequestMeta) (application.Account, error)
	DeleteAccount(ctx context.Context, principal application.Principal, accountID string, meta application.RequestMeta) error
	DeleteAccountVotes(ctx context.Context, principal application.Principal, accountID, teamID string, meta application.RequestMeta) (int, error)
	ListTransactions(ctx context.Context, principal application.Principal, filter application.TransactionFilter) (application.TransactionPage, error)
	ListAudit(ctx context.Context, principal application.Principal, query application.AuditQuery) (application.AuditPage, error)
	ListAdmins(ctx context.Context, principal application.Principal) ([]application.Admin, error)
	CreateAdmin(ctx context.Context, principal application.Principal, input application.AdminInput, meta application.RequestMeta) (application.Admin, error)
	DeleteAdmin(ctx context.Context, principal application.Principal, username string, meta application.RequestMeta) error
}

type sessionAdministrator interface {
	ForceLogout(ctx context.Context, principal application.Principal, accountID string, notify bool, meta application.RequestMeta) error
	ResetPassword(ctx context.Context, principal application.Principal, accountID, newPassword string, meta application.RequestMeta) error
}

type configService interface {
	Snapshot(ctx context.Context) (application.VotingConfig, error)
	Update(ctx context.Context, principal application.Principal, input application.ConfigInput, expectedVersion int64, meta application.RequestMeta) (application.VotingConfig, error)
}

type eventLog interface {
	EventsAfter(ctx context.Context, after int64, limit int) ([]realtime.Envelope, error)
}

const (
	defaultPageLimit  = 50
	maxPageLimit      = 500
	defaultEventLimit = 100
)

// AdminDeps groups the collaborators of AdminHandler.
type AdminDeps struct {
	Admin    adminService
	Sessions sessionAdministrator
	Config   configService
	Events   eventLog
	Logger   *slog.Logger
}

// AdminHandler serves the administrator console.
type AdminHandler struct {
	admin     adminService
	sessions  sessionAdministrator
	config    configService
	events    eventLog
	responder responder
	logger    *slog.Logger
}

func NewAdminHandler(deps AdminDeps) *AdminHandler {
	base := defaultLogger(deps.Logger)
	return &AdminHandler{
		admin:     deps.Admin,
		sessions:  deps.Sessions,
		config:    deps.Config,
		events:    deps.Events,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *AdminHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AdminHandler", operation, attrs...)
}

// begin checks the handler is wired and returns the caller.
func (h *AdminHandler) begin(w http.ResponseWriter, r *http.Request, operation string, ready bool) (application.Principal, *slog.Logger, bool) {
	if h == nil || !ready {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return application.Principal{}, nil, false
	}
	logger := h.log(r.Context(), operation)
	principal, ok := requirePrincipal(w, r, h.responder, logger)
	if !ok {
		return application.Principal{}, nil, false
	}
	return principal, logger.With("actor", principal.Subject()), true
}

func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(r.Context(), msg, "error", err, "error_kind", application.ErrorKind(err))
	h.responder.handleServiceError(r.Context(), w, err)
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "Dashboard", h != nil && h.admin != nil)
	if !ok {
		return
	}
	dash, err := h.admin.Dashboard(r.Context(), principal)
	if err != nil {
		h.fail(w, r, logger, "failed to build dashboard", err)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, toDashboardDTO(dash))
}

func (h *AdminHandler) Presence(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "Presence", h != nil && h.admin != nil)
	if !ok {
		return
	}
	snapshot, err := h.admin.Presence(r.Context(), principal)
	if err != nil {
		h.fail(w, r, logger, "failed to read presence", err)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, toPresenceDTO(snapshot))
}

// Events returns outbox entries with seq greater than ?after for polling clients.
func (h *AdminHandler) Events(w http.ResponseWriter, r *http.Request) {
	_, logger, ok := h.begin(w, r, "Events", h != nil && h.events != nil)
	if !ok {
		return
	}
	query := r.URL.Query()
	vErr := &application.ValidationError{}
	after := parseInt64Param(query.Get("after"), 0, "after", vErr)
	limit := parseIntParam(query.Get("limit"), defaultEventLimit, "limit", vErr)
	if vErr.HasErrors() {
		h.fail(w, r, logger, "invalid event query", vErr)
		return
	}

	events, err := h.events.EventsAfter(r.Context(), after, min(limit, maxPageLimit))
	if err != nil {
		h.fail(w, r, logger, "failed to list events", err)
		return
	}
	if events == nil {
		events = []realtime.Envelope{}
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, events)
}

func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	_, logger, ok := h.begin(w, r, "GetConfig", h != nil && h.config != nil)
	if !ok {
		return
	}
	cfg, err := h.config.Snapshot(r.Context())
	if err != nil {
		h.fail(w, r, logger, "failed to load config", err)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, toConfigDTO(cfg))
}

func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "UpdateConfig", h != nil && h.config != nil)
	if !ok {
		return
	}
	var req configRequest
	if !decodeBody(w, r, h.responder, logger, &req) {
		return
	}

	cfg, err := h.config.Update(r.Context(), principal, req.toInput(), req.ExpectedVersion, requestMeta(r))
	if err != nil {
		h.fail(w, r, logger, "failed to update config", err)
		return
	}
	logger.InfoContext(r.Context(), "config updated", "version", cfg.Version)
	h.responder.writeOK(r.Context(), w, http.StatusOK, toConfigDTO(cfg))
}

// RevokeDevice clears a student's session without notifying the client.
func (h *AdminHandler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	h.forceLogout(w, r, "RevokeDevice", false)
}

// LogoutUser clears a student's session and pushes a force-logout event.
func (h *AdminHandler) LogoutUser(w http.ResponseWriter, r *http.Request) {
	h.forceLogout(w, r, "LogoutUser", true)
}

func (h *AdminHandler) forceLogout(w http.ResponseWriter, r *http.Request, operation string, notify bool) {
	principal, logger, ok := h.begin(w, r, operation, h != nil && h.sessions != nil)
	if !ok {
		return
	}
	var req userRequest
	if !decodeBody(w, r, h.responder, logger, &req) {
		return
	}
	if err := h.sessions.ForceLogout(r.Context(), principal, req.UserID, notify, requestMeta(r)); err != nil {
		h.fail(w, r, logger, "failed to revoke session", err)
		return
	}
	logger.InfoContext(r.Context(), "student session revoked", "account_id", req.UserID, "notify", notify)
	h.responder.writeMessage(r.Context(), w, "session revoked")
}

func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "ResetPassword", h != nil && h.sessions != nil)
	if !ok {
		return
	}
	var req resetPasswordRequest
	if !decodeBody(w, r, h.responder, logger, &req) {
		return
	}
	if err := h.sessions.ResetPassword(r.Context(), principal, req.UserID, req.NewPassword, requestMeta(r)); err != nil {
		h.fail(w, r, logger, "failed to reset password", err)
		return
	}
	logger.InfoContext(r.Context(), "password reset", "account_id", req.UserID)
	h.responder.writeMessage(r.Context(), w, "password reset")
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "ListUsers", h != nil && h.admin != nil)
	if !ok {
		return
	}
	views, err := h.admin.ListAccounts(r.Context(), principal)
	if err != nil {
		h.fail(w, r, logger, "failed to list accounts", err)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, mapSlice(views, toAccountViewDTO))
}

func (h *AdminHandler) ApproveUser(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "ApproveUser", h != nil && h.admin != nil)
	if !ok {
		return
	}
	account, err := h.admin.ApproveAccount(r.Context(), principal, r.PathValue("id"), requestMeta(r))
	if err != nil {
		h.fail(w, r, logger, "failed to approve account", err)
		return
	}
	logger.InfoContext(r.Context(), "account approved", "account_id", account.ID)
	h.responder.writeOK(r.Context(), w, http.StatusOK, toAccountDTO(account))
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "DeleteUser", h != nil && h.admin != nil)
	if !ok {
		return
	}
	accountID := r.PathValue("id")
	if err := h.admin.DeleteAccount(r.Context(), principal, accountID, requestMeta(r)); err != nil {
		h.fail(w, r, logger, "failed to delete account", err)
		return
	}
	logger.InfoContext(r.Context(), "account deleted", "account_id", accountID)
	h.responder.writeMessage(r.Context(), w, "user deleted")
}

// DeleteUserVotes removes an account's transactions; the optional {teamId}
// path segment restricts deletion to one team.
func (h *AdminHandler) DeleteUserVotes(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "DeleteUserVotes", h != nil && h.admin != nil)
	if !ok {
		return
	}
	accountID, teamID := r.PathValue("id"), r.PathValue("teamId")
	deleted, err := h.admin.DeleteAccountVotes(r.Context(), principal, accountID, teamID, requestMeta(r))
	if err != nil {
		h.fail(w, r, logger, "failed to delete votes", err)
		return
	}
	logger.InfoContext(r.Context(), "votes deleted", "account_id", accountID, "team_id", teamID, "deleted", deleted)
	h.responder.writeOK(r.Context(), w, http.StatusOK, deleteVotesResponse{Deleted: deleted})
}

// Transactions lists ledger entries; ?format=csv streams every match as CSV.
func (h *AdminHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "Transactions", h != nil && h.admin != nil)
	if !ok {
		return
	}
	asCSV := strings.EqualFold(r.URL.Query().Get("format"), "csv")
	filter, vErr := parseTransactionFilter(r, asCSV)
	if vErr.HasErrors() {
		h.fail(w, r, logger, "invalid transaction query", vErr)
		return
	}

	page, err := h.admin.ListTransactions(r.Context(), principal, filter)
	if err != nil {
		h.fail(w, r, logger, "failed to list transactions", err)
		return
	}

	if asCSV {
		h.writeTransactionsCSV(w, r, logger, page.Transactions)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, pageDTO[transactionDTO]{
		Items:  mapSlice(page.Transactions, toTransactionDTO),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (h *AdminHandler) writeTransactionsCSV(w http.ResponseWriter, r *http.Request, logger *slog.Logger, txs []application.VoteTransaction) {
	filename := fmt.Sprintf("transactions-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	out := csv.NewWriter(w)
	_ = out.Write([]string{"id", "account_id", "team_id", "vote_count", "effective_date", "created_at"})
	for _, tx := range txs {
		_ = out.Write([]string{
			tx.ID,
			tx.AccountID,
			tx.TeamID,
			strconv.Itoa(tx.VoteCount),
			tx.EffectiveDate.Format(application.DateLayout),
			tx.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	out.Flush()
	if err := out.Error(); err != nil {
		logger.ErrorContext(r.Context(), "failed to write csv export", "error", err)
		return
	}
	logger.InfoContext(r.Context(), "transactions exported", "rows", len(txs))
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "AuditLogs", h != nil && h.admin != nil)
	if !ok {
		return
	}
	query := r.URL.Query()
	vErr := &application.ValidationError{}
	limit := parseIntParam(query.Get("limit"), defaultPageLimit, "limit", vErr)
	offset := parseIntParam(query.Get("offset"), 0, "offset", vErr)
	if vErr.HasErrors() {
		h.fail(w, r, logger, "invalid audit query", vErr)
		return
	}

	page, err := h.admin.ListAudit(r.Context(), principal, application.AuditQuery{
		Actor:  strings.TrimSpace(query.Get("actor")),
		Action: strings.TrimSpace(query.Get("action")),
		Limit:  min(limit, maxPageLimit),
		Offset: offset,
	})
	if err != nil {
		h.fail(w, r, logger, "failed to list audit logs", err)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, pageDTO[auditDTO]{
		Items:  mapSlice(page.Entries, toAuditDTO),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "ListAdmins", h != nil && h.admin != nil)
	if !ok {
		return
	}
	admins, err := h.admin.ListAdmins(r.Context(), principal)
	if err != nil {
		h.fail(w, r, logger, "failed to list admins", err)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, mapSlice(admins, toAdminDTO))
}

func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "CreateAdmin", h != nil && h.admin != nil)
	if !ok {
		return
	}
	var req adminRequest
	if !decodeBody(w, r, h.responder, logger, &req) {
		return
	}
	admin, err := h.admin.CreateAdmin(r.Context(), principal, application.AdminInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	}, requestMeta(r))
	if err != nil {
		h.fail(w, r, logger, "failed to create admin", err)
		return
	}
	logger.InfoContext(r.Context(), "admin created", "username", admin.Username, "role", admin.Role)
	h.responder.writeOK(r.Context(), w, http.StatusCreated, toAdminDTO(admin))
}

func (h *AdminHandler) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "DeleteAdmin", h != nil && h.admin != nil)
	if !ok {
		return
	}
	username := r.PathValue("username")
	if err := h.admin.DeleteAdmin(r.Context(), principal, username, requestMeta(r)); err != nil {
		h.fail(w, r, logger, "failed to delete admin", err)
		return
	}
	logger.InfoContext(r.Context(), "admin deleted", "username", username)
	h.responder.writeMessage(r.Context(), w, "admin deleted")
}

func parseTransactionFilter(r *http.Request, all bool) (application.TransactionFilter, *application.ValidationError) {
	query := r.URL.Query()
	vErr := &application.ValidationError{}
	filter := application.TransactionFilter{
		AccountID: strings.TrimSpace(firstNonEmpty(query.Get("account_id"), query.Get("user_id"))),
		TeamID:    strings.TrimSpace(query.Get("team_id")),
	}
	if from := strings.TrimSpace(query.Get("from")); from != "" {
		if date, err := application.ParseDate(from); err == nil {
			filter.EffectiveFrom = &date
		} else {
			vErr.FieldErrors = addField(vErr.FieldErrors, "from", "from must be YYYY-MM-DD")
		}
	}
	if to := strings.TrimSpace(query.Get("to")); to != "" {
		if date, err := application.ParseDate(to); err == nil {
			filter.EffectiveTo = &date
		} else {
			vErr.FieldErrors = addField(vErr.FieldErrors, "to", "to must be YYYY-MM-DD")
		}
	}
	if !all {
		filter.Limit = min(parseIntParam(query.Get("limit"), defaultPageLimit, "limit", vErr), maxPageLimit)
		filter.Offset = parseIntParam(query.Get("offset"), 0, "offset", vErr)
	}
	if len(vErr.FieldErrors) > 0 && vErr.Message == "" {
		vErr.Message = "invalid query parameters"
	}
	return filter, vErr
}

// parseIntParam parses a non-negative integer query parameter.
func parseIntParam(raw string, fallback int, field string, vErr *application.ValidationError) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		vErr.FieldErrors = addField(vErr.FieldErrors, field, field+" must be a non-negative integer")
		vErr.Message = "invalid query parameters"
		return fallback
	}
	return value
}

func parseInt64Param(raw string, fallback int64, field string, vErr *application.ValidationError) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		vErr.FieldErrors = addField(vErr.FieldErrors, field, field+" must be a non-negative integer")
		vErr.Message = "invalid query parameters"
		return fallback
	}
	return value
}

func addField(fields map[string]string, field, message string) map[string]string {
	if fields == nil {
		fields = make(map[string]string)
	}
	fields[field] = message
	return fields
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type resetPasswordRequest struct {
	UserID      string `json:"user_id"`
	NewPassword string `json:"new_password"`
}

type adminRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type deleteVotesResponse struct {
	Deleted int `json:"deleted"`
}

// configRequest is a partial update. Absent fields keep their value; a
// legacy_window object with null bounds clears the window and an empty
// current_session_date clears the override.
type configRequest struct {
	IsVotingOpen       *bool            `json:"is_voting_open"`
	DailyQuota         *int             `json:"daily_quota"`
	Slots              *[]slotDTO       `json:"slots"`
	LegacyWindow       *legacyWindowDTO `json:"legacy_window"`
	CurrentSessionDate *string          `json:"current_session_date"`
	ExpectedVersion    int64            `json:"expected_version"`
}

type legacyWindowDTO struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

func (c configRequest) toInput() application.ConfigInput {
	input := application.ConfigInput{
		IsVotingOpen:       c.IsVotingOpen,
		DailyQuota:         c.DailyQuota,
		CurrentSessionDate: c.CurrentSessionDate,
	}
	if c.Slots != nil {
		slots := make([]application.Slot, 0, len(*c.Slots))
		for _, slot := range *c.Slots {
			slots = append(slots, slot.toSlot())
		}
		input.Slots = &slots
	}
	if c.LegacyWindow != nil {
		input.LegacyWindow = &application.LegacyWindow{Start: c.LegacyWindow.StartTime, End: c.LegacyWindow.EndTime}
	}
	return input
}

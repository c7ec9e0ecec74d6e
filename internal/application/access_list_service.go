package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
)

// AccessListServiceDeps groups the collaborators of AccessListService.
type AccessListServiceDeps struct {
	Whitelist AccessListStore
	Blacklist AccessListStore
	Accounts  AccountStore
	Audit     *AuditRecorder
	Notifier  Notifier
	Now       func() time.Time
	Logger    *slog.Logger
}

// AccessListService manages the registration whitelist and the blacklist.
type AccessListService struct {
	whitelist AccessListStore
	blacklist AccessListStore
	accounts  AccountStore
	audit     *AuditRecorder
	notifier  Notifier
	now       func() time.Time
	logger    *slog.Logger
}

// NewAccessListService constructs an AccessListService.
func NewAccessListService(deps AccessListServiceDeps) *AccessListService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &AccessListService{
		whitelist: deps.Whitelist,
		blacklist: deps.Blacklist,
		accounts:  deps.Accounts,
		audit:     deps.Audit,
		notifier:  deps.Notifier,
		now:       deps.Now,
		logger:    defaultLogger(deps.Logger),
	}
}

func (s *AccessListService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AccessListService", operation, attrs...)
}

func (s *AccessListService) store(kind AccessListKind) (AccessListStore, error) {
	switch kind {
	case Whitelist:
		if s.whitelist != nil {
			return s.whitelist, nil
		}
	case Blacklist:
		if s.blacklist != nil {
			return s.blacklist, nil
		}
	default:
		return nil, NewValidationError("list", "unknown access list")
	}
	return nil, fmt.Errorf("%s store not configured", kind)
}

// List returns every entry of one list.
func (s *AccessListService) List(ctx context.Context, principal Principal, kind AccessListKind) ([]AccessEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("AccessListService is nil")
	}
	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}
	store, err := s.store(kind)
	if err != nil {
		return nil, err
	}
	entries, err := store.ListEntries(ctx)
	if err != nil {
		s.loggerWith(ctx, "List", "list", kind).ErrorContext(ctx, "failed to list entries", "error", err, "error_kind", ErrorKind(err))
		return nil, mapStoreError(err)
	}
	return entries, nil
}

// Add puts an email on a list. Blacklisting also clears the session of any
// account registered with that email.
func (s *AccessListService) Add(ctx context.Context, principal Principal, kind AccessListKind, email, reason string, meta RequestMeta) (entry AccessEntry, err error) {
	if s == nil {
		err = fmt.Errorf("AccessListService is nil")
		return
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "Add", "principal", principal.Subject(), "list", kind, "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add entry", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "entry added")
	}()

	if !principal.IsAdmin() {
		err = ErrForbidden
		return
	}
	var store AccessListStore
	store, err = s.store(kind)
	if err != nil {
		return
	}
	if addr, parseErr := mail.ParseAddress(email); email == "" || parseErr != nil || addr.Address != email {
		err = NewValidationError("email", "a valid email is required")
		return
	}

	entry = AccessEntry{
		Email:     email,
		Reason:    strings.TrimSpace(reason),
		AddedBy:   principal.Subject(),
		CreatedAt: s.now().UTC(),
	}
	if err = store.AddEntry(ctx, entry); err != nil {
		err = mapStoreError(err)
		return
	}

	action := AuditWhitelistAdd
	if kind == Blacklist {
		action = AuditBlacklistAdd
		s.evict(ctx, logger, email)
	}
	s.audit.RecordFor(ctx, principal, action, meta, map[string]string{"email": email, "reason": entry.Reason})
	return
}

// evict clears the session of the account holding email, best-effort.
func (s *AccessListService) evict(ctx context.Context, logger *slog.Logger, email string) {
	if s.accounts == nil {
		return
	}
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		return
	}
	if err := s.accounts.SetSessionToken(ctx, account.ID, nil); err != nil {
		logger.WarnContext(ctx, "failed to clear blacklisted session", "account_id", account.ID, "error", err)
		return
	}
	publish(ctx, s.notifier, logger, Notification{
		Type:    EventForceLogout,
		Target:  NotificationTarget(PrincipalStudent, account.ID),
		Payload: map[string]string{"account_id": account.ID, "reason": "blacklisted"},
	})
}

// Remove deletes an email from a list.
func (s *AccessListService) Remove(ctx context.Context, principal Principal, kind AccessListKind, email string, meta RequestMeta) (err error) {
	if s == nil {
		return fmt.Errorf("AccessListService is nil")
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "Remove", "principal", principal.Subject(), "list", kind, "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove entry", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "entry removed")
	}()

	if !principal.IsAdmin() {
		return ErrForbidden
	}
	var store AccessListStore
	store, err = s.store(kind)
	if err != nil {
		return
	}
	if err = store.RemoveEntry(ctx, email); err != nil {
		err = mapStoreError(err)
		return
	}

	action := AuditWhitelistRemove
	if kind == Blacklist {
		action = AuditBlacklistRemove
	}
	s.audit.RecordFor(ctx, principal, action, meta, map[string]string{"email": email})
	return nil
}

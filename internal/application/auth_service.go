package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
)

// AuthServiceDeps groups the collaborators of AuthService.
type AuthServiceDeps struct {
	Accounts  AccountStore
	Admins    AdminStore
	Teams     TeamStore
	Ledger    VoteLedger
	Whitelist AccessListStore
	Blacklist AccessListStore
	Codec     SessionCodec
	Limiter   Limiter
	Audit     *AuditRecorder
	Notifier  Notifier
	Verify    PasswordVerifier
	Hash      PasswordHasher
	// IDGenerator creates account ids; TokenGenerator creates session ids.
	IDGenerator     func() string
	TokenGenerator  func() string
	Now             func() time.Time
	SessionTTL      time.Duration
	RequireApproval bool
	Logger          *slog.Logger
}

// AuthService coordinates registration, login and single-session enforcement.
type AuthService struct {
	accounts        AccountStore
	admins          AdminStore
	teams           TeamStore
	ledger          VoteLedger
	whitelist       AccessListStore
	blacklist       AccessListStore
	codec           SessionCodec
	limiter         Limiter
	audit           *AuditRecorder
	notifier        Notifier
	verifyPassword  PasswordVerifier
	hashPassword    PasswordHasher
	idGenerator     func() string
	tokenGenerator  func() string
	now             func() time.Time
	sessionTTL      time.Duration
	requireApproval bool
	logger          *slog.Logger
}

// NewAuthService constructs an AuthService.
func NewAuthService(deps AuthServiceDeps) *AuthService {
	if deps.Verify == nil {
		deps.Verify = VerifyPassword
	}
	if deps.Hash == nil {
		deps.Hash = HashPassword
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.TokenGenerator == nil {
		deps.TokenGenerator = deps.IDGenerator
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = time.Hour
	}
	return &AuthService{
		accounts:        deps.Accounts,
		admins:          deps.Admins,
		teams:           deps.Teams,
		ledger:          deps.Ledger,
		whitelist:       deps.Whitelist,
		blacklist:       deps.Blacklist,
		codec:           deps.Codec,
		limiter:         deps.Limiter,
		audit:           deps.Audit,
		notifier:        deps.Notifier,
		verifyPassword:  deps.Verify,
		hashPassword:    deps.Hash,
		idGenerator:     deps.IDGenerator,
		tokenGenerator:  deps.TokenGenerator,
		now:             deps.Now,
		sessionTTL:      deps.SessionTTL,
		requireApproval: deps.RequireApproval,
		logger:          defaultLogger(deps.Logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// SessionTTL reports the lifetime of issued tokens.
func (s *AuthService) SessionTTL() time.Duration {
	if s == nil {
		return 0
	}
	return s.sessionTTL
}

// RegisterParams captures a student registration.
type RegisterParams struct {
	Name       string
	RollNumber string
	Email      string
	Password   string
	Phone      string
	Department string
	Year       string
	Gender     string
	TeamID     *string
}

// LoginParams captures student credentials.
type LoginParams struct {
	Email    string
	Password string
}

// AdminLoginParams captures administrator credentials.
type AdminLoginParams struct {
	Username string
	Password string
}

// LoginResult is a freshly issued session.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Principal Principal
	Account   *Account
	Admin     *Admin
}

// Identity describes the caller for /auth/me.
type Identity struct {
	Principal Principal
	Account   *AccountView
	Admin     *Admin
}

// Register creates a student account. Accounts register as PENDING when
// approval is required and the email is not whitelisted.
func (s *AuthService) Register(ctx context.Context, params RegisterParams, meta RequestMeta) (account Account, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.accounts == nil {
		err = fmt.Errorf("account store not configured")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Register", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("account_id", account.ID, "status", account.Status).InfoContext(ctx, "account registered")
	}()

	if vErr := validateRegistration(params, email); vErr.HasErrors() {
		err = vErr
		return
	}

	var blocked bool
	blocked, err = listHas(ctx, s.blacklist, email)
	if err != nil {
		return
	}
	if blocked {
		err = ErrAccountBlocked
		return
	}

	var teamID *string
	if params.TeamID != nil && strings.TrimSpace(*params.TeamID) != "" {
		id := strings.TrimSpace(*params.TeamID)
		if s.teams != nil {
			if _, getErr := s.teams.GetTeam(ctx, id); getErr != nil {
				if errors.Is(mapStoreError(getErr), ErrNotFound) {
					err = NewValidationError("team_id", "unknown team")
					return
				}
				err = getErr
				return
			}
		}
		teamID = &id
	}

	status := AccountApproved
	if s.requireApproval {
		var whitelisted bool
		whitelisted, err = listHas(ctx, s.whitelist, email)
		if err != nil {
			return
		}
		if !whitelisted {
			status = AccountPending
		}
	}

	var hash string
	hash, err = s.hashPassword(params.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now().UTC()
	account = Account{
		ID:           s.idGenerator(),
		Name:         strings.TrimSpace(params.Name),
		RollNumber:   strings.TrimSpace(params.RollNumber),
		Email:        email,
		Phone:        strings.TrimSpace(params.Phone),
		Department:   strings.TrimSpace(params.Department),
		Year:         strings.TrimSpace(params.Year),
		Gender:       strings.TrimSpace(params.Gender),
		TeamID:       teamID,
		PasswordHash: hash,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err = s.accounts.CreateAccount(ctx, account); err != nil {
		err = mapRegistrationError(err)
		return
	}

	s.audit.Record(ctx, account.ID, ActorStudent, AuditRegister, meta, map[string]string{"email": email, "status": status})
	publish(ctx, s.notifier, logger, Notification{Type: EventDataChanged, Payload: map[string]string{"scope": "accounts"}})
	return
}

// Login verifies student credentials, rotates the stored session id and signs
// a token carrying it. Any previously issued token stops resolving.
func (s *AuthService) Login(ctx context.Context, params LoginParams, meta RequestMeta) (result LoginResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.accounts == nil || s.codec == nil {
		err = fmt.Errorf("auth service not configured")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Login", "email", email, "ip", meta.IP)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("account_id", result.Principal.AccountID).InfoContext(ctx, "login succeeded")
	}()

	if err = s.allow(ctx, logger, "login:"+meta.IP+":"+email); err != nil {
		return
	}
	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var blocked bool
	blocked, err = listHas(ctx, s.blacklist, email)
	if err != nil {
		return
	}
	if blocked {
		err = ErrAccountBlocked
		return
	}

	var account Account
	account, err = s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(mapStoreError(err), ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}
	if verifyErr := s.verifyPassword(account.PasswordHash, params.Password); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}
	if account.Status == AccountPending {
		err = ErrAccountPending
		return
	}

	var token string
	var expires time.Time
	token, expires, err = s.rotate(ctx, PrincipalStudent, account.ID, func(sid *string) error {
		return s.accounts.SetSessionToken(ctx, account.ID, sid)
	})
	if err != nil {
		return
	}

	account.SessionToken = nil
	account.PasswordHash = ""
	result = LoginResult{
		Token:     token,
		ExpiresAt: expires,
		Principal: studentPrincipal(account),
		Account:   &account,
	}
	s.audit.Record(ctx, account.ID, ActorStudent, AuditLogin, meta, map[string]string{"email": email})
	return
}

// AdminLogin verifies administrator credentials and rotates the admin session.
func (s *AuthService) AdminLogin(ctx context.Context, params AdminLoginParams, meta RequestMeta) (result LoginResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.admins == nil || s.codec == nil {
		err = fmt.Errorf("auth service not configured")
		return
	}

	username := strings.TrimSpace(params.Username)
	logger := s.loggerWith(ctx, "AdminLogin", "username", username, "ip", meta.IP)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "admin login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "admin login succeeded")
	}()

	if err = s.allow(ctx, logger, "admin-login:"+meta.IP+":"+strings.ToLower(username)); err != nil {
		return
	}
	if username == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var admin Admin
	admin, err = s.admins.GetAdmin(ctx, username)
	if err != nil {
		if errors.Is(mapStoreError(err), ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}
	if verifyErr := s.verifyPassword(admin.PasswordHash, params.Password); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}

	var token string
	var expires time.Time
	token, expires, err = s.rotate(ctx, PrincipalAdmin, admin.Username, func(sid *string) error {
		return s.admins.SetSessionToken(ctx, admin.Username, sid)
	})
	if err != nil {
		return
	}

	admin.SessionToken = nil
	admin.PasswordHash = ""
	result = LoginResult{
		Token:     token,
		ExpiresAt: expires,
		Principal: Principal{Kind: PrincipalAdmin, Username: admin.Username, Role: admin.Role},
		Admin:     &admin,
	}
	s.audit.Record(ctx, admin.Username, ActorAdmin, AuditAdminLogin, meta, map[string]string{"role": admin.Role})
	return
}

// rotate stores a fresh session id through store and signs a token for it.
func (s *AuthService) rotate(ctx context.Context, kind PrincipalKind, subject string, store func(sid *string) error) (string, time.Time, error) {
	sid := s.tokenGenerator()
	if sid == "" {
		return "", time.Time{}, fmt.Errorf("session id generator returned an empty value")
	}
	if err := store(&sid); err != nil {
		return "", time.Time{}, mapStoreError(err)
	}
	now := s.now().UTC()
	expires := now.Add(s.sessionTTL)
	token, err := s.codec.Issue(SessionClaims{
		Subject:   subject,
		SessionID: sid,
		Kind:      kind,
		IssuedAt:  now,
		ExpiresAt: expires,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expires, nil
}

// ResolveIdentity verifies a token and checks that its session id is still
// the one stored for the subject. It is the only identity check used by both
// HTTP requests and push connections.
func (s *AuthService) ResolveIdentity(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.codec == nil {
		err = fmt.Errorf("session codec not configured")
		return
	}

	token = strings.TrimSpace(token)
	if token == "" {
		err = ErrUnauthorized
		return
	}

	claims, parseErr := s.codec.Parse(token)
	if parseErr != nil {
		s.loggerWith(ctx, "ResolveIdentity").DebugContext(ctx, "token rejected", "error", parseErr)
		err = ErrUnauthorized
		return
	}

	switch claims.Kind {
	case PrincipalStudent:
		if s.accounts == nil {
			err = fmt.Errorf("account store not configured")
			return
		}
		var account Account
		account, err = s.accounts.GetAccount(ctx, claims.Subject)
		if err != nil {
			if errors.Is(mapStoreError(err), ErrNotFound) {
				err = ErrSessionExpired
			}
			return
		}
		if !sessionMatches(account.SessionToken, claims.SessionID) {
			err = ErrSessionExpired
			return
		}
		principal = studentPrincipal(account)
	case PrincipalAdmin:
		if s.admins == nil {
			err = fmt.Errorf("admin store not configured")
			return
		}
		var admin Admin
		admin, err = s.admins.GetAdmin(ctx, claims.Subject)
		if err != nil {
			if errors.Is(mapStoreError(err), ErrNotFound) {
				err = ErrSessionExpired
			}
			return
		}
		if !sessionMatches(admin.SessionToken, claims.SessionID) {
			err = ErrSessionExpired
			return
		}
		principal = Principal{Kind: PrincipalAdmin, Username: admin.Username, Role: admin.Role}
	default:
		err = ErrUnauthorized
	}
	return
}

// Logout clears the caller's stored session id.
func (s *AuthService) Logout(ctx context.Context, principal Principal, meta RequestMeta) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	logger := s.loggerWith(ctx, "Logout", "subject", principal.Subject(), "kind", principal.Kind)

	var err error
	switch {
	case principal.IsStudent() && s.accounts != nil:
		err = s.accounts.SetSessionToken(ctx, principal.AccountID, nil)
	case principal.IsAdmin() && s.admins != nil:
		err = s.admins.SetSessionToken(ctx, principal.Username, nil)
	default:
		err = ErrUnauthorized
	}
	if err != nil {
		err = mapStoreError(err)
		logger.ErrorContext(ctx, "logout failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	s.audit.RecordFor(ctx, principal, AuditLogout, meta, nil)
	logger.InfoContext(ctx, "logged out")
	return nil
}

// Describe returns the caller with fresh account or admin details.
func (s *AuthService) Describe(ctx context.Context, principal Principal) (identity Identity, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	identity.Principal = principal

	switch {
	case principal.IsStudent() && s.accounts != nil:
		var account Account
		account, err = s.accounts.GetAccount(ctx, principal.AccountID)
		if err != nil {
			err = mapStoreError(err)
			return
		}
		view := AccountView{Account: account, Votes: map[string]int{}, LoggedIn: account.SessionToken != nil}
		if s.ledger != nil {
			var summary VoteSummary
			summary, err = s.ledger.Summary(ctx, account.ID)
			if err != nil {
				err = mapStoreError(err)
				return
			}
			applySummary(&view, summary)
		}
		view.PasswordHash = ""
		view.SessionToken = nil
		identity.Account = &view
	case principal.IsAdmin() && s.admins != nil:
		var admin Admin
		admin, err = s.admins.GetAdmin(ctx, principal.Username)
		if err != nil {
			err = mapStoreError(err)
			return
		}
		admin.PasswordHash = ""
		admin.SessionToken = nil
		identity.Admin = &admin
	default:
		err = ErrUnauthorized
	}
	return
}

// ForceLogout clears a student's stored session id on behalf of an admin.
// With notify set a force-logout event is pushed to that student.
func (s *AuthService) ForceLogout(ctx context.Context, principal Principal, accountID string, notify bool, meta RequestMeta) (err error) {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}

	accountID = strings.TrimSpace(accountID)
	logger := s.loggerWith(ctx, "ForceLogout", "principal", principal.Subject(), "account_id", accountID, "notify", notify)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "force logout failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session revoked")
	}()

	if !principal.IsAdmin() {
		return ErrForbidden
	}
	if s.accounts == nil {
		return fmt.Errorf("account store not configured")
	}
	if accountID == "" {
		return NewValidationError("user_id", "user_id is required")
	}
	if err = s.accounts.SetSessionToken(ctx, accountID, nil); err != nil {
		err = mapStoreError(err)
		return
	}

	action := AuditRevokeDevice
	if notify {
		action = AuditForceLogout
		publish(ctx, s.notifier, logger, Notification{
			Type:    EventForceLogout,
			Target:  NotificationTarget(PrincipalStudent, accountID),
			Payload: map[string]string{"account_id": accountID, "by": principal.Username},
		})
	}
	s.audit.RecordFor(ctx, principal, action, meta, map[string]string{"account_id": accountID})
	return nil
}

// ResetPassword sets a student's password and clears the student's session.
// Only SUPER_ADMIN may reset passwords.
func (s *AuthService) ResetPassword(ctx context.Context, principal Principal, accountID, newPassword string, meta RequestMeta) (err error) {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}

	accountID = strings.TrimSpace(accountID)
	logger := s.loggerWith(ctx, "ResetPassword", "principal", principal.Subject(), "account_id", accountID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "password reset failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "password reset")
	}()

	if !principal.IsSuperAdmin() {
		return ErrForbidden
	}
	if s.accounts == nil {
		return fmt.Errorf("account store not configured")
	}
	if len(newPassword) < MinPasswordLength {
		return NewValidationError("new_password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	var account Account
	account, err = s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	account.PasswordHash, err = s.hashPassword(newPassword)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}
	account.SessionToken = nil
	account.UpdatedAt = s.now().UTC()
	if err = s.accounts.UpdateAccount(ctx, account); err != nil {
		err = mapStoreError(err)
		return
	}

	s.audit.RecordFor(ctx, principal, AuditResetPassword, meta, map[string]string{"account_id": accountID})
	return nil
}

func (s *AuthService) allow(ctx context.Context, logger *slog.Logger, key string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// Limiter outages must not lock everyone out.
		logger.WarnContext(ctx, "rate limiter unavailable", "error", err)
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

func studentPrincipal(account Account) Principal {
	return Principal{Kind: PrincipalStudent, AccountID: account.ID, TeamID: account.TeamID}
}

func sessionMatches(stored *string, presented string) bool {
	if stored == nil || *stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(presented)) == 1
}

func applySummary(view *AccountView, summary VoteSummary) {
	for teamID, votes := range summary.Votes {
		view.Votes[teamID] = votes
		view.TotalVotes += votes
	}
	view.LastVotedAt = summary.LastVotedAt
}

func listHas(ctx context.Context, list AccessListStore, email string) (bool, error) {
	if list == nil || email == "" {
		return false, nil
	}
	return list.HasEntry(ctx, email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(params RegisterParams, email string) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(params.Name) == "" {
		vErr.add("name", "name is required")
	}
	if strings.TrimSpace(params.RollNumber) == "" {
		vErr.add("roll_number", "roll number is required")
	}
	if email == "" {
		vErr.add("email", "email is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		vErr.add("email", "email is invalid")
	}
	if len(params.Password) < MinPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if vErr.HasErrors() {
		vErr.Message = "invalid registration"
	}
	return vErr
}

func mapRegistrationError(err error) error {
	mapped := mapStoreError(err)
	if !errors.Is(mapped, ErrAlreadyExists) {
		return mapped
	}
	if strings.Contains(err.Error(), "roll_number") {
		return NewValidationError("roll_number", "roll number is already registered")
	}
	return NewValidationError("email", "email is already registered")
}

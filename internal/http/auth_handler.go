package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/campus-voting/internal/application"
)

type authService interface {
	Register(ctx context.Context, params application.RegisterParams, meta application.RequestMeta) (application.Account, error)
	Login(ctx context.Context, params application.LoginParams, meta application.RequestMeta) (application.LoginResult, error)
	AdminLogin(ctx context.Context, params application.AdminLoginParams, meta application.RequestMeta) (application.LoginResult, error)
	Describe(ctx context.Context, principal application.Principal) (application.Identity, error)
	Logout(ctx context.Context, principal application.Principal, meta application.RequestMeta) error
}

// AuthHandler serves registration, login and session endpoints.
type AuthHandler struct {
	service   authService
	cookies   cookieJar
	responder responder
	logger    *slog.Logger
}

// NewAuthHandler wires the handler. secureCookies controls the cookie Secure flag.
func NewAuthHandler(service authService, secureCookies bool, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, cookies: cookieJar{secure: secureCookies}, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// Register creates a student account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req registerRequest
	if !decodeBody(w, r, h.responder, h.log(r.Context(), "Register"), &req) {
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	logger := h.log(r.Context(), "Register", "email", email)

	account, err := h.service.Register(r.Context(), application.RegisterParams{
		Name:       req.Name,
		RollNumber: req.RollNumber,
		Email:      email,
		Password:   req.Password,
		Phone:      req.Phone,
		Department: req.Department,
		Year:       req.Year,
		Gender:     req.Gender,
		TeamID:     req.TeamID,
	}, requestMeta(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "registration failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "account registered", "account_id", account.ID, "status", account.Status)
	h.responder.writeOK(r.Context(), w, http.StatusCreated, registerResponse{
		Account: toAccountDTO(account),
		Pending: account.Status == application.AccountPending,
	})
}

// Login authenticates a student and issues the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req loginRequest
	if !decodeBody(w, r, h.responder, h.log(r.Context(), "Login"), &req) {
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	logger := h.log(r.Context(), "Login", "email", email)

	result, err := h.service.Login(r.Context(), application.LoginParams{Email: email, Password: req.Password}, requestMeta(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "authentication rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.cookies.set(w, application.PrincipalStudent, result.Token, result.ExpiresAt)
	logger.InfoContext(r.Context(), "student authenticated", "account_id", result.Principal.AccountID)
	h.responder.writeOK(r.Context(), w, http.StatusOK, toLoginResponse(result))
}

// AdminLogin authenticates an administrator and issues the admin session cookie.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req adminLoginRequest
	if !decodeBody(w, r, h.responder, h.log(r.Context(), "AdminLogin"), &req) {
		return
	}

	username := strings.TrimSpace(req.Username)
	logger := h.log(r.Context(), "AdminLogin", "username", username)

	result, err := h.service.AdminLogin(r.Context(), application.AdminLoginParams{Username: username, Password: req.Password}, requestMeta(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "authentication rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.cookies.set(w, application.PrincipalAdmin, result.Token, result.ExpiresAt)
	logger.InfoContext(r.Context(), "administrator authenticated", "role", result.Principal.Role)
	h.responder.writeOK(r.Context(), w, http.StatusOK, toLoginResponse(result))
}

// Me describes the authenticated caller.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r, "Me")
	if !ok {
		return
	}

	identity, err := h.service.Describe(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "Me").ErrorContext(r.Context(), "failed to describe identity", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := meResponse{Principal: toPrincipalDTO(identity.Principal)}
	if identity.Account != nil {
		view := toAccountViewDTO(*identity.Account)
		resp.Account = &view
	}
	if identity.Admin != nil {
		admin := toAdminDTO(*identity.Admin)
		resp.Admin = &admin
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, resp)
}

// Logout clears the caller's session and cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r, "Logout")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Logout", "subject", principal.Subject())
	if err := h.service.Logout(r.Context(), principal, requestMeta(r)); err != nil {
		logger.ErrorContext(r.Context(), "failed to log out", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.cookies.clear(w, principal.Kind)
	logger.InfoContext(r.Context(), "session cleared")
	h.responder.writeMessage(r.Context(), w, "logged out")
}

func (h *AuthHandler) principal(w http.ResponseWriter, r *http.Request, operation string) (application.Principal, bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return application.Principal{}, false
	}
	return requirePrincipal(w, r, h.responder, h.log(r.Context(), operation))
}

type registerRequest struct {
	Name       string  `json:"name"`
	RollNumber string  `json:"roll_number"`
	Email      string  `json:"email"`
	Password   string  `json:"password"`
	Phone      string  `json:"phone"`
	Department string  `json:"department"`
	Year       string  `json:"year"`
	Gender     string  `json:"gender"`
	TeamID     *string `json:"team_id"`
}

type registerResponse struct {
	Account accountDTO `json:"account"`
	Pending bool       `json:"pending"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	Principal principalDTO `json:"principal"`
	Account   *accountDTO  `json:"account,omitempty"`
	Admin     *adminDTO    `json:"admin,omitempty"`
}

func toLoginResponse(result application.LoginResult) loginResponse {
	resp := loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339Nano),
		Principal: toPrincipalDTO(result.Principal),
	}
	if result.Account != nil {
		account := toAccountDTO(*result.Account)
		resp.Account = &account
	}
	if result.Admin != nil {
		admin := toAdminDTO(*result.Admin)
		resp.Admin = &admin
	}
	return resp
}

type meResponse struct {
	Principal principalDTO    `json:"principal"`
	Account   *accountViewDTO `json:"account,omitempty"`
	Admin     *adminDTO       `json:"admin,omitempty"`
}

// decodeBody decodes a JSON request body and writes a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, resp responder, logger *slog.Logger, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		logger.ErrorContext(r.Context(), "failed to decode request body", "error", err, "error_kind", "bad_request")
		resp.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return false
	}
	return true
}

// requirePrincipal fetches the principal installed by RequireSession.
func requirePrincipal(w http.ResponseWriter, r *http.Request, resp responder, logger *slog.Logger) (application.Principal, bool) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		logger.ErrorContext(r.Context(), "missing principal", "error_kind", "unauthorized")
		resp.handleServiceError(r.Context(), w, application.ErrUnauthorized)
		return application.Principal{}, false
	}
	return principal, true
}

const maxBodyBytes = 1 << 20

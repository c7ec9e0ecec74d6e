package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/campus-voting/internal/application"
)

type accessListService interface {
	List(ctx context.Context, principal application.Principal, kind application.AccessListKind) ([]application.AccessEntry, error)
	Add(ctx context.Context, principal application.Principal, kind application.AccessListKind, email, reason string, meta application.RequestMeta) (application.AccessEntry, error)
	Remove(ctx context.Context, principal application.Principal, kind application.AccessListKind, email string, meta application.RequestMeta) error
}

// AccessListHandler serves one of the whitelist or blacklist collections.
type AccessListHandler struct {
	service   accessListService
	kind      application.AccessListKind
	responder responder
	logger    *slog.Logger
}

func NewAccessListHandler(service accessListService, kind application.AccessListKind, logger *slog.Logger) *AccessListHandler {
	base := defaultLogger(logger)
	return &AccessListHandler{service: service, kind: kind, responder: newResponder(base), logger: base}
}

func (h *AccessListHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	attrs = append(attrs, "list", string(h.kind))
	return handlerLogger(ctx, h.logger, "AccessListHandler", operation, attrs...)
}

func (h *AccessListHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "List")
	if !ok {
		return
	}
	entries, err := h.service.List(r.Context(), principal, h.kind)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to list entries", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, mapSlice(entries, toAccessEntryDTO))
}

func (h *AccessListHandler) Add(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "Add")
	if !ok {
		return
	}
	var req accessEntryRequest
	if !decodeBody(w, r, h.responder, logger, &req) {
		return
	}
	entry, err := h.service.Add(r.Context(), principal, h.kind, req.Email, req.Reason, requestMeta(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to add entry", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "entry added", "email", entry.Email)
	h.responder.writeOK(r.Context(), w, http.StatusCreated, toAccessEntryDTO(entry))
}

func (h *AccessListHandler) Remove(w http.ResponseWriter, r *http.Request) {
	principal, logger, ok := h.begin(w, r, "Remove")
	if !ok {
		return
	}
	email := r.PathValue("email")
	if err := h.service.Remove(r.Context(), principal, h.kind, email, requestMeta(r)); err != nil {
		logger.ErrorContext(r.Context(), "failed to remove entry", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "entry removed", "email", email)
	h.responder.writeMessage(r.Context(), w, "entry removed")
}

func (h *AccessListHandler) begin(w http.ResponseWriter, r *http.Request, operation string) (application.Principal, *slog.Logger, bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return application.Principal{}, nil, false
	}
	logger := h.log(r.Context(), operation)
	principal, ok := requirePrincipal(w, r, h.responder, logger)
	return principal, logger, ok
}

type accessEntryRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

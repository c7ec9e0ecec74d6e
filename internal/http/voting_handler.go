package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/campus-voting/internal/application"
)

type votingService interface {
	Cast(ctx context.Context, principal application.Principal, submission map[string]int, meta application.RequestMeta) (application.CastResult, error)
	Status(ctx context.Context, principal *application.Principal) (application.VotingStatus, error)
}

// VotingHandler serves the public voting status and vote submission.
type VotingHandler struct {
	service   votingService
	responder responder
	logger    *slog.Logger
}

func NewVotingHandler(service votingService, logger *slog.Logger) *VotingHandler {
	base := defaultLogger(logger)
	return &VotingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *VotingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "VotingHandler", operation, attrs...)
}

// Status reports whether voting is open, personalised for a student session.
func (h *VotingHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var principal *application.Principal
	if p, ok := PrincipalFromContext(r.Context()); ok && p.IsStudent() {
		principal = &p
	}

	status, err := h.service.Status(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "Status").ErrorContext(r.Context(), "failed to resolve voting status", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, toVotingStatusDTO(status))
}

// Cast records a {team_id: count} submission for the calling student.
func (h *VotingHandler) Cast(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, ok := requirePrincipal(w, r, h.responder, h.log(r.Context(), "Cast"))
	if !ok {
		return
	}

	var req castRequest
	if !decodeBody(w, r, h.responder, h.log(r.Context(), "Cast"), &req) {
		return
	}

	logger := h.log(r.Context(), "Cast", "account_id", principal.AccountID)
	result, err := h.service.Cast(r.Context(), principal, req.Votes, requestMeta(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "vote rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "votes recorded", "used", result.Used, "effective_date", result.EffectiveDate)
	h.responder.writeOK(r.Context(), w, http.StatusCreated, toCastResultDTO(result))
}

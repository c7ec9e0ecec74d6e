package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/campus-voting/internal/application"
)

type teamService interface {
	List(ctx context.Context) ([]application.Team, error)
	Create(ctx context.Context, principal application.Principal, input application.TeamInput, meta application.RequestMeta) (application.Team, error)
	Update(ctx context.Context, principal application.Principal, teamID string, input application.TeamInput, meta application.RequestMeta) (application.Team, error)
	Delete(ctx context.Context, principal application.Principal, teamID string, meta application.RequestMeta) error
}

// TeamHandler serves the team catalogue.
type TeamHandler struct {
	service   teamService
	responder responder
	logger    *slog.Logger
}

func NewTeamHandler(service teamService, logger *slog.Logger) *TeamHandler {
	base := defaultLogger(logger)
	return &TeamHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *TeamHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "TeamHandler", operation, attrs...)
}

func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	teams, err := h.service.List(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "failed to list teams", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, mapSlice(teams, toTeamDTO))
}

func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, req, ok := h.decode(w, r, "Create")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Create", "actor", principal.Subject())
	team, err := h.service.Create(r.Context(), principal, req.toInput(), requestMeta(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to create team", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "team created", "team_id", team.ID)
	h.responder.writeOK(r.Context(), w, http.StatusCreated, toTeamDTO(team))
}

func (h *TeamHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, req, ok := h.decode(w, r, "Update")
	if !ok {
		return
	}

	teamID := r.PathValue("id")
	logger := h.log(r.Context(), "Update", "actor", principal.Subject(), "team_id", teamID)
	team, err := h.service.Update(r.Context(), principal, teamID, req.toInput(), requestMeta(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to update team", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "team updated")
	h.responder.writeOK(r.Context(), w, http.StatusOK, toTeamDTO(team))
}

func (h *TeamHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, ok := requirePrincipal(w, r, h.responder, h.log(r.Context(), "Delete"))
	if !ok {
		return
	}

	teamID := r.PathValue("id")
	logger := h.log(r.Context(), "Delete", "actor", principal.Subject(), "team_id", teamID)
	if err := h.service.Delete(r.Context(), principal, teamID, requestMeta(r)); err != nil {
		logger.ErrorContext(r.Context(), "failed to delete team", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "team deleted")
	h.responder.writeMessage(r.Context(), w, "team deleted")
}

func (h *TeamHandler) decode(w http.ResponseWriter, r *http.Request, operation string) (application.Principal, teamRequest, bool) {
	var req teamRequest
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return application.Principal{}, req, false
	}
	logger := h.log(r.Context(), operation)
	principal, ok := requirePrincipal(w, r, h.responder, logger)
	if !ok {
		return application.Principal{}, req, false
	}
	if !decodeBody(w, r, h.responder, logger, &req) {
		return application.Principal{}, req, false
	}
	return principal, req, true
}

type teamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

func (r teamRequest) toInput() application.TeamInput {
	return application.TeamInput{Name: r.Name, Description: r.Description, ImageURL: r.ImageURL}
}

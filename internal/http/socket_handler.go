package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/campus-voting/internal/application"
)

type socketServer interface {
	ServeConn(w http.ResponseWriter, r *http.Request, principal application.Principal, after int64) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SocketHandler upgrades authenticated requests to the push channel.
type SocketHandler struct {
	hub       socketServer
	responder responder
	logger    *slog.Logger
}

func NewSocketHandler(hub socketServer, logger *slog.Logger) *SocketHandler {
	base := defaultLogger(logger)
	return &SocketHandler{hub: hub, responder: newResponder(base), logger: base}
}

// Serve handles GET /ws?after=N. Without ?after administrators receive live
// events only.
func (h *SocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.hub == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	logger := handlerLogger(r.Context(), h.logger, "SocketHandler", "Serve")
	principal, ok := requirePrincipal(w, r, h.responder, logger)
	if !ok {
		return
	}

	after := int64(-1)
	if raw := r.URL.Query().Get("after"); raw != "" {
		vErr := &application.ValidationError{}
		after = parseInt64Param(raw, -1, "after", vErr)
		if vErr.HasErrors() {
			h.responder.handleServiceError(r.Context(), w, vErr)
			return
		}
	}

	if err := h.hub.ServeConn(w, r, principal, after); err != nil {
		// The upgrader has already written an HTTP error when the handshake fails.
		logger.WarnContext(r.Context(), "socket session ended with error", "error", err, "error_kind", application.ErrorKind(err))
	}
}

// HealthHandler answers liveness probes.
type HealthHandler struct {
	db        Pinger
	responder responder
	logger    *slog.Logger
}

func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	base := defaultLogger(logger)
	return &HealthHandler{db: db, responder: newResponder(base), logger: base}
}

func (h *HealthHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			handlerLogger(r.Context(), h.logger, "HealthHandler", "Serve").ErrorContext(r.Context(), "database ping failed", "error", err)
			h.responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Success: false, Status: "unavailable"})
			return
		}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Success: true, Status: "ok"})
}

type healthResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

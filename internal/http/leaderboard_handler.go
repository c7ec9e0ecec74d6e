package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/campus-voting/internal/application"
)

type leaderboardService interface {
	Overall(ctx context.Context) (application.Leaderboard, error)
	Range(ctx context.Context, from, to string) (application.Leaderboard, error)
	Daily(ctx context.Context, date string) (application.Leaderboard, error)
}

type scoreService interface {
	Upsert(ctx context.Context, principal application.Principal, input application.ScoreInput, meta application.RequestMeta) (application.TeamScore, error)
	List(ctx context.Context, date string) ([]application.TeamScore, error)
	Delete(ctx context.Context, principal application.Principal, scoreID string, meta application.RequestMeta) error
}

// LeaderboardHandler serves the ranked projections and judged scores.
type LeaderboardHandler struct {
	standings leaderboardService
	scores    scoreService
	responder responder
	logger    *slog.Logger
}

func NewLeaderboardHandler(standings leaderboardService, scores scoreService, logger *slog.Logger) *LeaderboardHandler {
	base := defaultLogger(logger)
	return &LeaderboardHandler{standings: standings, scores: scores, responder: newResponder(base), logger: base}
}

func (h *LeaderboardHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "LeaderboardHandler", operation, attrs...)
}

func (h *LeaderboardHandler) Overall(w http.ResponseWriter, r *http.Request) {
	h.project(w, r, "Overall", func(ctx context.Context) (application.Leaderboard, error) {
		return h.standings.Overall(ctx)
	})
}

func (h *LeaderboardHandler) Range(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	h.project(w, r, "Range", func(ctx context.Context) (application.Leaderboard, error) {
		return h.standings.Range(ctx, query.Get("from"), query.Get("to"))
	})
}

func (h *LeaderboardHandler) Daily(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	h.project(w, r, "Daily", func(ctx context.Context) (application.Leaderboard, error) {
		return h.standings.Daily(ctx, date)
	})
}

func (h *LeaderboardHandler) project(w http.ResponseWriter, r *http.Request, operation string, fn func(context.Context) (application.Leaderboard, error)) {
	if h == nil || h.standings == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	board, err := fn(r.Context())
	if err != nil {
		h.log(r.Context(), operation).ErrorContext(r.Context(), "failed to build leaderboard", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, toLeaderboardDTO(board))
}

func (h *LeaderboardHandler) ListScores(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.scores == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	scores, err := h.scores.List(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		h.log(r.Context(), "ListScores").ErrorContext(r.Context(), "failed to list scores", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeOK(r.Context(), w, http.StatusOK, mapSlice(scores, toScoreDTO))
}

func (h *LeaderboardHandler) UpsertScore(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.scores == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	logger := h.log(r.Context(), "UpsertScore")
	principal, ok := requirePrincipal(w, r, h.responder, logger)
	if !ok {
		return
	}
	var req scoreRequest
	if !decodeBody(w, r, h.responder, logger, &req) {
		return
	}

	logger = logger.With("team_id", req.TeamID, "date", req.Date)
	score, err := h.scores.Upsert(r.Context(), principal, application.ScoreInput{
		TeamID:      req.TeamID,
		Date:        req.Date,
		Advantage:   req.Advantage,
		Main:        req.Main,
		Special:     req.Special,
		Elimination: req.Elimination,
		Immunity:    req.Immunity,
	}, requestMeta(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to save score", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "score saved", "total", score.Total)
	h.responder.writeOK(r.Context(), w, http.StatusOK, toScoreDTO(score))
}

func (h *LeaderboardHandler) DeleteScore(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.scores == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, ok := requirePrincipal(w, r, h.responder, h.log(r.Context(), "DeleteScore"))
	if !ok {
		return
	}

	scoreID := r.PathValue("id")
	logger := h.log(r.Context(), "DeleteScore", "score_id", scoreID)
	if err := h.scores.Delete(r.Context(), principal, scoreID, requestMeta(r)); err != nil {
		logger.ErrorContext(r.Context(), "failed to delete score", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "score deleted")
	h.responder.writeMessage(r.Context(), w, "score deleted")
}

type scoreRequest struct {
	TeamID      string `json:"team_id"`
	Date        string `json:"date"`
	Advantage   int    `json:"advantage"`
	Main        int    `json:"main"`
	Special     int    `json:"special"`
	Elimination int    `json:"elimination"`
	Immunity    int    `json:"immunity"`
}

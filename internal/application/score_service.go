package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ScoreServiceDeps groups the collaborators of ScoreService.
type ScoreServiceDeps struct {
	Scores      ScoreStore
	Teams       TeamStore
	Leaderboard Invalidator
	Notifier    Notifier
	Audit       *AuditRecorder
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// ScoreService records judged team scores.
type ScoreService struct {
	scores      ScoreStore
	teams       TeamStore
	leaderboard Invalidator
	notifier    Notifier
	audit       *AuditRecorder
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScoreService constructs a ScoreService.
func NewScoreService(deps ScoreServiceDeps) *ScoreService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &ScoreService{
		scores:      deps.Scores,
		teams:       deps.Teams,
		leaderboard: deps.Leaderboard,
		notifier:    deps.Notifier,
		audit:       deps.Audit,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
	}
}

func (s *ScoreService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ScoreService", operation, attrs...)
}

// Upsert stores the score for (team, date), replacing any earlier entry.
// Total is always the sum of the categories.
func (s *ScoreService) Upsert(ctx context.Context, principal Principal, input ScoreInput, meta RequestMeta) (score TeamScore, err error) {
	if s == nil {
		err = fmt.Errorf("ScoreService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Upsert", "principal", principal.Subject(), "team_id", input.TeamID, "date", input.Date)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to store score", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("score_id", score.ID, "total", score.Total).InfoContext(ctx, "score stored")
	}()

	if !principal.IsAdmin() {
		err = ErrForbidden
		return
	}
	if s.scores == nil {
		err = fmt.Errorf("score store not configured")
		return
	}

	input.TeamID = strings.TrimSpace(input.TeamID)
	input.Date = strings.TrimSpace(input.Date)
	vErr := &ValidationError{}
	if input.TeamID == "" {
		vErr.add("team_id", "team_id is required")
	}
	if _, parseErr := ParseDate(input.Date); parseErr != nil {
		vErr.add("date", "date must be YYYY-MM-DD")
	}
	if vErr.HasErrors() {
		vErr.Message = "invalid score"
		err = vErr
		return
	}
	if s.teams != nil {
		if _, getErr := s.teams.GetTeam(ctx, input.TeamID); getErr != nil {
			err = mapStoreError(getErr)
			return
		}
	}

	now := s.now().UTC()
	score, err = s.scores.UpsertScore(ctx, TeamScore{
		ID:          s.idGenerator(),
		TeamID:      input.TeamID,
		Date:        input.Date,
		Advantage:   input.Advantage,
		Main:        input.Main,
		Special:     input.Special,
		Elimination: input.Elimination,
		Immunity:    input.Immunity,
		Total:       input.Advantage + input.Main + input.Special + input.Elimination + input.Immunity,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		err = mapStoreError(err)
		return
	}

	s.audit.RecordFor(ctx, principal, AuditUpsertScore, meta, map[string]any{"team_id": score.TeamID, "date": score.Date, "total": score.Total})
	s.invalidate()
	publish(ctx, s.notifier, logger, changedEvents("scores")...)
	return
}

// List returns scores, optionally for one date.
func (s *ScoreService) List(ctx context.Context, date string) ([]TeamScore, error) {
	if s == nil {
		return nil, fmt.Errorf("ScoreService is nil")
	}
	if s.scores == nil {
		return nil, nil
	}
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := ParseDate(date); err != nil {
			return nil, NewValidationError("date", "date must be YYYY-MM-DD")
		}
	}
	scores, err := s.scores.ListScores(ctx, "", date, date)
	if err != nil {
		s.loggerWith(ctx, "List").ErrorContext(ctx, "failed to list scores", "error", err, "error_kind", ErrorKind(err))
		return nil, mapStoreError(err)
	}
	return scores, nil
}

// Delete removes one score. Only SUPER_ADMIN may delete scores.
func (s *ScoreService) Delete(ctx context.Context, principal Principal, scoreID string, meta RequestMeta) (err error) {
	if s == nil {
		return fmt.Errorf("ScoreService is nil")
	}

	logger := s.loggerWith(ctx, "Delete", "principal", principal.Subject(), "score_id", scoreID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete score", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "score deleted")
	}()

	if !principal.IsSuperAdmin() {
		return ErrForbidden
	}
	if s.scores == nil {
		return fmt.Errorf("score store not configured")
	}
	if err = s.scores.DeleteScore(ctx, scoreID); err != nil {
		err = mapStoreError(err)
		return
	}

	s.audit.RecordFor(ctx, principal, AuditDeleteScore, meta, map[string]string{"score_id": scoreID})
	s.invalidate()
	publish(ctx, s.notifier, logger, changedEvents("scores")...)
	return nil
}

func (s *ScoreService) invalidate() {
	if s.leaderboard != nil {
		s.leaderboard.Invalidate()
	}
}

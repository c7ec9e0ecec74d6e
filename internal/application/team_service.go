package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// TeamServiceDeps groups the collaborators of TeamService.
type TeamServiceDeps struct {
	Teams       TeamStore
	Leaderboard Invalidator
	Notifier    Notifier
	Audit       *AuditRecorder
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// TeamService manages teams. Mutations require an administrator.
type TeamService struct {
	teams       TeamStore
	leaderboard Invalidator
	notifier    Notifier
	audit       *AuditRecorder
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewTeamService constructs a TeamService.
func NewTeamService(deps TeamServiceDeps) *TeamService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &TeamService{
		teams:       deps.Teams,
		leaderboard: deps.Leaderboard,
		notifier:    deps.Notifier,
		audit:       deps.Audit,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		logger:      defaultLogger(deps.Logger),
	}
}

func (s *TeamService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "TeamService", operation, attrs...)
}

// List returns every team ordered by name.
func (s *TeamService) List(ctx context.Context) (teams []Team, err error) {
	if s == nil {
		err = fmt.Errorf("TeamService is nil")
		return
	}
	if s.teams == nil {
		return nil, nil
	}

	var raw []Team
	raw, err = s.teams.ListTeams(ctx)
	if err != nil {
		s.loggerWith(ctx, "List").ErrorContext(ctx, "failed to list teams", "error", err, "error_kind", ErrorKind(err))
		return
	}
	teams = make([]Team, len(raw))
	copy(teams, raw)
	sort.Slice(teams, func(i, j int) bool {
		if strings.EqualFold(teams[i].Name, teams[j].Name) {
			return teams[i].ID < teams[j].ID
		}
		return strings.ToLower(teams[i].Name) < strings.ToLower(teams[j].Name)
	})
	return
}

// Create validates input and stores a new team.
func (s *TeamService) Create(ctx context.Context, principal Principal, input TeamInput, meta RequestMeta) (team Team, err error) {
	if s == nil {
		err = fmt.Errorf("TeamService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Create", "principal", principal.Subject())
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create team", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("team_id", team.ID).InfoContext(ctx, "team created")
	}()

	if !principal.IsAdmin() {
		err = ErrForbidden
		return
	}
	if s.teams == nil {
		err = fmt.Errorf("team store not configured")
		return
	}
	if vErr := validateTeamInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now().UTC()
	team = Team{
		ID:          s.idGenerator(),
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		ImageURL:    strings.TrimSpace(input.ImageURL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.teams.CreateTeam(ctx, team); err != nil {
		err = mapTeamStoreError(err)
		return
	}

	s.audit.RecordFor(ctx, principal, AuditCreateTeam, meta, map[string]string{"team_id": team.ID, "name": team.Name})
	s.invalidate()
	publish(ctx, s.notifier, logger, changedEvents("teams")...)
	return
}

// Update replaces the mutable fields of an existing team.
func (s *TeamService) Update(ctx context.Context, principal Principal, teamID string, input TeamInput, meta RequestMeta) (team Team, err error) {
	if s == nil {
		err = fmt.Errorf("TeamService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Update", "principal", principal.Subject(), "team_id", teamID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update team", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "team updated")
	}()

	if !principal.IsAdmin() {
		err = ErrForbidden
		return
	}
	if s.teams == nil {
		err = fmt.Errorf("team store not configured")
		return
	}

	var existing Team
	existing, err = s.teams.GetTeam(ctx, teamID)
	if err != nil {
		err = mapTeamStoreError(err)
		return
	}
	if vErr := validateTeamInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	team = existing
	team.Name = strings.TrimSpace(input.Name)
	team.Description = strings.TrimSpace(input.Description)
	team.ImageURL = strings.TrimSpace(input.ImageURL)
	team.UpdatedAt = s.now().UTC()
	if err = s.teams.UpdateTeam(ctx, team); err != nil {
		err = mapTeamStoreError(err)
		return
	}

	s.audit.RecordFor(ctx, principal, AuditUpdateTeam, meta, map[string]string{"team_id": team.ID, "name": team.Name})
	s.invalidate()
	publish(ctx, s.notifier, logger, changedEvents("teams")...)
	return
}

// Delete removes a team together with its vote transactions and scores.
func (s *TeamService) Delete(ctx context.Context, principal Principal, teamID string, meta RequestMeta) (err error) {
	if s == nil {
		return fmt.Errorf("TeamService is nil")
	}

	logger := s.loggerWith(ctx, "Delete", "principal", principal.Subject(), "team_id", teamID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete team", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "team deleted")
	}()

	if !principal.IsAdmin() {
		return ErrForbidden
	}
	if s.teams == nil {
		return fmt.Errorf("team store not configured")
	}

	var team Team
	team, err = s.teams.GetTeam(ctx, teamID)
	if err != nil {
		err = mapTeamStoreError(err)
		return
	}
	if err = s.teams.DeleteTeam(ctx, teamID); err != nil {
		err = mapTeamStoreError(err)
		return
	}

	s.audit.RecordFor(ctx, principal, AuditDeleteTeam, meta, map[string]string{"team_id": team.ID, "name": team.Name})
	s.invalidate()
	publish(ctx, s.notifier, logger, changedEvents("teams")...)
	return nil
}

func (s *TeamService) invalidate() {
	if s.leaderboard != nil {
		s.leaderboard.Invalidate()
	}
}

func validateTeamInput(input TeamInput) *ValidationError {
	vErr := &ValidationError{}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		vErr.add("name", "name is required")
	} else if len(name) > 100 {
		vErr.add("name", "name must be at most 100 characters")
	}
	if len(input.Description) > 2000 {
		vErr.add("description", "description must be at most 2000 characters")
	}
	if vErr.HasErrors() {
		vErr.Message = "invalid team"
	}
	return vErr
}

func mapTeamStoreError(err error) error {
	err = mapStoreError(err)
	if errors.Is(err, ErrAlreadyExists) {
		return fmt.Errorf("%w: a team with this name already exists", ErrAlreadyExists)
	}
	return err
}

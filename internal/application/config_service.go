package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/campus-voting/internal/persistence"
)

// DefaultDailyQuota applies when no quota has been configured.
const DefaultDailyQuota = 100

// ConfigSource yields a voting config snapshot.
type ConfigSource interface {
	Snapshot(ctx context.Context) (VotingConfig, error)
}

// ConfigService owns the voting config singleton.
type ConfigService struct {
	store        ConfigStore
	defaultQuota int
	audit        *AuditRecorder
	notifier     Notifier
	now          func() time.Time
	logger       *slog.Logger
}

// NewConfigService constructs a ConfigService with the default logger.
func NewConfigService(store ConfigStore, defaultQuota int, audit *AuditRecorder, notifier Notifier, now func() time.Time) *ConfigService {
	return NewConfigServiceWithLogger(store, defaultQuota, audit, notifier, now, nil)
}

// NewConfigServiceWithLogger constructs a ConfigService with a specified logger.
func NewConfigServiceWithLogger(store ConfigStore, defaultQuota int, audit *AuditRecorder, notifier Notifier, now func() time.Time, logger *slog.Logger) *ConfigService {
	if defaultQuota <= 0 {
		defaultQuota = DefaultDailyQuota
	}
	if now == nil {
		now = time.Now
	}
	return &ConfigService{
		store:        store,
		defaultQuota: defaultQuota,
		audit:        audit,
		notifier:     notifier,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *ConfigService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ConfigService", operation, attrs...)
}

// Snapshot returns the stored config, creating the default row on first use.
func (s *ConfigService) Snapshot(ctx context.Context) (VotingConfig, error) {
	if s == nil {
		return VotingConfig{}, fmt.Errorf("ConfigService is nil")
	}
	if s.store == nil {
		return VotingConfig{}, fmt.Errorf("config store not configured")
	}

	cfg, found, err := s.store.GetConfig(ctx)
	if err != nil {
		return VotingConfig{}, err
	}
	if found {
		return cfg, nil
	}

	defaults := VotingConfig{
		IsVotingOpen: false,
		DailyQuota:   s.defaultQuota,
		UpdatedAt:    s.now().UTC(),
		UpdatedBy:    ActorSystem,
	}
	cfg, err = s.store.SaveConfig(ctx, defaults, 0)
	if err == nil {
		s.loggerWith(ctx, "Snapshot").InfoContext(ctx, "default voting config created", "daily_quota", cfg.DailyQuota)
		return cfg, nil
	}
	if !errors.Is(err, persistence.ErrDuplicate) && !errors.Is(err, persistence.ErrConflict) {
		return VotingConfig{}, err
	}
	// Another request created the row first.
	cfg, found, err = s.store.GetConfig(ctx)
	if err != nil {
		return VotingConfig{}, err
	}
	if !found {
		return VotingConfig{}, fmt.Errorf("voting config missing after concurrent create")
	}
	return cfg, nil
}

// Update applies input to the current config. A non-zero expectedVersion must
// match the stored version; zero applies the change to whatever is current.
func (s *ConfigService) Update(ctx context.Context, principal Principal, input ConfigInput, expectedVersion int64, meta RequestMeta) (cfg VotingConfig, err error) {
	if s == nil {
		err = fmt.Errorf("ConfigService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Update",
		"principal", principal.Subject(),
		"expected_version", expectedVersion,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update voting config", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("version", cfg.Version).InfoContext(ctx, "voting config updated")
	}()

	if !principal.IsAdmin() {
		err = ErrForbidden
		return
	}
	if vErr := validateConfigInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	const attempts = 3
	for attempt := 0; attempt < attempts; attempt++ {
		var current VotingConfig
		current, err = s.Snapshot(ctx)
		if err != nil {
			return
		}
		if expectedVersion != 0 && current.Version != expectedVersion {
			err = ErrConflict
			return
		}

		next := applyConfigInput(current, input)
		next.UpdatedAt = s.now().UTC()
		next.UpdatedBy = principal.Subject()
		if vErr := validateResolvedConfig(next); vErr.HasErrors() {
			err = vErr
			return
		}

		cfg, err = s.store.SaveConfig(ctx, next, current.Version)
		if err == nil {
			break
		}
		err = mapStoreError(err)
		if !errors.Is(err, ErrConflict) || expectedVersion != 0 {
			return
		}
	}
	if err != nil {
		return
	}

	s.audit.RecordFor(ctx, principal, AuditUpdateConfig, meta, map[string]any{
		"version":        cfg.Version,
		"is_voting_open": cfg.IsVotingOpen,
		"daily_quota":    cfg.DailyQuota,
		"slots":          len(cfg.Slots),
	})
	publish(ctx, s.notifier, logger,
		Notification{Type: EventConfigChanged, Payload: map[string]any{"version": cfg.Version}},
		Notification{Type: EventDataChanged, Payload: map[string]string{"scope": "config"}},
	)
	return
}

func applyConfigInput(current VotingConfig, input ConfigInput) VotingConfig {
	next := current
	if input.IsVotingOpen != nil {
		next.IsVotingOpen = *input.IsVotingOpen
	}
	if input.DailyQuota != nil {
		next.DailyQuota = *input.DailyQuota
	}
	if input.Slots != nil {
		slots := make([]Slot, len(*input.Slots))
		for i, slot := range *input.Slots {
			slot.Date = strings.TrimSpace(slot.Date)
			slot.Label = strings.TrimSpace(slot.Label)
			slot.StartTime = slot.StartTime.UTC()
			slot.EndTime = slot.EndTime.UTC()
			slots[i] = slot
		}
		next.Slots = slots
	}
	if input.LegacyWindow != nil {
		next.StartTime = utcPointer(input.LegacyWindow.Start)
		next.EndTime = utcPointer(input.LegacyWindow.End)
	}
	if input.CurrentSessionDate != nil {
		if date := strings.TrimSpace(*input.CurrentSessionDate); date != "" {
			next.CurrentSessionDate = &date
		} else {
			next.CurrentSessionDate = nil
		}
	}
	return next
}

func validateConfigInput(input ConfigInput) *ValidationError {
	vErr := &ValidationError{}
	if input.DailyQuota != nil && *input.DailyQuota < 1 {
		vErr.add("daily_quota", "daily quota must be at least 1")
	}
	if input.Slots != nil {
		for i, slot := range *input.Slots {
			field := fmt.Sprintf("slots[%d]", i)
			if _, err := ParseDate(strings.TrimSpace(slot.Date)); err != nil {
				vErr.add(field+".date", "date must be YYYY-MM-DD")
			}
			if slot.StartTime.IsZero() || slot.EndTime.IsZero() {
				vErr.add(field, "start_time and end_time are required")
				continue
			}
			if !slot.StartTime.Before(slot.EndTime) {
				vErr.add(field, "start_time must be before end_time")
			}
		}
	}
	if input.CurrentSessionDate != nil {
		if date := strings.TrimSpace(*input.CurrentSessionDate); date != "" {
			if _, err := ParseDate(date); err != nil {
				vErr.add("current_session_date", "date must be YYYY-MM-DD")
			}
		}
	}
	if vErr.HasErrors() {
		vErr.Message = "invalid voting config"
	}
	return vErr
}

// validateResolvedConfig checks constraints that span stored and incoming fields.
func validateResolvedConfig(cfg VotingConfig) *ValidationError {
	vErr := &ValidationError{}
	if cfg.StartTime != nil && cfg.EndTime != nil && !cfg.StartTime.Before(*cfg.EndTime) {
		vErr.add("start_time", "start_time must be before end_time")
	}
	if cfg.DailyQuota < 1 {
		vErr.add("daily_quota", "daily quota must be at least 1")
	}
	if vErr.HasErrors() {
		vErr.Message = "invalid voting config"
	}
	return vErr
}

func utcPointer(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// Package seed loads a YAML bootstrap file and applies it idempotently:
// administrators and teams that already exist are left untouched.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/example/campus-voting/internal/application"
	"github.com/example/campus-voting/internal/persistence"
	"github.com/example/campus-voting/internal/recurrence"
)

// File is the decoded seed document.
type File struct {
	Admins    []AdminSeed `yaml:"admins"`
	Teams     []TeamSeed  `yaml:"teams"`
	Whitelist []string    `yaml:"whitelist"`
	Voting    *VotingSeed `yaml:"voting"`
}

// AdminSeed describes one administrator.
type AdminSeed struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// TeamSeed describes one team.
type TeamSeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	ImageURL    string `yaml:"image_url"`
}

// VotingSeed overrides parts of the voting configuration.
type VotingSeed struct {
	IsVotingOpen       *bool      `yaml:"is_voting_open"`
	DailyQuota         *int       `yaml:"daily_quota"`
	CurrentSessionDate *string         `yaml:"current_session_date"`
	Slots              []SlotSeed      `yaml:"slots"`
	DailySlots         *DailySlotsSeed `yaml:"daily_slots"`
}

// DailySlotsSeed generates one slot per day; the slots are appended after Slots.
type DailySlotsSeed struct {
	From     string   `yaml:"from"`
	To       string   `yaml:"to"`
	Start    string   `yaml:"start"`
	End      string   `yaml:"end"`
	Weekdays []string `yaml:"weekdays"`
	Timezone string   `yaml:"timezone"`
	Label    string   `yaml:"label"`
}

// SlotSeed is one voting slot; start and end are RFC 3339 timestamps.
type SlotSeed struct {
	Date  string    `yaml:"date"`
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
	Label string    `yaml:"label"`
}

// Load reads and decodes the seed file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode parses a seed document, rejecting unknown keys.
func Decode(r io.Reader) (File, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("decode seed file: %w", err)
	}
	if err := file.Validate(); err != nil {
		return File{}, err
	}
	return file, nil
}

// Validate checks required fields before anything is written.
func (f File) Validate() error {
	var problems []string
	for i, admin := range f.Admins {
		if strings.TrimSpace(admin.Username) == "" {
			problems = append(problems, fmt.Sprintf("admins[%d].username is required", i))
		}
		if len(admin.Password) < application.MinPasswordLength {
			problems = append(problems, fmt.Sprintf("admins[%d].password must be at least %d characters", i, application.MinPasswordLength))
		}
		switch strings.ToUpper(admin.Role) {
		case "", application.RoleAdmin, application.RoleSuperAdmin:
		default:
			problems = append(problems, fmt.Sprintf("admins[%d].role %q is invalid", i, admin.Role))
		}
	}
	for i, team := range f.Teams {
		if strings.TrimSpace(team.Name) == "" {
			problems = append(problems, fmt.Sprintf("teams[%d].name is required", i))
		}
	}
	if f.Voting != nil && f.Voting.DailySlots != nil {
		if _, err := f.Voting.DailySlots.expand(); err != nil {
			problems = append(problems, fmt.Sprintf("voting.daily_slots: %v", err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid seed file: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ConfigUpdater applies voting configuration changes.
type ConfigUpdater interface {
	Update(ctx context.Context, principal application.Principal, input application.ConfigInput, expectedVersion int64, meta application.RequestMeta) (application.VotingConfig, error)
}

// Deps are the stores the seeder writes to.
type Deps struct {
	Admins    application.AdminStore
	Teams     application.TeamStore
	Whitelist application.AccessListStore
	Config    ConfigUpdater
	Hash      application.PasswordHasher
	Now       func() time.Time
	Logger    *slog.Logger
}

// Result counts what Apply created.
type Result struct {
	AdminsCreated  int
	TeamsCreated   int
	WhitelistAdded int
	ConfigUpdated  bool
}

// seedPrincipal is the actor recorded for configuration written by the seeder.
var seedPrincipal = application.Principal{Kind: application.PrincipalAdmin, Username: "seed", Role: application.RoleSuperAdmin}

// Apply writes the file's contents that are not yet present.
func Apply(ctx context.Context, deps Deps, file File) (Result, error) {
	if deps.Hash == nil {
		deps.Hash = application.HashPassword
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "seed")

	var result Result
	now := deps.Now().UTC()

	if deps.Admins != nil {
		for _, seed := range file.Admins {
			username := strings.TrimSpace(seed.Username)
			_, err := deps.Admins.GetAdmin(ctx, username)
			if err == nil {
				continue
			}
			if !isNotFound(err) {
				return result, fmt.Errorf("look up admin %s: %w", username, err)
			}
			hash, err := deps.Hash(seed.Password)
			if err != nil {
				return result, fmt.Errorf("hash password for %s: %w", username, err)
			}
			role := strings.ToUpper(seed.Role)
			if role == "" {
				role = application.RoleAdmin
			}
			if err := deps.Admins.CreateAdmin(ctx, application.Admin{
				Username: username, PasswordHash: hash, Role: role, CreatedAt: now, UpdatedAt: now,
			}); err != nil {
				return result, fmt.Errorf("create admin %s: %w", username, err)
			}
			result.AdminsCreated++
			logger.InfoContext(ctx, "admin seeded", "username", username, "role", role)
		}
	}

	if deps.Teams != nil && len(file.Teams) > 0 {
		existing, err := deps.Teams.ListTeams(ctx)
		if err != nil {
			return result, fmt.Errorf("list teams: %w", err)
		}
		names := make(map[string]bool, len(existing))
		for _, team := range existing {
			names[strings.ToLower(team.Name)] = true
		}
		for _, seed := range file.Teams {
			name := strings.TrimSpace(seed.Name)
			if names[strings.ToLower(name)] {
				continue
			}
			if err := deps.Teams.CreateTeam(ctx, application.Team{
				ID:          uuid.NewString(),
				Name:        name,
				Description: strings.TrimSpace(seed.Description),
				ImageURL:    strings.TrimSpace(seed.ImageURL),
				CreatedAt:   now,
				UpdatedAt:   now,
			}); err != nil {
				return result, fmt.Errorf("create team %s: %w", name, err)
			}
			names[strings.ToLower(name)] = true
			result.TeamsCreated++
			logger.InfoContext(ctx, "team seeded", "name", name)
		}
	}

	if deps.Whitelist != nil {
		for _, raw := range file.Whitelist {
			email := strings.ToLower(strings.TrimSpace(raw))
			if email == "" {
				continue
			}
			present, err := deps.Whitelist.HasEntry(ctx, email)
			if err != nil {
				return result, fmt.Errorf("check whitelist %s: %w", email, err)
			}
			if present {
				continue
			}
			if err := deps.Whitelist.AddEntry(ctx, application.AccessEntry{
				Email: email, Reason: "seed", AddedBy: seedPrincipal.Username, CreatedAt: now,
			}); err != nil {
				return result, fmt.Errorf("whitelist %s: %w", email, err)
			}
			result.WhitelistAdded++
		}
	}

	if deps.Config != nil && file.Voting != nil {
		input, err := file.Voting.input()
		if err != nil {
			return result, fmt.Errorf("voting config: %w", err)
		}
		if _, err := deps.Config.Update(ctx, seedPrincipal, input, 0, application.RequestMeta{}); err != nil {
			return result, fmt.Errorf("apply voting config: %w", err)
		}
		result.ConfigUpdated = true
	}
	return result, nil
}

func (v VotingSeed) input() (application.ConfigInput, error) {
	input := application.ConfigInput{
		IsVotingOpen:       v.IsVotingOpen,
		DailyQuota:         v.DailyQuota,
		CurrentSessionDate: v.CurrentSessionDate,
	}
	if v.Slots != nil || v.DailySlots != nil {
		slots := make([]application.Slot, 0, len(v.Slots))
		for _, s := range v.Slots {
			slots = append(slots, application.Slot{Date: s.Date, StartTime: s.Start, EndTime: s.End, Label: s.Label})
		}
		if v.DailySlots != nil {
			generated, err := v.DailySlots.expand()
			if err != nil {
				return application.ConfigInput{}, err
			}
			slots = append(slots, generated...)
		}
		input.Slots = &slots
	}
	return input, nil
}

func (d DailySlotsSeed) expand() ([]application.Slot, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(d.Timezone); tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("timezone %q: %w", tz, err)
		}
	}
	weekdays, err := recurrence.ParseWeekdays(d.Weekdays)
	if err != nil {
		return nil, err
	}
	label := d.Label
	if label == "" {
		label = "Day %d"
	}
	return recurrence.NewEngine(loc).Expand(recurrence.Rule{
		From:     d.From,
		To:       d.To,
		Start:    d.Start,
		End:      d.End,
		Weekdays: weekdays,
		Label:    label,
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, application.ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}

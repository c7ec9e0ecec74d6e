package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

type manager struct {
	scanner      FileScanner
	executor     Executor
	migrationDir string
	logger       *slog.Logger
	now          func() time.Time
}

// NewMigrationManager wires a scanner and executor together. A nil logger discards output.
func NewMigrationManager(scanner FileScanner, executor Executor, migrationDir string, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &manager{
		scanner:      scanner,
		executor:     executor,
		migrationDir: migrationDir,
		logger:       logger.With("component", "migration"),
		now:          time.Now,
	}
}

// RunMigrations applies pending migrations in order and stops at the first failure.
func (m *manager) RunMigrations(ctx context.Context) (int, error) {
	started := m.now()

	pending, err := m.GetPendingMigrations(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "migration planning failed", "error", err)
		return 0, err
	}
	if len(pending) == 0 {
		m.logger.DebugContext(ctx, "schema up to date")
		return 0, nil
	}

	for i, migration := range pending {
		migrationStarted := m.now()
		logger := m.logger.With("version", migration.Version, "description", migration.Description)

		if err := m.executor.ExecuteMigration(ctx, migration); err != nil {
			logger.ErrorContext(ctx, "migration failed", "error", err)
			return i, NewMigrationError(migration.Version, migration.FilePath,
				"execute migration", fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}

		elapsed := m.now().Sub(migrationStarted)
		if err := m.executor.RecordMigration(ctx, migration, elapsed); err != nil {
			logger.ErrorContext(ctx, "recording migration failed", "error", err)
			return i, NewMigrationError(migration.Version, migration.FilePath, "record migration", err)
		}
		logger.InfoContext(ctx, "migration applied", "duration", elapsed)
	}

	m.logger.InfoContext(ctx, "migrations complete",
		"applied", len(pending),
		"duration", m.now().Sub(started),
	)
	return len(pending), nil
}

// GetPendingMigrations compares files with schema_migrations.
func (m *manager) GetPendingMigrations(ctx context.Context) ([]Migration, error) {
	available, err := m.scanner.ScanMigrations(m.migrationDir)
	if err != nil {
		return nil, fmt.Errorf("scan migrations: %w", err)
	}
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateSequence(available, applied); err != nil {
		return nil, err
	}

	appliedByVersion := make(map[string]AppliedMigration, len(applied))
	for _, a := range applied {
		appliedByVersion[versionKey(a.Version)] = a
	}

	var pending []Migration
	for _, migration := range available {
		a, ok := appliedByVersion[versionKey(migration.Version)]
		if !ok {
			pending = append(pending, migration)
			continue
		}
		if a.Checksum != "" && migration.Checksum != "" && a.Checksum != migration.Checksum {
			return nil, NewMigrationError(migration.Version, migration.FilePath, "verify checksum",
				fmt.Errorf("%w: applied %s, file %s", ErrChecksumMismatch, a.Checksum, migration.Checksum))
		}
	}
	sortMigrations(pending)
	return pending, nil
}

// GetMigrationStatus reports the current version and what is left to apply.
func (m *manager) GetMigrationStatus(ctx context.Context) (*Status, error) {
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		CurrentVersion:    "none",
		PendingCount:      len(pending),
		AppliedMigrations: applied,
		PendingMigrations: pending,
	}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	return status, nil
}

func (m *manager) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return nil, fmt.Errorf("initialize version table: %w", err)
	}
	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get applied versions: %w", err)
	}
	return applied, nil
}

// validateSequence rejects gaps in file versions and applied versions that no longer have a file.
func validateSequence(available []Migration, applied []AppliedMigration) error {
	known := make(map[string]struct{}, len(available))
	for i, migration := range available {
		known[versionKey(migration.Version)] = struct{}{}
		if i == 0 {
			continue
		}
		prev, _ := strconv.Atoi(available[i-1].Version)
		cur, _ := strconv.Atoi(migration.Version)
		if cur != prev+1 {
			return fmt.Errorf("%w: gap between versions %s and %s", ErrVersionConflict, available[i-1].Version, migration.Version)
		}
	}
	for _, a := range applied {
		if _, ok := known[versionKey(a.Version)]; !ok {
			return fmt.Errorf("%w: applied version %s has no migration file", ErrVersionConflict, a.Version)
		}
	}
	return nil
}

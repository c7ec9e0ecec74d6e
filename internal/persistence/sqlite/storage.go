package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/campus-voting/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage bundles the SQLite-backed repositories that share one connection pool.
type Storage struct {
	pool *ConnectionPool

	Accounts  *AccountRepository
	Admins    *AdminRepository
	Teams     *TeamRepository
	Votes     *VoteRepository
	Config    *ConfigRepository
	Scores    *ScoreRepository
	Audit     *AuditRepository
	Whitelist *AccessListRepository
	Blacklist *AccessListRepository
	Events    *EventRepository
}

// Open connects to the database described by config. Call Migrate before use.
func Open(config migration.SQLiteConfig) (*Storage, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Storage{
		pool:      pool,
		Accounts:  NewAccountRepository(pool),
		Admins:    NewAdminRepository(pool),
		Teams:     NewTeamRepository(pool),
		Votes:     NewVoteRepository(pool),
		Config:    NewConfigRepository(pool),
		Scores:    NewScoreRepository(pool),
		Audit:     NewAuditRepository(pool),
		Whitelist: NewAccessListRepository(pool, WhitelistTable),
		Blacklist: NewAccessListRepository(pool, BlacklistTable),
		Events:    NewEventRepository(pool),
	}, nil
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Close()
}

// Ping checks that the database answers.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations and reports how many ran.
func (s *Storage) Migrate(ctx context.Context, logger *slog.Logger) (int, error) {
	manager := migration.NewMigrationManager(
		migration.NewFileScanner(migrationFiles),
		migration.NewSQLiteExecutor(s.pool.DB()),
		"migrations",
		logger,
	)
	applied, err := manager.RunMigrations(ctx)
	if err != nil {
		return applied, fmt.Errorf("apply migrations: %w", err)
	}
	return applied, nil
}

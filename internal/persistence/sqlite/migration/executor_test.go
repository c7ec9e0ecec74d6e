package migration

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "migration.db")))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteExecutor_ExecuteAndRecord(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	executor := NewSQLiteExecutor(db)
	ctx := context.Background()

	if err := executor.InitializeVersionTable(ctx); err != nil {
		t.Fatalf("InitializeVersionTable: %v", err)
	}
	if err := executor.InitializeVersionTable(ctx); err != nil {
		t.Fatalf("InitializeVersionTable should be idempotent: %v", err)
	}

	m := Migration{
		Version:  "001",
		SQL:      "-- Description: two tables\nCREATE TABLE a (id TEXT PRIMARY KEY);\nCREATE TABLE b (id TEXT PRIMARY KEY);",
		FilePath: "migrations/001_two_tables.sql",
		Checksum: "abc123",
	}
	if err := executor.ExecuteMigration(ctx, m); err != nil {
		t.Fatalf("ExecuteMigration: %v", err)
	}
	if err := executor.RecordMigration(ctx, m, 12*time.Millisecond); err != nil {
		t.Fatalf("RecordMigration: %v", err)
	}

	for _, table := range []string{"a", "b"} {
		var name string
		if err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}

	applied, err := executor.GetAppliedVersions(ctx)
	if err != nil {
		t.Fatalf("GetAppliedVersions: %v", err)
	}
	if len(applied) != 1 || applied[0].Version != "001" || applied[0].Checksum != "abc123" {
		t.Fatalf("unexpected applied migrations: %+v", applied)
	}
	if applied[0].ExecutionTime != 12*time.Millisecond {
		t.Fatalf("unexpected execution time %v", applied[0].ExecutionTime)
	}
}

func TestSQLiteExecutor_FailedMigrationRollsBack(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	executor := NewSQLiteExecutor(db)
	ctx := context.Background()

	m := Migration{
		Version: "001",
		SQL:     "CREATE TABLE ok (id TEXT);\nCREATE TABLE broken (id TEXT REFERENCES;",
	}
	err := executor.ExecuteMigration(ctx, m)
	var dbErr *DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected DatabaseError, got %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'ok'`).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Fatal("first statement should have been rolled back")
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	got := splitStatements("-- header\nCREATE TABLE a (id TEXT); -- trailing\n\n;CREATE INDEX i ON a(id);")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
}

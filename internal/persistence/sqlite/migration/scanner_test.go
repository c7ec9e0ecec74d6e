package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestFileScanner_ScanMigrations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		files       fstest.MapFS
		wantOrder   []string
		wantErr     error
	}{
		{
			name: "sorted numerically",
			files: fstest.MapFS{
				"migrations/010_tenth.sql":  {Data: []byte("CREATE TABLE j (id TEXT);")},
				"migrations/002_second.sql": {Data: []byte("CREATE TABLE b (id TEXT);")},
				"migrations/001_first.sql":  {Data: []byte("CREATE TABLE a (id TEXT);")},
				"migrations/README.md":      {Data: []byte("ignored")},
			},
			wantOrder: []string{"001", "002", "010"},
		},
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"migrations/001_first.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
				"migrations/1_again.sql":   {Data: []byte("CREATE TABLE b (id TEXT);")},
			},
			wantErr: ErrDuplicateVersion,
		},
		{
			name: "bad file name",
			files: fstest.MapFS{
				"migrations/first.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
			},
			wantErr: ErrInvalidMigrationFile,
		},
		{
			name: "comment only",
			files: fstest.MapFS{
				"migrations/001_empty.sql": {Data: []byte("-- nothing here\n")},
			},
			wantErr: ErrInvalidMigrationFile,
		},
		{
			name: "unbalanced parentheses",
			files: fstest.MapFS{
				"migrations/001_broken.sql": {Data: []byte("CREATE TABLE a (id TEXT;")},
			},
			wantErr: ErrInvalidMigrationFile,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NewFileScanner(tt.files).ScanMigrations("migrations")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ScanMigrations returned error: %v", err)
			}
			if len(got) != len(tt.wantOrder) {
				t.Fatalf("expected %d migrations, got %d", len(tt.wantOrder), len(got))
			}
			for i, version := range tt.wantOrder {
				if got[i].Version != version {
					t.Fatalf("position %d: expected version %s, got %s", i, version, got[i].Version)
				}
				if got[i].Checksum == "" {
					t.Fatalf("version %s has no checksum", version)
				}
			}
		})
	}
}

func TestFileScanner_ParseMigrationFileDescription(t *testing.T) {
	t.Parallel()

	files := fstest.MapFS{
		"m/001_with_header.sql": {Data: []byte("-- Description: Create accounts table\nCREATE TABLE accounts (id TEXT);")},
		"m/002_add_teams.sql":   {Data: []byte("CREATE TABLE teams (id TEXT);")},
	}
	scanner := NewFileScanner(files)

	withHeader, err := scanner.ParseMigrationFile("m/001_with_header.sql")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if withHeader.Description != "Create accounts table" {
		t.Fatalf("unexpected description %q", withHeader.Description)
	}

	fromName, err := scanner.ParseMigrationFile("m/002_add_teams.sql")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if fromName.Description != "add teams" {
		t.Fatalf("unexpected description %q", fromName.Description)
	}
}

func TestFileScanner_ValidateFileName(t *testing.T) {
	t.Parallel()

	scanner := NewFileScanner(fstest.MapFS{})
	valid := []string{"001_initial.sql", "12_add-index.sql"}
	invalid := []string{"initial.sql", "001-initial.sql", "001_initial.txt", "abc_initial.sql"}

	for _, name := range valid {
		if err := scanner.ValidateFileName(name); err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}
	for _, name := range invalid {
		if err := scanner.ValidateFileName(name); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestDiscoverMigrations(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"0002_indexes.sql": "CREATE INDEX idx_x ON x (y);",
		"0001_init.sql":    "CREATE TABLE x (id UUID PRIMARY KEY);",
		"notes.txt":        "not a migration",
		"badname.sql":      "skipped: no version prefix",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	m := NewMigrator(nil, dir, zerolog.Nop())
	migrations, err := m.discover()
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != "0001" || migrations[0].Name != "init" {
		t.Errorf("first migration = %+v", migrations[0])
	}
	if migrations[1].Version != "0002" {
		t.Errorf("second migration = %+v", migrations[1])
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/migrations", zerolog.Nop())
	if _, err := m.discover(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

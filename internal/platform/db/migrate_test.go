package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write test file %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadMigrations(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"002_form_entries.sql": "CREATE TABLE form_entries (id TEXT PRIMARY KEY);",
		"001_clinic.sql":       "CREATE TABLE clients (id TEXT PRIMARY KEY);",
		"010_indexes.sql":      "CREATE INDEX idx_clients_status ON clients (status);",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	wantOrder := []int{1, 2, 10}
	for i, v := range wantOrder {
		if migrations[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_clinic.sql" {
		t.Errorf("expected name 001_clinic.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE clients (id TEXT PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsUnversionedFiles(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_clinic.sql":    "SELECT 1;",
		"README.md":         "notes",
		"seed.sql":          "SELECT 2;",
		"draft_devices.sql": "SELECT 3;",
	})
	if err := os.Mkdir(filepath.Join(dir, "002_dir.sql"), 0755); err != nil {
		t.Fatal(err)
	}

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_NonExistentDir(t *testing.T) {
	_, err := NewMigrator(nil, "/nonexistent/migrations").LoadMigrations()
	if err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestQuoteSchema(t *testing.T) {
	if got := quoteSchema(""); got != `"public"` {
		t.Errorf("expected default schema, got %s", got)
	}
	if got := quoteSchema(`clinic"; DROP`); got != `"clinic""; DROP"` {
		t.Errorf("expected quoted identifier, got %s", got)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_clinic.sql":  "SELECT 1;",
		"001_devices.sql": "SELECT 2;",
	})
	_, err := NewMigrator(nil, dir).LoadMigrations()
	if err == nil || !strings.Contains(err.Error(), "duplicate migration version 1") {
		t.Errorf("expected duplicate version error, got %v", err)
	}
}

func TestLoadMigrations_Checksum(t *testing.T) {
	dir := writeMigrations(t, map[string]string{"001_clinic.sql": "SELECT 1;"})
	first, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "001_clinic.sql"), []byte("SELECT 2;"), 0644); err != nil {
		t.Fatal(err)
	}
	second, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if first[0].Checksum == "" || first[0].Checksum == second[0].Checksum {
		t.Errorf("expected checksum to follow file content, got %q and %q", first[0].Checksum, second[0].Checksum)
	}
}

func TestStatuses(t *testing.T) {
	migs := []Migration{
		{Version: 1, Name: "001_clinic.sql", Checksum: "aaa"},
		{Version: 2, Name: "002_indexes.sql", Checksum: "bbb"},
		{Version: 3, Name: "003_trgm.sql", Checksum: "ccc"},
	}
	at := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	got := statuses(migs, map[int]appliedMigration{
		1: {checksum: "aaa", appliedAt: at},
		2: {checksum: "old", appliedAt: at},
	})

	if !got[0].Applied || got[0].Modified || !got[0].AppliedAt.Equal(at) {
		t.Errorf("unexpected status for 001: %+v", got[0])
	}
	if !got[1].Applied || !got[1].Modified {
		t.Errorf("expected 002 to be reported as modified: %+v", got[1])
	}
	if got[2].Applied || got[2].AppliedAt != nil {
		t.Errorf("expected 003 to be pending: %+v", got[2])
	}
}

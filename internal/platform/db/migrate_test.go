package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMigrations_ParsesAndSorts(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"0002_capacity.sql": "CREATE TABLE b (id int);",
		"0001_init.sql":     "CREATE TABLE a (id int);",
		"0010_referrals.sql": "CREATE TABLE c (id int);",
		"notes.txt":         "ignore me",
		"readme.sql":        "no version prefix",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	wantVersions := []int{1, 2, 10}
	for i, v := range wantVersions {
		if migrations[i].Version != v {
			t.Errorf("migration %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].Name != "0001_init.sql" {
		t.Errorf("expected first migration 0001_init.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE a (id int);" {
		t.Errorf("unexpected SQL content: %q", migrations[0].SQL)
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/migrations")
	if _, err := m.LoadMigrations(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

package db

import (
	"testing"
	"testing/fstest"
	"time"
)

func loadFS(t *testing.T, files map[string]string) ([]Migration, error) {
	t.Helper()
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return NewMigratorFS(nil, fsys).LoadMigrations()
}

func TestLoadMigrations(t *testing.T) {
	migs, err := loadFS(t, map[string]string{
		"010_reassessments.sql": "SELECT 10;",
		"001_intake.sql":        "SELECT 1;",
		"002_seed.sql":          "SELECT 2;",
		"README.md":             "notes",
		"draft.sql":             "SELECT 0;",
		"abc_bad.sql":           "SELECT 0;",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(migs) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migs))
	}
	for i, want := range []int{1, 2, 10} {
		if migs[i].Version != want {
			t.Errorf("position %d: version %d, want %d", i, migs[i].Version, want)
		}
	}
	if len(migs[0].Checksum) != 64 || migs[0].Checksum == migs[1].Checksum {
		t.Errorf("unexpected checksums %q %q", migs[0].Checksum, migs[1].Checksum)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	_, err := loadFS(t, map[string]string{
		"003_a.sql": "SELECT 1;",
		"003_b.sql": "SELECT 2;",
	})
	if err == nil {
		t.Fatal("expected error for duplicate version")
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	if _, err := NewMigrator(nil, "/nonexistent/migrations").LoadMigrations(); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestBuildStatus(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	migs := []Migration{
		{Version: 1, Name: "001_intake.sql", Checksum: "aaa"},
		{Version: 2, Name: "002_seed.sql", Checksum: "bbb"},
		{Version: 3, Name: "003_more.sql", Checksum: "ccc"},
	}
	applied := map[int]appliedMigration{
		1: {at: at, checksum: "aaa"},
		2: {at: at, checksum: "old"},
	}

	st := buildStatus(migs, applied)
	if !st[0].Applied || st[0].Drifted || !st[0].AppliedAt.Equal(at) {
		t.Errorf("001: %+v", st[0])
	}
	if !st[1].Applied || !st[1].Drifted {
		t.Errorf("002 should be drifted: %+v", st[1])
	}
	if st[2].Applied || st[2].AppliedAt != nil {
		t.Errorf("003 should be pending: %+v", st[2])
	}
	if p := pending(migs, applied); len(p) != 1 || p[0].Version != 3 {
		t.Errorf("unexpected pending %+v", p)
	}
}

package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

func TestListMigrationFilesEmbedded(t *testing.T) {
	files := listMigrationFiles(migrationsFS, migrationsDir)
	if len(files) == 0 {
		t.Fatal("expected embedded migrations")
	}
	if files[0] != "000001_create_users.up.sql" {
		t.Fatalf("unexpected first migration %q", files[0])
	}
}

func TestListMigrationFilesSkipsDownAndDirs(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000002_b.up.sql":   {Data: []byte("")},
		"m/000001_a.up.sql":   {Data: []byte("")},
		"m/000001_a.down.sql": {Data: []byte("")},
		"m/sub/x.up.sql":      {Data: []byte("")},
	}
	got := listMigrationFiles(fsys, "m")
	want := []string{"000001_a.up.sql", "000002_b.up.sql"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"000001_a.up.sql", "000002_b.up.sql", "000003_c.up.sql"}
	got := selectApplied(files, 1, 3)
	if len(got) != 2 || got[0] != "000002_b.up.sql" || got[1] != "000003_c.up.sql" {
		t.Fatalf("unexpected applied set %v", got)
	}
	if got := selectApplied(files, 3, 3); got != nil {
		t.Fatalf("expected nothing applied, got %v", got)
	}
}

func TestMigratorRunsOnceAfterSuccess(t *testing.T) {
	calls := 0
	m := &Migrator{cfg: Config{Driver: DriverPostgres}, run: func(context.Context, Config) error {
		calls++
		return nil
	}}
	for i := 0; i < 3; i++ {
		if err := m.EnsureSchema(context.Background()); err != nil {
			t.Fatalf("ensure schema: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single migration run, got %d", calls)
	}
}

func TestMigratorRetriesAfterFailure(t *testing.T) {
	calls := 0
	boom := errors.New("db down")
	m := &Migrator{cfg: Config{Driver: DriverPostgres}, run: func(context.Context, Config) error {
		calls++
		if calls == 1 {
			return boom
		}
		return nil
	}}
	if err := m.EnsureSchema(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if err := m.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 runs, got %d", calls)
	}
}

func TestMigratorSkipsMemoryDriver(t *testing.T) {
	m := &Migrator{cfg: Config{Driver: DriverMemory}, run: func(context.Context, Config) error {
		t.Fatal("run must not be called for the memory driver")
		return nil
	}}
	if err := m.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
}

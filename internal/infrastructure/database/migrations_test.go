package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20250101_000000_widgets.up.sql": {
			Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL);"),
		},
		"20250101_000000_widgets.down.sql": {
			Data: []byte("DROP TABLE widgets;"),
		},
		"20250102_000000_widget_colour.up.sql": {
			Data: []byte("ALTER TABLE widgets ADD COLUMN colour TEXT;"),
		},
		"20250102_000000_widget_colour.down.sql": {
			Data: []byte("ALTER TABLE widgets DROP COLUMN colour;"),
		},
		"README.md":                       {Data: []byte("not a migration")},
		"20250103_000000_orphan.down.sql": {Data: []byte("SELECT 1;")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "widgets") {
		t.Fatal("widgets table not created")
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO widgets (name, colour) VALUES ('a', 'red')"); err != nil {
		t.Fatalf("second migration not applied: %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Fatalf("applied=%d pending=%d, want 2 and 0", len(applied), len(pending))
	}
	if applied[0].Version != "20250101_000000" || applied[1].Version != "20250102_000000" {
		t.Errorf("applied order = %v", applied)
	}

	// Re-running is a no-op.
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestMigrate_NilFS(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
}

func TestMigrate_FailureRollsBackThatMigration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20250101_000000_good.up.sql":  {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20250102_000000_bad.up.sql":   {Data: []byte("CREATE TABLE broken (;")},
		"20250103_000000_later.up.sql": {Data: []byte("CREATE TABLE later (id INTEGER);")},
	}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() expected error for bad SQL")
	}
	if !tableExists(t, db, "good") {
		t.Error("migrations before the failure should stay committed")
	}
	if tableExists(t, db, "later") {
		t.Error("migrations after the failure should not run")
	}

	_, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("second MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "widgets") {
		t.Error("widgets table should be dropped")
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"20250601_120000_snapshot_history.up.sql", "20250601_120000", true, true},
		{"20250601_120000_snapshot_history.down.sql", "20250601_120000", false, true},
		{"20250601_120000_x.sql", "", false, false},
		{"readme.txt", "", false, false},
		{"nounderscore.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, up, ok := parseMigrationFilename(tt.name)
			if version != tt.wantVersion || up != tt.wantUp || ok != tt.wantOK {
				t.Errorf("parseMigrationFilename(%q) = (%q, %v, %v), want (%q, %v, %v)",
					tt.name, version, up, ok, tt.wantVersion, tt.wantUp, tt.wantOK)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	if got := extractMigrationName("20250601_120000_snapshot_history.up.sql"); got != "snapshot_history" {
		t.Errorf("extractMigrationName() = %q, want snapshot_history", got)
	}
}

package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestUp_SQLiteCreatesTables(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "migrate.db")

	if err := Up(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"cache_snapshots", "settings", "scheduled_jobs"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("expected table %s to exist: %v", table, err)
		}
	}

	if err := Down(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("Down failed: %v", err)
	}
}

func TestConfigureGoose_UnknownDriver(t *testing.T) {
	if err := Up(context.Background(), "mysql", ""); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestSupported(t *testing.T) {
	if Supported("redis") || Supported("memory") {
		t.Fatalf("schemaless drivers should not be supported")
	}
	if !Supported("postgrespool") || !Supported("sqlite") {
		t.Fatalf("sql drivers should be supported")
	}
	for _, alias := range []string{"sqlite3", "pgx"} {
		if Supported(alias) {
			t.Fatalf("driver %q is not a storage backend and should not be supported", alias)
		}
	}
}

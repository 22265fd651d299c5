package testdb

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/yhwang-dev/tradeshield/internal/adapters/database"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
)

// Open connects to the Postgres instance named by TEST_DATABASE_URL and
// applies all pending migrations. Tests that need a real database call
// this first; they are skipped when the variable is unset.
func Open(t *testing.T, migrationsPath string) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	if logger.Log == nil {
		if err := logger.Init("error", ""); err != nil {
			t.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v (DSN: %s)", err, dsn)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	abs, err := filepath.Abs(migrationsPath)
	if err != nil {
		t.Fatalf("failed to resolve migrations path: %v", err)
	}
	if err := database.RunMigrations(conn.DB, abs); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return conn
}

// Truncate clears the given tables so each test starts from empty state.
// Tables are listed child-first; CASCADE covers anything missed.
func Truncate(t *testing.T, db *sqlx.DB, tables ...string) {
	t.Helper()

	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

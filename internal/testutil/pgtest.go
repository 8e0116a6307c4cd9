// README: Postgres test harness shared by the DB-backed module tests (skips without YATRA_TEST_DSN).
package testutil

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

const testLockKey int64 = 7_243_001

// NewPool connects to YATRA_TEST_DSN, applies the schema and empties every
// table. Tests calling it are skipped when the DSN is not set.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("YATRA_TEST_DSN")
	if dsn == "" {
		t.Skip("YATRA_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// packages run in parallel under go test ./...; serialize on the shared schema
	lockConn, err := db.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := lockConn.Exec(ctx, "SELECT pg_advisory_lock($1)", testLockKey); err != nil {
		lockConn.Release()
		t.Fatalf("advisory lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = lockConn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", testLockKey)
		lockConn.Release()
	})

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE ratings, ride_requests, trips, routes, drivers, users"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

// SeedUser inserts a rider account.
func SeedUser(t *testing.T, db *pgxpool.Pool, id string) {
	t.Helper()
	if _, err := db.Exec(context.Background(),
		`INSERT INTO users (id, name) VALUES ($1, $1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

// SeedDriver inserts a user together with its driver profile.
func SeedDriver(t *testing.T, db *pgxpool.Pool, id string) {
	t.Helper()
	SeedUser(t, db, id)
	if _, err := db.Exec(context.Background(),
		`INSERT INTO drivers (user_id, vehicle_number, vehicle_type) VALUES ($1, 'BA 1 PA 2345', 'car')
		 ON CONFLICT (user_id) DO NOTHING`, id); err != nil {
		t.Fatalf("seed driver %s: %v", id, err)
	}
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(stripSQLComments(string(content))) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if stmt := strings.TrimSpace(p); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

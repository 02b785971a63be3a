package database

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// testPool connects to DATABASE_URL with the production pool settings. The
// test is skipped when no database is configured or the read_statuses
// migration has not been applied.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPostgresPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	var table *string
	if err := pool.QueryRow(ctx, `SELECT to_regclass('read_statuses')::text`).Scan(&table); err != nil {
		t.Fatalf("checking schema: %v", err)
	}
	if table == nil {
		t.Skip("read_statuses table missing, run qlvb-cli migrate first")
	}
	return pool
}

// Test users get IDs far above anything the document system hands out so
// cleanup by user never touches real rows.
var testUserCounter = time.Now().UnixNano() / 1000 % 1_000_000 * 1_000_000

func nextID() int64 {
	return atomic.AddInt64(&testUserCounter, 1)
}

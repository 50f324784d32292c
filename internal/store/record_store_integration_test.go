package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fixr105/Seven-Render-sub002/internal/records"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dir := filepath.Join("..", "..", "db", "migrations")

	again, err := ApplyMigrations(ctx, db, dir)
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no pending migrations, got %v", again)
	}

	reverted, err := RevertMigrations(ctx, db, dir)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if len(reverted) == 0 {
		t.Fatal("expected migrations to be reverted")
	}

	applied, err := ApplyMigrations(ctx, db, dir)
	if err != nil {
		t.Fatalf("apply after revert: %v", err)
	}
	if len(applied) != len(reverted) {
		t.Fatalf("applied %v after reverting %v", applied, reverted)
	}
}

func TestRecordStoreUpsertAndFetch(t *testing.T) {
	store := NewRecordStore(openTestDB(t))
	ctx := context.Background()

	first, err := store.Upsert(ctx, records.TableClients, records.Row{"Client ID": "CL001", "Assigned KAM": "K1", "Commission Rate": "1.5"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.ID() == "" {
		t.Fatal("expected a generated id")
	}
	if _, err := store.Upsert(ctx, records.TableClients, records.Row{"id": "recCL002", "Client ID": "CL002"}); err != nil {
		t.Fatalf("insert second: %v", err)
	}

	// same business id, no row id: an update, not a second row
	updated, err := store.Upsert(ctx, records.TableClients, records.Row{"Client ID": "CL001", "Assigned KAM": "K2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID() != first.ID() {
		t.Fatalf("update changed id from %s to %s", first.ID(), updated.ID())
	}

	rows, err := store.FetchTable(ctx, records.TableClients)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID() != first.ID() || rows[1].ID() != "recCL002" {
		t.Fatalf("rows out of insertion order: %v, %v", rows[0].ID(), rows[1].ID())
	}
	if got := rows[0].String("Assigned KAM"); got != "K2" {
		t.Fatalf("expected full-row overwrite, Assigned KAM = %q", got)
	}
	if _, ok := rows[0]["Commission Rate"]; ok {
		t.Fatal("upsert is a full write, stale fields must not survive")
	}

	other, err := store.FetchTable(ctx, records.TableKAMUsers)
	if err != nil {
		t.Fatalf("fetch other table: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("tables leak into each other: %v", other)
	}
}

func TestRecordStoreKeepsNumbersExact(t *testing.T) {
	store := NewRecordStore(openTestDB(t))
	ctx := context.Background()

	if _, err := store.Upsert(ctx, records.TableLedger, records.Row{"Ledger Entry ID": "L1", "Payout Amount": 7500.10, "Loan File": []any{"recF1"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rows, err := store.FetchTable(ctx, records.TableLedger)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	amount, ok := rows[0].Decimal("Payout Amount")
	if !ok || amount.String() != "7500.1" {
		t.Fatalf("amount = %s (%v)", amount, ok)
	}
	if got := rows[0].String("Loan File"); got != "recF1" {
		t.Fatalf("linked field = %q", got)
	}
}

func TestReadyDetectsMissingSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := Ready(ctx, db); err != nil {
		t.Fatalf("ready after migrations: %v", err)
	}
	if _, err := RevertMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if err := Ready(ctx, db); !errors.Is(err, ErrNotMigrated) {
		t.Fatalf("expected ErrNotMigrated, got %v", err)
	}
}

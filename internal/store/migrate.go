package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var migrationName = regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)

type migrationFile struct {
	version   string
	direction string
	path      string
}

// ApplyMigrations runs every *.up.sql in migrationsDir that is not yet
// recorded in schema_migrations, in file name order, one transaction each.
// It returns the files it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	files, err := listMigrations(migrationsDir, "up")
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, file := range files {
		name := filepath.Base(file.path)
		migrated, err := isMigrated(ctx, db, name)
		if err != nil {
			return applied, err
		}
		if migrated {
			continue
		}
		if err := runMigration(ctx, db, file.path, `INSERT INTO schema_migrations(version) VALUES($1)`, name); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// RevertMigrations runs the *.down.sql files of every applied migration,
// newest first, and forgets them.
func RevertMigrations(ctx context.Context, db *sql.DB, migrationsDir string) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	files, err := listMigrations(migrationsDir, "down")
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version > files[j].version })

	var reverted []string
	for _, file := range files {
		upName := strings.TrimSuffix(filepath.Base(file.path), ".down.sql") + ".up.sql"
		migrated, err := isMigrated(ctx, db, upName)
		if err != nil {
			return reverted, err
		}
		if !migrated {
			continue
		}
		if err := runMigration(ctx, db, file.path, `DELETE FROM schema_migrations WHERE version=$1`, upName); err != nil {
			return reverted, err
		}
		reverted = append(reverted, filepath.Base(file.path))
	}
	return reverted, nil
}

func listMigrations(migrationsDir, direction string) ([]migrationFile, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil || match[2] != direction {
			continue
		}
		files = append(files, migrationFile{
			version:   match[1],
			direction: match[2],
			path:      filepath.Join(migrationsDir, entry.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

// runMigration executes the file and the bookkeeping statement in one tx.
func runMigration(ctx context.Context, db *sql.DB, path, bookkeeping, version string) error {
	name := filepath.Base(path)
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", name, err)
	}
	if text := strings.TrimSpace(string(contents)); text != "" {
		if _, err := tx.ExecContext(ctx, text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}

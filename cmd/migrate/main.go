package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/better-wallet/dapp-broker/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
)

func main() {
	var (
		dsn       = pflag.String("dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
		direction = pflag.StringP("direction", "d", "up", "Migration direction: up or down")
		steps     = pflag.IntP("steps", "n", 0, "Number of migrations to run (0 = all)")
		list      = pflag.Bool("list", false, "List embedded migrations and exit")
	)
	pflag.Parse()

	if *direction != "up" && *direction != "down" {
		log.Fatalf("--direction must be 'up' or 'down', got: %s", *direction)
	}

	suffix := ".up.sql"
	if *direction == "down" {
		suffix = ".down.sql"
	}
	files, err := migrationFiles(migrations.FS, suffix, *direction == "down")
	if err != nil {
		log.Fatalf("Failed to find migration files: %v", err)
	}

	if *list {
		for _, f := range files {
			fmt.Println(f)
		}
		return
	}

	if *dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Create migrations table if not exists
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Fatalf("Failed to create migrations table: %v", err)
	}

	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		log.Fatalf("Failed to get applied migrations: %v", err)
	}

	// Run migrations
	count := 0
	for _, name := range files {
		version := strings.TrimSuffix(name, suffix)

		if (*direction == "up") == applied[version] {
			continue
		}
		if *steps > 0 && count >= *steps {
			break
		}

		fmt.Printf("Running migration: %s\n", name)
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			log.Fatalf("Failed to read migration file %s: %v", name, err)
		}
		if err := apply(ctx, pool, string(content), version, *direction); err != nil {
			log.Fatalf("Failed to apply migration %s: %v", name, err)
		}

		fmt.Printf("Applied migration: %s\n", version)
		count++
	}

	if count == 0 {
		fmt.Println("No migrations to apply")
	} else {
		fmt.Printf("Applied %d migration(s)\n", count)
	}
}

// migrationFiles lists the embedded files with suffix in version order,
// newest first when reverse is set
func migrationFiles(fsys fs.FS, suffix string, reverse bool) ([]string, error) {
	files, err := fs.Glob(fsys, "*"+suffix)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	if reverse {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	return files, nil
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// apply runs one migration and records it in a single transaction
func apply(ctx context.Context, pool *pgxpool.Pool, sql, version, direction string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, sql); err != nil {
		return err
	}

	if direction == "up" {
		_, err = tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
	} else {
		_, err = tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", version)
	}
	if err != nil {
		return fmt.Errorf("failed to update migrations table: %w", err)
	}

	return tx.Commit(ctx)
}

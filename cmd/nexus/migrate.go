package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/sawpanic/nexus/internal/config"
)

var flagMigrationsDir string

func init() {
	migrateCmd.Flags().StringVar(&flagMigrationsDir, "migrations-dir", "migrations", "directory of numbered .sql migration files")
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations to the configured database",
	RunE:  runMigrate,
}

// runMigrate applies every *.sql file in flagMigrationsDir in filename
// order, tracked in a schema_migrations table. There is no dedicated
// migration library in this stack, so this runs each file as one
// transaction through the same sqlx connection the rest of the platform
// uses, matching the store package's own raw-SQL style.
func runMigrate(cmd *cobra.Command, args []string) error {
	env := config.LoadEnv()
	if env.DatabaseURL == "" {
		return configError{fmt.Errorf("DATABASE_URL is required")}
	}

	ctx := context.Background()
	db, err := sqlx.ConnectContext(ctx, "postgres", env.DatabaseURL)
	if err != nil {
		return dbError{fmt.Errorf("connect database: %w", err)}
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return dbError{fmt.Errorf("create schema_migrations: %w", err)}
	}

	entries, err := os.ReadDir(flagMigrationsDir)
	if err != nil {
		return configError{fmt.Errorf("read migrations dir: %w", err)}
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var applied bool
		if err := db.GetContext(ctx, &applied, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name); err != nil {
			return dbError{fmt.Errorf("check %s: %w", name, err)}
		}
		if applied {
			continue
		}

		body, err := os.ReadFile(filepath.Join(flagMigrationsDir, name))
		if err != nil {
			return configError{fmt.Errorf("read %s: %w", name, err)}
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return dbError{fmt.Errorf("begin %s: %w", name, err)}
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			tx.Rollback()
			return dbError{fmt.Errorf("apply %s: %w", name, err)}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			return dbError{fmt.Errorf("record %s: %w", name, err)}
		}
		if err := tx.Commit(); err != nil {
			return dbError{fmt.Errorf("commit %s: %w", name, err)}
		}
		fmt.Fprintf(os.Stdout, "applied %s\n", name)
	}
	return nil
}

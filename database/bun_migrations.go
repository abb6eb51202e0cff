package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type migration struct {
	version string
	name    string
	up      func(context.Context, *bun.DB) error
}

var migrations = []migration{
	{"001", "create_jobs_table", init001CreateJobsTable},
	{"002", "create_batch_outputs_table", init002CreateBatchOutputsTable},
}

// appliedMigration is a row of the tracking table
type appliedMigration struct {
	bun.BaseModel `bun:"table:bun_schema_migrations"`
	Version       string `bun:"version,pk"`
	Name          string `bun:"name"`
}

func isPostgres(db *bun.DB) bool {
	return db.Dialect().Name() == dialect.PG
}

// timestampType differs because postgres should keep the zone
func timestampType(db *bun.DB) string {
	if isPostgres(db) {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

// runMigrations runs all Bun migrations
func runMigrations(ctx context.Context, db *bun.DB) error {
	// Create a simple migrations tracking table
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS bun_schema_migrations (
			version TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at %s DEFAULT CURRENT_TIMESTAMP
		)
	`, timestampType(db)))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var applied []appliedMigration
	err = db.NewSelect().
		Model(&applied).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to check applied migrations: %w", err)
	}

	appliedMap := make(map[string]bool)
	for _, m := range applied {
		appliedMap[m.Version] = true
	}

	for _, m := range migrations {
		if appliedMap[m.version] {
			continue
		}

		logger().Info("Running migration", "version", m.version, "name", m.name)
		if err := m.up(ctx, db); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.version, err)
		}

		_, err = db.NewInsert().
			Model(&appliedMigration{Version: m.version, Name: m.name}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark migration %s as applied: %w", m.version, err)
		}
	}

	logger().Info("All migrations completed successfully")
	return nil
}

// Migration 001: jobs table, one row per batch
func init001CreateJobsTable(ctx context.Context, db *bun.DB) error {
	ts := timestampType(db)
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT DEFAULT 'pending',
			progress INTEGER DEFAULT 0,
			current_step TEXT DEFAULT '',
			total_steps INTEGER DEFAULT 0,
			message TEXT DEFAULT '',
			error TEXT,
			result TEXT,
			created_at %[1]s NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at %[1]s NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at %[1]s,
			completed_at %[1]s
		)
	`, ts))
	if err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)",
		"CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_jobs_completed_at ON jobs(completed_at) WHERE completed_at IS NOT NULL",
	}
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			// Partial indexes might not be supported everywhere
			logger().Warn("Could not create index (might not be supported)", "error", err)
		}
	}
	return nil
}

// Migration 002: manifest of every file written to a batch archive
func init002CreateBatchOutputsTable(ctx context.Context, db *bun.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS batch_outputs (
			batch_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			filename TEXT NOT NULL,
			source TEXT NOT NULL,
			provenance TEXT NOT NULL,
			width INTEGER DEFAULT 0,
			height INTEGER DEFAULT 0,
			bytes INTEGER DEFAULT 0,
			PRIMARY KEY (batch_id, sequence)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create batch_outputs table: %w", err)
	}
	return nil
}

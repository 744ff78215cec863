package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all store migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create packages table",
			SQL: `
				CREATE TABLE IF NOT EXISTS packages (
					name VARCHAR(214) PRIMARY KEY,
					description TEXT NOT NULL DEFAULT '',
					repository_url TEXT NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_packages_active ON packages(active);
			`,
		},
		{
			Version:     2,
			Description: "Create download_points table",
			SQL: `
				CREATE TABLE IF NOT EXISTS download_points (
					package_name VARCHAR(214) NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
					date DATE NOT NULL,
					downloads BIGINT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (package_name, date)
				);

				CREATE INDEX idx_download_points_date ON download_points(date);
			`,
		},
		{
			Version:     3,
			Description: "Create download_points_weekly rollup table",
			SQL: `
				CREATE TABLE IF NOT EXISTS download_points_weekly (
					package_name VARCHAR(214) NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
					week_start DATE NOT NULL,
					downloads BIGINT NOT NULL,
					PRIMARY KEY (package_name, week_start)
				);

				CREATE INDEX idx_download_points_weekly_week ON download_points_weekly(week_start);
			`,
		},
	}
}

// RunMigrations applies any pending migrations against the primary.
// Each migration runs in its own transaction and is recorded in
// pulse_migrations so reruns are no-ops.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pulse_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM pulse_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO pulse_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

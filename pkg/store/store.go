package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkgpulse/pkgpulse/pkg/observability"
)

// Package is a tracked npm package
type Package struct {
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	RepositoryURL string    `json:"repository_url,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DownloadPoint is one weekly download count for a package. Date is the
// last day of the weekly bucket, truncated to midnight UTC.
type DownloadPoint struct {
	PackageName string    `json:"package_name"`
	Date        time.Time `json:"date"`
	Downloads   int64     `json:"downloads"`
}

// Store provides persistence for packages and download points
type Store struct {
	conn    *ConnectionManager
	logger  *observability.Logger
	metrics *observability.Metrics
}

// New creates a store on top of an established connection manager.
// Metrics may be nil.
func New(conn *ConnectionManager, logger *observability.Logger, metrics *observability.Metrics) *Store {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Store{
		conn:    conn,
		logger:  logger.WithComponent("store"),
		metrics: metrics,
	}
}

func (s *Store) observe(op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.StorageErrorsTotal.WithLabelValues(op).Inc()
	}
	s.metrics.StorageOperationsTotal.WithLabelValues(op, status).Inc()
}

// UpsertPackage inserts a package or refreshes its metadata, reactivating
// it if it had been deactivated.
func (s *Store) UpsertPackage(ctx context.Context, pkg *Package) error {
	query := `
		INSERT INTO packages (name, description, repository_url, active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			repository_url = EXCLUDED.repository_url,
			active = TRUE,
			updated_at = NOW()
	`

	_, err := s.conn.Primary().ExecContext(ctx, query, pkg.Name, pkg.Description, pkg.RepositoryURL)
	s.observe("upsert_package", err)
	if err != nil {
		return wrapErr("upsert_package", err)
	}
	return nil
}

// DeactivatePackage stops a package from being collected without deleting
// its history.
func (s *Store) DeactivatePackage(ctx context.Context, name string) error {
	result, err := s.conn.Primary().ExecContext(ctx,
		`UPDATE packages SET active = FALSE, updated_at = NOW() WHERE name = $1`, name)
	s.observe("deactivate_package", err)
	if err != nil {
		return wrapErr("deactivate_package", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("deactivate_package", err)
	}
	if affected == 0 {
		return wrapErr("deactivate_package", sql.ErrNoRows)
	}
	return nil
}

// GetPackage returns a single package by name, or sql.ErrNoRows wrapped in
// a StorageError when it is not tracked.
func (s *Store) GetPackage(ctx context.Context, name string) (*Package, error) {
	query := `
		SELECT name, description, repository_url, active, created_at, updated_at
		FROM packages
		WHERE name = $1
	`

	var pkg Package
	err := s.conn.Replica().QueryRowContext(ctx, query, name).Scan(
		&pkg.Name, &pkg.Description, &pkg.RepositoryURL, &pkg.Active, &pkg.CreatedAt, &pkg.UpdatedAt)
	s.observe("get_package", err)
	if err != nil {
		return nil, wrapErr("get_package", err)
	}
	return &pkg, nil
}

// ListPackages returns all active packages ordered by name
func (s *Store) ListPackages(ctx context.Context) ([]*Package, error) {
	query := `
		SELECT name, description, repository_url, active, created_at, updated_at
		FROM packages
		WHERE active
		ORDER BY name
	`

	rows, err := s.conn.Replica().QueryContext(ctx, query)
	s.observe("list_packages", err)
	if err != nil {
		return nil, wrapErr("list_packages", err)
	}
	defer rows.Close()

	var packages []*Package
	for rows.Next() {
		var pkg Package
		if err := rows.Scan(&pkg.Name, &pkg.Description, &pkg.RepositoryURL, &pkg.Active, &pkg.CreatedAt, &pkg.UpdatedAt); err != nil {
			return nil, wrapErr("list_packages", err)
		}
		packages = append(packages, &pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list_packages", err)
	}

	if s.metrics != nil {
		s.metrics.TrackedPackagesTotal.Set(float64(len(packages)))
	}
	return packages, nil
}

// UpsertDownloadPoint records one weekly count. Re-recording the same
// (package, date) pair overwrites the count, so collection runs are
// idempotent.
func (s *Store) UpsertDownloadPoint(ctx context.Context, point *DownloadPoint) error {
	query := `
		INSERT INTO download_points (package_name, date, downloads)
		VALUES ($1, $2, $3)
		ON CONFLICT (package_name, date) DO UPDATE SET
			downloads = EXCLUDED.downloads
	`

	_, err := s.conn.Primary().ExecContext(ctx, query, point.PackageName, point.Date, point.Downloads)
	s.observe("upsert_download_point", err)
	if err != nil {
		return wrapErr("upsert_download_point", err)
	}
	if s.metrics != nil {
		s.metrics.PointsSavedTotal.Inc()
	}
	return nil
}

// HasDownloadPoint reports whether a count already exists for the package
// on the given date.
func (s *Store) HasDownloadPoint(ctx context.Context, packageName string, date time.Time) (bool, error) {
	var exists bool
	err := s.conn.Replica().QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM download_points WHERE package_name = $1 AND date = $2)`,
		packageName, date).Scan(&exists)
	s.observe("has_download_point", err)
	if err != nil {
		return false, wrapErr("has_download_point", err)
	}
	return exists, nil
}

// QueryRange returns a package's download points in the inclusive
// [start, end] window, oldest first.
func (s *Store) QueryRange(ctx context.Context, packageName string, start, end time.Time) ([]*DownloadPoint, error) {
	query := `
		SELECT package_name, date, downloads
		FROM download_points
		WHERE package_name = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`

	rows, err := s.conn.Replica().QueryContext(ctx, query, packageName, start, end)
	s.observe("query_range", err)
	if err != nil {
		return nil, wrapErr("query_range", err)
	}
	defer rows.Close()

	return scanPoints(rows, "query_range")
}

// QueryAllSince returns download points for every active package on or
// after since, grouped by package and oldest first within each package.
func (s *Store) QueryAllSince(ctx context.Context, since time.Time) ([]*DownloadPoint, error) {
	query := `
		SELECT dp.package_name, dp.date, dp.downloads
		FROM download_points dp
		JOIN packages p ON p.name = dp.package_name
		WHERE p.active AND dp.date >= $1
		ORDER BY dp.package_name, dp.date ASC
	`

	rows, err := s.conn.Replica().QueryContext(ctx, query, since)
	s.observe("query_all_since", err)
	if err != nil {
		return nil, wrapErr("query_all_since", err)
	}
	defer rows.Close()

	return scanPoints(rows, "query_all_since")
}

func scanPoints(rows *sql.Rows, op string) ([]*DownloadPoint, error) {
	var points []*DownloadPoint
	for rows.Next() {
		var point DownloadPoint
		if err := rows.Scan(&point.PackageName, &point.Date, &point.Downloads); err != nil {
			return nil, wrapErr(op, err)
		}
		points = append(points, &point)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return points, nil
}

// DeleteOlderThan removes download points older than the cutoff and
// returns how many were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.conn.Primary().ExecContext(ctx,
		`DELETE FROM download_points WHERE date < $1`, cutoff)
	s.observe("delete_older_than", err)
	if err != nil {
		return 0, wrapErr("delete_older_than", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, wrapErr("delete_older_than", err)
	}
	return deleted, nil
}

// RecomputeWeeklyRollup rebuilds the download_points_weekly aggregate for
// weeks starting on or after since. Delete and insert run in one
// transaction so readers never see a half-built rollup.
func (s *Store) RecomputeWeeklyRollup(ctx context.Context, since time.Time) error {
	tx, err := s.conn.Primary().BeginTx(ctx, nil)
	if err != nil {
		s.observe("recompute_weekly_rollup", err)
		return wrapErr("recompute_weekly_rollup", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM download_points_weekly WHERE week_start >= $1`, since); err != nil {
		tx.Rollback()
		s.observe("recompute_weekly_rollup", err)
		return wrapErr("recompute_weekly_rollup", fmt.Errorf("delete stale rollup: %w", err))
	}

	insert := `
		INSERT INTO download_points_weekly (package_name, week_start, downloads)
		SELECT package_name, date_trunc('week', date)::date AS week_start, SUM(downloads)
		FROM download_points
		WHERE date >= $1
		GROUP BY package_name, date_trunc('week', date)::date
	`
	if _, err := tx.ExecContext(ctx, insert, since); err != nil {
		tx.Rollback()
		s.observe("recompute_weekly_rollup", err)
		return wrapErr("recompute_weekly_rollup", fmt.Errorf("rebuild rollup: %w", err))
	}

	if err := tx.Commit(); err != nil {
		s.observe("recompute_weekly_rollup", err)
		return wrapErr("recompute_weekly_rollup", err)
	}

	s.observe("recompute_weekly_rollup", nil)
	return nil
}

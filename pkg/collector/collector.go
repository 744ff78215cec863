package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pkgpulse/pkgpulse/pkg/npm"
	"github.com/pkgpulse/pkgpulse/pkg/observability"
	"github.com/pkgpulse/pkgpulse/pkg/store"
)

// Default collection parameters.
const (
	DefaultWeeksBack        = 52
	DefaultPublicationDelay = 72 * time.Hour
	DefaultBucketDelay      = 200 * time.Millisecond
	DefaultPackageDelay     = 400 * time.Millisecond
)

// Provider fetches package metadata and download counts from the registry.
type Provider interface {
	FetchPackageInfo(ctx context.Context, name string) (*npm.PackageInfo, error)
	FetchDownloads(ctx context.Context, name string, start, end time.Time) (int64, error)
}

// Store persists packages and download points.
type Store interface {
	UpsertPackage(ctx context.Context, pkg *store.Package) error
	UpsertDownloadPoint(ctx context.Context, point *store.DownloadPoint) error
	HasDownloadPoint(ctx context.Context, packageName string, date time.Time) (bool, error)
	ListPackages(ctx context.Context) ([]*store.Package, error)
}

// Options configures a Collector. Zero values fall back to the defaults
// above; Now is for tests and defaults to time.Now.
type Options struct {
	WeeksBack        int
	PublicationDelay time.Duration
	BucketDelay      time.Duration
	PackageDelay     time.Duration
	Now              func() time.Time
}

// BackfillResult summarizes one package backfill.
type BackfillResult struct {
	Saved  int `json:"saved"`
	Missed int `json:"missed"`
}

// UpdateResult summarizes one daily update run across all tracked packages.
type UpdateResult struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Collector drives collection runs against a provider and a store.
type Collector struct {
	provider Provider
	store    Store
	opts     Options
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// New creates a collector. Logger and metrics may be nil.
func New(provider Provider, st Store, opts Options, logger *observability.Logger, metrics *observability.Metrics) *Collector {
	if opts.WeeksBack <= 0 {
		opts.WeeksBack = DefaultWeeksBack
	}
	if opts.PublicationDelay <= 0 {
		opts.PublicationDelay = DefaultPublicationDelay
	}
	// Negative delays disable throttling (useful in tests).
	if opts.BucketDelay == 0 {
		opts.BucketDelay = DefaultBucketDelay
	}
	if opts.PackageDelay == 0 {
		opts.PackageDelay = DefaultPackageDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &Collector{
		provider: provider,
		store:    st,
		opts:     opts,
		logger:   logger.WithComponent("collector"),
		metrics:  metrics,
	}
}

// cutoff returns the most recent day for which download data is assumed
// published, truncated to midnight UTC.
func (c *Collector) cutoff() time.Time {
	t := c.opts.Now().UTC().Add(-c.opts.PublicationDelay)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Track validates a package name, fetches its metadata, registers it and
// backfills its download history. An unknown name is terminal; backfill
// gaps are not.
func (c *Collector) Track(ctx context.Context, name string) (BackfillResult, error) {
	if err := npm.ValidateName(name); err != nil {
		return BackfillResult{}, err
	}

	info, err := c.provider.FetchPackageInfo(ctx, name)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("fetch metadata for %s: %w", name, err)
	}

	pkg := &store.Package{
		Name:          info.Name,
		Description:   info.Description,
		RepositoryURL: info.Repository,
	}
	if err := c.store.UpsertPackage(ctx, pkg); err != nil {
		return BackfillResult{}, err
	}

	return c.Backfill(ctx, name)
}

// Backfill walks weekly buckets from the cutoff backwards and persists
// every positive count not already stored. Provider failures and zero
// counts leave gaps for the next run instead of aborting; only storage
// errors and context cancellation stop the walk.
func (c *Collector) Backfill(ctx context.Context, name string) (BackfillResult, error) {
	var result BackfillResult
	cutoff := c.cutoff()
	log := c.logger.WithField("package", name)

	for i := 0; i <= c.opts.WeeksBack; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := cutoff.AddDate(0, 0, -7*i)
		start := end.AddDate(0, 0, -6)
		if end.After(cutoff) {
			continue
		}

		if i > 0 {
			if err := sleepCtx(ctx, c.opts.BucketDelay); err != nil {
				return result, err
			}
		}

		exists, err := c.store.HasDownloadPoint(ctx, name, end)
		if err != nil {
			return result, err
		}
		if exists {
			continue
		}

		count, err := c.provider.FetchDownloads(ctx, name, start, end)
		if err != nil {
			if errors.Is(err, npm.ErrNotFound) || errors.Is(err, npm.ErrUnavailable) {
				result.Missed++
				c.missBucket()
				log.WithError(err).WithField("bucket_end", end.Format("2006-01-02")).Debug("bucket fetch failed")
				continue
			}
			return result, err
		}

		// Zero usually means the package did not exist yet or the
		// provider has not published the bucket; treat it as a gap.
		if count <= 0 {
			result.Missed++
			c.missBucket()
			continue
		}

		if err := c.store.UpsertDownloadPoint(ctx, &store.DownloadPoint{
			PackageName: name,
			Date:        end,
			Downloads:   count,
		}); err != nil {
			return result, err
		}
		result.Saved++
	}

	log.WithFields(map[string]interface{}{
		"saved":  result.Saved,
		"missed": result.Missed,
	}).Info("backfill complete")

	return result, nil
}

// DailyUpdate appends the newest completed weekly bucket for every tracked
// package. Packages that already have the bucket are skipped; per-package
// failures are counted and do not stop the run.
func (c *Collector) DailyUpdate(ctx context.Context) (UpdateResult, error) {
	var result UpdateResult

	packages, err := c.store.ListPackages(ctx)
	if err != nil {
		return result, err
	}

	end := c.cutoff()
	start := end.AddDate(0, 0, -6)

	for i, pkg := range packages {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if i > 0 {
			if err := sleepCtx(ctx, c.opts.PackageDelay); err != nil {
				return result, err
			}
		}

		exists, err := c.store.HasDownloadPoint(ctx, pkg.Name, end)
		if err != nil {
			result.Failed++
			c.logger.WithError(err).WithField("package", pkg.Name).Warn("existence probe failed")
			continue
		}
		if exists {
			result.Skipped++
			continue
		}

		count, err := c.provider.FetchDownloads(ctx, pkg.Name, start, end)
		if err != nil || count <= 0 {
			result.Failed++
			c.missBucket()
			if err != nil {
				c.logger.WithError(err).WithField("package", pkg.Name).Warn("daily fetch failed")
			}
			continue
		}

		if err := c.store.UpsertDownloadPoint(ctx, &store.DownloadPoint{
			PackageName: pkg.Name,
			Date:        end,
			Downloads:   count,
		}); err != nil {
			result.Failed++
			c.logger.WithError(err).WithField("package", pkg.Name).Warn("daily save failed")
			continue
		}
		result.Succeeded++
	}

	c.logger.WithFields(map[string]interface{}{
		"succeeded": result.Succeeded,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("daily update complete")

	return result, nil
}

// BackfillAll backfills every tracked package, pausing between packages.
// It returns the aggregate result and the number of packages whose
// backfill aborted on a storage error.
func (c *Collector) BackfillAll(ctx context.Context) (BackfillResult, int, error) {
	var total BackfillResult
	aborted := 0

	packages, err := c.store.ListPackages(ctx)
	if err != nil {
		return total, 0, err
	}

	for i, pkg := range packages {
		if i > 0 {
			if err := sleepCtx(ctx, c.opts.PackageDelay); err != nil {
				return total, aborted, err
			}
		}

		result, err := c.Backfill(ctx, pkg.Name)
		total.Saved += result.Saved
		total.Missed += result.Missed
		if err != nil {
			if ctx.Err() != nil {
				return total, aborted, err
			}
			aborted++
			c.logger.WithError(err).WithField("package", pkg.Name).Error("backfill aborted")
		}
	}

	return total, aborted, nil
}

func (c *Collector) missBucket() {
	if c.metrics != nil {
		c.metrics.BucketsMissedTotal.Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

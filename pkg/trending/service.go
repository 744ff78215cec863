package trending

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkgpulse/pkgpulse/pkg/growth"
	"github.com/pkgpulse/pkgpulse/pkg/observability"
	"github.com/pkgpulse/pkgpulse/pkg/store"
)

// Query bounds for the read API.
const (
	DefaultWindowWeeks = 12
	MaxWindowWeeks     = 52
	DefaultLimit       = 20
	MaxLimit           = 100
)

// Reader is the slice of the store the ranking service needs.
type Reader interface {
	GetPackage(ctx context.Context, name string) (*store.Package, error)
	QueryRange(ctx context.Context, packageName string, start, end time.Time) ([]*store.DownloadPoint, error)
	QueryAllSince(ctx context.Context, since time.Time) ([]*store.DownloadPoint, error)
}

// Service computes growth rankings over stored download history.
type Service struct {
	reader Reader
	cache  *Cache
	logger *observability.Logger
	now    func() time.Time
}

// NewService creates a ranking service. Cache may be nil to disable
// caching; now overrides the clock for tests and may be nil.
func NewService(reader Reader, cache *Cache, logger *observability.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		reader: reader,
		cache:  cache,
		logger: logger.WithComponent("trending"),
		now:    now,
	}
}

func clampWindow(windowWeeks int) int {
	if windowWeeks <= 0 {
		return DefaultWindowWeeks
	}
	if windowWeeks > MaxWindowWeeks {
		return MaxWindowWeeks
	}
	return windowWeeks
}

func (s *Service) since(windowWeeks int) time.Time {
	t := s.now().UTC().AddDate(0, 0, -7*windowWeeks)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Trending returns the top growing packages over the window, ranked by the
// given key. The default growth-rate ranking floats exponential packages
// to the top.
func (s *Service) Trending(ctx context.Context, windowWeeks, limit int, key growth.SortKey, descending bool) ([]growth.Metrics, error) {
	windowWeeks = clampWindow(windowWeeks)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	cacheKey := fmt.Sprintf("trending:%d:%d:%s:%t", windowWeeks, limit, key, descending)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			var metrics []growth.Metrics
			if err := json.Unmarshal(cached, &metrics); err == nil {
				return metrics, nil
			}
			s.logger.WithField("key", cacheKey).Warn("dropping undecodable cache entry")
		}
	}

	points, err := s.reader.QueryAllSince(ctx, s.since(windowWeeks))
	if err != nil {
		return nil, err
	}

	metrics := computeAll(points)

	if key == growth.SortByGrowthRate && descending {
		metrics = growth.TopGrowing(metrics, limit)
	} else {
		growth.Sort(metrics, key, descending)
		if len(metrics) > limit {
			metrics = metrics[:limit]
		}
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(metrics); err == nil {
			s.cache.Set(ctx, cacheKey, encoded)
		}
	}

	return metrics, nil
}

// PackageMetrics computes the growth metrics for a single tracked package.
func (s *Service) PackageMetrics(ctx context.Context, name string, windowWeeks int) (growth.Metrics, error) {
	windowWeeks = clampWindow(windowWeeks)

	if _, err := s.reader.GetPackage(ctx, name); err != nil {
		return growth.Metrics{}, err
	}

	points, err := s.reader.QueryRange(ctx, name, s.since(windowWeeks), s.now().UTC())
	if err != nil {
		return growth.Metrics{}, err
	}

	return growth.ComputeMetrics(name, toGrowthPoints(points)), nil
}

// History returns a package's raw weekly download points inside the window,
// oldest first.
func (s *Service) History(ctx context.Context, name string, windowWeeks int) ([]*store.DownloadPoint, error) {
	windowWeeks = clampWindow(windowWeeks)

	if _, err := s.reader.GetPackage(ctx, name); err != nil {
		return nil, err
	}

	return s.reader.QueryRange(ctx, name, s.since(windowWeeks), s.now().UTC())
}

// InvalidateRankings drops cached rankings, typically after a new package
// is tracked.
func (s *Service) InvalidateRankings(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidatePrefix(ctx, "trending:")
	}
}

// computeAll groups the points by package and computes metrics per group.
// The store returns points ordered by package then date, so one linear
// scan suffices.
func computeAll(points []*store.DownloadPoint) []growth.Metrics {
	var metrics []growth.Metrics
	var current string
	var group []growth.Point

	flush := func() {
		if len(group) > 0 {
			metrics = append(metrics, growth.ComputeMetrics(current, group))
		}
	}

	for _, point := range points {
		if point.PackageName != current {
			flush()
			current = point.PackageName
			group = nil
		}
		group = append(group, growth.Point{Date: point.Date, Downloads: point.Downloads})
	}
	flush()

	return metrics
}

func toGrowthPoints(points []*store.DownloadPoint) []growth.Point {
	result := make([]growth.Point, len(points))
	for i, point := range points {
		result[i] = growth.Point{Date: point.Date, Downloads: point.Downloads}
	}
	return result
}

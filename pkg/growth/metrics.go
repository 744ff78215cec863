package growth

import (
	"math"
	"sort"
	"time"
)

// Classification thresholds. These are policy values applied consistently by
// every consumer; changing one changes what "trending" means product-wide.
const (
	// AccelerationThreshold is the minimum acceleration (in growth-rate
	// percentage points) for the accelerating classification.
	AccelerationThreshold = 10.0
	// GrowingThreshold is the minimum growth rate (percent) for the growing
	// classification.
	GrowingThreshold = 20.0
	// DecliningThreshold is the growth rate (percent) below which a package
	// is classified as declining.
	DecliningThreshold = -10.0
	// ExponentialRatio is the fraction of consecutive growth-rate pairs that
	// must be strictly increasing for the exponential classification.
	ExponentialRatio = 0.6
)

// InfiniteGrowth is the sentinel growth rate returned when downloads grow
// from a zero baseline. A finite sentinel is used instead of math.Inf so
// metric values survive JSON encoding; ranking treats it as greater than any
// real growth rate.
const InfiniteGrowth = math.MaxFloat64

// Trend classifies a package's growth trajectory.
type Trend string

// The closed set of trend classifications, from hottest to coldest.
const (
	TrendExponential  Trend = "exponential"
	TrendAccelerating Trend = "accelerating"
	TrendGrowing      Trend = "growing"
	TrendStable       Trend = "stable"
	TrendDeclining    Trend = "declining"
)

// Valid reports whether t is one of the known trend classifications.
func (t Trend) Valid() bool {
	switch t {
	case TrendExponential, TrendAccelerating, TrendGrowing, TrendStable, TrendDeclining:
		return true
	}
	return false
}

// Point is one bucket of a package's download time series.
type Point struct {
	Date      time.Time `json:"date"`
	Downloads int64     `json:"downloads"`
}

// Metrics is the derived growth record for one package. It is recomputed on
// every read and never persisted.
type Metrics struct {
	PackageName       string   `json:"package_name"`
	CurrentDownloads  int64    `json:"current_downloads"`
	PreviousDownloads int64    `json:"previous_downloads"`
	GrowthRate        float64  `json:"growth_rate"`
	Acceleration      *float64 `json:"acceleration"`
	IsExponential     bool     `json:"is_exponential"`
	Trend             Trend    `json:"trend"`
	DataPoints        int      `json:"data_points"`
}

// GrowthRate returns the percentage change from previous to current.
// A zero baseline yields InfiniteGrowth when current is positive, else 0.
func GrowthRate(current, previous int64) float64 {
	if previous == 0 {
		if current > 0 {
			return InfiniteGrowth
		}
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}

// ComputeMetrics derives growth metrics from a package's download series.
// The input may be unordered; a copy is sorted ascending by date before any
// computation. Sorting is a correctness requirement: growth rate and
// acceleration are defined over consecutive buckets.
func ComputeMetrics(packageName string, points []Point) Metrics {
	ordered := make([]Point, len(points))
	copy(ordered, points)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	m := Metrics{
		PackageName: packageName,
		Trend:       TrendStable,
		DataPoints:  len(ordered),
	}

	// Fewer than two buckets is a degenerate series: no growth is defined.
	if len(ordered) < 2 {
		if len(ordered) == 1 {
			m.CurrentDownloads = ordered[0].Downloads
		}
		return m
	}

	n := len(ordered)
	m.CurrentDownloads = ordered[n-1].Downloads
	m.PreviousDownloads = ordered[n-2].Downloads
	m.GrowthRate = GrowthRate(m.CurrentDownloads, m.PreviousDownloads)

	if n >= 3 {
		accel := GrowthRate(ordered[n-1].Downloads, ordered[n-2].Downloads) -
			GrowthRate(ordered[n-2].Downloads, ordered[n-3].Downloads)
		m.Acceleration = &accel
	}

	m.IsExponential = isExponential(ordered)
	m.Trend = classifyTrend(m.GrowthRate, m.Acceleration, m.IsExponential)
	return m
}

// growthRates returns the per-step growth-rate sequence (length = points-1).
func growthRates(points []Point) []float64 {
	if len(points) < 2 {
		return nil
	}
	rates := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		rates = append(rates, GrowthRate(points[i].Downloads, points[i-1].Downloads))
	}
	return rates
}

// isExponential reports whether the per-step growth rate itself keeps
// increasing: the fraction of strictly increasing consecutive rate pairs must
// exceed ExponentialRatio. Needs at least three points; a rate sequence with
// fewer than two entries has no pairs and is never exponential.
func isExponential(points []Point) bool {
	if len(points) < 3 {
		return false
	}
	rates := growthRates(points)
	pairs := len(rates) - 1
	if pairs == 0 {
		return false
	}
	increasing := 0
	for i := 1; i < len(rates); i++ {
		if rates[i] > rates[i-1] {
			increasing++
		}
	}
	return float64(increasing)/float64(pairs) > ExponentialRatio
}

// classifyTrend applies the fixed classification priority:
// exponential, then accelerating, then growing, then stable, then declining.
func classifyTrend(rate float64, acceleration *float64, exponential bool) Trend {
	switch {
	case exponential:
		return TrendExponential
	case acceleration != nil && *acceleration > AccelerationThreshold:
		return TrendAccelerating
	case rate > GrowingThreshold:
		return TrendGrowing
	case rate > DecliningThreshold:
		return TrendStable
	default:
		return TrendDeclining
	}
}

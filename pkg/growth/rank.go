package growth

import (
	"math"
	"sort"
	"strings"
)

// SortKey selects which metric field a ranking is ordered by.
type SortKey string

// Supported ranking keys.
const (
	SortByGrowthRate   SortKey = "growth_rate"
	SortByAcceleration SortKey = "acceleration"
	SortByDownloads    SortKey = "downloads"
	SortByName         SortKey = "name"
)

// ParseSortKey maps a user-supplied key to a SortKey, defaulting to growth rate.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortByAcceleration, SortByDownloads, SortByName:
		return SortKey(s)
	default:
		return SortByGrowthRate
	}
}

// accelerationValue maps a nil acceleration below every representable number,
// so nil always sorts as "worse than any number" regardless of direction.
func accelerationValue(m Metrics) float64 {
	if m.Acceleration == nil {
		return math.Inf(-1)
	}
	return *m.Acceleration
}

// compare returns -1, 0, or 1 ordering a before, equal to, or after b for key.
func compare(a, b Metrics, key SortKey) int {
	switch key {
	case SortByAcceleration:
		return compareFloat(accelerationValue(a), accelerationValue(b))
	case SortByDownloads:
		return compareInt(a.CurrentDownloads, b.CurrentDownloads)
	case SortByName:
		return strings.Compare(a.PackageName, b.PackageName)
	default:
		return compareFloat(a.GrowthRate, b.GrowthRate)
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Sort stably orders metrics in place by the given key and direction.
// Equal entries keep their relative order.
func Sort(metrics []Metrics, key SortKey, descending bool) {
	sort.SliceStable(metrics, func(i, j int) bool {
		c := compare(metrics[i], metrics[j], key)
		if descending {
			return c > 0
		}
		return c < 0
	})
}

// TopGrowing returns up to n metrics ranked for the "top growing" view:
// exponential-flagged entries first, then by descending growth rate.
// The input slice is not modified.
func TopGrowing(metrics []Metrics, n int) []Metrics {
	ranked := make([]Metrics, len(metrics))
	copy(ranked, metrics)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].IsExponential != ranked[j].IsExponential {
			return ranked[i].IsExponential
		}
		return ranked[i].GrowthRate > ranked[j].GrowthRate
	})
	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

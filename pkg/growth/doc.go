// Package growth computes download-growth metrics for tracked packages.
//
// # Overview
//
// The engine is a pure transform: it takes an ordered (or orderable) sequence
// of per-bucket download counts for one package and derives growth rate,
// acceleration, exponential-growth detection, and a trend classification.
// It never touches storage and never mutates its input.
//
// # Metrics
//
//   - Growth rate: percentage change between the two most recent buckets.
//   - Acceleration: change in growth rate between the two most recent
//     growth-rate measurements (second derivative). Nil with fewer than
//     three data points, and nil is distinct from zero everywhere downstream.
//   - Exponential flag: set when the per-step growth rate itself keeps
//     increasing across most consecutive steps.
//   - Trend: closed classification (exponential, accelerating, growing,
//     stable, declining) applied in that fixed priority order.
//
// # Usage Example
//
//	m := growth.ComputeMetrics("left-pad", points)
//	if m.Trend == growth.TrendExponential {
//		fmt.Printf("%s is blowing up: %.1f%%\n", m.PackageName, m.GrowthRate)
//	}
//
// Ranking helpers (Sort, TopGrowing) order metric sets for presentation.
//
// # Related Packages
//
//   - pkg/trending: aggregates store rows and invokes this engine per package
package growth

package growth

import (
	"testing"
)

func accel(v float64) *float64 { return &v }

func TestSort_AccelerationDescendingPlacesNilLast(t *testing.T) {
	metrics := []Metrics{
		{PackageName: "a", Acceleration: nil},
		{PackageName: "b", Acceleration: accel(5)},
		{PackageName: "c", Acceleration: nil},
		{PackageName: "d", Acceleration: accel(-20)},
		{PackageName: "e", Acceleration: accel(40)},
	}

	Sort(metrics, SortByAcceleration, true)

	want := []string{"e", "b", "d", "a", "c"}
	for i, name := range want {
		if metrics[i].PackageName != name {
			t.Fatalf("position %d = %q, want %q (got order %v)", i, metrics[i].PackageName, name, names(metrics))
		}
	}
}

func TestSort_AccelerationAscendingPlacesNilFirst(t *testing.T) {
	metrics := []Metrics{
		{PackageName: "a", Acceleration: accel(5)},
		{PackageName: "b", Acceleration: nil},
		{PackageName: "c", Acceleration: accel(-20)},
	}

	Sort(metrics, SortByAcceleration, false)

	want := []string{"b", "c", "a"}
	for i, name := range want {
		if metrics[i].PackageName != name {
			t.Fatalf("position %d = %q, want %q", i, metrics[i].PackageName, name)
		}
	}
}

func TestSort_GrowthRateStable(t *testing.T) {
	metrics := []Metrics{
		{PackageName: "a", GrowthRate: 10},
		{PackageName: "b", GrowthRate: 50},
		{PackageName: "c", GrowthRate: 10},
		{PackageName: "d", GrowthRate: InfiniteGrowth},
	}

	Sort(metrics, SortByGrowthRate, true)

	want := []string{"d", "b", "a", "c"}
	for i, name := range want {
		if metrics[i].PackageName != name {
			t.Fatalf("position %d = %q, want %q", i, metrics[i].PackageName, name)
		}
	}
}

func TestSort_ByNameCaseSensitive(t *testing.T) {
	metrics := []Metrics{
		{PackageName: "zebra"},
		{PackageName: "Apple"},
		{PackageName: "apple"},
	}

	Sort(metrics, SortByName, false)

	// Uppercase sorts before lowercase in byte order.
	want := []string{"Apple", "apple", "zebra"}
	for i, name := range want {
		if metrics[i].PackageName != name {
			t.Fatalf("position %d = %q, want %q", i, metrics[i].PackageName, name)
		}
	}
}

func TestSort_ByDownloads(t *testing.T) {
	metrics := []Metrics{
		{PackageName: "a", CurrentDownloads: 10},
		{PackageName: "b", CurrentDownloads: 1000},
		{PackageName: "c", CurrentDownloads: 100},
	}

	Sort(metrics, SortByDownloads, true)

	if metrics[0].PackageName != "b" || metrics[2].PackageName != "a" {
		t.Fatalf("unexpected order %v", names(metrics))
	}
}

func TestTopGrowing(t *testing.T) {
	metrics := []Metrics{
		{PackageName: "steady", GrowthRate: 80},
		{PackageName: "hot", GrowthRate: 30, IsExponential: true},
		{PackageName: "cold", GrowthRate: -5},
		{PackageName: "hotter", GrowthRate: 45, IsExponential: true},
	}

	top := TopGrowing(metrics, 3)

	want := []string{"hotter", "hot", "steady"}
	if len(top) != 3 {
		t.Fatalf("len = %d, want 3", len(top))
	}
	for i, name := range want {
		if top[i].PackageName != name {
			t.Fatalf("position %d = %q, want %q", i, top[i].PackageName, name)
		}
	}

	// Input order must be preserved.
	if metrics[0].PackageName != "steady" {
		t.Error("TopGrowing mutated its input slice")
	}
}

func TestTopGrowing_TruncationBounds(t *testing.T) {
	metrics := []Metrics{{PackageName: "only"}}
	if got := TopGrowing(metrics, 10); len(got) != 1 {
		t.Errorf("n larger than input: len = %d, want 1", len(got))
	}
	if got := TopGrowing(metrics, 0); len(got) != 0 {
		t.Errorf("n = 0: len = %d, want 0", len(got))
	}
}

func TestParseSortKey(t *testing.T) {
	if ParseSortKey("acceleration") != SortByAcceleration {
		t.Error("acceleration key not recognized")
	}
	if ParseSortKey("bogus") != SortByGrowthRate {
		t.Error("unknown key should default to growth rate")
	}
}

func names(metrics []Metrics) []string {
	out := make([]string, len(metrics))
	for i, m := range metrics {
		out[i] = m.PackageName
	}
	return out
}

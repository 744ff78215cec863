package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pkgpulse/pkgpulse/pkg/npm"
	"github.com/pkgpulse/pkgpulse/pkg/store"
)

type fetchCall struct {
	name  string
	start time.Time
	end   time.Time
}

type fakeProvider struct {
	info      *npm.PackageInfo
	infoErr   error
	downloads func(name string, start, end time.Time) (int64, error)
	calls     []fetchCall
}

func (f *fakeProvider) FetchPackageInfo(ctx context.Context, name string) (*npm.PackageInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.info != nil {
		return f.info, nil
	}
	return &npm.PackageInfo{Name: name}, nil
}

func (f *fakeProvider) FetchDownloads(ctx context.Context, name string, start, end time.Time) (int64, error) {
	f.calls = append(f.calls, fetchCall{name: name, start: start, end: end})
	if f.downloads != nil {
		return f.downloads(name, start, end)
	}
	return 1000, nil
}

type fakeStore struct {
	packages  []*store.Package
	points    map[string]int64 // "name|2006-01-02" -> downloads
	upsertErr error
	probeErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: make(map[string]int64)}
}

func pointKey(name string, date time.Time) string {
	return fmt.Sprintf("%s|%s", name, date.Format("2006-01-02"))
}

func (f *fakeStore) UpsertPackage(ctx context.Context, pkg *store.Package) error {
	f.packages = append(f.packages, pkg)
	return nil
}

func (f *fakeStore) UpsertDownloadPoint(ctx context.Context, point *store.DownloadPoint) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.points[pointKey(point.PackageName, point.Date)] = point.Downloads
	return nil
}

func (f *fakeStore) HasDownloadPoint(ctx context.Context, packageName string, date time.Time) (bool, error) {
	if f.probeErr != nil {
		return false, f.probeErr
	}
	_, ok := f.points[pointKey(packageName, date)]
	return ok, nil
}

func (f *fakeStore) ListPackages(ctx context.Context) ([]*store.Package, error) {
	return f.packages, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 31, 15, 42, 0, 0, time.UTC)
}

func newTestCollector(provider *fakeProvider, st *fakeStore) *Collector {
	return New(provider, st, Options{Now: fixedNow, BucketDelay: -1, PackageDelay: -1}, nil, nil)
}

func TestCutoffTruncatesToDay(t *testing.T) {
	c := newTestCollector(&fakeProvider{}, newFakeStore())

	want := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	if got := c.cutoff(); !got.Equal(want) {
		t.Errorf("cutoff = %v, want %v", got, want)
	}
}

func TestBackfillBucketWalk(t *testing.T) {
	provider := &fakeProvider{}
	st := newFakeStore()
	c := newTestCollector(provider, st)

	result, err := c.Backfill(context.Background(), "react")
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}

	if len(provider.calls) != 53 {
		t.Fatalf("got %d provider calls, want 53", len(provider.calls))
	}
	if result.Saved != 53 || result.Missed != 0 {
		t.Errorf("result = %+v, want 53 saved, 0 missed", result)
	}

	cutoff := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	for i, call := range provider.calls {
		wantEnd := cutoff.AddDate(0, 0, -7*i)
		if !call.end.Equal(wantEnd) {
			t.Errorf("call %d end = %v, want %v", i, call.end, wantEnd)
		}
		if !call.start.Equal(wantEnd.AddDate(0, 0, -6)) {
			t.Errorf("call %d start = %v, want 6 days before end", i, call.start)
		}
		if call.end.After(cutoff) {
			t.Errorf("call %d end %v is after cutoff", i, call.end)
		}
	}
}

func TestBackfillSkipsExistingBuckets(t *testing.T) {
	provider := &fakeProvider{}
	st := newFakeStore()
	cutoff := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	st.points[pointKey("react", cutoff)] = 500
	st.points[pointKey("react", cutoff.AddDate(0, 0, -7))] = 400

	c := newTestCollector(provider, st)
	result, err := c.Backfill(context.Background(), "react")
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}

	if len(provider.calls) != 51 {
		t.Errorf("got %d provider calls, want 51", len(provider.calls))
	}
	if result.Saved != 51 {
		t.Errorf("saved = %d, want 51", result.Saved)
	}
	// Existing counts must not be overwritten.
	if st.points[pointKey("react", cutoff)] != 500 {
		t.Error("existing point was overwritten")
	}
}

func TestBackfillTreatsZeroAsGap(t *testing.T) {
	provider := &fakeProvider{
		downloads: func(name string, start, end time.Time) (int64, error) {
			// Package did not exist before this date.
			if end.Before(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
				return 0, nil
			}
			return 1000, nil
		},
	}
	st := newFakeStore()
	c := newTestCollector(provider, st)

	result, err := c.Backfill(context.Background(), "brand-new-pkg")
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if result.Missed == 0 {
		t.Error("expected missed buckets for zero counts")
	}
	if result.Saved+result.Missed != 53 {
		t.Errorf("saved+missed = %d, want 53", result.Saved+result.Missed)
	}
	if len(st.points) != result.Saved {
		t.Errorf("stored %d points, want %d", len(st.points), result.Saved)
	}
}

func TestBackfillContinuesPastProviderFailures(t *testing.T) {
	failures := 0
	calls := 0
	provider := &fakeProvider{}
	provider.downloads = func(name string, start, end time.Time) (int64, error) {
		calls++
		if calls%10 == 3 {
			failures++
			return 0, fmt.Errorf("fetch: %w", npm.ErrUnavailable)
		}
		return 1000, nil
	}
	st := newFakeStore()
	c := newTestCollector(provider, st)

	result, err := c.Backfill(context.Background(), "react")
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	if result.Missed != failures {
		t.Errorf("missed = %d, want %d", result.Missed, failures)
	}
	if result.Saved+result.Missed != 53 {
		t.Errorf("saved+missed = %d, want 53", result.Saved+result.Missed)
	}
}

func TestBackfillAbortsOnStorageError(t *testing.T) {
	provider := &fakeProvider{}
	st := newFakeStore()
	st.upsertErr = errors.New("disk full")
	c := newTestCollector(provider, st)

	_, err := c.Backfill(context.Background(), "react")
	if err == nil {
		t.Fatal("expected storage error to abort the walk")
	}
	if len(provider.calls) != 1 {
		t.Errorf("got %d provider calls after abort, want 1", len(provider.calls))
	}
}

func TestBackfillHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCollector(&fakeProvider{}, newFakeStore())
	_, err := c.Backfill(ctx, "react")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestDailyUpdate(t *testing.T) {
	provider := &fakeProvider{
		downloads: func(name string, start, end time.Time) (int64, error) {
			if name == "flaky" {
				return 0, fmt.Errorf("fetch: %w", npm.ErrUnavailable)
			}
			return 2000, nil
		},
	}
	st := newFakeStore()
	st.packages = []*store.Package{
		{Name: "react", Active: true},
		{Name: "express", Active: true},
		{Name: "flaky", Active: true},
	}
	cutoff := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	st.points[pointKey("express", cutoff)] = 900

	c := newTestCollector(provider, st)
	result, err := c.DailyUpdate(context.Background())
	if err != nil {
		t.Fatalf("DailyUpdate failed: %v", err)
	}

	if result.Succeeded != 1 || result.Skipped != 1 || result.Failed != 1 {
		t.Errorf("result = %+v, want 1/1/1", result)
	}
	if st.points[pointKey("react", cutoff)] != 2000 {
		t.Error("react bucket not saved")
	}
}

func TestTrackUnknownPackage(t *testing.T) {
	provider := &fakeProvider{infoErr: fmt.Errorf("metadata: %w", npm.ErrNotFound)}
	c := newTestCollector(provider, newFakeStore())

	_, err := c.Track(context.Background(), "no-such-package")
	if !errors.Is(err, npm.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestTrackInvalidName(t *testing.T) {
	c := newTestCollector(&fakeProvider{}, newFakeStore())

	_, err := c.Track(context.Background(), "NOT_VALID")
	if !errors.Is(err, npm.ErrInvalidName) {
		t.Errorf("error = %v, want ErrInvalidName", err)
	}
}

func TestBackfillAll(t *testing.T) {
	provider := &fakeProvider{}
	st := newFakeStore()
	st.packages = []*store.Package{
		{Name: "react", Active: true},
		{Name: "express", Active: true},
	}

	c := newTestCollector(provider, st)
	total, aborted, err := c.BackfillAll(context.Background())
	if err != nil {
		t.Fatalf("BackfillAll failed: %v", err)
	}
	if aborted != 0 {
		t.Errorf("aborted = %d, want 0", aborted)
	}
	if total.Saved != 106 {
		t.Errorf("saved = %d, want 106 (53 per package)", total.Saved)
	}
}

func TestTrackRegistersAndBackfills(t *testing.T) {
	provider := &fakeProvider{
		info: &npm.PackageInfo{Name: "react", Description: "ui library"},
	}
	st := newFakeStore()
	c := newTestCollector(provider, st)

	result, err := c.Track(context.Background(), "react")
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if len(st.packages) != 1 || st.packages[0].Description != "ui library" {
		t.Fatalf("package not registered: %+v", st.packages)
	}
	if result.Saved != 53 {
		t.Errorf("saved = %d, want 53", result.Saved)
	}
}

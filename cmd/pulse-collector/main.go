package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/pkgpulse/pkgpulse/pkg/collector"
	"github.com/pkgpulse/pkgpulse/pkg/config"
	"github.com/pkgpulse/pkgpulse/pkg/npm"
	"github.com/pkgpulse/pkgpulse/pkg/observability"
	"github.com/pkgpulse/pkgpulse/pkg/store"
)

var (
	runOnce     = flag.Bool("run-once", false, "Run the daily update once and exit")
	backfill    = flag.String("backfill", "", "Comma-separated package names to track and backfill, then exit")
	backfillAll = flag.Bool("backfill-all", false, "Backfill every tracked package, then exit")
	migrate     = flag.Bool("migrate", true, "Apply pending database migrations on startup")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	conn, err := store.NewConnectionManager(store.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: store.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if *migrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := store.RunMigrations(ctx, conn.Primary())
		cancel()
		if err != nil {
			logrus.Fatalf("Migrations failed: %v", err)
		}
	}

	st := store.New(conn, logger, metrics)
	client := npm.NewClient(npm.Config{
		RegistryURL:  cfg.Registry.RegistryURL,
		DownloadsURL: cfg.Registry.DownloadsURL,
		Timeout:      cfg.Registry.Timeout,
	}, npm.WithLogger(logger), npm.WithMetrics(metrics))

	coll := collector.New(client, st, collector.Options{
		WeeksBack:        cfg.Collector.WeeksBack,
		PublicationDelay: cfg.Collector.PublicationDelay,
		BucketDelay:      cfg.Collector.BucketDelay,
		PackageDelay:     cfg.Collector.PackageDelay,
	}, logger, metrics)

	if *backfill != "" {
		runBackfillList(coll, *backfill)
		return
	}

	if *backfillAll {
		result, aborted, err := coll.BackfillAll(context.Background())
		if err != nil {
			logrus.Fatalf("Backfill failed: %v", err)
		}
		logrus.Infof("Backfill done: %d saved, %d missed, %d packages aborted",
			result.Saved, result.Missed, aborted)
		if result.Saved == 0 && (result.Missed > 0 || aborted > 0) {
			os.Exit(1)
		}
		return
	}

	if *runOnce {
		result, err := coll.DailyUpdate(context.Background())
		if err != nil {
			logrus.Fatalf("Daily update failed: %v", err)
		}
		logrus.Infof("Daily update done: %d succeeded, %d skipped, %d failed",
			result.Succeeded, result.Skipped, result.Failed)
		if result.Succeeded == 0 && result.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	runScheduled(cfg, coll, st, metrics)
}

// runBackfillList tracks each named package in turn. The process fails only
// if every package fails.
func runBackfillList(coll *collector.Collector, names string) {
	succeeded := 0
	failed := 0

	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		result, err := coll.Track(context.Background(), name)
		if err != nil {
			logrus.Errorf("Backfill of %s failed: %v", name, err)
			failed++
			continue
		}
		logrus.Infof("Backfilled %s: %d saved, %d missed", name, result.Saved, result.Missed)
		succeeded++
	}

	logrus.Infof("Backfill done: %d succeeded, %d failed", succeeded, failed)
	if succeeded == 0 && failed > 0 {
		os.Exit(1)
	}
}

func runScheduled(cfg *config.Config, coll *collector.Collector, st *store.Store, metrics *observability.Metrics) {
	c := cron.New()

	observeJob := func(job string, start time.Time, err error) {
		if metrics == nil {
			return
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.BatchRunsTotal.WithLabelValues(job, status).Inc()
		metrics.BatchDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	}

	mustSchedule := func(job, spec string, fn func() error) {
		_, err := c.AddFunc(spec, func() {
			start := time.Now()
			err := fn()
			observeJob(job, start, err)
			if err != nil {
				logrus.Errorf("Job %s failed: %v", job, err)
			}
		})
		if err != nil {
			logrus.Fatalf("Failed to schedule %s (%q): %v", job, spec, err)
		}
	}

	mustSchedule("daily_update", cfg.Collector.DailySchedule, func() error {
		result, err := coll.DailyUpdate(context.Background())
		if err != nil {
			return err
		}
		logrus.Infof("Daily update done: %d succeeded, %d skipped, %d failed",
			result.Succeeded, result.Skipped, result.Failed)
		return nil
	})

	mustSchedule("weekly_rollup", cfg.Collector.RollupSchedule, func() error {
		since := time.Now().UTC().AddDate(0, 0, -7*cfg.Collector.WeeksBack)
		if err := st.RecomputeWeeklyRollup(context.Background(), since); err != nil {
			return err
		}
		logrus.Info("Weekly rollup recomputed")
		return nil
	})

	if cfg.Collector.RetentionDays > 0 {
		mustSchedule("retention", cfg.Collector.RetentionSchedule, func() error {
			cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Collector.RetentionDays)
			deleted, err := st.DeleteOlderThan(context.Background(), cutoff)
			if err != nil {
				return err
			}
			logrus.Infof("Retention sweep removed %d points", deleted)
			return nil
		})
	}

	c.Start()
	logrus.Info("Collector started")
	logrus.Infof("Daily update schedule: %s", cfg.Collector.DailySchedule)
	logrus.Infof("Weekly rollup schedule: %s", cfg.Collector.RollupSchedule)
	if cfg.Collector.RetentionDays > 0 {
		logrus.Infof("Retention schedule: %s (keep %d days)", cfg.Collector.RetentionSchedule, cfg.Collector.RetentionDays)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logrus.Info("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	logrus.Info("Collector stopped")
}

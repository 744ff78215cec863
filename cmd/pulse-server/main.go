package main

import (
	"context"
	"encoding/json"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/pkgpulse/pkgpulse/pkg/collector"
	"github.com/pkgpulse/pkgpulse/pkg/config"
	"github.com/pkgpulse/pkgpulse/pkg/middleware"
	"github.com/pkgpulse/pkgpulse/pkg/npm"
	"github.com/pkgpulse/pkgpulse/pkg/observability"
	"github.com/pkgpulse/pkgpulse/pkg/store"
	"github.com/pkgpulse/pkgpulse/pkg/trending"
)

var readOnly = flag.Bool("read-only", false, "Disable the package tracking endpoint")

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

	st := store.New(conn, logger, metrics)

	var cache *trending.Cache
	if cfg.Cache.Enabled {
		cache = trending.NewCache(trending.CacheConfig{
			L1Size:        cfg.Cache.L1Size,
			TTL:           cfg.Cache.TTL,
			RedisURL:      cfg.Cache.RedisURL,
			RedisPassword: cfg.Cache.RedisPassword,
			RedisDB:       cfg.Cache.RedisDB,
		}, logger, metrics)
		defer cache.Close()
	}

	service := trending.NewService(st, cache, logger, nil)

	var tracker trending.Tracker
	if !*readOnly {
		client := npm.NewClient(npm.Config{
			RegistryURL:  cfg.Registry.RegistryURL,
			DownloadsURL: cfg.Registry.DownloadsURL,
			Timeout:      cfg.Registry.Timeout,
		}, npm.WithLogger(logger), npm.WithMetrics(metrics))

		tracker = collector.New(client, st, collector.Options{
			WeeksBack:        cfg.Collector.WeeksBack,
			PublicationDelay: cfg.Collector.PublicationDelay,
			BucketDelay:      cfg.Collector.BucketDelay,
			PackageDelay:     cfg.Collector.PackageDelay,
		}, logger, metrics)
	}

	handler := trending.NewHandler(service, tracker, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := mux.NewRouter()
	router.Use(observability.RequestIDMiddleware)
	router.Use(observability.RequestLoggingMiddleware(logger))
	if metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	// Rate limit the API only; /healthz and /metrics stay unthrottled.
	rateLimiter := middleware.NewRateLimiter(nil)
	rateLimiter.StartCleanup(ctx)
	router.Use(func(next http.Handler) http.Handler {
		limited := rateLimiter.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	handler.RegisterRoutes(router)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := conn.HealthCheck(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler(registry))
	}

	conn.StartHealthCheckRoutine(ctx, 0)

	if metrics != nil {
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					stats := conn.Stats()
					metrics.DBConnectionsActive.Set(float64(stats.Primary.InUse))
					metrics.DBConnectionsIdle.Set(float64(stats.Primary.Idle))
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logrus.Infof("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Shutdown error: %v", err)
	}

	logrus.Info("Server stopped")
}

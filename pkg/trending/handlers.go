package trending

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pkgpulse/pkgpulse/pkg/collector"
	"github.com/pkgpulse/pkgpulse/pkg/growth"
	"github.com/pkgpulse/pkgpulse/pkg/httputil"
	"github.com/pkgpulse/pkgpulse/pkg/npm"
	"github.com/pkgpulse/pkgpulse/pkg/observability"
)

// Tracker registers a new package and backfills its history.
type Tracker interface {
	Track(ctx context.Context, name string) (collector.BackfillResult, error)
}

// Handler exposes the read API over HTTP.
type Handler struct {
	service *Service
	tracker Tracker
	logger  *observability.Logger
}

// NewHandler creates the HTTP handler. Tracker may be nil to serve a
// read-only API.
func NewHandler(service *Service, tracker Tracker, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Handler{
		service: service,
		tracker: tracker,
		logger:  logger.WithComponent("api"),
	}
}

// RegisterRoutes mounts the API under /api/v1. The name pattern accepts a
// slash so scoped packages like @babel/core resolve.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/trending", h.handleTrending).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/packages", h.handleTrackPackage).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/packages/{name:.+}/metrics", h.handlePackageMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/packages/{name:.+}/history", h.handlePackageHistory).Methods(http.MethodGet)
}

type trendingResponse struct {
	WindowWeeks int              `json:"window_weeks"`
	Count       int              `json:"count"`
	Packages    []growth.Metrics `json:"packages"`
}

func (h *Handler) handleTrending(w http.ResponseWriter, r *http.Request) {
	window, err := httputil.ParseQueryInt(r, "window", DefaultWindowWeeks)
	if err != nil || window <= 0 {
		httputil.WriteBadRequest(w, "window must be a positive number of weeks")
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", DefaultLimit)
	if err != nil || limit <= 0 {
		httputil.WriteBadRequest(w, "limit must be a positive number")
		return
	}

	key := growth.ParseSortKey(httputil.ParseQueryString(r, "sort", string(growth.SortByGrowthRate)))
	descending := httputil.ParseQueryString(r, "order", "desc") != "asc"

	metrics, err := h.service.Trending(r.Context(), window, limit, key, descending)
	if err != nil {
		h.logger.WithError(err).Error("trending query failed")
		httputil.WriteInternalError(w, err)
		return
	}

	if metrics == nil {
		metrics = []growth.Metrics{}
	}
	httputil.WriteSuccess(w, trendingResponse{
		WindowWeeks: clampWindow(window),
		Count:       len(metrics),
		Packages:    metrics,
	})
}

func (h *Handler) handlePackageMetrics(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "name")
	if err != nil {
		httputil.WriteBadRequest(w, "package name is required")
		return
	}
	window, err := httputil.ParseQueryInt(r, "window", DefaultWindowWeeks)
	if err != nil || window <= 0 {
		httputil.WriteBadRequest(w, "window must be a positive number of weeks")
		return
	}

	metrics, err := h.service.PackageMetrics(r.Context(), name, window)
	if err != nil {
		h.writeStoreError(w, name, err)
		return
	}
	httputil.WriteSuccess(w, metrics)
}

type historyResponse struct {
	PackageName string         `json:"package_name"`
	Count       int            `json:"count"`
	Points      []historyPoint `json:"points"`
}

type historyPoint struct {
	Date      string `json:"date"`
	Downloads int64  `json:"downloads"`
}

func (h *Handler) handlePackageHistory(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "name")
	if err != nil {
		httputil.WriteBadRequest(w, "package name is required")
		return
	}
	window, err := httputil.ParseQueryInt(r, "window", DefaultWindowWeeks)
	if err != nil || window <= 0 {
		httputil.WriteBadRequest(w, "window must be a positive number of weeks")
		return
	}

	points, err := h.service.History(r.Context(), name, window)
	if err != nil {
		h.writeStoreError(w, name, err)
		return
	}

	resp := historyResponse{
		PackageName: name,
		Count:       len(points),
		Points:      make([]historyPoint, len(points)),
	}
	for i, point := range points {
		resp.Points[i] = historyPoint{
			Date:      point.Date.Format("2006-01-02"),
			Downloads: point.Downloads,
		}
	}
	httputil.WriteSuccess(w, resp)
}

type trackRequest struct {
	Name string `json:"name"`
}

type trackResponse struct {
	Name     string                   `json:"name"`
	Backfill collector.BackfillResult `json:"backfill"`
}

func (h *Handler) handleTrackPackage(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "tracking is not enabled on this instance")
		return
	}

	var req trackRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "request body must be JSON with a name field")
		return
	}

	result, err := h.tracker.Track(r.Context(), req.Name)
	switch {
	case err == nil:
	case errors.Is(err, npm.ErrInvalidName):
		httputil.WriteBadRequest(w, err.Error())
		return
	case errors.Is(err, npm.ErrNotFound):
		httputil.WriteNotFound(w, "package not found in registry")
		return
	case errors.Is(err, npm.ErrUnavailable):
		httputil.WriteServiceUnavailable(w, "registry unavailable, try again later")
		return
	default:
		h.logger.WithError(err).WithField("package", req.Name).Error("track failed")
		httputil.WriteInternalError(w, err)
		return
	}

	h.service.InvalidateRankings(r.Context())
	httputil.WriteCreated(w, trackResponse{Name: req.Name, Backfill: result})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFound(w, "package is not tracked")
		return
	}
	h.logger.WithError(err).WithField("package", name).Error("store query failed")
	httputil.WriteInternalError(w, err)
}

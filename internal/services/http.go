package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dpup/trailgraph/internal/lib/geo"
	"github.com/dpup/trailgraph/internal/lib/routing"
	"github.com/dpup/trailgraph/internal/lib/trail"
	"github.com/dpup/trailgraph/internal/logging"
	"github.com/dpup/trailgraph/internal/metrics"
)

// Handler exposes the TrailsService and the tracker over HTTP.
type Handler struct {
	trails  *TrailsService
	tracker *Tracker
	metrics *metrics.Registry
	logger  *zap.Logger
}

// NewHandler creates a Handler. m may be nil.
func NewHandler(trails *TrailsService, tracker *Tracker, m *metrics.Registry, logger *zap.Logger) *Handler {
	return &Handler{trails: trails, tracker: tracker, metrics: m, logger: logger}
}

// Router returns a router with every route registered.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes adds the API routes to router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.Use(h.instrument)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/routes", h.ListRoutes).Methods(http.MethodGet)
	api.HandleFunc("/routes/{name}", h.GetRoute).Methods(http.MethodGet)
	api.HandleFunc("/routes/{name}/entry", h.GetEntry).Methods(http.MethodGet)
	api.HandleFunc("/routes/{name}/profile", h.GetProfile).Methods(http.MethodGet)
	api.HandleFunc("/waypoints", h.PostWaypoint).Methods(http.MethodPost)
	api.HandleFunc("/observer", h.PostObserver).Methods(http.MethodPost)
	api.HandleFunc("/observer", h.GetObserver).Methods(http.MethodGet)
	api.HandleFunc("/observer/profile", h.GetObserverProfile).Methods(http.MethodGet)

	if h.metrics != nil {
		router.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx := logging.WithLogger(r.Context(), h.logger)

		next.ServeHTTP(rec, r.WithContext(ctx))

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start))
		}
		logging.Debugw(ctx, "Handled request",
			"method", r.Method, "route", route, "status", rec.status, "duration", time.Since(start))
	})
}

// ListRoutes handles GET /api/v1/routes.
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.trails.ListRoutes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"routes": routes,
		"count":  len(routes),
	})
}

// GetRoute handles GET /api/v1/routes/{name}.
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	route, err := h.trails.GetRoute(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

// GetEntry handles GET /api/v1/routes/{name}/entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	req, err := entryRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.trails.Entry(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProfile handles GET /api/v1/routes/{name}/profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	req, err := entryRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pr := ProfileRequest{EntryRequest: req}
	q := r.URL.Query()
	if pr.Zoom, err = optionalFloat(q.Get("zoom")); err != nil {
		h.writeError(w, r, err)
		return
	}
	if pr.Bias, err = optionalFloat(q.Get("bias")); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.trails.Profile(r.Context(), pr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostWaypoint handles POST /api/v1/waypoints.
func (h *Handler) PostWaypoint(w http.ResponseWriter, r *http.Request) {
	var req WaypointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	resp, err := h.trails.InsertWaypoint(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type observerRequest struct {
	Latitude  float64         `json:"lat"`
	Longitude float64         `json:"lng"`
	Elevation float64         `json:"ele"`
	Direction trail.Direction `json:"direction"`
	Simulated bool            `json:"simulated"`
}

// PostObserver handles POST /api/v1/observer.
func (h *Handler) PostObserver(w http.ResponseWriter, r *http.Request) {
	var req observerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	if _, err := geo.NewPoint(req.Latitude, req.Longitude); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}
	n := trail.NewNode(req.Latitude, req.Longitude, req.Elevation)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	p := Position{Observer: n, Direction: req.Direction, Simulated: req.Simulated}
	if err := h.tracker.Publish(ctx, p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// GetObserver handles GET /api/v1/observer.
func (h *Handler) GetObserver(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"freshness": h.tracker.Freshness()}
	if p, ok := h.tracker.Current(); ok {
		resp["position"] = p
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetObserverProfile handles GET /api/v1/observer/profile?route=.
func (h *Handler) GetObserverProfile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	route := q.Get("route")
	if route == "" {
		h.writeError(w, r, fmt.Errorf("%w: route is required", ErrInvalidRequest))
		return
	}
	zoom, err := optionalFloat(q.Get("zoom"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bias, err := optionalFloat(q.Get("bias"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.trails.ObserverProfile(r.Context(), route, zoom, bias)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func entryRequest(r *http.Request) (EntryRequest, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return EntryRequest{}, fmt.Errorf("%w: lat: %v", ErrInvalidRequest, err)
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return EntryRequest{}, fmt.Errorf("%w: lon: %v", ErrInvalidRequest, err)
	}
	ele, err := optionalFloat(q.Get("ele"))
	if err != nil {
		return EntryRequest{}, err
	}
	dir, err := trail.ParseDirection(q.Get("direction"))
	if err != nil {
		return EntryRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	snap, err := optionalFloat(q.Get("snap"))
	if err != nil {
		return EntryRequest{}, err
	}
	return EntryRequest{
		Route:     mux.Vars(r)["name"],
		Observer:  trail.NewNode(lat, lon, ele),
		Direction: dir,
		Snap:      snap,
	}, nil
}

func optionalFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return v, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, routing.ErrGraphNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ErrTrackerStopped), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs an HTTP server for handler on addr until ctx is done, then
// shuts it down within timeout.
func Serve(ctx context.Context, addr string, handler http.Handler, timeout time.Duration, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logger.Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

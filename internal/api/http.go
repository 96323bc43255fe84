package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"foldcast/internal/config"
	"foldcast/internal/domain"
	"foldcast/internal/store"
)

// maxRequestBytes bounds the size of a backtest request body.
const maxRequestBytes = 64 << 20

// HTTPServer serves the JSON API.
type HTTPServer struct {
	svc      *Service
	defaults *config.Config
	gatherer prometheus.Gatherer
	log      *slog.Logger
}

// NewHTTPServer creates a new HTTP API server. A nil gatherer disables
// /metrics.
func NewHTTPServer(svc *Service, defaults *config.Config, gatherer prometheus.Gatherer, log *slog.Logger) *HTTPServer {
	return &HTTPServer{svc: svc, defaults: defaults, gatherer: gatherer, log: log}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/backtests", s.handleRun)
	mux.HandleFunc("POST /api/v1/plans", s.handlePlan)
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/v1/datasets", s.handleDatasets)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns an http.Handler serving all routes.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *HTTPServer) decode(r *http.Request) (Request, error) {
	req := NewRequest(s.defaults)
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(&req)
	return req, err
}

func (s *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	out, err := s.svc.Run(r.Context(), req)
	if err != nil {
		s.log.Warn("backtest failed", "dataset", req.Dataset, "err", err)
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, out.View())
}

func (s *HTTPServer) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	plan, err := s.svc.Plan(r.Context(), req)
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, plan)
}

func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = n
	}
	runs, err := s.svc.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, NewRunView(run, false))
	}
	writeJSON(w, views)
}

func (s *HTTPServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	writeJSON(w, NewRunView(*run, true))
}

func (s *HTTPServer) handleDatasets(w http.ResponseWriter, r *http.Request) {
	names, err := s.svc.Datasets(r.Context())
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, names)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// httpStatus maps service errors onto HTTP status codes.
func httpStatus(err error) int {
	var foldErr *domain.FoldError
	switch {
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrMisalignedSeries):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &foldErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

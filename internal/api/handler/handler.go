package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Aptos-Scan/aptos-indexer/internal/backfill"
	"github.com/Aptos-Scan/aptos-indexer/internal/metrics"
	"github.com/Aptos-Scan/aptos-indexer/internal/worker"
	adminmodels "github.com/Aptos-Scan/aptos-indexer/pkg/db/models/admin"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusStore reads processor checkpoints.
type StatusStore interface {
	GetStatus(ctx context.Context, processor string) (*adminmodels.ProcessorStatus, error)
}

// QueueInspector reports the range queue.
type QueueInspector interface {
	QueueStats(ctx context.Context) (worker.QueueStats, error)
}

// GapChecker reports missing versions up to the ledger head.
type GapChecker interface {
	CheckHealth(ctx context.Context) (*backfill.GapStats, error)
}

// Handler holds the dependencies for API handlers
type Handler struct {
	Status        StatusStore
	Queue         QueueInspector // optional
	Gaps          GapChecker     // optional
	Gatherer      prometheus.Gatherer
	Logger        *zap.Logger
	ProcessorName string
	AdminToken    string
}

// NewRouter creates and configures the HTTP router with all API routes
func (h *Handler) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(countRequests)

	// Public endpoints
	r.HandleFunc("/api/health", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", h.HandleStatus).Methods(http.MethodGet)
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// Gap scans are expensive; keep them behind the admin token
	r.HandleFunc("/api/gaps", h.RequireAuth(h.HandleGaps)).Methods(http.MethodGet)

	return r
}

// RequireAuth is a middleware that validates the bearer token
func (h *Handler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		expected := "Bearer " + h.AdminToken

		if h.AdminToken == "" || auth != expected {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		next(w, r)
	}
}

// HandleHealth returns a simple health check response
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(rec.code)).Inc()
	})
}

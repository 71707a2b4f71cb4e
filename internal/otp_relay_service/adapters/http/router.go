package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestTimeout = 60 * time.Second

// NewRouter builds the admin API. /health and /metrics are unauthenticated.
func NewRouter(service AllocationAPI, jwtSecret []byte, logger *slog.Logger) http.Handler {
	handler := NewAllocationHandler(service, logger, validator.New())

	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(chi_middleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(chi_middleware.Timeout(requestTimeout))
		v1.Use(AuthMiddleware(jwtSecret, logger))
		v1.Get("/requesters/{requesterID}/allocations", handler.ListRequesterAllocations)
		v1.Post("/allocations", handler.CreateAllocation)
		v1.Get("/allocations/{allocationID}", handler.GetAllocation)
		v1.Post("/allocations/{allocationID}/cancel", handler.CancelAllocation)
	})
	return r
}

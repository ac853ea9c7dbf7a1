// Package handler exposes the bot's health, state and metrics over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/trigger-trader/internal/telemetry"
)

// NewRouter mounts /health, the state routes and /metrics.
func NewRouter(states func() []telemetry.State) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", HealthCheckHandler)
	NewStateHandler(states).RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

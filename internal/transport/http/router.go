// Package http assembles the HTTP surface of the mediator.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ageHandler "agegate/internal/age/handler"
	"agegate/internal/platform/health"
	platformMetrics "agegate/internal/platform/metrics"
	"agegate/internal/platform/middleware"
)

// NewRouter builds the router: open health and metrics endpoints, and the age
// verification API behind bearer-token auth.
func NewRouter(
	age *ageHandler.Handler,
	healthHandler *health.Handler,
	validator middleware.TokenValidator,
	httpMetrics *platformMetrics.HTTP,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(httpMetrics.Middleware())
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(validator, logger))
		age.Register(r)
	})

	return r
}

// cmd/server/server.go
package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codr1/courtbook/internal/api"
	"github.com/codr1/courtbook/internal/api/bookings"
	"github.com/codr1/courtbook/internal/api/courts"
	"github.com/codr1/courtbook/internal/api/dashboard"
	"github.com/codr1/courtbook/internal/config"
)

func newServer(cfg *config.Config, a *app) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithWriteLimit(a.limiter, cfg.RateLimit.TrustProxy),
		api.WithIdentity,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	// Register routes
	registerRoutes(router, a.registry)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// registerRoutes mounts the API. registry is nil when metrics are disabled.
func registerRoutes(mux *http.ServeMux, registry *prometheus.Registry) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}

	// Booking routes
	mux.HandleFunc("POST /api/v1/bookings", bookings.HandleBookingCreate)
	mux.HandleFunc("GET /api/v1/bookings", bookings.HandleBookingsList)
	mux.HandleFunc("GET /api/v1/bookings/{id}", bookings.HandleBookingGet)
	mux.HandleFunc("POST /api/v1/bookings/{id}/confirm", bookings.HandleBookingConfirm)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", bookings.HandleBookingCancel)
	mux.HandleFunc("POST /api/v1/bookings/{id}/no-show", bookings.HandleBookingNoShow)
	mux.HandleFunc("POST /api/v1/bookings/{id}/attendance", bookings.HandleBookingAttendance)
	mux.HandleFunc("POST /api/v1/recurrence-groups/{id}/cancel", bookings.HandleSeriesCancel)

	// Resource routes
	mux.HandleFunc("GET /api/v1/resources", courts.HandleResourcesList)
	mux.HandleFunc("GET /api/v1/resources/{id}/availability", courts.HandleAvailability)

	// Reporting
	mux.HandleFunc("GET /api/v1/stats", dashboard.HandleStats)
}

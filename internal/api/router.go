// Visitormap - Real-Time Visitor Map and Presence Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visitormap

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/visitormap/internal/auth"
	"github.com/tomtom215/visitormap/internal/config"
)

// NewRouter assembles the full HTTP surface. adminAuth may be nil, in which
// case the admin routes are not mounted at all.
func NewRouter(cfg *config.Config, h *Handler, adminAuth *auth.BasicAuthManager) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		if !cfg.Security.RateLimitDisabled {
			r.Use(httprate.LimitByRealIP(cfg.Security.RateLimitReqs, cfg.Security.RateLimitWindow))
		}

		r.Route("/health", func(r chi.Router) {
			r.Get("/live", h.HealthLive)
			r.Get("/ready", h.HealthReady)
		})

		r.Route("/visitors", func(r chi.Router) {
			r.Get("/", h.ListVisitors)
			r.Post("/", h.ResolveVisitor)
			r.Put("/{id}", h.UpdateVisitor)
		})
	})

	// The websocket endpoint sits outside the rate-limited group: one
	// long-lived connection per client, limited by the handshake timeout.
	r.Get("/ws", h.WebSocket)

	r.Handle("/metrics", promhttp.Handler())

	if adminAuth != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth.Middleware)

			r.Get("/visitors", h.AdminListVisitors)
			r.Delete("/visitors/{id}", h.AdminDeleteVisitor)
			r.Get("/stats", h.AdminStats)
			r.Get("/logs", h.AdminLogs)
			r.Delete("/logs", h.AdminClearLogs)
			r.Delete("/clear-all", h.AdminClearAll)
		})
	}

	return r
}

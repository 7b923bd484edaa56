// Package api provides HTTP router setup.
package api

import (
	"net/http"

	"github.com/civicwatch/vigil/internal/config"
	"github.com/civicwatch/vigil/internal/database"
	"github.com/civicwatch/vigil/internal/report"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg *config.Config, reports *report.Service, store database.Store) http.Handler {
	r := chi.NewRouter()

	handler := NewHandler(reports, store, cfg.Alerts)

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", handler.HealthCheck)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(store))
			r.Use(AuditMiddleware(store))
			r.Use(RateLimitMiddleware(cfg.RateLimits.RequestsPerMinute))

			r.Route("/reports", func(r chi.Router) {
				r.Post("/", handler.CreateReport)
				r.Get("/", handler.ListReports)
				r.Get("/nearby", handler.NearbyAlerts)
				r.Get("/statistics", handler.Statistics)
				r.Get("/heatmap", handler.Heatmap)
				r.Get("/{id}", handler.GetReport)
				r.Patch("/{id}", handler.UpdateReport)
				r.Post("/{id}/confirm", handler.ConfirmReport)
				r.Post("/{id}/dispute", handler.DisputeReport)
			})
		})

		// Admin routes (credential management and moderation)
		// In production, these should be protected differently
		r.Route("/admin", func(r chi.Router) {
			r.Post("/users", handler.CreateUser)
			r.Get("/users", handler.ListUsers)
			r.Delete("/users/{id}", handler.DeleteUser)
			r.Post("/reports/{id}/close", handler.CloseReport)
			r.Get("/audit", handler.GetAuditLogs)
		})
	})

	// Landing page listing the API surface
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Vigil - Incident Reports</title>
    <style>
        body { font-family: system-ui, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; }
        h1 { color: #dc2626; }
        code { background: #f1f5f9; padding: 2px 6px; border-radius: 4px; }
        .endpoint { margin: 10px 0; }
    </style>
</head>
<body>
    <h1>Vigil API</h1>
    <p>Incident reporting API is running. Use the API endpoints below:</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><code>GET /api/v1/health</code> - Health check</div>
    <div class="endpoint"><code>POST /api/v1/reports</code> - File an incident report</div>
    <div class="endpoint"><code>GET /api/v1/reports</code> - List reports</div>
    <div class="endpoint"><code>GET /api/v1/reports/{id}</code> - Get a report</div>
    <div class="endpoint"><code>POST /api/v1/reports/{id}/confirm</code> - Corroborate a report</div>
    <div class="endpoint"><code>POST /api/v1/reports/{id}/dispute</code> - Contest a report</div>
    <div class="endpoint"><code>GET /api/v1/reports/nearby?lat=..&amp;lng=..</code> - Danger alerts near a location</div>
    <div class="endpoint"><code>GET /api/v1/reports/statistics</code> - Aggregate statistics</div>

    <h2>Authentication</h2>
    <p>Use <code>Authorization: Bearer your-credential</code> header for all requests except health check.</p>

    <h2>Create Credential</h2>
    <p><code>POST /api/v1/admin/users</code> with body <code>{"name": "my-name"}</code></p>
</body>
</html>`))
	})

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/sessions/*    Sessions, PSI upload, matrix, plans, transfers
  /api/plans/*       Plan detail and line replacement
  /api/transfers     Channel transfer create/update/delete by key
  /api/warehouses    Warehouse masters
  /api/policy        Reallocation policy

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Session routes
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)
			r.Get("/{id}", h.GetSession)
			r.Post("/{id}/psi", h.UploadPSIRows)
			r.Get("/{id}/matrix", h.GetMatrix)
			r.Get("/{id}/plans", h.ListPlans)
			r.Post("/{id}/plans/recommend", h.RecommendPlan)
			r.Get("/{id}/transfers", h.ListTransfers)
			r.Get("/{id}/suggestions", h.GetSuggestions)
		})

		// Plan routes
		r.Route("/plans", func(r chi.Router) {
			r.Get("/{id}", h.GetPlan)
			r.Put("/{id}/lines", h.ReplacePlanLines)
		})

		// Channel transfer routes; records are addressed by their
		// natural key carried in the body, not by a surrogate id.
		r.Route("/transfers", func(r chi.Router) {
			r.Post("/", h.CreateTransfer)
			r.Put("/", h.UpdateTransfer)
			r.Delete("/", h.DeleteTransfer)
		})

		// Warehouse routes
		r.Route("/warehouses", func(r chi.Router) {
			r.Get("/", h.ListWarehouses)
			r.Put("/", h.UpsertWarehouse)
		})

		// Policy routes
		r.Route("/policy", func(r chi.Router) {
			r.Get("/", h.GetPolicy)
			r.Put("/", h.SavePolicy)
		})
	})

	return r
}

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
  4. CORS:       Cross-origin requests for the broker frontend

ROUTE GROUPS:
  /api/drafts/*    Wizard sessions, steps, payment, coverage, documents
  /api/catalogs/*  Reference data
  /api/clients     Insured-party search

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

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/drafts", func(r chi.Router) {
			r.Post("/", h.StartDraft)

			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", h.GetDraft)
				r.Put("/steps/{step}", h.SubmitStep)
				r.Post("/advance", h.Advance)
				r.Post("/retreat", h.Retreat)

				r.Post("/plan", h.GeneratePlan)
				r.Post("/plan/override", h.OverrideInstallment)
				r.Post("/commission", h.ComputeCommission)

				r.Post("/levels", h.SaveLevel)
				r.Put("/levels/{id}", h.SaveLevel)
				r.Delete("/levels/{id}", h.DeleteLevel)
				r.Post("/assignments", h.CreateAssignment)
				r.Delete("/assignments/{clientId}", h.DeleteAssignment)

				r.Post("/documents", h.UploadDocument)
				r.Delete("/documents/{id}", h.DeleteDocument)

				r.Post("/save", h.SaveDraft)
				r.Post("/cancel", h.CancelDraft)
			})
		})

		r.Route("/catalogs", func(r chi.Router) {
			r.Get("/{kind}", h.ListCatalog)
		})
		r.Get("/clients", h.SearchClients)
	})

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:      Unique ID per request for tracing
  2. RequestLogger:  Request-scoped slog logger, one line per request
  3. Recoverer:      Panic recovery (500 instead of crash)
  4. CORS:           Cross-origin requests for the caseworker frontend

ROUTE GROUPS:
  /api/cases/*               Cases and their expiry
  /api/appropriations/*      Appropriations, totals and grants
  /api/activities/*          Activities, costs and payment schedules
  /api/schedules/*           Payments of a schedule and re-synchronization
  /api/payments/*            Single payments and their account strings
  /api/related-persons       Person registry lookups
  /api/sections ... /rates   Reference data
  /api/account-aliases/*     XLSX alias import
  /api/scenarios/*           Demo scenarios

SECURITY NOTE:
  Callers identify themselves with the X-User header. Only grants consult
  the Authorizer; authentication happens in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: RequestLogger
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. An empty
// origins list allows every origin.
func NewRouter(h *Handler, origins []string, logger *slog.Logger) *chi.Mux {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-User"},
		ExposedHeaders: []string{"X-Request-Id"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/cases", func(r chi.Router) {
			r.Get("/", h.ListCases)
			r.Post("/", h.CreateCase)
			r.Get("/{id}", h.GetCase)
		})

		r.Route("/appropriations", func(r chi.Router) {
			r.Post("/", h.CreateAppropriation)
			r.Get("/{id}", h.GetAppropriation)
			r.Post("/{id}/grant", h.GrantAppropriation)
		})

		r.Route("/activities", func(r chi.Router) {
			r.Post("/", h.CreateActivity)
			r.Get("/{id}", h.GetActivity)
			r.Put("/{id}", h.UpdateActivity)
			r.Delete("/{id}", h.DeleteActivity)
			r.Post("/{id}/validate-expected", h.ValidateExpected)
			r.Put("/{id}/schedule", h.SaveSchedule)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/{id}/payments", h.ListPayments)
			r.Post("/{id}/synchronize", h.SynchronizeSchedule)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/{id}", h.GetPayment)
			r.Put("/{id}", h.UpdatePayment)
		})

		r.Get("/related-persons", h.RelatedPersons)

		// Reference data
		r.Post("/sections", h.CreateSection)
		r.Post("/section-infos", h.CreateSectionInfo)
		r.Post("/activity-details", h.CreateActivityDetails)
		r.Post("/service-providers", h.CreateServiceProvider)
		r.Post("/accounts", h.CreateAccount)
		r.Post("/rates", h.CreateRate)
		r.Post("/account-aliases/import", h.ImportAccountAliases)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

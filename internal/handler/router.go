package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts all API routes.
func NewRouter(
	campaigns *CampaignHandler,
	templates *TemplateHandler,
	groups *GroupHandler,
	customers *CustomerHandler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", campaigns.Create)
		r.Get("/", campaigns.List)
		r.Get("/{id}", campaigns.Get)
		r.Put("/{id}", campaigns.Update)
		r.Delete("/{id}", campaigns.Delete)
		r.Post("/{id}/schedule", campaigns.Schedule)
		r.Post("/{id}/send", campaigns.Send)
		r.Get("/{id}/stats", campaigns.Stats)
	})

	r.Route("/templates", func(r chi.Router) {
		r.Post("/", templates.Create)
		r.Get("/", templates.List)
		r.Get("/{id}", templates.Get)
		r.Put("/{id}", templates.Update)
		r.Delete("/{id}", templates.Delete)
		r.Post("/{id}/preview", templates.Preview)
	})

	r.Route("/groups", func(r chi.Router) {
		r.Post("/", groups.Create)
		r.Get("/", groups.List)
		r.Get("/{id}", groups.Get)
		r.Put("/{id}", groups.Update)
		r.Delete("/{id}", groups.Delete)
	})

	r.Route("/customers", func(r chi.Router) {
		r.Post("/", customers.Create)
		r.Get("/", customers.List)
		r.Get("/{id}", customers.Get)
		r.Put("/{id}", customers.Update)
		r.Delete("/{id}", customers.Delete)
		r.Post("/import", customers.Import)
	})

	return r
}

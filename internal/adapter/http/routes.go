package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// MountRoutes registers the API routes on the given chi router. The
// request deadline covers only the request/response routes; event
// streams stay open for the life of a review.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(30 * time.Second))

			r.Post("/documents", h.CreateDocument)
			r.Get("/documents/{id}", h.GetDocument)
			r.Delete("/documents/{id}", h.DeleteDocument)

			r.Post("/reviews", h.StartReview)
			r.Get("/reviews", h.ListReviews)
			r.Get("/reviews/{id}", h.GetReview)
			r.Post("/reviews/{id}/cancel", h.CancelReview)
			r.Get("/reviews/{id}/result", h.GetResult)
		})

		r.Get("/reviews/{id}/events", h.StreamEvents)

		if h.WS != nil {
			r.Get("/reviews/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
				h.WS.ServeReview(w, r, urlParam(r, "id"))
			})
		}
	})
}

package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the cart, guarantee and notification routes.
func NewRouter(cartHandler *CartHandler, guaranteeHandler *GuaranteeHandler, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{variant_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{variant_id}", cartHandler.RemoveItem)
			r.Put("/currency", cartHandler.SetCurrency)
			r.Post("/refresh", cartHandler.Refresh)
		})
		r.Post("/checkout", cartHandler.Checkout)
		r.Get("/notifications", cartHandler.Notifications)

		r.Route("/guarantees", func(r chi.Router) {
			r.Get("/", guaranteeHandler.List)
			r.Delete("/", guaranteeHandler.ResetAll)
			r.Post("/reset-time", guaranteeHandler.ResetTimeForAll)
			r.Get("/{product_id}", guaranteeHandler.Get)
			r.Post("/{product_id}", guaranteeHandler.Lock)
			r.Post("/{product_id}/extend", guaranteeHandler.Extend)
			r.Post("/{product_id}/reset-time", guaranteeHandler.ResetTime)
		})
	})

	return r
}

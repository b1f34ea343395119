package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mealkyway/milkyway-server/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса доставки молока.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/notice", h.GetNotice)

		r.Get("/customer/{contactNumber}", h.GetCustomer)
		r.Post("/customer", h.RegisterCustomer)

		r.Post("/order", h.PlaceOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Get("/check", h.CheckAuth)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/orders", h.ListOrders)
				r.Get("/orders/{id}", h.GetOrder)
				r.Put("/orders/{id}", h.UpdateOrder)
				r.Delete("/orders/{id}", h.DeleteOrder)

				r.Get("/stats", h.GetStats)
				r.Put("/notice", h.UpdateNotice)
				r.Get("/export", h.ExportOrders)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

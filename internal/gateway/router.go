package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/orders", handler.SubmitOrder)
	r.Get("/api/orders/{id}/status", handler.GetStatus)
	r.Post("/api/orders/{id}/terminate", handler.Terminate)
	r.Post("/api/checkout", handler.Checkout)
	return r
}

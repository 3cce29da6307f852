// Package handler implements the HTTP API: auth, catalog, orders, and the
// contact form. Handlers decode and validate requests by hand, delegate to the
// domain layer, and map domain errors onto the JSON error envelope.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/kirashop/storefront/internal/auth"
	"github.com/kirashop/storefront/internal/domain/contact"
	"github.com/kirashop/storefront/internal/domain/order"
	"github.com/kirashop/storefront/internal/domain/product"
	"github.com/kirashop/storefront/internal/domain/user"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler serves the storefront API, delegating business logic to the domain
// services and repositories.
type Handler struct {
	products     product.Repository
	orders       *order.Service
	users        user.Repository
	contacts     contact.Repository
	tokens       *auth.Tokens
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	orders *order.Service,
	users user.Repository,
	contacts contact.Repository,
	tokens *auth.Tokens,
) *Handler {
	return &Handler{
		products:     products,
		orders:       orders,
		users:        users,
		contacts:     contacts,
		tokens:       tokens,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Routes builds the /api router. Authentication is parsed once for the whole
// subtree; RequireAuth and RequireAdmin guard the protected routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.Authenticate(h.tokens))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.With(auth.RequireAuth).Get("/me", h.me)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.getProduct)
		r.With(auth.RequireAdmin).Post("/", h.createProduct)
		r.With(auth.RequireAdmin).Put("/{id}", h.updateProduct)
		r.With(auth.RequireAdmin).Delete("/{id}", h.deleteProduct)
	})

	r.Route("/orders", func(r chi.Router) {
		r.With(auth.RequireAuth).Post("/", h.placeOrder)
		r.With(auth.RequireAdmin).Get("/", h.listOrders)
		r.With(auth.RequireAdmin).Patch("/{id}/status", h.updateOrderStatus)
	})
	r.With(auth.RequireAuth).Get("/my-orders", h.myOrders)

	r.Post("/contact", h.submitContact)

	return r
}

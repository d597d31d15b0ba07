// Package handler exposes the catalog, cart and order services over HTTP/JSON.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/dashboard"
	"github.com/xenking/bookstore/internal/domain/order"
)

// BookService is the part of book.Service the handlers use.
type BookService interface {
	List(ctx context.Context, filter book.Filter, page, limit int) (*book.List, error)
	Get(ctx context.Context, id string) (*book.Book, error)
}

// CartService is the part of cart.Service the handlers use.
type CartService interface {
	Cart(ctx context.Context, userID string) (*cart.Priced, error)
	Add(ctx context.Context, userID, bookID string, qty int) (*cart.Priced, error)
	SetQuantity(ctx context.Context, userID, bookID string, qty int) (*cart.Priced, error)
	Remove(ctx context.Context, userID, bookID string) (*cart.Priced, error)
	Clear(ctx context.Context, userID string) (*cart.Priced, error)
}

// OrderService is the part of order.Service the handlers use.
type OrderService interface {
	Checkout(ctx context.Context, userID string, req order.CheckoutRequest) (*order.Order, error)
	ListForUser(ctx context.Context, userID string, page, limit int) (*order.List, error)
	Get(ctx context.Context, caller auth.Identity, orderID string) (*order.Order, error)
	List(ctx context.Context, filter order.Filter, page, limit int) (*order.List, error)
	UpdateStatus(ctx context.Context, orderID string, to order.Status) (*order.Order, error)
}

// DashboardService is the part of dashboard.Service the handlers use.
type DashboardService interface {
	Summary(ctx context.Context) (*dashboard.Summary, error)
}

var (
	_ BookService      = (*book.Service)(nil)
	_ CartService      = (*cart.Service)(nil)
	_ OrderService     = (*order.Service)(nil)
	_ DashboardService = (*dashboard.Service)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	books     BookService
	carts     CartService
	orders    OrderService
	dashboard DashboardService
	security  *SecurityHandler

	// limit runs after authentication so limits can be keyed by user.
	// Catalog routes are public and fall back to the client address.
	limit func(http.Handler) http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithRateLimit installs mw on every API route.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.limit = mw
	}
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	books BookService,
	carts CartService,
	orders OrderService,
	dash DashboardService,
	security *SecurityHandler,
	opts ...Option,
) *Handler {
	h := &Handler{
		books:     books,
		carts:     carts,
		orders:    orders,
		dashboard: dash,
		security:  security,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.limit != nil {
				r.Use(h.limit)
			}
			r.Get("/books", h.ListBooks)
			r.Get("/books/{bookId}", h.GetBook)
		})
		r.Group(h.mountAuthenticated)
	})
}

func (h *Handler) mountAuthenticated(r chi.Router) {
	r.Use(h.security.Authenticate)
	if h.limit != nil {
		r.Use(h.limit)
	}

	r.Get("/cart", h.GetCart)
	r.Delete("/cart", h.ClearCart)
	r.Post("/cart/items", h.AddToCart)
	r.Put("/cart/items/{bookId}", h.UpdateCartItem)
	r.Delete("/cart/items/{bookId}", h.RemoveFromCart)

	r.Post("/checkout", h.Checkout)

	r.Get("/orders", h.ListMyOrders)
	r.Get("/orders/{orderId}", h.GetOrder)

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireAdmin)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/orders", h.ListOrders)
		r.Patch("/orders/{orderId}/status", h.UpdateOrderStatus)
	})
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/bookstore/internal/domain/auth"
)

type addToCartRequest struct {
	BookID string `json:"bookId" validate:"required,max=64"`
	// Quantity defaults to 1 when omitted.
	Quantity *int `json:"quantity" validate:"omitempty,min=1,max=999"`
}

type updateCartItemRequest struct {
	// Zero or less removes the line.
	Quantity *int `json:"quantity" validate:"required,max=999"`
}

// GetCart returns the caller's priced cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	id := mustIdentity(r)
	p, err := h.carts.Cart(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(p))
}

// AddToCart adds units of a book to the caller's cart.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	id := mustIdentity(r)

	var req addToCartRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	p, err := h.carts.Add(r.Context(), id.UserID, req.BookID, qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(p))
}

// UpdateCartItem sets the quantity of a cart line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id := mustIdentity(r)

	var req updateCartItemRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.carts.SetQuantity(r.Context(), id.UserID, chi.URLParam(r, "bookId"), *req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(p))
}

// RemoveFromCart deletes a cart line.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	id := mustIdentity(r)
	p, err := h.carts.Remove(r.Context(), id.UserID, chi.URLParam(r, "bookId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(p))
}

// ClearCart empties the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	id := mustIdentity(r)
	p, err := h.carts.Clear(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartResponse(p))
}

// mustIdentity returns the identity Authenticate stored. Routes are only
// reachable through it.
func mustIdentity(r *http.Request) auth.Identity {
	id, err := auth.FromContext(r.Context())
	if err != nil {
		panic("handler: route mounted without authentication")
	}
	return id
}

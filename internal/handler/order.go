package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/bookstore/internal/domain/order"
)

// IdempotencyKeyHeader lets clients retry a checkout safely.
const IdempotencyKeyHeader = "Idempotency-Key"

type checkoutRequest struct {
	ShippingAddress string `json:"shippingAddress" validate:"required,max=255"`
	ShippingCity    string `json:"shippingCity" validate:"required,max=100"`
	ShippingCountry string `json:"shippingCountry" validate:"required,max=100"`
	ShippingZipCode string `json:"shippingZipCode" validate:"required,max=20"`
	PaymentMethod   string `json:"paymentMethod" validate:"required,oneof=credit_card paypal bank_transfer"`
	Notes           string `json:"notes" validate:"max=1000"`
	IdempotencyKey  string `json:"idempotencyKey" validate:"max=128"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Checkout converts the caller's cart into an order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id := mustIdentity(r)

	var req checkoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	if len(key) > 128 {
		writeError(w, r, badRequest("validation failed", map[string]string{"idempotencyKey": "must be at most 128"}))
		return
	}

	o, err := h.orders.Checkout(r.Context(), id.UserID, order.CheckoutRequest{
		Shipping: order.Shipping{
			Address: req.ShippingAddress,
			City:    req.ShippingCity,
			Country: req.ShippingCountry,
			ZipCode: req.ShippingZipCode,
		},
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
		IdempotencyKey: key,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

// ListMyOrders returns the caller's orders, newest first.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	id := mustIdentity(r)

	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.orders.ListForUser(r.Context(), id.UserID, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderListResponse(list))
}

// GetOrder returns one of the caller's orders. Admins see every order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := mustIdentity(r)
	o, err := h.orders.Get(r.Context(), id, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// ListOrders returns every order, optionally filtered by status.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter := order.Filter{Status: order.Status(r.URL.Query().Get("status"))}

	list, err := h.orders.List(r.Context(), filter, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderListResponse(list))
}

// UpdateOrderStatus moves an order along its lifecycle.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderId"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

func pageParams(r *http.Request) (page, limit int, err error) {
	if page, err = queryInt(r, "page"); err != nil {
		return 0, 0, err
	}
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

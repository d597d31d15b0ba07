package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/order"
)

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// requestError is a malformed or invalid request.
type requestError struct {
	msg     string
	details any
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string, details any) error {
	return &requestError{msg: msg, details: details}
}

type stockDetails struct {
	BookID    string `json:"bookId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// toResponse maps domain errors to their HTTP form. Unknown errors become a
// 500 that does not leak the cause.
func toResponse(err error) errorResponse {
	var (
		reqErr     *requestError
		stockErr   *book.InsufficientStockError
		transition *order.TransitionError
	)
	switch {
	case errors.As(err, &reqErr):
		return errorResponse{Code: http.StatusBadRequest, Message: reqErr.msg, Details: reqErr.details}
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrUserNotFound):
		return errorResponse{Code: http.StatusUnauthorized, Message: "authentication required"}
	case errors.Is(err, auth.ErrForbidden):
		return errorResponse{Code: http.StatusForbidden, Message: "admin role required"}
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, book.ErrInvalidFilter):
		return errorResponse{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, book.ErrInactive):
		return errorResponse{Code: http.StatusNotFound, Message: "book is not available"}
	case errors.Is(err, book.ErrNotFound):
		return errorResponse{Code: http.StatusNotFound, Message: "book not found"}
	case errors.Is(err, order.ErrNotFound):
		return errorResponse{Code: http.StatusNotFound, Message: "order not found"}
	case errors.As(err, &stockErr):
		return errorResponse{
			Code:    http.StatusConflict,
			Message: "insufficient stock",
			Details: stockDetails{
				BookID:    stockErr.BookID,
				Requested: stockErr.Requested,
				Available: stockErr.Available,
			},
		}
	case errors.As(err, &transition):
		return errorResponse{Code: http.StatusConflict, Message: transition.Error()}
	case errors.Is(err, order.ErrStatusChanged):
		return errorResponse{Code: http.StatusConflict, Message: "order status changed concurrently"}
	case errors.Is(err, order.ErrEmptyCart):
		return errorResponse{Code: http.StatusUnprocessableEntity, Message: "cart is empty"}
	case errors.Is(err, order.ErrOrderNumberExhausted):
		return errorResponse{Code: http.StatusServiceUnavailable, Message: "could not allocate an order number, retry later"}
	default:
		return errorResponse{Code: http.StatusInternalServerError, Message: "internal server error"}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := toResponse(err)
	if resp.Code >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeJSON(w, resp.Code, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

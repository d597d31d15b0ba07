package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidQuantity is returned when an add request carries a quantity
// below one.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// Line is one (book, quantity) pairing owned by a user before checkout.
type Line struct {
	BookID   string
	Quantity int
}

// PricedLine is a cart line valued at the current book price.
type PricedLine struct {
	BookID       string
	Title        string
	Quantity     int
	UnitPrice    decimal.Decimal
	LineSubtotal decimal.Decimal
}

// Priced is a derived, never persisted valuation of a user's cart.
//
// Amounts are exact: Subtotal + Tax + Shipping == Total holds without
// tolerance. Rounding happens only when amounts are rendered.
type Priced struct {
	Lines     []PricedLine
	ItemCount int
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Shipping  decimal.Decimal
	Total     decimal.Decimal

	// Unavailable lists book IDs of cart lines excluded from pricing because
	// the book no longer exists or has been delisted.
	Unavailable []string
}

// IsEmpty reports whether no line contributed to the price.
func (p Priced) IsEmpty() bool {
	return len(p.Lines) == 0
}

// Repository persists cart lines. Implementations must apply quantity
// increments atomically in storage rather than read-modify-write.
type Repository interface {
	// Lines returns every line of the user's cart ordered by book ID.
	Lines(ctx context.Context, userID string) ([]Line, error)
	// Add creates the line or increments its quantity by qty, provided the
	// book is active and its stock covers the resulting quantity. It returns
	// the resulting quantity, or book.ErrOutOfStock when the guard rejects
	// the change.
	Add(ctx context.Context, userID, bookID string, qty int) (int, error)
	// Set upserts the line to exactly qty.
	Set(ctx context.Context, userID, bookID string, qty int) error
	// Remove deletes the line. A missing line is not an error.
	Remove(ctx context.Context, userID, bookID string) error
	// Clear deletes every line of the user's cart.
	Clear(ctx context.Context, userID string) error
}

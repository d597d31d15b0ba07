package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/pkg/pagination"
)

var (
	// ErrNotFound is returned when an order does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when checkout finds no cart lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrOrderNumberExhausted is returned when every generated order number
	// collided with an existing one.
	ErrOrderNumberExhausted = errors.New("could not allocate a unique order number")
)

// Order is an immutable record of a checkout. Only Status changes after
// creation.
type Order struct {
	ID             string
	Number         string
	UserID         string
	IdempotencyKey string
	Status         Status
	Items          []Item
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	ShippingCost   decimal.Decimal
	Total          decimal.Decimal
	Shipping       Shipping
	PaymentMethod  string
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is an order line with the unit price frozen at checkout.
type Item struct {
	BookID    string
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns UnitPrice × Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Shipping holds the delivery address captured at checkout.
type Shipping struct {
	Address string
	City    string
	Country string
	ZipCode string
}

// Filter narrows an administrative order listing.
type Filter struct {
	Status Status
}

// Tx is the set of operations the checkout commit performs inside a single
// database transaction. Every read that feeds a decision locks what it reads.
type Tx interface {
	// LockUser serializes checkouts of the same user.
	LockUser(ctx context.Context, userID string) error
	// FindByIdempotencyKey returns ErrNotFound when the user has no order
	// created with key.
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	// CartLines returns the user's cart lines and locks them.
	CartLines(ctx context.Context, userID string) ([]cart.Line, error)
	// LockBooks returns the books with the given IDs locked in ascending ID
	// order. Missing books are omitted.
	LockBooks(ctx context.Context, ids []string) ([]book.Book, error)
	// Insert stores the order and its items. It reports false without error
	// when the order number is already taken.
	Insert(ctx context.Context, o *Order) (bool, error)
	// ConsumeStock decrements stock and increments sold by qty. It returns
	// book.ErrOutOfStock when the book is inactive or stock is below qty.
	ConsumeStock(ctx context.Context, bookID string, qty int) error
	// ClearCart deletes every cart line of the user.
	ClearCart(ctx context.Context, userID string) error
}

// Store persists orders.
type Store interface {
	// InTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string, page pagination.Page) ([]Order, int, error)
	List(ctx context.Context, filter Filter, page pagination.Page) ([]Order, int, error)
	// UpdateStatus moves the order from one status to another. It returns
	// ErrStatusChanged when the current status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error)
}

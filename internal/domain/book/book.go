// Package book describes the catalog entity consumed by the cart and checkout
// engine, along with the read-only catalog browsing built on top of it.
package book

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a referenced book does not exist.
	ErrNotFound = errors.New("book not found")
	// ErrInactive is returned when a referenced book has been delisted.
	// It matches ErrNotFound so callers treating both alike need one check.
	ErrInactive = errors.Errorf("book is inactive: %w", ErrNotFound)
	// ErrOutOfStock is matched by every InsufficientStockError.
	ErrOutOfStock = errors.New("out of stock")
)

// InsufficientStockError reports that a requested quantity exceeds the
// available stock of a book, either when adding to a cart or at checkout.
type InsufficientStockError struct {
	BookID    string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %s: requested %d, available %d",
		e.BookID, e.Requested, e.Available)
}

// Is reports ErrOutOfStock as a match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// Book is a catalog item as seen by the cart and checkout engine.
type Book struct {
	ID       string
	Title    string
	Author   string
	Category string
	Price    decimal.Decimal
	Stock    int
	Sold     int
	IsActive bool
}

// CanFulfil reports whether the book is listed and has at least qty units.
func (b Book) CanFulfil(qty int) bool {
	return b.IsActive && b.Stock >= qty
}

// Repository defines read operations for the catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Book, error)
	GetByIDs(ctx context.Context, ids []string) ([]Book, error)
}

// Index maps books by ID.
func Index(books []Book) map[string]Book {
	m := make(map[string]Book, len(books))
	for _, b := range books {
		m[b.ID] = b
	}
	return m
}

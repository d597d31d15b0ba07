// Package dashboard aggregates store-wide figures for administrators.
package dashboard

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/order"
)

const (
	// RecentOrders is how many of the newest orders a Summary carries.
	RecentOrders = 5
	// TopSellers is how many best-selling books a Summary carries.
	TopSellers = 5
)

// Summary is a point-in-time view of the store.
type Summary struct {
	TotalBooks  int
	TotalUsers  int
	TotalOrders int
	// TotalRevenue sums the totals of every order that was not cancelled.
	TotalRevenue  decimal.Decimal
	PendingOrders int
	RecentOrders  []order.Order
	TopSellers    []book.Book
}

// Source computes a Summary with at most recent orders and top books.
type Source interface {
	Summary(ctx context.Context, recent, top int) (*Summary, error)
}

// Service serves the admin dashboard.
type Service struct {
	source Source
	now    func() time.Time
}

// NewService creates a dashboard Service.
func NewService(source Source) *Service {
	return &Service{source: source, now: time.Now}
}

// Summary returns the current store figures.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	start := s.now()
	sum, err := s.source.Summary(ctx, RecentOrders, TopSellers)
	if err != nil {
		return nil, errors.Wrap(err, "dashboard summary")
	}
	zctx.From(ctx).Debug("Dashboard summary computed",
		zap.Int("orders", sum.TotalOrders),
		zap.Duration("took", s.now().Sub(start)),
	)
	return sum, nil
}

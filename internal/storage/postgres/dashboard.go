package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bookstore/internal/domain/dashboard"
)

const dashboardTotalsSQL = `SELECT
	(SELECT count(*) FROM books),
	(SELECT count(*) FROM users),
	(SELECT count(*) FROM orders),
	(SELECT COALESCE(sum(total), 0) FROM orders WHERE status <> 'CANCELLED'),
	(SELECT count(*) FROM orders WHERE status = 'PENDING')`

var _ dashboard.Source = (*DashboardRepository)(nil)

// DashboardRepository computes admin dashboard figures with aggregate queries.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository returns a DashboardRepository that uses the given pool.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// Summary runs the totals, recent orders and top sellers queries concurrently.
// The figures are not taken from a single snapshot.
func (r *DashboardRepository) Summary(ctx context.Context, recent, top int) (*dashboard.Summary, error) {
	var sum dashboard.Summary
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := r.pool.QueryRow(ctx, dashboardTotalsSQL).Scan(
			&sum.TotalBooks, &sum.TotalUsers, &sum.TotalOrders, &sum.TotalRevenue, &sum.PendingOrders,
		)
		if err != nil {
			return fmt.Errorf("dashboard totals: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		orders, err := listOrders(ctx, r.pool, listOrdersSQL, "", recent, 0)
		if err != nil {
			return fmt.Errorf("recent orders: %w", err)
		}
		sum.RecentOrders = orders
		return nil
	})
	g.Go(func() error {
		rows, err := r.pool.Query(ctx, topSellingBooksSQL, top)
		if err != nil {
			return fmt.Errorf("top selling books: %w", err)
		}
		books, err := pgx.CollectRows(rows, scanBook)
		if err != nil {
			return fmt.Errorf("top selling books: %w", err)
		}
		sum.TopSellers = books
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &sum, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
)

const (
	cartLinesSQL = `SELECT book_id, quantity FROM cart_lines WHERE user_id = $1 ORDER BY book_id`

	// addCartLineSQL inserts or increments a line in one statement. The stock
	// guard is evaluated against the incremented quantity, so concurrent adds
	// compose and never exceed stock. No returned row means the guard refused.
	addCartLineSQL = `INSERT INTO cart_lines (user_id, book_id, quantity)
		SELECT $1, b.id, $3 FROM books b
		WHERE b.id = $2 AND b.is_active AND b.stock >= $3
		ON CONFLICT (user_id, book_id) DO UPDATE
			SET quantity = cart_lines.quantity + EXCLUDED.quantity, updated_at = now()
			WHERE (SELECT b.stock FROM books b WHERE b.id = EXCLUDED.book_id AND b.is_active)
				>= cart_lines.quantity + EXCLUDED.quantity
		RETURNING quantity`

	setCartLineSQL = `INSERT INTO cart_lines (user_id, book_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, book_id) DO UPDATE
			SET quantity = EXCLUDED.quantity, updated_at = now()`

	removeCartLineSQL = `DELETE FROM cart_lines WHERE user_id = $1 AND book_id = $2`

	clearCartSQL = `DELETE FROM cart_lines WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Lines returns the user's cart lines ordered by book ID.
func (r *CartRepository) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	return queryCartLines(ctx, r.pool, cartLinesSQL, userID)
}

// Add increments the user's line for bookID by qty, creating it when absent.
func (r *CartRepository) Add(ctx context.Context, userID, bookID string, qty int) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, addCartLineSQL, userID, bookID, qty).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, book.ErrOutOfStock
		}
		return 0, fmt.Errorf("adding %d of %q to cart: %w", qty, bookID, err)
	}
	return total, nil
}

// Set replaces the quantity of the user's line for bookID.
func (r *CartRepository) Set(ctx context.Context, userID, bookID string, qty int) error {
	if _, err := r.pool.Exec(ctx, setCartLineSQL, userID, bookID, qty); err != nil {
		return fmt.Errorf("setting cart line %q: %w", bookID, err)
	}
	return nil
}

// Remove deletes the user's line for bookID if present.
func (r *CartRepository) Remove(ctx context.Context, userID, bookID string) error {
	if _, err := r.pool.Exec(ctx, removeCartLineSQL, userID, bookID); err != nil {
		return fmt.Errorf("removing cart line %q: %w", bookID, err)
	}
	return nil
}

// Clear deletes every line of the user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

func queryCartLines(ctx context.Context, q querier, sql, userID string) ([]cart.Line, error) {
	rows, err := q.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart lines: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.BookID, &l.Quantity)
		return l, err
	})
}

package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/order"
	"github.com/xenking/bookstore/pkg/pagination"
)

const (
	orderColumns = `id, order_number, user_id, COALESCE(idempotency_key, ''), status,
		subtotal, tax, shipping_cost, total,
		shipping_address, shipping_city, shipping_country, shipping_zip_code,
		payment_method, notes, created_at, updated_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByIdempotencyKeySQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 AND idempotency_key = $2`

	listUserOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	countUserOrdersSQL = `SELECT count(*) FROM orders WHERE user_id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	countOrdersSQL = `SELECT count(*) FROM orders WHERE ($1 = '' OR status = $1)`

	orderItemsSQL = `SELECT order_id, book_id, title, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	lockUserSQL = `SELECT id FROM users WHERE id = $1 FOR UPDATE`

	lockCartLinesSQL = `SELECT book_id, quantity FROM cart_lines
		WHERE user_id = $1 ORDER BY book_id FOR UPDATE`

	lockBooksSQL = `SELECT ` + bookColumns + ` FROM books
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	insertOrderSQL = `INSERT INTO orders (
			id, order_number, user_id, idempotency_key, status,
			subtotal, tax, shipping_cost, total,
			shipping_address, shipping_city, shipping_country, shipping_zip_code,
			payment_method, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (order_number) DO NOTHING`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, position, book_id, title, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)`

	consumeStockSQL = `UPDATE books SET stock = stock - $2, sold = sold + $2, updated_at = now()
		WHERE id = $1 AND is_active AND stock >= $2`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// InTx runs fn inside a READ COMMITTED transaction. Checkout correctness
// relies on the explicit row locks taken by orderTx.
func (s *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{tx: tx})
	})
}

// Get returns an order with its items.
func (s *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, s.pool, getOrderSQL, id)
}

// ListByUser returns a page of the user's orders and the user's order count.
func (s *OrderStore) ListByUser(ctx context.Context, userID string, page pagination.Page) ([]order.Order, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, countUserOrdersSQL, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	orders, err := listOrders(ctx, s.pool, listUserOrdersSQL, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// List returns a page of all orders matching filter and the matching count.
func (s *OrderStore) List(ctx context.Context, filter order.Filter, page pagination.Page) ([]order.Order, int, error) {
	status := string(filter.Status)

	var total int
	if err := s.pool.QueryRow(ctx, countOrdersSQL, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	orders, err := listOrders(ctx, s.pool, listOrdersSQL, status, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus sets the status when the stored one still equals from.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	o, err := getOrder(ctx, s.pool, updateOrderStatusSQL, id, from, to)
	if err == nil || !errors.Is(err, order.ErrNotFound) {
		return o, err
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking order %q: %w", id, err)
	}
	if exists {
		return nil, order.ErrStatusChanged
	}
	return nil, order.ErrNotFound
}

// orderTx implements order.Tx on an open transaction.
type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) LockUser(ctx context.Context, userID string) error {
	var id string
	if err := t.tx.QueryRow(ctx, lockUserSQL, userID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.ErrUserNotFound
		}
		return fmt.Errorf("locking user %q: %w", userID, err)
	}
	return nil
}

func (t *orderTx) FindByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	return getOrder(ctx, t.tx, getOrderByIdempotencyKeySQL, userID, key)
}

func (t *orderTx) CartLines(ctx context.Context, userID string) ([]cart.Line, error) {
	return queryCartLines(ctx, t.tx, lockCartLinesSQL, userID)
}

func (t *orderTx) LockBooks(ctx context.Context, ids []string) ([]book.Book, error) {
	return queryBooks(ctx, t.tx, lockBooksSQL, ids)
}

func (t *orderTx) Insert(ctx context.Context, o *order.Order) (bool, error) {
	tag, err := t.tx.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.UserID, nullString(o.IdempotencyKey), o.Status,
		o.Subtotal, o.Tax, o.ShippingCost, o.Total,
		o.Shipping.Address, o.Shipping.City, o.Shipping.Country, o.Shipping.ZipCode,
		o.PaymentMethod, o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(insertOrderItemSQL, o.ID, i, it.BookID, it.Title, it.Quantity, it.UnitPrice)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, fmt.Errorf("creating items of order %q: %w", o.ID, err)
	}
	return true, nil
}

func (t *orderTx) ConsumeStock(ctx context.Context, bookID string, qty int) error {
	tag, err := t.tx.Exec(ctx, consumeStockSQL, bookID, qty)
	if err != nil {
		return fmt.Errorf("consuming stock of %q: %w", bookID, err)
	}
	if tag.RowsAffected() == 0 {
		return book.ErrOutOfStock
	}
	return nil
}

func (t *orderTx) ClearCart(ctx context.Context, userID string) error {
	if _, err := t.tx.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

func getOrder(ctx context.Context, q querier, sql string, args ...any) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	orders := []order.Order{o}
	if err := attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func listOrders(ctx context.Context, q querier, sql string, args ...any) ([]order.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the items of all orders with a single query.
func attachItems(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := q.Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      order.Item
		)
		if err := rows.Scan(&orderID, &it.BookID, &it.Title, &it.Quantity, &it.UnitPrice); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.IdempotencyKey, &o.Status,
		&o.Subtotal, &o.Tax, &o.ShippingCost, &o.Total,
		&o.Shipping.Address, &o.Shipping.City, &o.Shipping.Country, &o.Shipping.ZipCode,
		&o.PaymentMethod, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/pkg/pagination"
)

const (
	bookColumns = `id, title, author, category, price, stock, sold, is_active`

	getBookByIDSQL = `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	getBooksByIDsSQL = `SELECT ` + bookColumns + ` FROM books WHERE id = ANY($1) ORDER BY id`

	// catalogFilterSQL expects $1 search pattern, $2 category, $3 min price,
	// $4 max price and $5 in-stock flag.
	catalogFilterSQL = ` WHERE is_active
		AND ($1 = '' OR title ILIKE $1 OR author ILIKE $1)
		AND ($2 = '' OR lower(category) = lower($2))
		AND ($3::numeric IS NULL OR price >= $3)
		AND ($4::numeric IS NULL OR price <= $4)
		AND (NOT $5 OR stock > 0)`

	listBooksSQL = `SELECT ` + bookColumns + ` FROM books` + catalogFilterSQL

	countBooksSQL = `SELECT count(*) FROM books` + catalogFilterSQL

	topSellingBooksSQL = `SELECT ` + bookColumns + ` FROM books
		ORDER BY sold DESC, id LIMIT $1`

	upsertBookSQL = `INSERT INTO books (id, title, author, category, price, stock, sold, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			category = EXCLUDED.category,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			is_active = EXCLUDED.is_active,
			updated_at = now()`
)

var (
	_ book.Repository = (*BookRepository)(nil)
	_ book.Catalog    = (*BookRepository)(nil)
)

// catalogOrder maps each sort to a fixed ORDER BY clause; id breaks ties so
// paging is stable.
var catalogOrder = map[book.Sort]string{
	book.SortNewest:      ` ORDER BY created_at DESC, id`,
	book.SortPriceAsc:    ` ORDER BY price ASC, id`,
	book.SortPriceDesc:   ` ORDER BY price DESC, id`,
	book.SortTitle:       ` ORDER BY lower(title), id`,
	book.SortBestselling: ` ORDER BY sold DESC, id`,
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// BookRepository implements book.Repository backed by PostgreSQL.
type BookRepository struct {
	pool *pgxpool.Pool
}

// NewBookRepository returns a BookRepository that uses the given pool.
func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

// GetByID returns a single book, listed or not.
func (r *BookRepository) GetByID(ctx context.Context, id string) (*book.Book, error) {
	rows, err := r.pool.Query(ctx, getBookByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting book %q: %w", id, err)
	}

	b, err := pgx.CollectExactlyOneRow(rows, scanBook)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, book.ErrNotFound
		}
		return nil, fmt.Errorf("getting book %q: %w", id, err)
	}
	return &b, nil
}

// GetByIDs returns the books matching any of the given IDs, ordered by ID.
func (r *BookRepository) GetByIDs(ctx context.Context, ids []string) ([]book.Book, error) {
	return queryBooks(ctx, r.pool, getBooksByIDsSQL, ids)
}

// List returns a page of active books matching filter and the matching count.
func (r *BookRepository) List(ctx context.Context, filter book.Filter, page pagination.Page) ([]book.Book, int, error) {
	orderBy, ok := catalogOrder[filter.Sort]
	if !ok {
		orderBy = catalogOrder[book.SortNewest]
	}

	var search string
	if s := strings.TrimSpace(filter.Search); s != "" {
		search = "%" + likeEscaper.Replace(s) + "%"
	}
	args := []any{search, filter.Category, filter.MinPrice, filter.MaxPrice, filter.InStock}

	var total int
	if err := r.pool.QueryRow(ctx, countBooksSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting books: %w", err)
	}

	rows, err := r.pool.Query(ctx, listBooksSQL+orderBy+` LIMIT $6 OFFSET $7`,
		append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing books: %w", err)
	}
	books, err := pgx.CollectRows(rows, scanBook)
	if err != nil {
		return nil, 0, fmt.Errorf("listing books: %w", err)
	}
	return books, total, nil
}

// Upsert creates or replaces a catalog entry, keeping its sales counter. It
// backs the seed tool.
func (r *BookRepository) Upsert(ctx context.Context, b book.Book) error {
	_, err := r.pool.Exec(ctx, upsertBookSQL, b.ID, b.Title, b.Author, b.Category, b.Price, b.Stock, b.Sold, b.IsActive)
	if err != nil {
		return fmt.Errorf("upserting book %q: %w", b.ID, err)
	}
	return nil
}

func queryBooks(ctx context.Context, q querier, sql string, ids []string) ([]book.Book, error) {
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return nil, fmt.Errorf("getting books by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanBook)
}

func scanBook(row pgx.CollectableRow) (book.Book, error) {
	var b book.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Category, &b.Price, &b.Stock, &b.Sold, &b.IsActive)
	return b, err
}

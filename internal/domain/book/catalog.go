package book

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/pkg/pagination"
)

// ErrInvalidFilter is returned for catalog queries that cannot match anything
// meaningful, such as an unknown sort or an inverted price range.
var ErrInvalidFilter = errors.New("invalid catalog filter")

// Sort orders a catalog listing.
type Sort string

const (
	SortNewest      Sort = "newest"
	SortPriceAsc    Sort = "price_asc"
	SortPriceDesc   Sort = "price_desc"
	SortTitle       Sort = "title"
	SortBestselling Sort = "bestselling"
)

// ParseSort maps a query value to a Sort. The empty string means SortNewest.
func ParseSort(s string) (Sort, error) {
	switch v := Sort(s); v {
	case "":
		return SortNewest, nil
	case SortNewest, SortPriceAsc, SortPriceDesc, SortTitle, SortBestselling:
		return v, nil
	default:
		return "", errors.Wrapf(ErrInvalidFilter, "unknown sort %q", s)
	}
}

// Filter narrows a catalog listing. Only active books are ever listed.
type Filter struct {
	// Search matches title or author, case-insensitively.
	Search   string
	Category string
	MinPrice decimal.NullDecimal
	MaxPrice decimal.NullDecimal
	InStock  bool
	Sort     Sort
}

// Validate rejects negative or inverted price bounds.
func (f Filter) Validate() error {
	if f.MinPrice.Valid && f.MinPrice.Decimal.IsNegative() {
		return errors.Wrap(ErrInvalidFilter, "minPrice is negative")
	}
	if f.MaxPrice.Valid && f.MaxPrice.Decimal.IsNegative() {
		return errors.Wrap(ErrInvalidFilter, "maxPrice is negative")
	}
	if f.MinPrice.Valid && f.MaxPrice.Valid && f.MinPrice.Decimal.GreaterThan(f.MaxPrice.Decimal) {
		return errors.Wrap(ErrInvalidFilter, "minPrice exceeds maxPrice")
	}
	return nil
}

// Catalog is the storage behind catalog browsing.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*Book, error)
	List(ctx context.Context, filter Filter, page pagination.Page) ([]Book, int, error)
}

// List is one page of books.
type List struct {
	Books []Book
	Total int
	Page  pagination.Page
}

// Service serves read-only catalog queries.
type Service struct {
	catalog Catalog
	paging  pagination.Params
}

// NewService creates a catalog Service.
func NewService(catalog Catalog, paging pagination.Params) *Service {
	return &Service{catalog: catalog, paging: paging}
}

// List returns a page of active books matching filter.
func (s *Service) List(ctx context.Context, filter Filter, page, limit int) (*List, error) {
	if filter.Sort == "" {
		filter.Sort = SortNewest
	}
	if _, err := ParseSort(string(filter.Sort)); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	p := s.paging.Normalize(page, limit)
	books, total, err := s.catalog.List(ctx, filter, p)
	if err != nil {
		return nil, errors.Wrap(err, "list books")
	}
	return &List{Books: books, Total: total, Page: p}, nil
}

// Get returns a listed book. Delisted books are reported as ErrInactive.
func (s *Service) Get(ctx context.Context, id string) (*Book, error) {
	b, err := s.catalog.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get book")
	}
	if !b.IsActive {
		return nil, ErrInactive
	}
	return b, nil
}

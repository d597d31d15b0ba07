package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/book"
)

// Service encapsulates cart business logic. It keeps no state between calls:
// every result is priced from the current lines and the current book prices.
type Service struct {
	lines   Repository
	books   book.Repository
	pricing Pricing
}

// NewService creates a cart Service.
func NewService(lines Repository, books book.Repository, pricing Pricing) *Service {
	return &Service{
		lines:   lines,
		books:   books,
		pricing: pricing,
	}
}

// Pricing returns the constants the service prices with.
func (s *Service) Pricing() Pricing {
	return s.pricing
}

// Cart loads the user's lines and prices them.
func (s *Service) Cart(ctx context.Context, userID string) (*Priced, error) {
	lines, err := s.lines.Lines(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart lines")
	}
	if len(lines) == 0 {
		p := Price(nil, nil, s.pricing)
		return &p, nil
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.BookID
	}
	books, err := s.books.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get books")
	}

	p := Price(lines, book.Index(books), s.pricing)
	if len(p.Unavailable) > 0 {
		zctx.From(ctx).Warn("Cart has unavailable books",
			zap.String("user_id", userID),
			zap.Strings("book_ids", p.Unavailable),
		)
	}
	return &p, nil
}

// Add puts qty units of a book into the cart, incrementing an existing line.
// The book must be active and its stock must cover the resulting line
// quantity.
func (s *Service) Add(ctx context.Context, userID, bookID string, qty int) (*Priced, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	b, err := s.activeBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if b.Stock < qty {
		return nil, &book.InsufficientStockError{BookID: bookID, Requested: qty, Available: b.Stock}
	}

	newQty, err := s.lines.Add(ctx, userID, bookID, qty)
	if err != nil {
		if errors.Is(err, book.ErrOutOfStock) {
			// Stock may have moved since the lookup above; report what the
			// guard saw as closely as we can.
			return nil, &book.InsufficientStockError{BookID: bookID, Requested: qty, Available: b.Stock}
		}
		return nil, errors.Wrap(err, "add cart line")
	}

	zctx.From(ctx).Debug("Cart line added",
		zap.String("user_id", userID),
		zap.String("book_id", bookID),
		zap.Int("quantity", newQty),
	)
	return s.Cart(ctx, userID)
}

// SetQuantity sets a line to exactly qty, deleting it when qty <= 0. Stock is
// not checked here; checkout validates it authoritatively.
func (s *Service) SetQuantity(ctx context.Context, userID, bookID string, qty int) (*Priced, error) {
	if qty <= 0 {
		return s.Remove(ctx, userID, bookID)
	}
	if _, err := s.activeBook(ctx, bookID); err != nil {
		return nil, err
	}
	if err := s.lines.Set(ctx, userID, bookID, qty); err != nil {
		return nil, errors.Wrap(err, "set cart line")
	}
	return s.Cart(ctx, userID)
}

// Remove deletes a line. Removing a line that does not exist succeeds.
func (s *Service) Remove(ctx context.Context, userID, bookID string) (*Priced, error) {
	if err := s.lines.Remove(ctx, userID, bookID); err != nil {
		return nil, errors.Wrap(err, "remove cart line")
	}
	return s.Cart(ctx, userID)
}

// Clear deletes every line of the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) (*Priced, error) {
	if err := s.lines.Clear(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}
	return s.Cart(ctx, userID)
}

func (s *Service) activeBook(ctx context.Context, bookID string) (*book.Book, error) {
	b, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, book.ErrNotFound) {
			return nil, book.ErrNotFound
		}
		return nil, errors.Wrap(err, "get book")
	}
	if !b.IsActive {
		return nil, book.ErrInactive
	}
	return b, nil
}

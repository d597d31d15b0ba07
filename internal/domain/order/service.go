package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/pkg/pagination"
)

const instrumentationName = "github.com/xenking/bookstore/internal/domain/order"

// CheckoutRequest holds the caller-supplied part of an order.
type CheckoutRequest struct {
	Shipping       Shipping
	PaymentMethod  string
	Notes          string
	IdempotencyKey string
}

// List is one page of orders.
type List struct {
	Orders []Order
	Total  int
	Page   pagination.Page
}

// Config holds the business constants the order service applies.
type Config struct {
	Pricing cart.Pricing
	Policy  Policy
	Paging  pagination.Params
}

// Service encapsulates checkout and order lifecycle business logic.
type Service struct {
	store Store
	cfg   Config

	now       func() time.Time
	newNumber func(time.Time) string

	tracer    trace.Tracer
	checkouts metric.Int64Counter
	unitsSold metric.Int64Counter
	revenue   metric.Float64Counter
}

// NewService creates an order Service.
func NewService(store Store, cfg Config, mp metric.MeterProvider, tp trace.TracerProvider) (*Service, error) {
	if err := cfg.Pricing.Validate(); err != nil {
		return nil, errors.Wrap(err, "pricing")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, errors.Wrap(err, "status policy")
	}

	meter := mp.Meter(instrumentationName)
	s := &Service{
		store:     store,
		cfg:       cfg,
		now:       time.Now,
		newNumber: NewNumber,
		tracer:    tp.Tracer(instrumentationName),
	}

	var err error
	if s.checkouts, err = meter.Int64Counter("bookstore.checkout.attempts",
		metric.WithDescription("Checkout attempts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "checkout counter")
	}
	if s.unitsSold, err = meter.Int64Counter("bookstore.checkout.units",
		metric.WithDescription("Book units sold through checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "units counter")
	}
	if s.revenue, err = meter.Float64Counter("bookstore.checkout.revenue",
		metric.WithDescription("Order totals committed through checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "revenue counter")
	}

	return s, nil
}

// Checkout converts the user's cart into an order. Stock validation, order
// creation, inventory adjustment and cart clearing commit together or not at
// all. A repeated idempotency key returns the order created by the first
// request.
func (s *Service) Checkout(ctx context.Context, userID string, req CheckoutRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	outcome := "created"
	defer func() {
		if rerr != nil {
			outcome = checkoutOutcome(rerr)
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.SetAttributes(attribute.String("checkout.outcome", outcome))
		s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		span.End()
	}()

	var (
		created  *Order
		replayed bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, dup, err := s.commit(ctx, tx, userID, req)
		if err != nil {
			return err
		}
		created, replayed = o, dup
		return nil
	})
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(
		zap.String("user_id", userID),
		zap.String("order_number", created.Number),
	)
	if replayed {
		outcome = "replayed"
		lg.Info("Checkout replayed", zap.String("idempotency_key", req.IdempotencyKey))
		return created, nil
	}

	units := 0
	for _, it := range created.Items {
		units += it.Quantity
	}
	s.unitsSold.Add(ctx, int64(units))
	s.revenue.Add(ctx, created.Total.InexactFloat64())
	span.SetAttributes(attribute.String("order.number", created.Number))

	lg.Info("Order created",
		zap.Int("items", len(created.Items)),
		zap.Int("units", units),
		zap.Stringer("total", created.Total),
	)
	return created, nil
}

func (s *Service) commit(ctx context.Context, tx Tx, userID string, req CheckoutRequest) (*Order, bool, error) {
	if err := tx.LockUser(ctx, userID); err != nil {
		return nil, false, errors.Wrap(err, "lock user")
	}

	if req.IdempotencyKey != "" {
		existing, err := tx.FindByIdempotencyKey(ctx, userID, req.IdempotencyKey)
		switch {
		case err == nil:
			return existing, true, nil
		case !errors.Is(err, ErrNotFound):
			return nil, false, errors.Wrap(err, "find by idempotency key")
		}
	}

	lines, err := tx.CartLines(ctx, userID)
	if err != nil {
		return nil, false, errors.Wrap(err, "get cart lines")
	}
	if len(lines) == 0 {
		return nil, false, ErrEmptyCart
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.BookID
	}
	slices.Sort(ids)
	locked, err := tx.LockBooks(ctx, ids)
	if err != nil {
		return nil, false, errors.Wrap(err, "lock books")
	}
	books := book.Index(locked)

	for _, l := range lines {
		b, ok := books[l.BookID]
		if !ok || !b.IsActive {
			return nil, false, &book.InsufficientStockError{BookID: l.BookID, Requested: l.Quantity}
		}
		if !b.CanFulfil(l.Quantity) {
			return nil, false, &book.InsufficientStockError{BookID: l.BookID, Requested: l.Quantity, Available: b.Stock}
		}
	}

	priced := cart.Price(lines, books, s.cfg.Pricing)
	now := s.now().UTC()
	o := &Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         StatusPending,
		Items:          make([]Item, len(priced.Lines)),
		Subtotal:       priced.Subtotal,
		Tax:            priced.Tax,
		ShippingCost:   priced.Shipping,
		Total:          priced.Total,
		Shipping:       req.Shipping,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i, l := range priced.Lines {
		o.Items[i] = Item{
			BookID:    l.BookID,
			Title:     l.Title,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}

	if err := s.insert(ctx, tx, o); err != nil {
		return nil, false, err
	}

	for _, it := range o.Items {
		if err := tx.ConsumeStock(ctx, it.BookID, it.Quantity); err != nil {
			if errors.Is(err, book.ErrOutOfStock) {
				return nil, false, &book.InsufficientStockError{
					BookID:    it.BookID,
					Requested: it.Quantity,
					Available: books[it.BookID].Stock,
				}
			}
			return nil, false, errors.Wrapf(err, "consume stock of %s", it.BookID)
		}
	}

	if err := tx.ClearCart(ctx, userID); err != nil {
		return nil, false, errors.Wrap(err, "clear cart")
	}
	return o, false, nil
}

// insert stores o under a freshly generated number, regenerating on
// collision.
func (s *Service) insert(ctx context.Context, tx Tx, o *Order) error {
	for range MaxNumberAttempts {
		o.Number = s.newNumber(s.now())
		ok, err := tx.Insert(ctx, o)
		if err != nil {
			return errors.Wrap(err, "insert order")
		}
		if ok {
			return nil
		}
		zctx.From(ctx).Warn("Order number collision, regenerating", zap.String("order_number", o.Number))
	}
	return ErrOrderNumberExhausted
}

func checkoutOutcome(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, book.ErrOutOfStock):
		return "insufficient_stock"
	case errors.Is(err, ErrOrderNumberExhausted):
		return "number_exhausted"
	default:
		return "error"
	}
}

// ListForUser returns the caller's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, page, limit int) (*List, error) {
	p := s.cfg.Paging.Normalize(page, limit)
	orders, total, err := s.store.ListByUser(ctx, userID, p)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return &List{Orders: orders, Total: total, Page: p}, nil
}

// Get returns an order visible to the caller. Orders of other users are
// reported as ErrNotFound unless the caller is an admin.
func (s *Service) Get(ctx context.Context, caller auth.Identity, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, ErrNotFound
	}
	return o, nil
}

// List returns all orders matching filter, newest first.
func (s *Service) List(ctx context.Context, filter Filter, page, limit int) (*List, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, errors.Wrapf(ErrInvalidStatus, "%q", filter.Status)
	}
	p := s.cfg.Paging.Normalize(page, limit)
	orders, total, err := s.store.List(ctx, filter, p)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &List{Orders: orders, Total: total, Page: p}, nil
}

// UpdateStatus moves an order to status to when the policy allows it.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	if !to.IsValid() {
		return nil, errors.Wrapf(ErrInvalidStatus, "%q", to)
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if !s.cfg.Policy.CanTransition(o.Status, to) {
		return nil, &TransitionError{From: o.Status, To: to}
	}

	updated, err := s.store.UpdateStatus(ctx, orderID, o.Status, to)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			return nil, ErrStatusChanged
		}
		return nil, errors.Wrap(err, "update order status")
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_number", updated.Number),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

package order

import (
	"context"
	"maps"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/pkg/pagination"
)

// --- Mock implementations ---

// memState is the committed content of memStore.
type memState struct {
	books  map[string]book.Book
	carts  map[string]map[string]int
	orders map[string]Order
}

func (s memState) clone() memState {
	c := memState{
		books:  maps.Clone(s.books),
		carts:  make(map[string]map[string]int, len(s.carts)),
		orders: maps.Clone(s.orders),
	}
	for u, lines := range s.carts {
		c.carts[u] = maps.Clone(lines)
	}
	return c
}

// memStore runs transactions one at a time against a copy of its state and
// swaps the copy in on success, standing in for row locks and rollback.
type memStore struct {
	mu    sync.Mutex
	state memState

	// failAfter names the Tx step after which the transaction fails.
	failAfter string
	// takenNumbers makes Insert report a collision for these numbers.
	takenNumbers map[string]bool
	// consumeShortfall makes ConsumeStock report ErrOutOfStock.
	consumeShortfall bool
}

var errInjected = errors.New("injected failure")

func newMemStore(books ...book.Book) *memStore {
	st := memState{
		books:  make(map[string]book.Book),
		carts:  make(map[string]map[string]int),
		orders: make(map[string]Order),
	}
	for _, b := range books {
		st.books[b.ID] = b
	}
	return &memStore{state: st, takenNumbers: make(map[string]bool)}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, state: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *memStore) sorted(keep func(Order) bool, page pagination.Page) ([]Order, int) {
	var all []Order
	for _, o := range m.state.orders {
		if keep(o) {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := min(page.Offset(), total)
	end := min(start+page.Limit, total)
	return all[start:end], total
}

func (m *memStore) ListByUser(_ context.Context, userID string, page pagination.Page) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, total := m.sorted(func(o Order) bool { return o.UserID == userID }, page)
	return out, total, nil
}

func (m *memStore) List(_ context.Context, filter Filter, page pagination.Page) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, total := m.sorted(func(o Order) bool { return filter.Status == "" || o.Status == filter.Status }, page)
	return out, total, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id string, from, to Status) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.Status != from {
		return nil, ErrStatusChanged
	}
	o.Status = to
	m.state.orders[id] = o
	return &o, nil
}

func (m *memStore) addToCart(userID, bookID string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.carts[userID] == nil {
		m.state.carts[userID] = make(map[string]int)
	}
	m.state.carts[userID][bookID] += qty
}

func (m *memStore) cartSize(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.carts[userID])
}

func (m *memStore) book(id string) book.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.books[id]
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

type memTx struct {
	store *memStore
	state memState
}

func (t *memTx) step(name string) error {
	if t.store.failAfter == name {
		return errInjected
	}
	return nil
}

func (t *memTx) LockUser(context.Context, string) error {
	return t.step("lock_user")
}

func (t *memTx) FindByIdempotencyKey(_ context.Context, userID, key string) (*Order, error) {
	for _, o := range t.state.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) CartLines(_ context.Context, userID string) ([]cart.Line, error) {
	var out []cart.Line
	for id, q := range t.state.carts[userID] {
		out = append(out, cart.Line{BookID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out, t.step("cart_lines")
}

func (t *memTx) LockBooks(_ context.Context, ids []string) ([]book.Book, error) {
	var out []book.Book
	for _, id := range ids {
		if b, ok := t.state.books[id]; ok {
			out = append(out, b)
		}
	}
	return out, t.step("lock_books")
}

func (t *memTx) Insert(_ context.Context, o *Order) (bool, error) {
	if t.store.takenNumbers[o.Number] {
		return false, nil
	}
	for _, existing := range t.state.orders {
		if existing.Number == o.Number {
			return false, nil
		}
	}
	t.state.orders[o.ID] = *o
	return true, t.step("insert")
}

func (t *memTx) ConsumeStock(_ context.Context, bookID string, qty int) error {
	b := t.state.books[bookID]
	if t.store.consumeShortfall || !b.IsActive || b.Stock < qty {
		return book.ErrOutOfStock
	}
	b.Stock -= qty
	b.Sold += qty
	t.state.books[bookID] = b
	return t.step("consume_stock")
}

func (t *memTx) ClearCart(_ context.Context, userID string) error {
	delete(t.state.carts, userID)
	return t.step("clear_cart")
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestBook(id, price string, stock int) book.Book {
	return book.Book{ID: id, Title: "Book " + id, Price: dec(price), Stock: stock, IsActive: true}
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(store, Config{
		Pricing: cart.DefaultPricing(),
		Policy:  DefaultPolicy(),
		Paging:  pagination.DefaultParams(),
	}, metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
	require.NoError(t, err)
	return svc
}

func testCheckoutRequest() CheckoutRequest {
	return CheckoutRequest{
		Shipping: Shipping{
			Address: "1 Main St",
			City:    "Springfield",
			Country: "US",
			ZipCode: "12345",
		},
		PaymentMethod: "credit_card",
	}
}

// --- Tests ---

func TestService_Checkout(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(newTestBook("b1", "19.99", 5), newTestBook("b2", "30.00", 1))
	store.addToCart("u1", "b1", 2)
	store.addToCart("u1", "b2", 1)
	svc := newTestService(t, store)

	o, err := svc.Checkout(ctx, "u1", testCheckoutRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Regexp(t, `^ORD-\d+-[0-9A-F]{4}$`, o.Number)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "b1", o.Items[0].BookID)
	assert.True(t, dec("19.99").Equal(o.Items[0].UnitPrice))
	assert.True(t, dec("69.98").Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	assert.True(t, dec("6.998").Equal(o.Tax), "tax %s", o.Tax)
	assert.True(t, o.ShippingCost.IsZero())
	assert.True(t, o.Subtotal.Add(o.Tax).Add(o.ShippingCost).Equal(o.Total))
	assert.Equal(t, "Springfield", o.Shipping.City)
	assert.Equal(t, "credit_card", o.PaymentMethod)

	b1 := store.book("b1")
	assert.Equal(t, 3, b1.Stock)
	assert.Equal(t, 2, b1.Sold)
	b2 := store.book("b2")
	assert.Equal(t, 0, b2.Stock)
	assert.Equal(t, 1, b2.Sold)
	assert.Zero(t, store.cartSize("u1"))
}

func TestService_Checkout_EmptyCart(t *testing.T) {
	store := newMemStore(newTestBook("b1", "10", 5))
	svc := newTestService(t, store)

	_, err := svc.Checkout(context.Background(), "u1", testCheckoutRequest())
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, store.orderCount())
}

func TestService_Checkout_InsufficientStock(t *testing.T) {
	inactive := newTestBook("b3", "5.00", 10)
	inactive.IsActive = false

	tests := []struct {
		name      string
		setup     func(s *memStore)
		bookID    string
		available int
	}{
		{
			name:      "stock below quantity",
			setup:     func(s *memStore) { s.addToCart("u1", "b1", 1); s.addToCart("u1", "b2", 3) },
			bookID:    "b2",
			available: 2,
		},
		{
			name:      "inactive book",
			setup:     func(s *memStore) { s.addToCart("u1", "b1", 1); s.addToCart("u1", "b3", 1) },
			bookID:    "b3",
			available: 0,
		},
		{
			name:      "missing book",
			setup:     func(s *memStore) { s.addToCart("u1", "gone", 1) },
			bookID:    "gone",
			available: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(newTestBook("b1", "10", 5), newTestBook("b2", "10", 2), inactive)
			tt.setup(store)
			svc := newTestService(t, store)

			_, err := svc.Checkout(context.Background(), "u1", testCheckoutRequest())
			var stockErr *book.InsufficientStockError
			require.ErrorAs(t, err, &stockErr)
			assert.Equal(t, tt.bookID, stockErr.BookID)
			assert.Equal(t, tt.available, stockErr.Available)
			assert.ErrorIs(t, err, book.ErrOutOfStock)

			assert.Zero(t, store.orderCount())
			assert.Equal(t, 5, store.book("b1").Stock)
			assert.Zero(t, store.book("b1").Sold)
			assert.NotZero(t, store.cartSize("u1"))
		})
	}
}

func TestService_Checkout_GuardedDecrementRejects(t *testing.T) {
	store := newMemStore(newTestBook("b1", "10", 5))
	store.addToCart("u1", "b1", 1)
	store.consumeShortfall = true
	svc := newTestService(t, store)

	_, err := svc.Checkout(context.Background(), "u1", testCheckoutRequest())
	require.ErrorIs(t, err, book.ErrOutOfStock)
	assert.Zero(t, store.orderCount())
	assert.Equal(t, 1, store.cartSize("u1"))
}

func TestService_Checkout_FailureAtAnyStepLeavesNoTrace(t *testing.T) {
	steps := []string{"lock_user", "cart_lines", "lock_books", "insert", "consume_stock", "clear_cart"}

	for _, step := range steps {
		t.Run(step, func(t *testing.T) {
			store := newMemStore(newTestBook("b1", "10", 5), newTestBook("b2", "20", 5))
			store.addToCart("u1", "b1", 2)
			store.addToCart("u1", "b2", 1)
			store.failAfter = step
			svc := newTestService(t, store)

			_, err := svc.Checkout(context.Background(), "u1", testCheckoutRequest())
			require.ErrorIs(t, err, errInjected)

			assert.Zero(t, store.orderCount())
			for _, id := range []string{"b1", "b2"} {
				b := store.book(id)
				assert.Equal(t, 5, b.Stock, id)
				assert.Zero(t, b.Sold, id)
			}
			assert.Equal(t, 2, store.cartSize("u1"))
		})
	}
}

func TestService_Checkout_PriceFrozen(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(newTestBook("b1", "10.00", 5))
	store.addToCart("u1", "b1", 1)
	svc := newTestService(t, store)

	o, err := svc.Checkout(ctx, "u1", testCheckoutRequest())
	require.NoError(t, err)

	store.mu.Lock()
	b := store.state.books["b1"]
	b.Price = dec("99.00")
	store.state.books["b1"] = b
	store.mu.Unlock()

	got, err := svc.Get(ctx, auth.Identity{UserID: "u1", Role: auth.RoleCustomer}, o.ID)
	require.NoError(t, err)
	assert.True(t, dec("10.00").Equal(got.Items[0].UnitPrice))
	assert.True(t, dec("10.00").Equal(got.Subtotal))
}

func TestService_Checkout_RegeneratesCollidingNumber(t *testing.T) {
	store := newMemStore(newTestBook("b1", "10", 5))
	store.addToCart("u1", "b1", 1)
	store.takenNumbers["ORD-1"] = true
	store.takenNumbers["ORD-2"] = true
	svc := newTestService(t, store)

	var n atomic.Int32
	svc.newNumber = func(time.Time) string {
		return "ORD-" + strconv.Itoa(int(n.Add(1)))
	}

	o, err := svc.Checkout(context.Background(), "u1", testCheckoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "ORD-3", o.Number)
}

func TestService_Checkout_NumberExhausted(t *testing.T) {
	store := newMemStore(newTestBook("b1", "10", 5))
	store.addToCart("u1", "b1", 1)
	store.takenNumbers["ORD-X"] = true
	svc := newTestService(t, store)
	svc.newNumber = func(time.Time) string { return "ORD-X" }

	_, err := svc.Checkout(context.Background(), "u1", testCheckoutRequest())
	require.ErrorIs(t, err, ErrOrderNumberExhausted)
	assert.Zero(t, store.orderCount())
	assert.Equal(t, 5, store.book("b1").Stock)
}

func TestService_Checkout_IdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(newTestBook("b1", "10", 5))
	store.addToCart("u1", "b1", 1)
	svc := newTestService(t, store)

	req := testCheckoutRequest()
	req.IdempotencyKey = "retry-1"

	first, err := svc.Checkout(ctx, "u1", req)
	require.NoError(t, err)

	// A retry after the cart was refilled still returns the original order.
	store.addToCart("u1", "b1", 2)
	second, err := svc.Checkout(ctx, "u1", req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.orderCount())
	assert.Equal(t, 4, store.book("b1").Stock)
	assert.Equal(t, 1, store.cartSize("u1"))
}

func TestService_Checkout_LastUnitRace(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(newTestBook("b1", "10", 1))
	store.addToCart("u1", "b1", 1)
	store.addToCart("u2", "b1", 1)
	svc := newTestService(t, store)

	var (
		wg       sync.WaitGroup
		ok, fail atomic.Int32
	)
	for _, user := range []string{"u1", "u2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(ctx, user, testCheckoutRequest())
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, book.ErrOutOfStock):
				fail.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 1, fail.Load())
	b := store.book("b1")
	assert.Equal(t, 0, b.Stock)
	assert.Equal(t, 1, b.Sold)
}

func TestService_Checkout_DoubleSubmitSameCart(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(newTestBook("b1", "10", 10))
	store.addToCart("u1", "b1", 2)
	svc := newTestService(t, store)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Checkout(ctx, "u1", testCheckoutRequest())
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrEmptyCart)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 8, store.book("b1").Stock)
}

func TestService_Get_Visibility(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(newTestBook("b1", "10", 5))
	store.addToCart("u1", "b1", 1)
	svc := newTestService(t, store)

	o, err := svc.Checkout(ctx, "u1", testCheckoutRequest())
	require.NoError(t, err)

	_, err = svc.Get(ctx, auth.Identity{UserID: "u2", Role: auth.RoleCustomer}, o.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Get(ctx, auth.Identity{UserID: "admin", Role: auth.RoleAdmin}, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)

	_, err = svc.Get(ctx, auth.Identity{UserID: "u1", Role: auth.RoleCustomer}, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_ListForUser(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(newTestBook("b1", "10", 50))
	svc := newTestService(t, store)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		store.addToCart("u1", "b1", 1)
		_, err := svc.Checkout(ctx, "u1", testCheckoutRequest())
		require.NoError(t, err)
	}
	store.addToCart("u2", "b1", 1)
	_, err := svc.Checkout(ctx, "u2", testCheckoutRequest())
	require.NoError(t, err)

	list, err := svc.ListForUser(ctx, "u1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Orders, 2)
	assert.True(t, list.Orders[0].CreatedAt.After(list.Orders[1].CreatedAt))

	list, err = svc.ListForUser(ctx, "u1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, list.Orders, 1)

	list, err = svc.ListForUser(ctx, "u1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, pagination.Page{Page: 1, Limit: pagination.DefaultLimit}, list.Page)
}

func TestService_List_FiltersByStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(newTestBook("b1", "10", 50))
	svc := newTestService(t, store)

	var ids []string
	for _, u := range []string{"u1", "u2"} {
		store.addToCart(u, "b1", 1)
		o, err := svc.Checkout(ctx, u, testCheckoutRequest())
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}
	_, err := svc.UpdateStatus(ctx, ids[0], StatusProcessing)
	require.NoError(t, err)

	list, err := svc.List(ctx, Filter{Status: StatusProcessing}, 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, ids[0], list.Orders[0].ID)

	list, err = svc.List(ctx, Filter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)

	_, err = svc.List(ctx, Filter{Status: "LOST"}, 1, 10)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(newTestBook("b1", "10", 5))
	store.addToCart("u1", "b1", 1)
	svc := newTestService(t, store)

	o, err := svc.Checkout(ctx, "u1", testCheckoutRequest())
	require.NoError(t, err)

	for _, to := range []Status{StatusProcessing, StatusShipped, StatusDelivered} {
		o, err = svc.UpdateStatus(ctx, o.ID, to)
		require.NoError(t, err)
		assert.Equal(t, to, o.Status)
	}

	_, err = svc.UpdateStatus(ctx, o.ID, StatusCancelled)
	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusDelivered, trErr.From)

	_, err = svc.UpdateStatus(ctx, o.ID, "LOST")
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.UpdateStatus(ctx, "missing", StatusProcessing)
	require.ErrorIs(t, err, ErrNotFound)
}

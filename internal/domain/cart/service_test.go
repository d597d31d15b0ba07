package cart

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bookstore/internal/domain/book"
)

// --- Mock implementations ---

type mockBookRepo struct {
	byID   map[string]*book.Book
	getErr error
}

func (m *mockBookRepo) GetByID(_ context.Context, id string) (*book.Book, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	b, ok := m.byID[id]
	if !ok {
		return nil, book.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBookRepo) GetByIDs(_ context.Context, ids []string) ([]book.Book, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []book.Book
	for _, id := range ids {
		if b, ok := m.byID[id]; ok {
			out = append(out, *b)
		}
	}
	return out, nil
}

// memoryLines mirrors the storage contract: increments are applied under a
// lock together with the stock guard.
type memoryLines struct {
	mu     sync.Mutex
	books  *mockBookRepo
	qty    map[string]map[string]int
	addErr error
}

func newMemoryLines(books *mockBookRepo) *memoryLines {
	return &memoryLines{books: books, qty: make(map[string]map[string]int)}
}

func (m *memoryLines) Lines(_ context.Context, userID string) ([]Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Line
	for id, q := range m.qty[userID] {
		out = append(out, Line{BookID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out, nil
}

func (m *memoryLines) Add(_ context.Context, userID, bookID string, qty int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.addErr != nil {
		return 0, m.addErr
	}
	b, ok := m.books.byID[bookID]
	if !ok || !b.IsActive {
		return 0, book.ErrOutOfStock
	}
	next := m.qty[userID][bookID] + qty
	if b.Stock < next {
		return 0, book.ErrOutOfStock
	}
	if m.qty[userID] == nil {
		m.qty[userID] = make(map[string]int)
	}
	m.qty[userID][bookID] = next
	return next, nil
}

func (m *memoryLines) Set(_ context.Context, userID, bookID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.qty[userID] == nil {
		m.qty[userID] = make(map[string]int)
	}
	m.qty[userID][bookID] = qty
	return nil
}

func (m *memoryLines) Remove(_ context.Context, userID, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.qty[userID], bookID)
	return nil
}

func (m *memoryLines) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.qty, userID)
	return nil
}

// --- Helpers ---

func newBookRepo(books ...book.Book) *mockBookRepo {
	byID := make(map[string]*book.Book, len(books))
	for i := range books {
		byID[books[i].ID] = &books[i]
	}
	return &mockBookRepo{byID: byID}
}

func newTestService(books ...book.Book) (*Service, *memoryLines, *mockBookRepo) {
	repo := newBookRepo(books...)
	lines := newMemoryLines(repo)
	return NewService(lines, repo, DefaultPricing()), lines, repo
}

// --- Tests ---

func TestService_Add(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(newTestBook("b1", "19.99", 5))

	p, err := svc.Add(ctx, "u1", "b1", 2)
	require.NoError(t, err)
	require.Len(t, p.Lines, 1)
	assert.Equal(t, 2, p.ItemCount)
	assertDecimal(t, "39.98", p.Subtotal, "subtotal")

	p, err = svc.Add(ctx, "u1", "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Lines[0].Quantity)
}

func TestService_Add_InvalidQuantity(t *testing.T) {
	svc, _, _ := newTestService(newTestBook("b1", "10", 5))

	_, err := svc.Add(context.Background(), "u1", "b1", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestService_Add_BookNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Add(context.Background(), "u1", "missing", 1)
	require.ErrorIs(t, err, book.ErrNotFound)
}

func TestService_Add_BookInactive(t *testing.T) {
	b := newTestBook("b1", "10", 5)
	b.IsActive = false
	svc, lines, _ := newTestService(b)

	_, err := svc.Add(context.Background(), "u1", "b1", 1)
	require.ErrorIs(t, err, book.ErrInactive)
	assert.ErrorIs(t, err, book.ErrNotFound)

	got, _ := lines.Lines(context.Background(), "u1")
	assert.Empty(t, got)
}

func TestService_Add_OutOfStock(t *testing.T) {
	ctx := context.Background()
	svc, lines, _ := newTestService(newTestBook("b1", "10", 3))

	_, err := svc.Add(ctx, "u1", "b1", 4)
	var stockErr *book.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "b1", stockErr.BookID)
	assert.Equal(t, 4, stockErr.Requested)
	assert.Equal(t, 3, stockErr.Available)
	assert.ErrorIs(t, err, book.ErrOutOfStock)

	// Incrementing past stock is rejected and leaves the line untouched.
	_, err = svc.Add(ctx, "u1", "b1", 2)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "u1", "b1", 2)
	require.ErrorIs(t, err, book.ErrOutOfStock)

	got, err := lines.Lines(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Quantity)
}

func TestService_Add_StorageError(t *testing.T) {
	svc, lines, _ := newTestService(newTestBook("b1", "10", 3))
	lines.addErr = errors.New("connection reset")

	_, err := svc.Add(context.Background(), "u1", "b1", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add cart line")
	assert.NotErrorIs(t, err, book.ErrOutOfStock)
}

func TestService_Add_ConcurrentIncrementsCompose(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(newTestBook("b1", "1.00", 1000))

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Add(ctx, "u1", "b1", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := svc.Cart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, n, p.ItemCount)
}

func TestService_SetQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(newTestBook("b1", "10", 1))

	// No stock check on edits: the quantity may exceed stock until checkout.
	p, err := svc.SetQuantity(ctx, "u1", "b1", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, p.ItemCount)

	p, err = svc.SetQuantity(ctx, "u1", "b1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.ItemCount)

	p, err = svc.SetQuantity(ctx, "u1", "b1", 0)
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
}

func TestService_SetQuantity_RequiresActiveBook(t *testing.T) {
	b := newTestBook("b1", "10", 1)
	b.IsActive = false
	svc, _, _ := newTestService(b)

	_, err := svc.SetQuantity(context.Background(), "u1", "b1", 1)
	require.ErrorIs(t, err, book.ErrInactive)

	_, err = svc.SetQuantity(context.Background(), "u1", "nope", 1)
	require.ErrorIs(t, err, book.ErrNotFound)
}

func TestService_Remove(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(newTestBook("b1", "10", 5), newTestBook("b2", "20", 5))

	_, err := svc.Add(ctx, "u1", "b1", 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "u1", "b2", 1)
	require.NoError(t, err)

	p, err := svc.Remove(ctx, "u1", "b1")
	require.NoError(t, err)
	require.Len(t, p.Lines, 1)
	assert.Equal(t, "b2", p.Lines[0].BookID)

	// Removing an absent line is tolerated.
	p, err = svc.Remove(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.Len(t, p.Lines, 1)
}

func TestService_Clear_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(newTestBook("b1", "10", 5))

	_, err := svc.Add(ctx, "u1", "b1", 2)
	require.NoError(t, err)

	for range 2 {
		p, err := svc.Clear(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, p.IsEmpty())
		assert.True(t, p.Total.IsZero())
	}
}

func TestService_Cart_ReflectsPriceChanges(t *testing.T) {
	ctx := context.Background()
	svc, _, books := newTestService(newTestBook("b1", "10.00", 5))

	_, err := svc.Add(ctx, "u1", "b1", 1)
	require.NoError(t, err)

	books.byID["b1"].Price = dec("12.50")

	p, err := svc.Cart(ctx, "u1")
	require.NoError(t, err)
	assertDecimal(t, "12.50", p.Subtotal, "subtotal")
}

func TestService_Cart_FlagsDelistedBooks(t *testing.T) {
	ctx := context.Background()
	svc, _, books := newTestService(newTestBook("b1", "10.00", 5), newTestBook("b2", "5.00", 5))

	_, err := svc.Add(ctx, "u1", "b1", 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "u1", "b2", 1)
	require.NoError(t, err)

	books.byID["b2"].IsActive = false

	p, err := svc.Cart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b2"}, p.Unavailable)
	assertDecimal(t, "10.00", p.Subtotal, "subtotal")
}

func TestService_Cart_BookLookupError(t *testing.T) {
	ctx := context.Background()
	svc, _, books := newTestService(newTestBook("b1", "10.00", 5))

	_, err := svc.Add(ctx, "u1", "b1", 1)
	require.NoError(t, err)

	books.getErr = errors.New("db down")
	_, err = svc.Cart(ctx, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get books")
}

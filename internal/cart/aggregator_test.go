package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	"coffeehouse/internal/remote/remotetest"
	"coffeehouse/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedIdentity struct {
	id *domain.Identity
}

func (f *fixedIdentity) Current() *domain.Identity {
	return f.id
}

type stubResolver struct {
	items map[int64]domain.MenuItem
}

func (r stubResolver) Item(_ context.Context, id int64) (*domain.MenuItem, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

type recordingNotifier struct {
	orders []domain.Order
	err    error
}

func (n *recordingNotifier) OrderSubmitted(_ context.Context, o domain.Order) error {
	n.orders = append(n.orders, o)
	return n.err
}

// failingStore wraps Memory and fails the next Get, Set or Delete once each.
type failingStore struct {
	*storage.Memory
	getErr, setErr, deleteErr error
}

func (f *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := f.getErr; err != nil {
		f.getErr = nil
		return "", false, err
	}
	return f.Memory.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if err := f.setErr; err != nil {
		f.setErr = nil
		return err
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *failingStore) Delete(ctx context.Context, key string) error {
	if err := f.deleteErr; err != nil {
		f.deleteErr = nil
		return err
	}
	return f.Memory.Delete(ctx, key)
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestCart(t *testing.T, who *fixedIdentity, opts Options) (*Aggregator, *remotetest.Documents, *storage.Memory) {
	t.Helper()
	docs := remotetest.NewDocuments()
	store := storage.NewMemory()
	a := New(docs, store, who, opts, nil)
	require.NoError(t, a.Load(context.Background()))
	return a, docs, store
}

func TestTotals_Scenario(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestCart(t, &fixedIdentity{}, Options{})

	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), "espresso.jpg"))
	require.NoError(t, a.AddLine(ctx, 2, "Latte", price("3.80"), "latte.jpg"))
	require.NoError(t, a.AddLine(ctx, 2, "Latte", price("3.80"), "latte.jpg"))

	assert.Equal(t, 3, a.TotalItemCount())
	assert.True(t, a.TotalPrice().Equal(price("12.10")), "got %s", a.TotalPrice())
	lines := a.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, 2, lines[1].Quantity)
}

func TestSetQuantity_CreatesAbsentLineWithExactQuantity(t *testing.T) {
	ctx := context.Background()
	resolver := stubResolver{items: map[int64]domain.MenuItem{
		7: {ID: 7, Name: "Mocha", Price: price("5.25"), ImageRef: "mocha.jpg"},
	}}
	a, _, _ := newTestCart(t, &fixedIdentity{}, Options{Resolver: resolver})

	require.NoError(t, a.SetQuantity(ctx, 7, 5))
	lines := a.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, "Mocha", lines[0].Name)
	assert.True(t, a.TotalPrice().Equal(price("26.25")))

	require.NoError(t, a.SetQuantity(ctx, 99, 2))
	assert.Equal(t, 7, a.TotalItemCount())
}

func TestSetQuantity_ZeroRemovesAndAddStartsFresh(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestCart(t, &fixedIdentity{}, Options{})

	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), ""))
	require.NoError(t, a.SetQuantity(ctx, 1, 9))
	assert.Equal(t, 9, a.TotalItemCount())

	require.NoError(t, a.SetQuantity(ctx, 1, 0))
	assert.Empty(t, a.Lines())

	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), ""))
	require.Len(t, a.Lines(), 1)
	assert.Equal(t, 1, a.Lines()[0].Quantity)

	require.NoError(t, a.RemoveLine(ctx, 1))
	require.NoError(t, a.SetQuantity(ctx, 1, -3))
	assert.Equal(t, 0, a.TotalItemCount())
	assert.True(t, a.TotalPrice().IsZero())
}

func TestTotalItemCount_NeverNegative(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestCart(t, &fixedIdentity{}, Options{})
	ops := []struct {
		id  int64
		qty int
	}{{1, 3}, {2, -1}, {1, 0}, {3, 2}, {3, -5}, {4, 1}, {4, 4}}
	want := map[int64]int{}
	for _, op := range ops {
		require.NoError(t, a.SetQuantity(ctx, op.id, op.qty))
		if op.qty <= 0 {
			delete(want, op.id)
		} else {
			want[op.id] = op.qty
		}
		sum := 0
		for _, q := range want {
			sum += q
		}
		assert.Equal(t, sum, a.TotalItemCount())
		assert.GreaterOrEqual(t, a.TotalItemCount(), 0)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	who := &fixedIdentity{}
	a, docs, store := newTestCart(t, who, Options{})
	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), "e.jpg"))
	require.NoError(t, a.AddLine(ctx, 2, "Latte", price("3.80"), "l.jpg"))
	require.NoError(t, a.SetQuantity(ctx, 2, 4))

	reloaded := New(docs, store, who, Options{}, nil)
	require.NoError(t, reloaded.Load(ctx))
	want := a.Lines()
	got := reloaded.Lines()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ItemID, got[i].ItemID)
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].Quantity, got[i].Quantity)
		assert.Equal(t, want[i].ImageRef, got[i].ImageRef)
		assert.True(t, want[i].UnitPrice.Equal(got[i].UnitPrice))
	}
}

func TestLoad_CorruptStorageIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Set(ctx, guestKey, "{not json"))

	a := New(remotetest.NewDocuments(), store, &fixedIdentity{}, Options{}, nil)
	require.NoError(t, a.Load(ctx))
	assert.Empty(t, a.Lines())

	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), ""))
	assert.Equal(t, 1, a.TotalItemCount())
}

func TestLoad_StorageFailureDoesNotOverwriteCart(t *testing.T) {
	ctx := context.Background()
	who := &fixedIdentity{}
	docs := remotetest.NewDocuments()
	store := &failingStore{Memory: storage.NewMemory()}

	first := New(docs, store, who, Options{}, nil)
	require.NoError(t, first.Load(ctx))
	require.NoError(t, first.SetQuantity(ctx, 1, 3))

	store.getErr = errors.New("redis timeout")
	second := New(docs, store, who, Options{}, nil)
	require.Error(t, second.Load(ctx))

	require.NoError(t, second.AddLine(ctx, 3, "Chai", price("3.00"), ""))
	assert.Equal(t, 4, second.TotalItemCount())

	fresh := New(docs, store, who, Options{}, nil)
	require.NoError(t, fresh.Load(ctx))
	assert.Equal(t, 4, fresh.TotalItemCount())
	assert.Len(t, fresh.Lines(), 2)
}

func TestLoad_MutationFailsWhileStorageIsDown(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Memory: storage.NewMemory()}
	require.NoError(t, store.Set(ctx, guestKey, `[{"id":1,"name":"Espresso","price":"4.5","quantity":2}]`))

	a := New(remotetest.NewDocuments(), store, &fixedIdentity{}, Options{}, nil)
	store.getErr = errors.New("redis timeout")
	require.Error(t, a.Load(ctx))

	store.getErr = errors.New("still down")
	require.Error(t, a.AddLine(ctx, 2, "Latte", price("3.80"), ""))
	raw, _, _ := store.Get(ctx, guestKey)
	assert.Contains(t, raw, `"quantity":2`)
}

func TestCheckout_FailedClearFallsBackToDelete(t *testing.T) {
	ctx := context.Background()
	who := &fixedIdentity{id: &domain.Identity{ID: "u1"}}
	docs := remotetest.NewDocuments()
	store := &failingStore{Memory: storage.NewMemory()}
	a := New(docs, store, who, Options{}, nil)
	require.NoError(t, a.Load(ctx))
	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), ""))

	store.setErr = errors.New("write timeout")
	_, err := a.Checkout(ctx)
	require.NoError(t, err)
	assert.False(t, a.PendingClear())

	fresh := New(docs, store, who, Options{}, nil)
	require.NoError(t, fresh.Load(ctx))
	assert.Zero(t, fresh.TotalItemCount())
}

func TestCheckout_UnclearedCartIsNeverRestored(t *testing.T) {
	ctx := context.Background()
	who := &fixedIdentity{id: &domain.Identity{ID: "u1"}}
	docs := remotetest.NewDocuments()
	store := &failingStore{Memory: storage.NewMemory()}
	a := New(docs, store, who, Options{}, nil)
	require.NoError(t, a.Load(ctx))
	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), ""))

	store.setErr = errors.New("write timeout")
	store.deleteErr = errors.New("delete timeout")
	_, err := a.Checkout(ctx)
	require.NoError(t, err)
	assert.Zero(t, a.TotalItemCount())
	assert.True(t, a.PendingClear())

	require.NoError(t, a.Load(ctx))
	assert.Zero(t, a.TotalItemCount(), "submitted lines must not come back")

	require.NoError(t, a.AddLine(ctx, 2, "Latte", price("3.80"), ""))
	assert.False(t, a.PendingClear())
	fresh := New(docs, store, who, Options{}, nil)
	require.NoError(t, fresh.Load(ctx))
	lines := fresh.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, int64(2), lines[0].ItemID)
	assert.Len(t, docs.All(remote.CollectionOrders), 1)
}

func TestCheckout_EmptyCartNeverContactsStore(t *testing.T) {
	a, docs, _ := newTestCart(t, &fixedIdentity{id: &domain.Identity{ID: "u1"}}, Options{})
	_, err := a.Checkout(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Equal(t, 0, docs.Calls())
}

func TestCheckout_RequiresSession(t *testing.T) {
	ctx := context.Background()
	a, docs, _ := newTestCart(t, &fixedIdentity{}, Options{})
	_, err := a.Checkout(ctx)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), ""))
	_, err = a.Checkout(ctx)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Equal(t, 0, docs.Calls())
	assert.Equal(t, 1, a.TotalItemCount())
}

func TestCheckout_SubmitsClearsAndRefreshes(t *testing.T) {
	ctx := context.Background()
	who := &fixedIdentity{id: &domain.Identity{ID: "u1", Name: "Ann", Email: "ann@example.com"}}
	notifier := &recordingNotifier{err: errors.New("broker down")}
	a, docs, store := newTestCart(t, who, Options{Notifier: notifier})
	a.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), ""))
	require.NoError(t, a.AddLine(ctx, 2, "Latte", price("3.80"), ""))
	require.NoError(t, a.AddLine(ctx, 2, "Latte", price("3.80"), ""))

	order, err := a.Checkout(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, 3, order.TotalItems)
	assert.True(t, order.TotalPrice.Equal(price("12.10")))
	assert.Equal(t, domain.OrderPending, order.Status)

	assert.Empty(t, a.Lines())
	assert.True(t, a.TotalPrice().IsZero())
	raw, _, _ := store.Get(ctx, "cart:u1")
	assert.Equal(t, "[]", raw)

	stored := docs.All(remote.CollectionOrders)
	require.Len(t, stored, 1)
	assert.Equal(t, "u1", stored[0].Fields["ownerId"])
	assert.Equal(t, "pending", stored[0].Fields["status"])
	assert.IsType(t, "", stored[0].Fields["lines"])

	history := a.OrderHistory()
	require.Len(t, history, 1)
	assert.Equal(t, order.ID, history[0].ID)
	require.Len(t, history[0].Lines, 2)
	assert.True(t, history[0].TotalPrice.Equal(price("12.1")))
	assert.Len(t, notifier.orders, 1)
}

func TestCheckout_HistoryFailureDoesNotFailCheckout(t *testing.T) {
	ctx := context.Background()
	who := &fixedIdentity{id: &domain.Identity{ID: "u1"}}
	a, docs, _ := newTestCart(t, who, Options{})
	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), ""))
	docs.ListErr = &domain.RemoteServiceError{Op: "list documents", StatusCode: 503}

	order, err := a.Checkout(ctx)
	require.NoError(t, err)
	assert.NotNil(t, order)
	assert.Empty(t, a.Lines())
	assert.Len(t, docs.All(remote.CollectionOrders), 1)
}

func TestCheckout_SubmissionFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	a, docs, _ := newTestCart(t, &fixedIdentity{id: &domain.Identity{ID: "u1"}}, Options{})
	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), ""))
	docs.Err = &domain.RemoteServiceError{Op: "create document", StatusCode: 500}

	_, err := a.Checkout(ctx)
	var remoteErr *domain.RemoteServiceError
	assert.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, 1, a.TotalItemCount())
}

func TestRefreshOrderHistory_SkipsMalformedAndSortsNewestFirst(t *testing.T) {
	ctx := context.Background()
	who := &fixedIdentity{id: &domain.Identity{ID: "u1"}}
	a, docs, _ := newTestCart(t, who, Options{})

	_, _ = docs.CreateDocument(ctx, remote.CollectionOrders, "", map[string]interface{}{
		"ownerId": "u1", "lines": `[{"id":1,"name":"A","price":"2","quantity":1}]`,
		"totalItems": 1, "totalPrice": 2, "submittedAt": "2024-01-01T10:00:00Z", "status": "completed",
	})
	_, _ = docs.CreateDocument(ctx, remote.CollectionOrders, "", map[string]interface{}{
		"ownerId": "u1", "lines": "[]", "submittedAt": "2024-03-01T10:00:00Z", "status": "pending",
	})
	_, _ = docs.CreateDocument(ctx, remote.CollectionOrders, "", map[string]interface{}{
		"ownerId": "u1", "lines": "[]", "status": "shipped",
	})
	_, _ = docs.CreateDocument(ctx, remote.CollectionOrders, "", map[string]interface{}{
		"ownerId": "u2", "lines": "[]",
	})

	require.NoError(t, a.RefreshOrderHistory(ctx))
	history := a.OrderHistory()
	require.Len(t, history, 2)
	assert.Equal(t, domain.OrderPending, history[0].Status)
	assert.Equal(t, domain.OrderCompleted, history[1].Status)

	who.id = nil
	require.NoError(t, a.RefreshOrderHistory(ctx))
	assert.Empty(t, a.OrderHistory())
}

func TestIdentityScope_SwitchesCartsAndCarriesGuestLines(t *testing.T) {
	ctx := context.Background()
	who := &fixedIdentity{}
	a, _, store := newTestCart(t, who, Options{Scope: ScopeIdentity})

	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), ""))

	who.id = &domain.Identity{ID: "u1"}
	a.OnIdentityChange(ctx, who.id)
	assert.Equal(t, 1, a.TotalItemCount())
	_, ok, _ := store.Get(ctx, guestKey)
	assert.False(t, ok, "guest cart is emptied once carried over")

	require.NoError(t, a.AddLine(ctx, 2, "Latte", price("3.80"), ""))

	who.id = nil
	a.OnIdentityChange(ctx, nil)
	assert.Empty(t, a.Lines(), "signed-out device must not see the account's cart")

	who.id = &domain.Identity{ID: "u2"}
	a.OnIdentityChange(ctx, who.id)
	assert.Empty(t, a.Lines(), "another identity must not see u1's cart")

	who.id = &domain.Identity{ID: "u1"}
	a.OnIdentityChange(ctx, who.id)
	assert.Equal(t, 2, a.TotalItemCount())
}

func TestDeviceScope_SharesOneCart(t *testing.T) {
	ctx := context.Background()
	who := &fixedIdentity{}
	a, _, store := newTestCart(t, who, Options{Scope: ScopeDevice})
	require.NoError(t, a.AddLine(ctx, 1, "Espresso", price("4.50"), ""))

	who.id = &domain.Identity{ID: "u1"}
	a.OnIdentityChange(ctx, who.id)
	assert.Equal(t, 1, a.TotalItemCount())
	_, ok, _ := store.Get(ctx, deviceKey)
	assert.True(t, ok)
}

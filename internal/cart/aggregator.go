// Package cart holds a device's pending order lines, mirrors them to local storage
// and turns them into submitted orders.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	"coffeehouse/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Scope decides how the storage key is derived.
type Scope string

const (
	// ScopeIdentity keeps one cart per signed-in identity plus one guest cart.
	ScopeIdentity Scope = "identity"
	// ScopeDevice keeps a single cart per device regardless of who is signed in.
	ScopeDevice Scope = "device"
)

const (
	deviceKey = "cart"
	guestKey  = "cart:guest"
)

// ItemResolver looks up line details when SetQuantity creates a line.
type ItemResolver interface {
	Item(ctx context.Context, id int64) (*domain.MenuItem, error)
}

// OrderNotifier is told about every submitted order.
type OrderNotifier interface {
	OrderSubmitted(ctx context.Context, order domain.Order) error
}

// IdentitySource reports the signed-in identity.
type IdentitySource interface {
	Current() *domain.Identity
}

// Options configure an Aggregator. The zero value keeps one cart per identity with no
// resolver and no notifier.
type Options struct {
	Scope    Scope
	Resolver ItemResolver
	Notifier OrderNotifier
}

// Aggregator is the Cart & Order Aggregator of one device.
type Aggregator struct {
	docs     remote.DocumentStore
	store    storage.Store
	identity IdentitySource
	scope    Scope
	resolver ItemResolver
	notifier OrderNotifier
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	key     string
	loaded  bool
	lines   []domain.CartLine
	history []domain.Order
	// submitted holds keys whose stored lines were checked out but could not be cleared.
	submitted map[string]bool
}

// New returns an empty aggregator. Call Load before use.
func New(docs remote.DocumentStore, store storage.Store, identity IdentitySource, opts Options, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Scope == "" {
		opts.Scope = ScopeIdentity
	}
	return &Aggregator{
		docs:     docs,
		store:    store,
		identity: identity,
		scope:    opts.Scope,
		resolver: opts.Resolver,
		notifier: opts.Notifier,
		logger:   logger,
		now:      time.Now,

		submitted: make(map[string]bool),
	}
}

// Load rehydrates the cart of the current identity from storage. A storage failure is
// returned and the cart stays unloaded: mutations retry the read instead of overwriting
// what is stored.
func (a *Aggregator) Load(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.key = a.keyFor(a.identity.Current())
	return a.reload(ctx)
}

// PendingClear reports whether a checked-out cart is still in storage.
func (a *Aggregator) PendingClear() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.submitted) > 0
}

// OnIdentityChange follows sign-in and sign-out. With identity scope it switches to the
// identity's cart, carrying guest lines into it on sign-in. Order history is loaded for a
// signed-in identity and dropped otherwise.
func (a *Aggregator) OnIdentityChange(ctx context.Context, id *domain.Identity) {
	a.mu.Lock()
	if a.scope == ScopeIdentity {
		if next := a.keyFor(id); next != a.key {
			var guest []domain.CartLine
			if id != nil && a.key == guestKey && a.loaded {
				guest = a.lines
			}
			a.key = next
			if err := a.reload(ctx); err != nil {
				a.logger.Warn("load cart after identity change", zap.String("key", next), zap.Error(err))
			} else if len(guest) > 0 {
				merged := mergeLines(a.lines, guest)
				if err := a.write(ctx, next, merged); err != nil {
					a.logger.Warn("carry guest cart into account", zap.Error(err))
				} else {
					delete(a.submitted, next)
					a.lines = merged
					if err := a.store.Delete(ctx, guestKey); err != nil {
						a.logger.Warn("clear guest cart", zap.Error(err))
					}
				}
			}
		}
	}
	a.mu.Unlock()

	if id == nil {
		a.mu.Lock()
		a.history = nil
		a.mu.Unlock()
		return
	}
	if err := a.RefreshOrderHistory(ctx); err != nil {
		a.logger.Warn("load order history after sign-in", zap.String("identity_id", id.ID), zap.Error(err))
	}
}

// AddLine adds one unit of an item, inserting a fresh line when the item is absent.
func (a *Aggregator) AddLine(ctx context.Context, itemID int64, name string, unitPrice decimal.Decimal, imageRef string) error {
	if itemID <= 0 {
		return domain.Invalid("item id must be positive")
	}
	if unitPrice.IsNegative() {
		return domain.Invalid("price must not be negative")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ensureLoaded(ctx); err != nil {
		return err
	}

	next := cloneLines(a.lines)
	if i := indexOf(next, itemID); i >= 0 {
		next[i].Quantity++
	} else {
		next = append(next, domain.CartLine{
			ItemID:    itemID,
			Name:      name,
			UnitPrice: unitPrice,
			Quantity:  1,
			ImageRef:  imageRef,
		})
	}
	return a.commit(ctx, next)
}

// SetQuantity sets a line's quantity exactly. Zero or less removes the line; a positive
// quantity for an absent item creates the line, with details from the resolver when one is set.
func (a *Aggregator) SetQuantity(ctx context.Context, itemID int64, quantity int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ensureLoaded(ctx); err != nil {
		return err
	}

	next := cloneLines(a.lines)
	i := indexOf(next, itemID)
	switch {
	case quantity <= 0:
		if i < 0 {
			return nil
		}
		next = append(next[:i], next[i+1:]...)
	case i >= 0:
		next[i].Quantity = quantity
	default:
		if itemID <= 0 {
			return domain.Invalid("item id must be positive")
		}
		next = append(next, a.resolveLine(ctx, itemID, quantity))
	}
	return a.commit(ctx, next)
}

// RemoveLine drops the item's line; removing an absent item is a no-op.
func (a *Aggregator) RemoveLine(ctx context.Context, itemID int64) error {
	return a.SetQuantity(ctx, itemID, 0)
}

// Clear empties the cart.
func (a *Aggregator) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.commit(ctx, nil)
}

// Lines returns a copy of the cart lines in insertion order.
func (a *Aggregator) Lines() []domain.CartLine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneLines(a.lines)
}

// TotalItemCount sums the line quantities.
func (a *Aggregator) TotalItemCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	items, _ := domain.CartTotals(a.lines)
	return items
}

// TotalPrice sums unit price times quantity over all lines.
func (a *Aggregator) TotalPrice() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, price := domain.CartTotals(a.lines)
	return price
}

// Checkout submits the cart as a pending order and empties it. The store is not
// contacted when there is no session or the cart is empty. A failed history refresh
// afterwards does not fail the checkout.
func (a *Aggregator) Checkout(ctx context.Context) (*domain.Order, error) {
	id := a.identity.Current()
	if id == nil {
		return nil, domain.ErrNotAuthenticated
	}

	a.mu.Lock()
	if err := a.ensureLoaded(ctx); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	if len(a.lines) == 0 {
		a.mu.Unlock()
		return nil, domain.ErrEmptyCart
	}
	lines := cloneLines(a.lines)
	a.mu.Unlock()

	items, price := domain.CartTotals(lines)
	order := domain.Order{
		OwnerID:     id.ID,
		OwnerEmail:  id.Email,
		OwnerName:   id.Name,
		Lines:       lines,
		TotalItems:  items,
		TotalPrice:  price,
		SubmittedAt: a.now().UTC(),
		Status:      domain.OrderPending,
	}
	fields, err := orderFields(order)
	if err != nil {
		return nil, err
	}
	doc, err := a.docs.CreateDocument(ctx, remote.CollectionOrders, remote.UniqueID, fields)
	if err != nil {
		return nil, err
	}
	order.ID = doc.ID

	a.mu.Lock()
	if err := a.commit(ctx, nil); err != nil {
		a.logger.Warn("clear cart after checkout", zap.String("order_id", order.ID), zap.Error(err))
		if err := a.store.Delete(ctx, a.key); err != nil {
			a.logger.Error("submitted cart left in storage",
				zap.String("order_id", order.ID),
				zap.String("key", a.key),
				zap.Error(err),
			)
			a.submitted[a.key] = true
		}
		a.lines = nil
	}
	a.mu.Unlock()

	if a.notifier != nil {
		if err := a.notifier.OrderSubmitted(ctx, order); err != nil {
			a.logger.Warn("notify order submitted", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
	if err := a.RefreshOrderHistory(ctx); err != nil {
		a.logger.Warn("refresh order history after checkout", zap.String("order_id", order.ID), zap.Error(err))
	}
	return &order, nil
}

// RefreshOrderHistory replaces the cached history with the store's listing for the
// signed-in identity, newest first. Without a session the cache is cleared.
func (a *Aggregator) RefreshOrderHistory(ctx context.Context) error {
	id := a.identity.Current()
	if id == nil {
		a.mu.Lock()
		a.history = nil
		a.mu.Unlock()
		return nil
	}
	docs, err := a.docs.ListDocuments(ctx, remote.CollectionOrders, remote.Equal("ownerId", id.ID))
	if err != nil {
		return err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		o, err := orderFromDocument(doc)
		if err != nil {
			a.logger.Warn("skip malformed order document", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		orders = append(orders, o)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].SubmittedAt.After(orders[j].SubmittedAt)
	})

	a.mu.Lock()
	a.history = orders
	a.mu.Unlock()
	return nil
}

// OrderHistory returns the cached history.
func (a *Aggregator) OrderHistory() []domain.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Order, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Aggregator) resolveLine(ctx context.Context, itemID int64, quantity int) domain.CartLine {
	line := domain.CartLine{ItemID: itemID, Quantity: quantity}
	if a.resolver == nil {
		return line
	}
	item, err := a.resolver.Item(ctx, itemID)
	if err != nil {
		a.logger.Debug("resolve cart item", zap.Int64("item_id", itemID), zap.Error(err))
		return line
	}
	line.Name = item.Name
	line.UnitPrice = item.Price
	line.ImageRef = item.ImageRef
	return line
}

// commit mirrors next to storage and only then makes it the current cart. Callers hold a.mu.
func (a *Aggregator) commit(ctx context.Context, next []domain.CartLine) error {
	if a.key == "" {
		a.key = a.keyFor(a.identity.Current())
	}
	if err := a.write(ctx, a.key, next); err != nil {
		return err
	}
	delete(a.submitted, a.key)
	a.lines = next
	a.loaded = true
	return nil
}

// ensureLoaded retries a failed rehydration and any pending clears. Callers hold a.mu.
func (a *Aggregator) ensureLoaded(ctx context.Context) error {
	for key := range a.submitted {
		if err := a.store.Delete(ctx, key); err == nil {
			delete(a.submitted, key)
		}
	}
	if a.loaded {
		return nil
	}
	if a.key == "" {
		a.key = a.keyFor(a.identity.Current())
	}
	return a.reload(ctx)
}

// reload reads the cart under a.key. A cart that was checked out but not cleared is
// never restored. Callers hold a.mu.
func (a *Aggregator) reload(ctx context.Context) error {
	if a.submitted[a.key] {
		a.lines = nil
		a.loaded = true
		return nil
	}
	lines, err := a.read(ctx, a.key)
	if err != nil {
		a.lines = nil
		a.loaded = false
		return err
	}
	a.lines = lines
	a.loaded = true
	return nil
}

func (a *Aggregator) keyFor(id *domain.Identity) string {
	if a.scope == ScopeDevice {
		return deviceKey
	}
	if id == nil {
		return guestKey
	}
	return "cart:" + id.ID
}

func (a *Aggregator) read(ctx context.Context, key string) ([]domain.CartLine, error) {
	raw, ok, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	lines, err := decodeLines(raw)
	if err != nil {
		a.logger.Warn("discard unreadable cart", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	return lines, nil
}

func (a *Aggregator) write(ctx context.Context, key string, lines []domain.CartLine) error {
	raw, err := encodeLines(lines)
	if err != nil {
		return err
	}
	if err := a.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	return nil
}

func encodeLines(lines []domain.CartLine) (string, error) {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("encode cart: %w", err)
	}
	return string(raw), nil
}

// decodeLines accepts a stored cart and drops lines that could never have been written.
func decodeLines(raw string) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, err
	}
	out := lines[:0]
	for _, l := range lines {
		if l.ItemID <= 0 || l.Quantity <= 0 {
			continue
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func mergeLines(into, from []domain.CartLine) []domain.CartLine {
	out := cloneLines(into)
	for _, l := range from {
		if i := indexOf(out, l.ItemID); i >= 0 {
			out[i].Quantity += l.Quantity
			continue
		}
		out = append(out, l)
	}
	return out
}

func indexOf(lines []domain.CartLine, itemID int64) int {
	for i, l := range lines {
		if l.ItemID == itemID {
			return i
		}
	}
	return -1
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	return out
}

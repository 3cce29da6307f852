// Package cart holds the client-side shopping cart: an ordered collection of
// line items, unique per product, written through to a durable key-value slot
// on every mutation so the cart survives restarts.
package cart

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StorageKey is the key-value slot the cart snapshot lives under.
const StorageKey = "kira-cart"

// Product is the catalog data captured into a line item at add time. Display
// fields are snapshotted, not re-fetched, so a cart shows the price the
// customer saw when they added the item.
type Product struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	ImageURL string
}

// LineItem is one product entry in the cart. Quantity is always >= 1; an item
// reduced to zero is removed instead.
type LineItem struct {
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	ImageURL  string
	Quantity  int
}

// Snapshot is a consistent read of the cart taken at one instant. It does not
// change when the live cart mutates afterwards.
type Snapshot struct {
	Items    []LineItem
	Subtotal decimal.Decimal
	Count    int
}

// Listener receives a snapshot after every cart mutation.
type Listener func(Snapshot)

// Store is the single source of truth for the in-progress cart. It owns the
// persisted snapshot exclusively: every mutation rewrites the whole slot.
// Persistence failures are logged and swallowed; the cart is a client-side
// cache, not a system of record.
type Store struct {
	kv KV
	lg *zap.Logger

	mu        sync.Mutex
	items     []LineItem
	listeners map[int]Listener
	nextID    int
}

// NewStore creates a Store backed by the given key-value slot and restores
// the persisted snapshot. Missing or unparsable data starts an empty cart.
func NewStore(kv KV, lg *zap.Logger) *Store {
	if lg == nil {
		lg = zap.NewNop()
	}
	s := &Store{
		kv:        kv,
		lg:        lg,
		listeners: make(map[int]Listener),
	}

	data, ok, err := kv.Get(StorageKey)
	if err != nil {
		lg.Warn("Failed to read persisted cart, starting empty", zap.Error(err))
		return s
	}
	if !ok {
		return s
	}

	items, err := decodeItems(data)
	if err != nil {
		lg.Warn("Persisted cart is corrupt, starting empty", zap.Error(err))
		return s
	}
	s.items = items
	return s
}

// Add merges qty units of the product into the cart: an existing line item's
// quantity is increased, otherwise a new line item is appended with the
// product's current display fields. Non-positive quantities are ignored.
func (s *Store) Add(p Product, qty int) {
	if qty <= 0 {
		return
	}

	s.mu.Lock()
	merged := false
	for i := range s.items {
		if s.items[i].ProductID == p.ID {
			s.items[i].Quantity += qty
			merged = true
			break
		}
	}
	if !merged {
		s.items = append(s.items, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			ImageURL:  p.ImageURL,
			Quantity:  qty,
		})
	}
	s.persistAndNotifyLocked()
}

// Remove deletes the line item for productID. Removing an absent product is a
// no-op, so double-clicks stay idempotent.
func (s *Store) Remove(productID int64) {
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ProductID == productID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	s.persistAndNotifyLocked()
}

// SetQuantity sets the quantity of an existing line item. A quantity of zero
// or less removes the item, treating "reduce to nothing" as intent to remove.
// Unknown product IDs are a no-op.
func (s *Store) SetQuantity(productID int64, qty int) {
	if qty <= 0 {
		s.Remove(productID)
		return
	}

	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ProductID == productID {
			s.items[i].Quantity = qty
			break
		}
	}
	s.persistAndNotifyLocked()
}

// Clear empties the cart unconditionally.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.persistAndNotifyLocked()
}

// Items returns a copy of the current line items in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LineItem(nil), s.items...)
}

// Len returns the number of distinct line items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Subtotal recomputes sum(unit price * quantity) from the current items.
// Nothing is cached, so the value can never drift from the line items.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return subtotal(s.items)
}

// ItemCount recomputes the total unit count across all line items.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return itemCount(s.items)
}

// Snapshot returns a consistent view of items, subtotal, and count.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers a listener invoked with a fresh snapshot after every
// mutation. The returned function unsubscribes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// persistAndNotifyLocked writes the snapshot through to the key-value slot and
// notifies listeners. Called with mu held; releases it.
func (s *Store) persistAndNotifyLocked() {
	snap := s.snapshotLocked()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	if err := s.kv.Set(StorageKey, encodeItems(snap.Items)); err != nil {
		s.lg.Warn("Failed to persist cart", zap.Error(err))
	}
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Items:    append([]LineItem(nil), s.items...),
		Subtotal: subtotal(s.items),
		Count:    itemCount(s.items),
	}
}

func subtotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func itemCount(items []LineItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

package cart

import (
	"path/filepath"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func widget() Product {
	return Product{ID: 1, Name: "Widget", Price: decimal.RequireFromString("10.00"), ImageURL: "widget.jpg"}
}

func gadget() Product {
	return Product{ID: 2, Name: "Gadget", Price: decimal.RequireFromString("19.99"), ImageURL: "gadget.jpg"}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(NewMemKV(), nil)
}

func TestAdd_MergesSameProduct(t *testing.T) {
	s := newTestStore(t)

	s.Add(widget(), 1)
	s.Add(widget(), 2)
	s.Add(widget(), 3)

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ProductID)
	assert.Equal(t, 6, items[0].Quantity)
}

func TestAdd_AppendsNewProductsInOrder(t *testing.T) {
	s := newTestStore(t)

	s.Add(widget(), 1)
	s.Add(gadget(), 1)

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ProductID)
	assert.Equal(t, int64(2), items[1].ProductID)
}

func TestAdd_SnapshotsDisplayFields(t *testing.T) {
	s := newTestStore(t)

	s.Add(widget(), 1)

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Widget", items[0].Name)
	assert.Equal(t, "widget.jpg", items[0].ImageURL)
	assert.True(t, decimal.RequireFromString("10.00").Equal(items[0].UnitPrice))
}

func TestAdd_IgnoresNonPositiveQuantity(t *testing.T) {
	s := newTestStore(t)

	s.Add(widget(), 0)
	s.Add(widget(), -3)

	assert.Equal(t, 0, s.Len())
}

func TestDerivedValues(t *testing.T) {
	s := newTestStore(t)

	s.Add(widget(), 2) // 20.00
	s.Add(gadget(), 3) // 59.97

	assert.True(t, decimal.RequireFromString("79.97").Equal(s.Subtotal()))
	assert.Equal(t, 5, s.ItemCount())

	// Recomputed after mutation, never cached.
	s.SetQuantity(2, 1)
	assert.True(t, decimal.RequireFromString("29.99").Equal(s.Subtotal()))
	assert.Equal(t, 3, s.ItemCount())
}

func TestSetQuantity_ZeroOrNegativeRemoves(t *testing.T) {
	for _, qty := range []int{0, -5} {
		s := newTestStore(t)
		s.Add(widget(), 2)

		s.SetQuantity(1, qty)

		assert.Equal(t, 0, s.Len(), "qty %d should remove the item", qty)
	}
}

func TestSetQuantity_OverwritesNotIncrements(t *testing.T) {
	s := newTestStore(t)
	s.Add(widget(), 5)

	s.SetQuantity(1, 2)

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestUnknownProductIDsAreNoOps(t *testing.T) {
	s := newTestStore(t)
	s.Add(widget(), 2)
	before := s.Items()

	s.Remove(999)
	s.SetQuantity(999, 7)

	assert.Equal(t, before, s.Items())
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	s.Add(widget(), 2)
	s.Add(gadget(), 1)

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.True(t, decimal.Zero.Equal(s.Subtotal()))
	assert.Equal(t, 0, s.ItemCount())
}

func TestPersistence_RoundTrip(t *testing.T) {
	kv := NewMemKV()

	s1 := NewStore(kv, nil)
	s1.Add(widget(), 2)
	s1.Add(gadget(), 1)

	// A fresh store over the same slot restores the identical cart.
	s2 := NewStore(kv, nil)
	assert.Equal(t, s1.Items(), s2.Items())
	assert.True(t, s1.Subtotal().Equal(s2.Subtotal()))
	assert.Equal(t, s1.ItemCount(), s2.ItemCount())
}

func TestPersistence_EveryMutationWritesThrough(t *testing.T) {
	kv := NewMemKV()
	s := NewStore(kv, nil)

	s.Add(widget(), 1)
	s.Add(gadget(), 2)
	s.Remove(1)

	restored := NewStore(kv, nil)
	items := restored.Items()
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestPersistence_CorruptDataStartsEmpty(t *testing.T) {
	kv := NewMemKV()
	require.NoError(t, kv.Set(StorageKey, []byte("{not json")))

	s := NewStore(kv, nil)
	assert.Equal(t, 0, s.Len())
}

func TestPersistence_BadRecordStartsEmpty(t *testing.T) {
	kv := NewMemKV()
	require.NoError(t, kv.Set(StorageKey, []byte(`[{"id":1,"name":"X","price":"1.00","image":"","qty":0}]`)))

	s := NewStore(kv, nil)
	assert.Equal(t, 0, s.Len())
}

func TestPersistence_WriteFailureDoesNotBreakCart(t *testing.T) {
	kv := NewMemKV()
	kv.SetErr = errors.New("disk full")
	s := NewStore(kv, nil)

	s.Add(widget(), 2)

	// The in-memory cart still works; persistence is best effort.
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s.ItemCount())
}

func TestFileKV_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	s1 := NewStore(kv, nil)
	s1.Add(widget(), 3)
	s1.Add(gadget(), 1)

	kv2, err := NewFileKV(dir)
	require.NoError(t, err)
	s2 := NewStore(kv2, nil)

	assert.Equal(t, s1.Items(), s2.Items())
}

func TestFileKV_Delete(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, kv.Set("k", []byte("v")))
	require.NoError(t, kv.Delete("k"))
	require.NoError(t, kv.Delete("k")) // idempotent

	_, ok, err := kv.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileKV_MissingFile(t *testing.T) {
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "nested"))
	require.NoError(t, err)

	_, ok, err := kv.Get("absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubscribe_NotifiesOnMutation(t *testing.T) {
	s := newTestStore(t)

	var got []Snapshot
	unsub := s.Subscribe(func(snap Snapshot) {
		got = append(got, snap)
	})

	s.Add(widget(), 2)
	s.SetQuantity(1, 5)

	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, 5, got[1].Count)
	assert.True(t, decimal.RequireFromString("50.00").Equal(got[1].Subtotal))

	unsub()
	s.Clear()
	assert.Len(t, got, 2, "unsubscribed listener must not fire")
}

func TestCodec_RoundTrip(t *testing.T) {
	items := []LineItem{
		{ProductID: 1, Name: "Widget", UnitPrice: decimal.RequireFromString("10.00"), ImageURL: "w.jpg", Quantity: 2},
		{ProductID: 2, Name: "Gadget", UnitPrice: decimal.RequireFromString("19.99"), ImageURL: "g.jpg", Quantity: 1},
	}

	decoded, err := decodeItems(encodeItems(items))
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, items[0].ProductID, decoded[0].ProductID)
	assert.True(t, items[0].UnitPrice.Equal(decoded[0].UnitPrice))
	assert.Equal(t, items, decoded)
}

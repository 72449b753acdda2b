package domain

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderBookLevel is one row of a published snapshot.
type OrderBookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBookSnapshot is the immutable, atomically-published view of an
// instrument's book. Readers never see a partially-updated book; they
// either hold the previous snapshot or the new one.
type OrderBookSnapshot struct {
	Instrument   string            `json:"instrument"`
	Bids         []*OrderBookLevel `json:"bids"`
	Asks         []*OrderBookLevel `json:"asks"`
	SnapshotTime time.Time         `json:"snapshot_time"`
}

// DefaultBroadcastDepth / MaxQueryDepth bound the §6.1 "levels" query
// parameter and the §6.3 book-delta event depth.
const (
	DefaultBroadcastDepth = 20
	MaxQueryDepth         = 1000
)

// side holds one book side (bids or asks) as a map keyed by the price's
// canonical string plus a sorted slice of the decimal prices themselves.
// Insertion/removal locate the price with a binary search over the
// sorted slice (O(log P)); best-price access is the slice's first
// element (O(1)). descending controls bids (true) vs asks (false).
type side struct {
	levels     map[string]*PriceLevel
	prices     []decimal.Decimal
	descending bool
}

func newSide(descending bool) *side {
	return &side{
		levels:     make(map[string]*PriceLevel),
		descending: descending,
	}
}

func (s *side) less(a, b decimal.Decimal) bool {
	if s.descending {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

func (s *side) find(price decimal.Decimal) (int, bool) {
	idx := sort.Search(len(s.prices), func(i int) bool {
		return !s.less(s.prices[i], price)
	})
	if idx < len(s.prices) && s.prices[idx].Equal(price) {
		return idx, true
	}
	return idx, false
}

func (s *side) getOrCreate(price decimal.Decimal) *PriceLevel {
	key := price.String()
	if lvl, ok := s.levels[key]; ok {
		return lvl
	}
	idx, _ := s.find(price)
	lvl := NewPriceLevel(price)
	s.levels[key] = lvl
	s.prices = append(s.prices, decimal.Decimal{})
	copy(s.prices[idx+1:], s.prices[idx:])
	s.prices[idx] = price
	return lvl
}

func (s *side) get(price decimal.Decimal) (*PriceLevel, bool) {
	lvl, ok := s.levels[price.String()]
	return lvl, ok
}

func (s *side) dropIfEmpty(lvl *PriceLevel) {
	if !lvl.IsEmpty() {
		return
	}
	key := lvl.Price.String()
	delete(s.levels, key)
	idx, ok := s.find(lvl.Price)
	if !ok {
		return
	}
	s.prices = append(s.prices[:idx], s.prices[idx+1:]...)
}

func (s *side) best() *PriceLevel {
	if len(s.prices) == 0 {
		return nil
	}
	lvl, ok := s.levels[s.prices[0].String()]
	if !ok {
		return nil
	}
	return lvl
}

func (s *side) topN(n int) []*OrderBookLevel {
	if n > len(s.prices) {
		n = len(s.prices)
	}
	out := make([]*OrderBookLevel, 0, n)
	for i := 0; i < n; i++ {
		lvl := s.levels[s.prices[i].String()]
		out = append(out, &OrderBookLevel{Price: lvl.Price, Quantity: lvl.TotalQty})
	}
	return out
}

// OrderBook is the per-instrument price-time-priority structure. It is
// exclusively owned and mutated by the matching engine's single worker
// goroutine; every other goroutine reads only via Snapshot().
type OrderBook struct {
	Instrument string

	bids *side
	asks *side
	byID map[uuid.UUID]*BookEntry

	// snapshot is the only cross-goroutine shared state: the worker
	// goroutine publishes by atomic store, readers (HTTP queries) load
	// it without ever synchronizing with the writer.
	snapshot atomic.Pointer[OrderBookSnapshot]
}

func NewOrderBook(instrument string) *OrderBook {
	b := &OrderBook{
		Instrument: instrument,
		bids:       newSide(true),
		asks:       newSide(false),
		byID:       make(map[uuid.UUID]*BookEntry),
	}
	b.publish()
	return b
}

func (b *OrderBook) sideFor(s OrderSide) *side {
	if s == SideBuy {
		return b.bids
	}
	return b.asks
}

// AddLimit inserts a resting LIMIT order into the appropriate side,
// creating the price level if necessary, and republishes the snapshot.
// remaining is the quantity still to be filled at the time it rests
// (order.RemainingQuantity(), which may be less than order.Quantity if
// the order partially matched before resting).
func (b *OrderBook) AddLimit(order *Order, remaining decimal.Decimal) *BookEntry {
	lvl := b.sideFor(order.Side).getOrCreate(order.Price)
	entry := &BookEntry{
		OrderID:      order.OrderID,
		ClientID:     order.ClientID,
		Side:         order.Side,
		Price:        order.Price,
		RemainingQty: remaining,
		CreatedAt:    order.CreatedAt,
		Order:        order,
	}
	lvl.PushBack(entry)
	b.byID[order.OrderID] = entry
	b.publish()
	return entry
}

// AddMarket records the entry in the id index only; a MARKET order never
// enters a price level, per invariant 4. Kept for Recovery's defensive
// handling of an anomalous live MARKET order; the engine's own match
// path never rests a MARKET order.
func (b *OrderBook) AddMarket(order *Order, remaining decimal.Decimal) *BookEntry {
	entry := &BookEntry{
		OrderID:      order.OrderID,
		ClientID:     order.ClientID,
		Side:         order.Side,
		RemainingQty: remaining,
		CreatedAt:    order.CreatedAt,
		Order:        order,
	}
	b.byID[order.OrderID] = entry
	return entry
}

// Cancel removes order_id from its level (if resting) and the id index.
// Returns false if the order is not present (already terminal or
// unknown), which callers treat as a silent no-op per §4.3 CANCEL.
func (b *OrderBook) Cancel(orderID uuid.UUID) bool {
	entry, ok := b.byID[orderID]
	if !ok {
		return false
	}
	if entry.ParentLevel != nil {
		lvl := entry.ParentLevel
		entry.ParentLevel.Remove(entry)
		b.sideFor(entry.Side).dropIfEmpty(lvl)
	}
	delete(b.byID, orderID)
	b.publish()
	return true
}

// UpdateRemaining adjusts the containing level's total and the entry's
// remaining quantity after a partial fill.
func (b *OrderBook) UpdateRemaining(orderID uuid.UUID, newQty decimal.Decimal) {
	entry, ok := b.byID[orderID]
	if !ok {
		return
	}
	if entry.ParentLevel != nil {
		entry.ParentLevel.Adjust(entry, newQty)
	} else {
		entry.RemainingQty = newQty
	}
}

// RemoveFilled removes a fully-filled resting entry from its level and
// the id index without republishing (caller batches the publish).
func (b *OrderBook) RemoveFilled(orderID uuid.UUID) {
	entry, ok := b.byID[orderID]
	if !ok {
		return
	}
	if entry.ParentLevel != nil {
		lvl := entry.ParentLevel
		entry.ParentLevel.Remove(entry)
		b.sideFor(entry.Side).dropIfEmpty(lvl)
	}
	delete(b.byID, orderID)
}

// BestBidLevel / BestAskLevel return the top-of-book level or nil.
func (b *OrderBook) BestBidLevel() *PriceLevel { return b.bids.best() }
func (b *OrderBook) BestAskLevel() *PriceLevel { return b.asks.best() }

// Lookup returns the in-memory entry for order_id, if any.
func (b *OrderBook) Lookup(orderID uuid.UUID) (*BookEntry, bool) {
	entry, ok := b.byID[orderID]
	return entry, ok
}

// publish republishes the immutable snapshot by atomic swap of the
// pointer field; safe because the book's internal maps/slices are only
// ever mutated by the single worker goroutine, and every other
// goroutine only ever loads this pointer, never the internal state
// directly. The snapshot always carries up to MaxQueryDepth levels per
// side so Snapshot(depth) for any allowed depth can be served by
// slicing the same published value, with no further map access.
func (b *OrderBook) publish() {
	b.snapshot.Store(&OrderBookSnapshot{
		Instrument:   b.Instrument,
		Bids:         b.bids.topN(MaxQueryDepth),
		Asks:         b.asks.topN(MaxQueryDepth),
		SnapshotTime: time.Now(),
	})
}

// Snapshot returns the most recently published immutable view, truncated
// to depth levels per side; a depth outside 1..MaxQueryDepth selects
// DefaultBroadcastDepth. Lock-free: callers never mutate the returned
// value.
func (b *OrderBook) Snapshot(depth int) *OrderBookSnapshot {
	if depth <= 0 || depth > MaxQueryDepth {
		depth = DefaultBroadcastDepth
	}
	full := b.snapshot.Load()
	if full == nil {
		return &OrderBookSnapshot{Instrument: b.Instrument, SnapshotTime: time.Now()}
	}
	bids := full.Bids
	if len(bids) > depth {
		bids = bids[:depth]
	}
	asks := full.Asks
	if len(asks) > depth {
		asks = asks[:depth]
	}
	return &OrderBookSnapshot{
		Instrument:   b.Instrument,
		Bids:         bids,
		Asks:         asks,
		SnapshotTime: full.SnapshotTime,
	}
}

package domain

import (
	"container/list"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookEntry is the in-memory resting-order record held by a PriceLevel.
// ParentLevel is a direct pointer back to the owning level, so entry and
// level reference each other (the level's FIFO holds the entry); there is
// no index or weak-handle indirection. The entry keeps its own
// list.Element so it can be removed from the level in O(1).
type BookEntry struct {
	OrderID      uuid.UUID
	ClientID     string
	Side         OrderSide
	Price        decimal.Decimal
	RemainingQty decimal.Decimal
	CreatedAt    time.Time
	ParentLevel  *PriceLevel
	element      *list.Element

	// Order is the live order record this entry rests on behalf of. The
	// engine mutates it in place (FilledQuantity/Status) and persists it
	// after a match; it is never touched outside the worker goroutine.
	Order *Order
}

// PriceLevel is a FIFO queue of resting orders at a single price.
type PriceLevel struct {
	Price    decimal.Decimal
	TotalQty decimal.Decimal
	entries  *list.List // *BookEntry, oldest at Front
}

func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{
		Price:   price,
		entries: list.New(),
	}
}

// PushBack appends entry to the tail of the FIFO and adds its remaining
// quantity to the level total.
func (l *PriceLevel) PushBack(entry *BookEntry) {
	entry.ParentLevel = l
	entry.element = l.entries.PushBack(entry)
	l.TotalQty = l.TotalQty.Add(entry.RemainingQty)
}

// Head returns the oldest entry without removing it.
func (l *PriceLevel) Head() *BookEntry {
	front := l.entries.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*BookEntry)
}

// Remove detaches entry from the FIFO and subtracts its remaining
// quantity from the level total. O(1) via the entry's own list element.
func (l *PriceLevel) Remove(entry *BookEntry) {
	if entry.element == nil {
		return
	}
	l.entries.Remove(entry.element)
	l.TotalQty = l.TotalQty.Sub(entry.RemainingQty)
	entry.element = nil
}

// Adjust updates entry.RemainingQty and the level total to match. Called
// when a partial fill reduces the head entry's remaining quantity.
func (l *PriceLevel) Adjust(entry *BookEntry, newQty decimal.Decimal) {
	l.TotalQty = l.TotalQty.Add(newQty).Sub(entry.RemainingQty)
	entry.RemainingQty = newQty
}

// IsEmpty reports whether the level has no resting entries.
func (l *PriceLevel) IsEmpty() bool {
	return l.entries.Len() == 0
}

// Entries returns the FIFO snapshot oldest-first, for diagnostics/tests.
func (l *PriceLevel) Entries() []*BookEntry {
	out := make([]*BookEntry, 0, l.entries.Len())
	for e := l.entries.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*BookEntry))
	}
	return out
}

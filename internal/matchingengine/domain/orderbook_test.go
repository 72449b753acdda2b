package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(side OrderSide, price, qty string) *Order {
	now := time.Now()
	o := &Order{
		OrderID:    NewOrderID(),
		ClientID:   "client-1",
		Instrument: "BTC-USD",
		Side:       side,
		Kind:       TypeLimit,
		HasPrice:   true,
		Quantity:   decimal.RequireFromString(qty),
		Status:     StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	o.Price = decimal.RequireFromString(price)
	return o
}

func TestPriceLevel_FIFOOrdering(t *testing.T) {
	lvl := NewPriceLevel(decimal.RequireFromString("100"))
	first := &BookEntry{OrderID: NewOrderID(), RemainingQty: decimal.RequireFromString("1")}
	second := &BookEntry{OrderID: NewOrderID(), RemainingQty: decimal.RequireFromString("2")}

	lvl.PushBack(first)
	lvl.PushBack(second)

	require.Equal(t, first, lvl.Head())
	assert.True(t, lvl.TotalQty.Equal(decimal.RequireFromString("3")))

	lvl.Remove(first)
	require.Equal(t, second, lvl.Head())
	assert.True(t, lvl.TotalQty.Equal(decimal.RequireFromString("2")))
}

func TestOrderBook_AddLimit_BestBidIsHighestPrice(t *testing.T) {
	book := NewOrderBook("BTC-USD")

	low := newTestOrder(SideBuy, "100", "1")
	high := newTestOrder(SideBuy, "101", "1")
	book.AddLimit(low, low.Quantity)
	book.AddLimit(high, high.Quantity)

	best := book.BestBidLevel()
	require.NotNil(t, best)
	assert.True(t, best.Price.Equal(decimal.RequireFromString("101")))
}

func TestOrderBook_AddLimit_BestAskIsLowestPrice(t *testing.T) {
	book := NewOrderBook("BTC-USD")

	high := newTestOrder(SideSell, "105", "1")
	low := newTestOrder(SideSell, "102", "1")
	book.AddLimit(high, high.Quantity)
	book.AddLimit(low, low.Quantity)

	best := book.BestAskLevel()
	require.NotNil(t, best)
	assert.True(t, best.Price.Equal(decimal.RequireFromString("102")))
}

func TestOrderBook_SamePriceLevel_PreservesTimePriority(t *testing.T) {
	book := NewOrderBook("BTC-USD")

	earlier := newTestOrder(SideBuy, "100", "1")
	book.AddLimit(earlier, earlier.Quantity)

	later := newTestOrder(SideBuy, "100", "1")
	book.AddLimit(later, later.Quantity)

	lvl := book.BestBidLevel()
	require.NotNil(t, lvl)
	assert.Equal(t, earlier.OrderID, lvl.Head().OrderID)
}

func TestOrderBook_Cancel_RemovesRestingOrder(t *testing.T) {
	book := NewOrderBook("BTC-USD")
	order := newTestOrder(SideBuy, "100", "1")
	book.AddLimit(order, order.Quantity)

	assert.True(t, book.Cancel(order.OrderID))
	_, ok := book.Lookup(order.OrderID)
	assert.False(t, ok)
	assert.Nil(t, book.BestBidLevel())
}

func TestOrderBook_Cancel_UnknownOrder_IsNoOp(t *testing.T) {
	book := NewOrderBook("BTC-USD")
	assert.False(t, book.Cancel(NewOrderID()))
}

func TestOrderBook_UpdateRemaining_AdjustsLevelTotal(t *testing.T) {
	book := NewOrderBook("BTC-USD")
	order := newTestOrder(SideBuy, "100", "5")
	book.AddLimit(order, order.Quantity)

	book.UpdateRemaining(order.OrderID, decimal.RequireFromString("2"))

	lvl := book.BestBidLevel()
	require.NotNil(t, lvl)
	assert.True(t, lvl.TotalQty.Equal(decimal.RequireFromString("2")))
}

func TestOrderBook_RemoveFilled_DropsEmptyLevel(t *testing.T) {
	book := NewOrderBook("BTC-USD")
	order := newTestOrder(SideBuy, "100", "1")
	book.AddLimit(order, order.Quantity)

	book.RemoveFilled(order.OrderID)

	assert.Nil(t, book.BestBidLevel())
}

func TestOrderBook_Snapshot_TruncatesToDepth(t *testing.T) {
	book := NewOrderBook("BTC-USD")
	for i := 0; i < 5; i++ {
		price := decimal.NewFromInt(int64(100 + i))
		order := newTestOrder(SideBuy, price.String(), "1")
		book.AddLimit(order, order.Quantity)
	}

	snap := book.Snapshot(2)
	assert.Len(t, snap.Bids, 2)
	assert.True(t, snap.Bids[0].Price.Equal(decimal.RequireFromString("104")))
}

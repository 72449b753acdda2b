package domain_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
	"github.com/wyfcoding/matchingengine/internal/matchingengine/infrastructure/persistence/memory"
)

type recordingPublisher struct {
	trades []*domain.Trade
	orders []*domain.Order
}

func (p *recordingPublisher) PublishTrade(_ context.Context, t *domain.Trade) {
	p.trades = append(p.trades, t)
}
func (p *recordingPublisher) PublishOrderStateChange(_ context.Context, o *domain.Order) {
	p.orders = append(p.orders, o)
}
func (p *recordingPublisher) PublishBookDelta(context.Context, *domain.OrderBookSnapshot) {}

func newTestEngine(t *testing.T) (*domain.Engine, *memory.Repository, *recordingPublisher) {
	t.Helper()
	repo := memory.NewRepository()
	pub := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := domain.NewEngine(16, repo, pub, logger)
	engine.Start(context.Background())
	t.Cleanup(func() { engine.Stop(time.Second) })
	return engine, repo, pub
}

func limitOrder(side domain.OrderSide, price, qty string) *domain.Order {
	now := time.Now()
	return &domain.Order{
		OrderID:    domain.NewOrderID(),
		ClientID:   "c1",
		Instrument: "BTC-USD",
		Side:       side,
		Kind:       domain.TypeLimit,
		HasPrice:   true,
		Price:      decimal.RequireFromString(price),
		Quantity:   decimal.RequireFromString(qty),
		Status:     domain.StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func marketOrder(side domain.OrderSide, qty string) *domain.Order {
	now := time.Now()
	return &domain.Order{
		OrderID:    domain.NewOrderID(),
		ClientID:   "c1",
		Instrument: "BTC-USD",
		Side:       side,
		Kind:       domain.TypeMarket,
		Quantity:   decimal.RequireFromString(qty),
		Status:     domain.StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func submitAndWait(t *testing.T, engine *domain.Engine, order *domain.Order) *domain.Order {
	t.Helper()
	done := make(chan *domain.Order, 1)
	require.True(t, engine.Enqueue(domain.Command{Place: &domain.PlaceCommand{Order: order, Done: done}}))
	select {
	case result := <-done:
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for place command")
		return nil
	}
}

func TestEngine_RestingLimitOrder_NoCross(t *testing.T) {
	engine, _, pub := newTestEngine(t)

	order := limitOrder(domain.SideBuy, "100", "1")
	result := submitAndWait(t, engine, order)

	assert.Equal(t, domain.StatusOpen, result.Status)
	assert.Empty(t, pub.trades)

	book, ok := engine.Book("BTC-USD")
	require.True(t, ok)
	assert.NotNil(t, book.BestBidLevel())
}

func TestEngine_CrossingLimitOrder_ProducesTrade(t *testing.T) {
	engine, _, pub := newTestEngine(t)

	resting := limitOrder(domain.SideSell, "100", "1")
	submitAndWait(t, engine, resting)

	aggressor := limitOrder(domain.SideBuy, "100", "1")
	result := submitAndWait(t, engine, aggressor)

	assert.Equal(t, domain.StatusFilled, result.Status)
	require.Len(t, pub.trades, 1)
	assert.True(t, pub.trades[0].Quantity.Equal(decimal.RequireFromString("1")))
}

func TestEngine_PartialFill_RestsRemainder(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	resting := limitOrder(domain.SideSell, "100", "1")
	submitAndWait(t, engine, resting)

	aggressor := limitOrder(domain.SideBuy, "100", "3")
	result := submitAndWait(t, engine, aggressor)

	assert.Equal(t, domain.StatusPartiallyFilled, result.Status)
	assert.True(t, result.FilledQuantity.Equal(decimal.RequireFromString("1")))

	book, ok := engine.Book("BTC-USD")
	require.True(t, ok)
	best := book.BestBidLevel()
	require.NotNil(t, best)
	assert.True(t, best.TotalQty.Equal(decimal.RequireFromString("2")))
}

func TestEngine_MarketOrder_ExhaustedBook_PartiallyFilledNotRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	order := marketOrder(domain.SideBuy, "5")
	result := submitAndWait(t, engine, order)

	assert.Equal(t, domain.StatusPartiallyFilled, result.Status)
	assert.True(t, result.FilledQuantity.IsZero())
}

func TestEngine_RejectsInvalidLimitOrder_MissingPrice(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	order := limitOrder(domain.SideBuy, "100", "1")
	order.HasPrice = false
	result := submitAndWait(t, engine, order)

	assert.Equal(t, domain.StatusRejected, result.Status)
}

func TestEngine_Cancel_RemovesRestingOrder(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	order := limitOrder(domain.SideBuy, "100", "1")
	submitAndWait(t, engine, order)

	done := make(chan *domain.Order, 1)
	require.True(t, engine.Enqueue(domain.Command{Cancel: &domain.CancelCommand{
		OrderID:    order.OrderID,
		Instrument: order.Instrument,
		Done:       done,
	}}))

	var result *domain.Order
	select {
	case result = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancel")
	}

	require.NotNil(t, result)
	assert.Equal(t, domain.StatusCancelled, result.Status)

	book, ok := engine.Book("BTC-USD")
	require.True(t, ok)
	assert.Nil(t, book.BestBidLevel())
}

func TestEngine_Cancel_UnknownOrder_ReturnsNil(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	done := make(chan *domain.Order, 1)
	require.True(t, engine.Enqueue(domain.Command{Cancel: &domain.CancelCommand{
		OrderID:    domain.NewOrderID(),
		Instrument: "BTC-USD",
		Done:       done,
	}}))

	select {
	case result := <-done:
		assert.Nil(t, result)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancel")
	}
}

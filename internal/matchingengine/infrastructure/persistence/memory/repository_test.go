package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
	"github.com/wyfcoding/matchingengine/internal/matchingengine/infrastructure/persistence/memory"
)

func newOrder(status domain.OrderStatus, createdAt time.Time) *domain.Order {
	return &domain.Order{
		OrderID:    domain.NewOrderID(),
		ClientID:   "c1",
		Instrument: "BTC-USD",
		Side:       domain.SideBuy,
		Kind:       domain.TypeLimit,
		HasPrice:   true,
		Price:      decimal.RequireFromString("100"),
		Quantity:   decimal.RequireFromString("1"),
		Status:     status,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func TestRepository_InsertAndFindByID(t *testing.T) {
	repo := memory.NewRepository()
	order := newOrder(domain.StatusOpen, time.Now())

	require.NoError(t, repo.InsertOrder(context.Background(), order))

	found, err := repo.FindByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, found.OrderID)
}

func TestRepository_InsertOrder_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	repo := memory.NewRepository()
	key := "dup-key"

	first := newOrder(domain.StatusOpen, time.Now())
	first.IdempotencyKey = &key
	require.NoError(t, repo.InsertOrder(context.Background(), first))

	second := newOrder(domain.StatusOpen, time.Now())
	second.IdempotencyKey = &key
	err := repo.InsertOrder(context.Background(), second)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRepository_FindByIdempotencyKey_Unknown_ReturnsNilNoError(t *testing.T) {
	repo := memory.NewRepository()

	found, err := repo.FindByIdempotencyKey(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRepository_ScanLiveOrders_FiltersTerminalAndSortsByCreatedAt(t *testing.T) {
	repo := memory.NewRepository()
	base := time.Now()

	older := newOrder(domain.StatusOpen, base)
	newer := newOrder(domain.StatusPartiallyFilled, base.Add(time.Second))
	terminal := newOrder(domain.StatusFilled, base.Add(2*time.Second))
	cancelled := newOrder(domain.StatusCancelled, base.Add(3*time.Second))

	require.NoError(t, repo.SaveOrders(context.Background(), []*domain.Order{newer, older, terminal, cancelled}))

	live, err := repo.ScanLiveOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, older.OrderID, live[0].OrderID)
	assert.Equal(t, newer.OrderID, live[1].OrderID)
}

func TestRepository_ListTrades_FiltersByInstrumentAndLimits(t *testing.T) {
	repo := memory.NewRepository()

	trades := []*domain.Trade{
		{TradeID: domain.NewTradeID(), Instrument: "BTC-USD", Quantity: decimal.RequireFromString("1")},
		{TradeID: domain.NewTradeID(), Instrument: "ETH-USD", Quantity: decimal.RequireFromString("1")},
		{TradeID: domain.NewTradeID(), Instrument: "BTC-USD", Quantity: decimal.RequireFromString("2")},
	}
	require.NoError(t, repo.SaveTrades(context.Background(), trades))

	found, err := repo.ListTrades(context.Background(), "BTC-USD", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)

	limited, err := repo.ListTrades(context.Background(), "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRepository_WithTx_RunsFnAgainstSameRepository(t *testing.T) {
	repo := memory.NewRepository()
	order := newOrder(domain.StatusOpen, time.Now())

	err := repo.WithTx(context.Background(), func(ctx context.Context) error {
		return repo.InsertOrder(ctx, order)
	})
	require.NoError(t, err)

	found, err := repo.FindByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.NotNil(t, found)
}

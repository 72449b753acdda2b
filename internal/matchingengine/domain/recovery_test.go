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

func TestRecoveryService_RestoresLiveOrdersIntoBook(t *testing.T) {
	repo := memory.NewRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	now := time.Now()
	live := &domain.Order{
		OrderID:    domain.NewOrderID(),
		ClientID:   "c1",
		Instrument: "BTC-USD",
		Side:       domain.SideBuy,
		Kind:       domain.TypeLimit,
		HasPrice:   true,
		Price:      decimal.RequireFromString("100"),
		Quantity:   decimal.RequireFromString("2"),
		Status:     domain.StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	filled := &domain.Order{
		OrderID:        domain.NewOrderID(),
		ClientID:       "c1",
		Instrument:     "BTC-USD",
		Side:           domain.SideSell,
		Kind:           domain.TypeLimit,
		HasPrice:       true,
		Price:          decimal.RequireFromString("101"),
		Quantity:       decimal.RequireFromString("1"),
		FilledQuantity: decimal.RequireFromString("1"),
		Status:         domain.StatusFilled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.InsertOrder(context.Background(), live))
	require.NoError(t, repo.InsertOrder(context.Background(), filled))

	pub := &recordingPublisher{}
	engine := domain.NewEngine(16, repo, pub, logger)
	require.NoError(t, domain.NewRecoveryService(repo, engine, logger).Recover(context.Background()))

	book, ok := engine.Book("BTC-USD")
	require.True(t, ok)

	_, restored := book.Lookup(live.OrderID)
	assert.True(t, restored)
	_, shouldNotExist := book.Lookup(filled.OrderID)
	assert.False(t, shouldNotExist)
}

package application_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/application"
	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
	"github.com/wyfcoding/matchingengine/internal/matchingengine/infrastructure/persistence/memory"
)

type noopPublisher struct{}

func (noopPublisher) PublishTrade(context.Context, *domain.Trade)                 {}
func (noopPublisher) PublishOrderStateChange(context.Context, *domain.Order)      {}
func (noopPublisher) PublishBookDelta(context.Context, *domain.OrderBookSnapshot) {}

func newTestIntake(t *testing.T) (*application.IntakeService, *domain.Engine) {
	t.Helper()
	repo := memory.NewRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := domain.NewEngine(16, repo, noopPublisher{}, logger)
	engine.Start(context.Background())
	t.Cleanup(func() { engine.Stop(time.Second) })
	return application.NewIntakeService(repo, engine, logger), engine
}

func TestIntakeService_SubmitOrder_RejectsInvalidSide(t *testing.T) {
	intake, _ := newTestIntake(t)

	_, err := intake.SubmitOrder(context.Background(), application.SubmitOrderRequest{
		ClientID:   "c1",
		Instrument: "BTC-USD",
		Side:       "north",
		Type:       "limit",
		Quantity:   decimal.RequireFromString("1"),
		Price:      decimalPtr("100"),
	})

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIntakeService_SubmitOrder_RejectsLimitWithoutPrice(t *testing.T) {
	intake, _ := newTestIntake(t)

	_, err := intake.SubmitOrder(context.Background(), application.SubmitOrderRequest{
		ClientID:   "c1",
		Instrument: "BTC-USD",
		Side:       "buy",
		Type:       "limit",
		Quantity:   decimal.RequireFromString("1"),
	})

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIntakeService_SubmitOrder_IdempotentReplay(t *testing.T) {
	intake, _ := newTestIntake(t)
	key := "client-key-1"

	req := application.SubmitOrderRequest{
		ClientID:       "c1",
		Instrument:     "BTC-USD",
		Side:           "buy",
		Type:           "limit",
		Quantity:       decimal.RequireFromString("1"),
		Price:          decimalPtr("100"),
		IdempotencyKey: &key,
	}

	first, err := intake.SubmitOrder(context.Background(), req)
	require.NoError(t, err)

	second, err := intake.SubmitOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
}

func TestIntakeService_CancelOrder_UnknownID_ReturnsNotFound(t *testing.T) {
	intake, _ := newTestIntake(t)

	_, err := intake.CancelOrder(context.Background(), domain.NewOrderID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/application"
	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
	"github.com/wyfcoding/matchingengine/internal/matchingengine/infrastructure/events/broadcast"
	"github.com/wyfcoding/matchingengine/internal/matchingengine/infrastructure/persistence/memory"
	httpserver "github.com/wyfcoding/matchingengine/internal/matchingengine/interfaces/http"
)

type noopPublisher struct{}

func (noopPublisher) PublishTrade(context.Context, *domain.Trade)                 {}
func (noopPublisher) PublishOrderStateChange(context.Context, *domain.Order)      {}
func (noopPublisher) PublishBookDelta(context.Context, *domain.OrderBookSnapshot) {}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memory.NewRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := domain.NewEngine(16, repo, noopPublisher{}, logger)
	engine.Start(context.Background())
	t.Cleanup(func() { engine.Stop(time.Second) })

	intake := application.NewIntakeService(repo, engine, logger)
	query := application.NewQueryService(repo, engine, nil)
	broadcaster := broadcast.NewBroadcaster()

	handler := httpserver.NewHandler(intake, query, broadcaster, 20, 1000)
	router := gin.New()
	handler.RegisterRoutes(router)
	return router
}

func TestHandler_SubmitOrder_ValidationError_Returns400(t *testing.T) {
	router := newTestRouter(t)

	body := []byte(`{"client_id":"c1","instrument":"BTC-USD","side":"buy","type":"limit","quantity":"1"}`)
	req := httptest.NewRequest("POST", "/api/v1/matching/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "VALIDATION_FAILED", env["error_code"])
}

func TestHandler_SubmitOrder_Valid_Returns201(t *testing.T) {
	router := newTestRouter(t)

	body := []byte(`{"client_id":"c1","instrument":"BTC-USD","side":"buy","type":"limit","price":"100","quantity":"1"}`)
	req := httptest.NewRequest("POST", "/api/v1/matching/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, 201, rec.Code)

	var view application.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "open", view.Status)
}

func TestHandler_CancelOrder_UnknownID_Returns404(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/v1/matching/orders/"+domain.NewOrderID().String()+"/cancel", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestHandler_CancelOrder_InvalidID_Returns400(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/v1/matching/orders/not-a-uuid/cancel", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestHandler_GetOrderBook_MissingInstrument_Returns400(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/matching/orderbook", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestHandler_GetOrderBook_UnknownInstrument_ReturnsEmptyBook(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/matching/orderbook?instrument=BTC-USD", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)

	var view application.OrderBookView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Empty(t, view.Bids)
	assert.Empty(t, view.Asks)
}

func TestHandler_Healthz_ReturnsOK(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}

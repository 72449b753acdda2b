// Package http exposes the matching engine over the REST/SSE surface:
// order intake, cancellation, order book and trade queries, and the
// best-effort event streams.
package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/application"
	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
	"github.com/wyfcoding/matchingengine/internal/matchingengine/infrastructure/events/broadcast"
	"github.com/wyfcoding/matchingengine/pkg/logger"
)

// Handler serves the matching engine's HTTP and SSE endpoints.
type Handler struct {
	intake       *application.IntakeService
	query        *application.QueryService
	broadcaster  *broadcast.Broadcaster
	defaultDepth int
	maxDepth     int
}

func NewHandler(intake *application.IntakeService, query *application.QueryService, broadcaster *broadcast.Broadcaster, defaultDepth, maxDepth int) *Handler {
	return &Handler{
		intake:       intake,
		query:        query,
		broadcaster:  broadcaster,
		defaultDepth: defaultDepth,
		maxDepth:     maxDepth,
	}
}

// RegisterRoutes binds every endpoint from the matching engine's HTTP
// surface onto router.
func (h *Handler) RegisterRoutes(router *gin.Engine, rateLimit ...gin.HandlerFunc) {
	api := router.Group("/api/v1/matching")

	submit := api.Group("")
	submit.Use(rateLimit...)
	submit.POST("/orders", h.SubmitOrder)

	api.POST("/orders/:id/cancel", h.CancelOrder)
	api.GET("/orders/:id", h.GetOrder)
	api.GET("/orderbook", h.GetOrderBook)
	api.GET("/trades", h.GetTrades)
	api.GET("/events/:channel", h.StreamEvents)

	router.GET("/healthz", h.Healthz)
}

// errorEnvelope is the uniform JSON body this handler returns on every
// non-2xx response it writes itself. Rejections written by middleware
// (the rate limiter's 429, the panic recovery's 500) use their own bodies.
type errorEnvelope struct {
	Message   string    `json:"message"`
	ErrorCode string    `json:"error_code"`
	Timestamp time.Time `json:"timestamp"`
	Errors    []string  `json:"errors,omitempty"`
}

func writeError(c *gin.Context, status int, code, message string, errs ...string) {
	c.JSON(status, errorEnvelope{
		Message:   message,
		ErrorCode: code,
		Timestamp: time.Now(),
		Errors:    errs,
	})
}

// statusFor maps the domain error taxonomy onto the §7 HTTP status table.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable, "QUEUE_FULL"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	case errors.Is(err, domain.ErrLogicReject):
		return http.StatusUnprocessableEntity, "REJECTED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// SubmitOrder handles POST /orders.
func (h *Handler) SubmitOrder(c *gin.Context) {
	var body struct {
		ClientID       string           `json:"client_id" binding:"required"`
		Instrument     string           `json:"instrument" binding:"required"`
		Side           string           `json:"side" binding:"required"`
		Type           string           `json:"type" binding:"required"`
		Price          *decimal.Decimal `json:"price"`
		Quantity       decimal.Decimal  `json:"quantity" binding:"required"`
		IdempotencyKey *string          `json:"idempotency_key"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body", err.Error())
		return
	}

	req := application.SubmitOrderRequest{
		ClientID:       body.ClientID,
		Instrument:     body.Instrument,
		Side:           body.Side,
		Type:           body.Type,
		Price:          body.Price,
		Quantity:       body.Quantity,
		IdempotencyKey: body.IdempotencyKey,
	}

	order, err := h.intake.SubmitOrder(c.Request.Context(), req)
	if err != nil {
		status, code := statusFor(err)
		logger.Error(c.Request.Context(), "submit order failed", "error", err)
		writeError(c, status, code, err.Error())
		return
	}

	c.JSON(http.StatusCreated, toOrderResponse(order))
}

// CancelOrder handles POST /orders/{id}/cancel.
func (h *Handler) CancelOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	order, err := h.intake.CancelOrder(c.Request.Context(), orderID)
	if err != nil {
		status, code := statusFor(err)
		logger.Error(c.Request.Context(), "cancel order failed", "order_id", orderID, "error", err)
		writeError(c, status, code, err.Error())
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	order, err := h.query.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		status, code := statusFor(err)
		writeError(c, status, code, err.Error())
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// GetOrderBook handles GET /orderbook?instrument=X&levels=N.
func (h *Handler) GetOrderBook(c *gin.Context) {
	instrument := c.Query("instrument")
	if instrument == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", "instrument is required")
		return
	}

	depth := h.defaultDepth
	if raw := c.Query("levels"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid levels")
			return
		}
		depth = parsed
	}
	if depth > h.maxDepth {
		depth = h.maxDepth
	}

	snapshot := h.query.GetOrderBook(c.Request.Context(), instrument, depth)
	c.JSON(http.StatusOK, application.ToOrderBookView(snapshot))
}

// GetTrades handles GET /trades?instrument=X&limit=N.
func (h *Handler) GetTrades(c *gin.Context) {
	instrument := c.Query("instrument")
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid limit")
			return
		}
		limit = parsed
	}

	trades, err := h.query.ListTrades(c.Request.Context(), instrument, limit)
	if err != nil {
		status, code := statusFor(err)
		writeError(c, status, code, err.Error())
		return
	}

	views := make([]*application.TradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, application.ToTradeView(t))
	}
	c.JSON(http.StatusOK, gin.H{"trades": views})
}

// StreamEvents handles GET /events/{channel} for channel in
// {trades, orderbook, orders}, streaming server-sent events until the
// client disconnects.
func (h *Handler) StreamEvents(c *gin.Context) {
	channel := c.Param("channel")
	switch channel {
	case broadcast.ChannelTrades, broadcast.ChannelOrderBook, broadcast.ChannelOrders:
	default:
		writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", "unknown event channel")
		return
	}

	messages, unsubscribe := h.broadcaster.Subscribe(channel)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-messages:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.EventType, msg.Payload)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	if !h.query.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "paused"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseOrderID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}

func toOrderResponse(order *domain.Order) *application.OrderView {
	return application.ToOrderView(order)
}

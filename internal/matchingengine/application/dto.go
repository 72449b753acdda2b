// Package application wires the domain's matching engine to its external
// collaborators: validating and enqueuing incoming commands (intake),
// and serving read-only queries over orders, trades and order books.
package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubmitOrderRequest is the intake-side representation of POST /orders.
type SubmitOrderRequest struct {
	ClientID       string
	Instrument     string
	Side           string // "buy" | "sell"
	Type           string // "limit" | "market"
	Price          *decimal.Decimal
	Quantity       decimal.Decimal
	IdempotencyKey *string
}

// OrderView is the wire shape of an order record.
type OrderView struct {
	OrderID        uuid.UUID       `json:"order_id"`
	ClientID       string          `json:"client_id"`
	Instrument     string          `json:"instrument"`
	Side           string          `json:"side"`
	Type           string          `json:"type"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	Status         string          `json:"status"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TradeView is the wire shape of a trade record.
type TradeView struct {
	TradeID     uuid.UUID       `json:"trade_id"`
	BuyOrderID  uuid.UUID       `json:"buy_order_id"`
	SellOrderID uuid.UUID       `json:"sell_order_id"`
	Instrument  string          `json:"instrument"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// LevelView is one row of an order book query/broadcast.
type LevelView struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBookView is the wire shape of GET /orderbook.
type OrderBookView struct {
	Instrument   string       `json:"instrument"`
	SnapshotTime time.Time    `json:"snapshot_time"`
	Bids         []*LevelView `json:"bids"`
	Asks         []*LevelView `json:"asks"`
}

// Package domain holds the matching engine's core model: orders, trades,
// price levels, the order book, and the single-writer engine that ties
// them together.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderSide int

const (
	SideBuy OrderSide = iota + 1
	SideSell
)

func (s OrderSide) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

type OrderType int

const (
	TypeLimit OrderType = iota + 1
	TypeMarket
)

func (t OrderType) String() string {
	if t == TypeLimit {
		return "LIMIT"
	}
	return "MARKET"
}

type OrderStatus int

const (
	StatusOpen OrderStatus = iota + 1
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether an order's status can no longer change.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order is the durable record of a client order. Created by Intake,
// mutated only by the matching engine's worker goroutine after enqueue.
type Order struct {
	OrderID        uuid.UUID       `gorm:"column:order_id;type:char(36);primaryKey"`
	ClientID       string          `gorm:"column:client_id;type:varchar(64);not null"`
	Instrument     string          `gorm:"column:instrument;type:varchar(32);index:idx_instrument_status;not null"`
	Side           OrderSide       `gorm:"column:side;type:tinyint;not null"`
	Kind           OrderType       `gorm:"column:kind;type:tinyint;not null"`
	Price          decimal.Decimal `gorm:"column:price;type:decimal(18,8)"`
	HasPrice       bool            `gorm:"column:has_price;not null"`
	Quantity       decimal.Decimal `gorm:"column:quantity;type:decimal(30,8);not null"`
	FilledQuantity decimal.Decimal `gorm:"column:filled_quantity;type:decimal(30,8);not null"`
	Status         OrderStatus     `gorm:"column:status;type:tinyint;index:idx_instrument_status;not null"`
	IdempotencyKey *string         `gorm:"column:idempotency_key;type:varchar(128);uniqueIndex:idx_idempotency_key"`
	CreatedAt      time.Time       `gorm:"column:created_at;not null;index"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;not null"`
}

func (Order) TableName() string { return "orders" }

// RemainingQuantity returns quantity not yet filled.
func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Clone returns a deep-enough copy safe to hand to a reader outside the
// worker goroutine (decimal.Decimal is itself immutable).
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// Trade is an immutable execution record produced by the matching engine.
type Trade struct {
	TradeID     uuid.UUID       `gorm:"column:trade_id;type:char(36);primaryKey"`
	BuyOrderID  uuid.UUID       `gorm:"column:buy_order_id;type:char(36);index;not null"`
	SellOrderID uuid.UUID       `gorm:"column:sell_order_id;type:char(36);index;not null"`
	Instrument  string          `gorm:"column:instrument;type:varchar(32);index;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:decimal(18,8);not null"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:decimal(30,8);not null"`
	ExecutedAt  time.Time       `gorm:"column:executed_at;not null;index"`
}

func (Trade) TableName() string { return "trades" }

// NewOrderID / NewTradeID give the intake and engine a single place to
// mint ids; both are 128-bit (v4 UUID) as required.
func NewOrderID() uuid.UUID { return uuid.New() }
func NewTradeID() uuid.UUID { return uuid.New() }

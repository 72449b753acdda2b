package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the Persistence Port: the durable store for orders and
// trades. Implementations must enforce the unique constraint over
// non-null idempotency_key and support the range scan recovery depends
// on.
type Repository interface {
	// InsertOrder durably writes a newly-created order (status OPEN).
	InsertOrder(ctx context.Context, order *Order) error
	// FindByIdempotencyKey returns the existing order bound to key, or
	// nil if none exists.
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	// FindByID returns the order, or nil if not found.
	FindByID(ctx context.Context, orderID uuid.UUID) (*Order, error)
	// SaveOrders batch-upserts the given orders (idempotent by order_id).
	SaveOrders(ctx context.Context, orders []*Order) error
	// SaveTrades batch-upserts the given trades (idempotent by trade_id;
	// a duplicate trade_id is treated as success).
	SaveTrades(ctx context.Context, trades []*Trade) error
	// ScanLiveOrders returns all orders with status OPEN or
	// PARTIALLY_FILLED, ordered by created_at ascending.
	ScanLiveOrders(ctx context.Context) ([]*Order, error)
	// ListTrades returns the most recent trades for instrument (across
	// all instruments when instrument is empty), newest first, capped at
	// limit.
	ListTrades(ctx context.Context, instrument string, limit int) ([]*Trade, error)

	// WithTx runs fn inside a single database transaction; all writes
	// issued through the ctx it passes to fn participate in that
	// transaction. Used by the engine's per-command persistence step to
	// write trades then orders atomically.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher fans trade / order-state / book-delta events out to
// subscribers. Best-effort: a slow or disconnected subscriber is
// dropped silently, never blocking the publisher.
type EventPublisher interface {
	PublishTrade(ctx context.Context, trade *Trade)
	PublishOrderStateChange(ctx context.Context, order *Order)
	PublishBookDelta(ctx context.Context, snapshot *OrderBookSnapshot)
}

// Package kafka mirrors matching engine events onto Kafka topics using
// the shared pkg/mq producer, for downstream consumers outside the
// service's own SSE stream (analytics, audit, settlement).
package kafka

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
	"github.com/wyfcoding/matchingengine/pkg/mq"
)

const (
	TopicTrades            = "matching.trades"
	TopicOrderStateChanges = "matching.order_state_changes"
	TopicOrderBookDeltas   = "matching.orderbook_deltas"
)

// Publisher implements domain.EventPublisher by writing each event to
// its own Kafka topic, keyed by instrument (trades/deltas) or order id
// (order state changes) so a single consumer group partitions cleanly
// per instrument/order. Best-effort: a write failure is logged, never
// returned, matching the "best-effort, drop silently" delivery policy.
type Publisher struct {
	producer *mq.KafkaProducer
	logger   *slog.Logger
}

func NewPublisher(producer *mq.KafkaProducer, logger *slog.Logger) *Publisher {
	return &Publisher{producer: producer, logger: logger.With("module", "kafka_event_publisher")}
}

func (p *Publisher) PublishTrade(ctx context.Context, trade *domain.Trade) {
	if err := p.producer.SendMessage(ctx, TopicTrades, trade.Instrument, trade); err != nil {
		p.logger.Warn("failed to publish trade event", "trade_id", trade.TradeID, "error", err)
	}
}

func (p *Publisher) PublishOrderStateChange(ctx context.Context, order *domain.Order) {
	if err := p.producer.SendMessage(ctx, TopicOrderStateChanges, order.OrderID.String(), order); err != nil {
		p.logger.Warn("failed to publish order state change event", "order_id", order.OrderID, "error", err)
	}
}

func (p *Publisher) PublishBookDelta(ctx context.Context, snapshot *domain.OrderBookSnapshot) {
	if err := p.producer.SendMessage(ctx, TopicOrderBookDeltas, snapshot.Instrument, snapshot); err != nil {
		p.logger.Warn("failed to publish orderbook delta event", "instrument", snapshot.Instrument, "error", err)
	}
}

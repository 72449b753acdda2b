package application

import (
	"strings"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
)

func parseSide(s string) (domain.OrderSide, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return domain.SideBuy, true
	case "sell":
		return domain.SideSell, true
	default:
		return 0, false
	}
}

func parseType(s string) (domain.OrderType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "limit":
		return domain.TypeLimit, true
	case "market":
		return domain.TypeMarket, true
	default:
		return 0, false
	}
}

func sideString(s domain.OrderSide) string {
	if s == domain.SideBuy {
		return "buy"
	}
	return "sell"
}

func typeString(t domain.OrderType) string {
	if t == domain.TypeLimit {
		return "limit"
	}
	return "market"
}

func statusString(s domain.OrderStatus) string {
	switch s {
	case domain.StatusOpen:
		return "open"
	case domain.StatusPartiallyFilled:
		return "partially_filled"
	case domain.StatusFilled:
		return "filled"
	case domain.StatusCancelled:
		return "cancelled"
	case domain.StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func ToOrderView(o *domain.Order) *OrderView {
	if o == nil {
		return nil
	}
	v := &OrderView{
		OrderID:        o.OrderID,
		ClientID:       o.ClientID,
		Instrument:     o.Instrument,
		Side:           sideString(o.Side),
		Type:           typeString(o.Kind),
		Quantity:       o.Quantity,
		FilledQuantity: o.FilledQuantity,
		Status:         statusString(o.Status),
		IdempotencyKey: o.IdempotencyKey,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.HasPrice {
		price := o.Price
		v.Price = &price
	}
	return v
}

func ToTradeView(t *domain.Trade) *TradeView {
	return &TradeView{
		TradeID:     t.TradeID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Instrument:  t.Instrument,
		Price:       t.Price,
		Quantity:    t.Quantity,
		ExecutedAt:  t.ExecutedAt,
	}
}

func ToOrderBookView(s *domain.OrderBookSnapshot) *OrderBookView {
	v := &OrderBookView{
		Instrument:   s.Instrument,
		SnapshotTime: s.SnapshotTime,
		Bids:         make([]*LevelView, 0, len(s.Bids)),
		Asks:         make([]*LevelView, 0, len(s.Asks)),
	}
	for _, l := range s.Bids {
		v.Bids = append(v.Bids, &LevelView{Price: l.Price, Quantity: l.Quantity})
	}
	for _, l := range s.Asks {
		v.Asks = append(v.Asks, &LevelView{Price: l.Price, Quantity: l.Quantity})
	}
	return v
}

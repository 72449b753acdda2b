// Package memory provides an in-process domain.Repository double, used
// by unit and integration tests that exercise the engine without a
// database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
)

type Repository struct {
	mu            sync.Mutex
	orders        map[uuid.UUID]*domain.Order
	byIdempotency map[string]uuid.UUID
	trades        []*domain.Trade
}

func NewRepository() *Repository {
	return &Repository{
		orders:        make(map[uuid.UUID]*domain.Order),
		byIdempotency: make(map[string]uuid.UUID),
	}
}

func (r *Repository) InsertOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.IdempotencyKey != nil {
		if _, exists := r.byIdempotency[*order.IdempotencyKey]; exists {
			return domain.ErrValidation
		}
	}
	r.orders[order.OrderID] = order
	if order.IdempotencyKey != nil {
		r.byIdempotency[*order.IdempotencyKey] = order.OrderID
	}
	return nil
}

func (r *Repository) FindByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byIdempotency[key]
	if !ok {
		return nil, nil
	}
	return r.orders[id], nil
}

func (r *Repository) FindByID(_ context.Context, orderID uuid.UUID) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[orderID], nil
}

func (r *Repository) SaveOrders(_ context.Context, orders []*domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range orders {
		r.orders[o.OrderID] = o
		if o.IdempotencyKey != nil {
			r.byIdempotency[*o.IdempotencyKey] = o.OrderID
		}
	}
	return nil
}

func (r *Repository) SaveTrades(_ context.Context, trades []*domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, trades...)
	return nil
}

func (r *Repository) ScanLiveOrders(_ context.Context) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var live []*domain.Order
	for _, o := range r.orders {
		if o.Status == domain.StatusOpen || o.Status == domain.StatusPartiallyFilled {
			live = append(live, o)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.Before(live[j].CreatedAt) })
	return live, nil
}

func (r *Repository) ListTrades(_ context.Context, instrument string, limit int) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*domain.Trade
	for i := len(r.trades) - 1; i >= 0; i-- {
		t := r.trades[i]
		if instrument != "" && t.Instrument != instrument {
			continue
		}
		matched = append(matched, t)
		if len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

// WithTx has no real transactional isolation in memory; fn runs against
// the same repository, matching WithTx's contract for a single-writer
// caller (the engine never runs two commits concurrently).
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

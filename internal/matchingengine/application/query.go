package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
	"github.com/wyfcoding/matchingengine/pkg/cache"
)

const (
	orderBookCacheTTL = 2 * time.Second
	tradesCacheTTL    = 2 * time.Second
	tradesCacheDepth  = 200
)

// QueryService serves read-only access to orders, trades and order book
// snapshots. Order book and trade reads go through a short-TTL Redis
// cache before falling back to the engine's published snapshot or the
// repository; cache is optional (nil skips straight to the source),
// which keeps the service usable in tests without a Redis dependency.
type QueryService struct {
	repo   domain.Repository
	engine *domain.Engine
	cache  *cache.RedisCache
}

func NewQueryService(repo domain.Repository, engine *domain.Engine, redisCache *cache.RedisCache) *QueryService {
	return &QueryService{repo: repo, engine: engine, cache: redisCache}
}

// GetOrder returns the order, or domain.ErrNotFound if unknown.
func (q *QueryService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := q.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, domain.ErrStoreUnavailable
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

// GetOrderBook returns the instrument's current snapshot truncated to
// depth levels per side. An instrument with no book yet created (no
// orders ever submitted for it) returns an empty snapshot, not an error.
// The full MaxQueryDepth snapshot is cached under one key per
// instrument so any requested depth can be served by truncating the
// cached value, instead of caching one entry per (instrument, depth)
// pair.
func (q *QueryService) GetOrderBook(ctx context.Context, instrument string, depth int) *domain.OrderBookSnapshot {
	key := orderBookCacheKey(instrument)
	if q.cache != nil {
		var cached domain.OrderBookSnapshot
		if err := q.cache.GetJSON(ctx, key, &cached); err == nil && cached.Instrument == instrument {
			return truncateSnapshot(&cached, depth)
		}
	}

	book, ok := q.engine.Book(instrument)
	if !ok {
		return &domain.OrderBookSnapshot{Instrument: instrument}
	}
	full := book.Snapshot(domain.MaxQueryDepth)
	if q.cache != nil {
		_ = q.cache.SetJSON(ctx, key, full, orderBookCacheTTL)
	}
	return truncateSnapshot(full, depth)
}

// ListTrades returns the most recent trades, newest first, capped at
// limit. Up to tradesCacheDepth trades per instrument are cached; a
// request for more than that bypasses the cache entirely rather than
// serving a short page from it.
func (q *QueryService) ListTrades(ctx context.Context, instrument string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	if q.cache == nil || limit > tradesCacheDepth {
		trades, err := q.repo.ListTrades(ctx, instrument, limit)
		if err != nil {
			return nil, domain.ErrStoreUnavailable
		}
		return trades, nil
	}

	key := tradesCacheKey(instrument)
	var cached []*domain.Trade
	if err := q.cache.GetJSON(ctx, key, &cached); err == nil && cached != nil {
		if len(cached) > limit {
			cached = cached[:limit]
		}
		return cached, nil
	}

	trades, err := q.repo.ListTrades(ctx, instrument, tradesCacheDepth)
	if err != nil {
		return nil, domain.ErrStoreUnavailable
	}
	_ = q.cache.SetJSON(ctx, key, trades, tradesCacheTTL)
	if len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

// Healthy reports whether the engine is accepting and processing
// commands (not paused after exhausting commit retries).
func (q *QueryService) Healthy() bool {
	return !q.engine.IsPaused()
}

func orderBookCacheKey(instrument string) string {
	return fmt.Sprintf("matchingengine:orderbook:%s", instrument)
}

func tradesCacheKey(instrument string) string {
	return fmt.Sprintf("matchingengine:trades:%s", instrument)
}

func truncateSnapshot(full *domain.OrderBookSnapshot, depth int) *domain.OrderBookSnapshot {
	if depth <= 0 || depth > domain.MaxQueryDepth {
		depth = domain.DefaultBroadcastDepth
	}
	out := &domain.OrderBookSnapshot{Instrument: full.Instrument, SnapshotTime: full.SnapshotTime}
	if len(full.Bids) > depth {
		out.Bids = full.Bids[:depth]
	} else {
		out.Bids = full.Bids
	}
	if len(full.Asks) > depth {
		out.Asks = full.Asks[:depth]
	} else {
		out.Asks = full.Asks
	}
	return out
}

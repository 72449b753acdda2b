package domain

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultQueueCapacity is the bounded command queue's default capacity Q.
const DefaultQueueCapacity = 10_000

const (
	commitInitialBackoff = 100 * time.Millisecond
	commitMaxBackoff     = 5 * time.Second
	commitMaxAttempts    = 5
	pauseInitialBackoff  = 1 * time.Second
	pauseMaxBackoff      = 10 * time.Second
)

// Engine is the single-writer matching core: one worker goroutine drains
// a bounded command queue, matches against per-instrument OrderBooks,
// persists trades and order mutations transactionally, and emits events
// only after the transaction commits.
type Engine struct {
	queue  chan Command
	repo   Repository
	events EventPublisher
	logger *slog.Logger

	booksMu sync.RWMutex
	books   map[string]*OrderBook

	stop   chan struct{}
	done   chan struct{}
	paused atomic.Bool
}

// NewEngine constructs an Engine with a bounded command queue of the
// given capacity (0 selects DefaultQueueCapacity).
func NewEngine(capacity int, repo Repository, events EventPublisher, logger *slog.Logger) *Engine {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Engine{
		queue:  make(chan Command, capacity),
		repo:   repo,
		events: events,
		logger: logger.With("module", "matching_engine"),
		books:  make(map[string]*OrderBook),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start runs recovery and then the worker loop on a dedicated,
// OS-thread-pinned goroutine. Recovery failure is logged but never
// aborts startup: an empty book is still a valid, if stale, starting
// point, and live orders remain durably recorded regardless.
func (e *Engine) Start(ctx context.Context) {
	if err := NewRecoveryService(e.repo, e, e.logger).Recover(ctx); err != nil {
		e.logger.Error("recovery failed, starting with reconstructed state", "error", err)
	}
	go e.run()
}

// Stop requests the worker to finish its in-flight command and exit,
// waiting up to the given timeout. Commands still in the queue are
// abandoned; their orders remain persisted as OPEN and are re-applied by
// recovery on the next startup.
func (e *Engine) Stop(timeout time.Duration) {
	close(e.stop)
	select {
	case <-e.done:
	case <-time.After(timeout):
		e.logger.Warn("matching engine did not stop within timeout", "timeout", timeout)
	}
}

// Enqueue offers a command to the queue without blocking. A full queue
// returns false; callers (the intake service) surface this as
// ErrQueueFull.
func (e *Engine) Enqueue(cmd Command) bool {
	select {
	case e.queue <- cmd:
		return true
	default:
		return false
	}
}

// IsPaused reports whether the worker has suspended dequeue after
// exhausting commit retries.
func (e *Engine) IsPaused() bool { return e.paused.Load() }

// bookFor returns (creating if absent) the OrderBook for instrument.
// Called from the worker goroutine during normal operation and from
// Recovery before the worker starts; the mutex only ever contends with
// a query handler's concurrent Book() lookup on a brand new instrument.
func (e *Engine) bookFor(instrument string) *OrderBook {
	e.booksMu.RLock()
	b, ok := e.books[instrument]
	e.booksMu.RUnlock()
	if ok {
		return b
	}
	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	if b, ok := e.books[instrument]; ok {
		return b
	}
	b = NewOrderBook(instrument)
	e.books[instrument] = b
	return b
}

// Book returns the OrderBook for instrument if it has been created, for
// read-only snapshot access from query handlers.
func (e *Engine) Book(instrument string) (*OrderBook, bool) {
	e.booksMu.RLock()
	defer e.booksMu.RUnlock()
	b, ok := e.books[instrument]
	return b, ok
}

func (e *Engine) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(e.done)

	for {
		select {
		case <-e.stop:
			return
		case cmd := <-e.queue:
			e.apply(context.Background(), cmd)
		}
	}
}

func (e *Engine) apply(ctx context.Context, cmd Command) {
	switch {
	case cmd.Place != nil:
		e.handlePlace(ctx, cmd.Place)
	case cmd.Cancel != nil:
		e.handleCancel(ctx, cmd.Cancel)
	}
}

func (e *Engine) handlePlace(ctx context.Context, cmd *PlaceCommand) {
	order := cmd.Order

	if err := validatePlace(order); err != nil {
		order.Status = StatusRejected
		order.UpdatedAt = time.Now()
		e.logger.Warn("order failed defensive validation, rejecting", "order_id", order.OrderID, "error", err)
		e.commit(ctx, nil, []*Order{order})
		if cmd.Done != nil {
			cmd.Done <- order
		}
		return
	}

	book := e.bookFor(order.Instrument)

	var (
		trades   []*Trade
		restings []*Order
	)
	if order.Kind == TypeLimit {
		trades, restings = e.matchLimit(book, order)
	} else {
		trades, restings = e.matchMarket(book, order)
	}
	book.publish()
	order.UpdatedAt = time.Now()

	affected := append([]*Order{order}, restings...)
	e.commit(ctx, trades, affected)

	if cmd.Done != nil {
		cmd.Done <- order
	}
}

func validatePlace(o *Order) error {
	if o.Instrument == "" {
		return ErrValidation
	}
	if o.Quantity.Sign() <= 0 {
		return ErrValidation
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return ErrValidation
	}
	if o.Kind == TypeLimit && (!o.HasPrice || o.Price.Sign() <= 0) {
		return ErrValidation
	}
	return nil
}

// matchLimit implements the match_limit algorithm: sweep the opposite
// side's best levels outside-in while the price crosses, consuming the
// FIFO head of each level first, then rest any remainder at the order's
// limit price. Returns the trades produced and the resting counterparty
// orders mutated along the way, for the caller's persistence batch.
func (e *Engine) matchLimit(book *OrderBook, order *Order) ([]*Trade, []*Order) {
	var trades []*Trade
	var restings []*Order
	remaining := order.RemainingQuantity()

	opposite := book.BestAskLevel
	if order.Side == SideSell {
		opposite = book.BestBidLevel
	}

	for remaining.Sign() > 0 {
		best := opposite()
		if best == nil {
			break
		}
		if order.Side == SideBuy && order.Price.LessThan(best.Price) {
			break
		}
		if order.Side == SideSell && order.Price.GreaterThan(best.Price) {
			break
		}

		trade, restingOrder, levelDrained := e.matchAgainstLevel(book, order, best, &remaining)
		trades = append(trades, trade)
		restings = append(restings, restingOrder)
		if !levelDrained {
			break
		}
	}

	if remaining.Sign() > 0 {
		order.FilledQuantity = order.Quantity.Sub(remaining)
		book.AddLimit(order, remaining)
		if order.FilledQuantity.Sign() > 0 {
			order.Status = StatusPartiallyFilled
		} else {
			order.Status = StatusOpen
		}
	} else {
		order.FilledQuantity = order.Quantity
		order.Status = StatusFilled
	}

	return trades, restings
}

// matchMarket implements match_market: identical sweep, no price-cross
// check, and the order never rests. Decision: a remainder left after the
// opposite side is exhausted, even a full zero-fill, leaves the order
// PARTIALLY_FILLED rather than REJECTED, since a market order that
// crossed zero levels is a benign consequence of a thin book, not an
// invalid command.
func (e *Engine) matchMarket(book *OrderBook, order *Order) ([]*Trade, []*Order) {
	var trades []*Trade
	var restings []*Order
	remaining := order.RemainingQuantity()

	opposite := book.BestAskLevel
	if order.Side == SideSell {
		opposite = book.BestBidLevel
	}

	for remaining.Sign() > 0 {
		best := opposite()
		if best == nil {
			break
		}
		trade, restingOrder, levelDrained := e.matchAgainstLevel(book, order, best, &remaining)
		trades = append(trades, trade)
		restings = append(restings, restingOrder)
		if !levelDrained {
			break
		}
	}

	order.FilledQuantity = order.Quantity.Sub(remaining)
	if remaining.Sign() > 0 {
		order.Status = StatusPartiallyFilled
		if order.FilledQuantity.Sign() > 0 {
			e.logger.Info("market order remainder abandoned, opposite side exhausted",
				"order_id", order.OrderID, "remaining", remaining.String())
		}
	} else {
		order.Status = StatusFilled
	}

	return trades, restings
}

// matchAgainstLevel consumes best's FIFO head against order, mutating
// remaining in place along with both the aggressor's and the resting
// entry's underlying Order records. Returns the produced trade, the
// resting counterparty order, and whether the level's head was itself
// fully consumed (so the caller should keep sweeping).
func (e *Engine) matchAgainstLevel(book *OrderBook, order *Order, best *PriceLevel, remaining *decimal.Decimal) (*Trade, *Order, bool) {
	resting := best.Head()

	tradeQty := decimal.Min(*remaining, resting.RemainingQty)
	tradePrice := best.Price

	trade := &Trade{
		TradeID:    NewTradeID(),
		Instrument: book.Instrument,
		Price:      tradePrice,
		Quantity:   tradeQty,
		ExecutedAt: time.Now(),
	}
	if order.Side == SideBuy {
		trade.BuyOrderID = order.OrderID
		trade.SellOrderID = resting.OrderID
	} else {
		trade.BuyOrderID = resting.OrderID
		trade.SellOrderID = order.OrderID
	}

	*remaining = remaining.Sub(tradeQty)
	newRestingQty := resting.RemainingQty.Sub(tradeQty)

	restingOrder := resting.Order
	if restingOrder != nil {
		restingOrder.FilledQuantity = restingOrder.FilledQuantity.Add(tradeQty)
		restingOrder.UpdatedAt = trade.ExecutedAt
	}

	if newRestingQty.Sign() == 0 {
		if restingOrder != nil {
			restingOrder.Status = StatusFilled
		}
		book.RemoveFilled(resting.OrderID)
	} else {
		if restingOrder != nil {
			restingOrder.Status = StatusPartiallyFilled
		}
		book.UpdateRemaining(resting.OrderID, newRestingQty)
	}

	return trade, restingOrder, newRestingQty.Sign() == 0
}

// handleCancel implements CANCEL handling: remove from book and mark
// CANCELLED if present; silent no-op if absent (already terminal or
// unknown).
func (e *Engine) handleCancel(ctx context.Context, cmd *CancelCommand) {
	book := e.bookFor(cmd.Instrument)

	entry, ok := book.Lookup(cmd.OrderID)
	if !ok {
		order, err := e.repo.FindByID(ctx, cmd.OrderID)
		if err != nil {
			order = nil
		}
		e.logger.Info("cancel no-op: order not resting in book", "order_id", cmd.OrderID)
		if cmd.Done != nil {
			cmd.Done <- order
		}
		return
	}

	restingOrder := entry.Order
	book.Cancel(cmd.OrderID)

	if restingOrder != nil {
		restingOrder.Status = StatusCancelled
		restingOrder.UpdatedAt = time.Now()
		e.commit(ctx, nil, []*Order{restingOrder})
	}

	if cmd.Done != nil {
		cmd.Done <- restingOrder
	}
}

// commit persists trades then orders in a single transaction, retrying
// transient failures with exponential backoff, then pausing the worker
// with a second-tier backoff if retries are exhausted. Events are
// emitted only after commit succeeds.
func (e *Engine) commit(ctx context.Context, trades []*Trade, orders []*Order) {
	backoff := commitInitialBackoff
	var err error
	for attempt := 1; attempt <= commitMaxAttempts; attempt++ {
		err = e.repo.WithTx(ctx, func(txCtx context.Context) error {
			if len(trades) > 0 {
				if txErr := e.repo.SaveTrades(txCtx, trades); txErr != nil {
					return txErr
				}
			}
			return e.repo.SaveOrders(txCtx, orders)
		})
		if err == nil {
			break
		}
		e.logger.Warn("commit failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		if attempt < commitMaxAttempts {
			time.Sleep(backoff)
			backoff *= 2
			if backoff > commitMaxBackoff {
				backoff = commitMaxBackoff
			}
		}
	}

	if err != nil {
		e.pauseAndRetry(ctx, trades, orders)
		return
	}

	e.publish(ctx, trades, orders)
}

// pauseAndRetry implements the second-tier backoff: dequeue is
// suspended while the worker sleeps with a growing backoff and keeps
// retrying the same commit. The queue continues to accept enqueues, up
// to capacity, while paused.
func (e *Engine) pauseAndRetry(ctx context.Context, trades []*Trade, orders []*Order) {
	e.paused.Store(true)
	defer e.paused.Store(false)

	backoff := pauseInitialBackoff
	for {
		e.logger.Error("commit retries exhausted, engine pausing", "backoff", backoff)
		time.Sleep(backoff)

		err := e.repo.WithTx(ctx, func(txCtx context.Context) error {
			if len(trades) > 0 {
				if txErr := e.repo.SaveTrades(txCtx, trades); txErr != nil {
					return txErr
				}
			}
			return e.repo.SaveOrders(txCtx, orders)
		})
		if err == nil {
			e.publish(ctx, trades, orders)
			return
		}

		backoff *= 2
		if backoff > pauseMaxBackoff {
			backoff = pauseMaxBackoff
		}
	}
}

func (e *Engine) publish(ctx context.Context, trades []*Trade, orders []*Order) {
	for _, t := range trades {
		e.events.PublishTrade(ctx, t)
	}
	for _, o := range orders {
		e.events.PublishOrderStateChange(ctx, o)
	}
	if len(trades) > 0 {
		if book, ok := e.Book(trades[0].Instrument); ok {
			e.events.PublishBookDelta(ctx, book.Snapshot(DefaultBroadcastDepth))
		}
	}
}

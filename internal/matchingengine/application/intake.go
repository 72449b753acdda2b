package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
)

// IntakeService is the Intake component: it validates incoming requests,
// persists the order before ever enqueuing it, and hands the command to
// the matching engine's bounded queue without blocking on matching
// itself. The HTTP layer maps its returned errors to status codes.
type IntakeService struct {
	repo   domain.Repository
	engine *domain.Engine
	logger *slog.Logger
}

func NewIntakeService(repo domain.Repository, engine *domain.Engine, logger *slog.Logger) *IntakeService {
	return &IntakeService{repo: repo, engine: engine, logger: logger.With("module", "intake")}
}

// SubmitOrder validates req, resolves idempotency, persists the order
// with status OPEN, and enqueues a PLACE command. The returned order
// reflects the just-persisted (pre-match) state; later mutations are
// observable via GetOrder or the order_state_change event stream.
func (s *IntakeService) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*domain.Order, error) {
	side, ok := parseSide(req.Side)
	if !ok {
		return nil, domain.ErrValidation
	}
	kind, ok := parseType(req.Type)
	if !ok {
		return nil, domain.ErrValidation
	}
	if req.Quantity.Sign() <= 0 || req.Quantity.Exponent() < -8 {
		return nil, domain.ErrValidation
	}
	if req.ClientID == "" || req.Instrument == "" {
		return nil, domain.ErrValidation
	}
	hasPrice := req.Price != nil
	if kind == domain.TypeLimit {
		if !hasPrice || req.Price.Sign() <= 0 || req.Price.Exponent() < -8 {
			return nil, domain.ErrValidation
		}
	} else if hasPrice {
		return nil, domain.ErrValidation
	}

	if req.IdempotencyKey != nil && *req.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, *req.IdempotencyKey)
		if err != nil {
			return nil, domain.ErrStoreUnavailable
		}
		if existing != nil {
			return existing, nil
		}
	}

	now := time.Now()
	order := &domain.Order{
		OrderID:        domain.NewOrderID(),
		ClientID:       req.ClientID,
		Instrument:     req.Instrument,
		Side:           side,
		Kind:           kind,
		Quantity:       req.Quantity,
		FilledQuantity: decimal.Zero,
		Status:         domain.StatusOpen,
		IdempotencyKey: req.IdempotencyKey,
		HasPrice:       hasPrice,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if hasPrice {
		order.Price = *req.Price
	}

	if err := s.repo.InsertOrder(ctx, order); err != nil {
		s.logger.Error("insert order failed", "error", err)
		return nil, domain.ErrStoreUnavailable
	}

	accepted := order.Clone()
	if !s.engine.Enqueue(domain.Command{Place: &domain.PlaceCommand{Order: order}}) {
		s.logger.Warn("command queue full, order persisted but not enqueued", "order_id", order.OrderID)
		return nil, domain.ErrQueueFull
	}

	return accepted, nil
}

// CancelOrder locates the order, enqueues a CANCEL command, and waits
// synchronously for the engine to process it so the HTTP response can
// carry the resulting state. An unknown order id returns
// domain.ErrNotFound, which maps to 404 at the HTTP layer; every other
// outcome (including a terminal-state no-op) returns the order's current
// state with no error.
func (s *IntakeService) CancelOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, domain.ErrStoreUnavailable
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}

	done := make(chan *domain.Order, 1)
	if !s.engine.Enqueue(domain.Command{Cancel: &domain.CancelCommand{
		OrderID:    orderID,
		Instrument: order.Instrument,
		Done:       done,
	}}) {
		return nil, domain.ErrQueueFull
	}

	select {
	case result := <-done:
		if result == nil {
			return order, nil
		}
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

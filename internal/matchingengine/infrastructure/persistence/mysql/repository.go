// Package mysql implements the matching engine's Persistence Port on top
// of GORM and MySQL, the same stack the rest of the service uses for
// durable storage.
package mysql

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
)

type txKey struct{}

// Repository implements domain.Repository against a *gorm.DB. Order and
// Trade already carry gorm column tags, so no separate row-model/mapping
// layer is needed.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AutoMigrate creates/updates the orders and trades tables.
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Order{}, &domain.Trade{})
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// WithTx opens a single transaction and runs fn with a context carrying
// it; every Repository call made with that context participates in the
// same transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *Repository) InsertOrder(ctx context.Context, order *domain.Order) error {
	err := r.conn(ctx).Create(order).Error
	if err != nil && isDuplicateKey(err) {
		return domain.ErrValidation
	}
	return err
}

func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	var order domain.Order
	err := r.conn(ctx).Where("idempotency_key = ?", key).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) FindByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.conn(ctx).Where("order_id = ?", orderID).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SaveOrders upserts by order_id: a brand-new PLACE writes a fresh row,
// a subsequent match/cancel updates the existing one in place.
func (r *Repository) SaveOrders(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		UpdateAll: true,
	}).Create(orders).Error
}

// SaveTrades upserts by trade_id; a duplicate trade_id (should not occur
// given fresh ids per trade) is treated as success rather than an error.
func (r *Repository) SaveTrades(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	return r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trade_id"}},
		DoNothing: true,
	}).Create(trades).Error
}

func (r *Repository) ScanLiveOrders(ctx context.Context) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := r.conn(ctx).
		Where("status IN ?", []domain.OrderStatus{domain.StatusOpen, domain.StatusPartiallyFilled}).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

func (r *Repository) ListTrades(ctx context.Context, instrument string, limit int) ([]*domain.Trade, error) {
	q := r.conn(ctx).Order("executed_at DESC").Limit(limit)
	if instrument != "" {
		q = q.Where("instrument = ?", instrument)
	}
	var trades []*domain.Trade
	err := q.Find(&trades).Error
	return trades, err
}

// isDuplicateKey reports whether err is MySQL error 1062 (ER_DUP_ENTRY),
// used to translate the idempotency-key unique constraint into a domain
// error rather than leaking a driver-specific one.
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

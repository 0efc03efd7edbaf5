package repository

import (
	"context"

	"bookstore/internal/model"

	"gorm.io/gorm"
)

// StatusLogRepository 订单状态审计日志，只追加
type StatusLogRepository interface {
	Create(ctx context.Context, tx *gorm.DB, logEntry *model.OrderStatusLog) error
	ListByOrderID(ctx context.Context, orderID int64) ([]*model.OrderStatusLog, error)
}

type GormStatusLogRepository struct {
	db *gorm.DB
}

func NewGormStatusLogRepository(db *gorm.DB) StatusLogRepository {
	return &GormStatusLogRepository{db: db}
}

func (r *GormStatusLogRepository) Create(ctx context.Context, tx *gorm.DB, logEntry *model.OrderStatusLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(logEntry).Error
}

func (r *GormStatusLogRepository) ListByOrderID(ctx context.Context, orderID int64) ([]*model.OrderStatusLog, error) {
	var logs []*model.OrderStatusLog
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("changed_at ASC").
		Find(&logs).Error
	return logs, err
}

package repository

import (
	"context"
	"errors"
	"time"

	"bookstore/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound     = errors.New("订单不存在")
	ErrInvalidTransition = errors.New("订单状态流转不合法")
	ErrStatusConflict    = errors.New("订单状态已被并发修改")
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	GetByID(ctx context.Context, orderID int64) (*model.Order, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error)
	// UpdateStatus 状态守卫式条件更新：WHERE status = fromStatus
	// 不在状态机表里的流转返回 ErrInvalidTransition；
	// 守卫失败（RowsAffected = 0）返回 ErrStatusConflict，
	// 调用方据此把并发重放当成幂等 no-op 处理
	UpdateStatus(ctx context.Context, tx *gorm.DB, orderID int64, fromStatus, toStatus model.OrderStatus) error
	GetExpiredPending(ctx context.Context, before time.Time, limit int) ([]*model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error)
}

type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *GormOrderRepository) GetByID(ctx context.Context, orderID int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_no = ?", orderNo).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *GormOrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID int64, fromStatus, toStatus model.OrderStatus) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrInvalidTransition
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}

	now := time.Now()
	switch toStatus {
	case model.OrderStatusPaid:
		updates["paid_at"] = &now
	case model.OrderStatusCompleted:
		updates["completed_at"] = &now
	case model.OrderStatusCancelled:
		updates["cancelled_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}

	return nil
}

func (r *GormOrderRepository) GetExpiredPending(ctx context.Context, before time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ? AND created_at < ?", model.OrderStatusPending, before).
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *GormOrderRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}

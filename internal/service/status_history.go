package service

import (
	"context"

	"bookstore/internal/model"
	"bookstore/internal/repository"

	"gorm.io/gorm"
)

// StatusHistoryRecorder 状态变更审计
// 只写不读，没有业务逻辑，和状态流转在同一个事务里落库
type StatusHistoryRecorder struct {
	statusLogRepo repository.StatusLogRepository
}

func NewStatusHistoryRecorder(statusLogRepo repository.StatusLogRepository) *StatusHistoryRecorder {
	return &StatusHistoryRecorder{statusLogRepo: statusLogRepo}
}

func (r *StatusHistoryRecorder) Record(ctx context.Context, tx *gorm.DB, orderID int64, oldStatus, newStatus model.OrderStatus, changedBy, reason string) error {
	return r.statusLogRepo.Create(ctx, tx, &model.OrderStatusLog{
		OrderID:   orderID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		ChangedBy: changedBy,
		Reason:    reason,
	})
}

func (r *StatusHistoryRecorder) History(ctx context.Context, orderID int64) ([]*model.OrderStatusLog, error) {
	return r.statusLogRepo.ListByOrderID(ctx, orderID)
}

package repository

import (
	"context"
	"errors"

	"bookstore/internal/model"

	"gorm.io/gorm"
)

var ErrRefundNotFound = errors.New("退款单不存在")

type RefundRepository interface {
	Create(ctx context.Context, tx *gorm.DB, refund *model.Refund) error
	GetByRefundNo(ctx context.Context, refundNo string) (*model.Refund, error)
	ListByPaymentID(ctx context.Context, paymentID int64) ([]*model.Refund, error)
	// SumByPaymentID 同一支付单下未被拒绝的退款累计金额（含在途），
	// 校验"累计退款不得超过支付金额"时必须把 PENDING/APPROVED 也算进去，
	// 否则并发申请能绕过上限
	SumByPaymentID(ctx context.Context, paymentID int64) (int64, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, refundID int64, fromStatus, toStatus string) error
	// SetRestock 审核时记录是否回补库存的策略决定
	SetRestock(ctx context.Context, tx *gorm.DB, refundID int64, restock bool) error
}

type GormRefundRepository struct {
	db *gorm.DB
}

func NewGormRefundRepository(db *gorm.DB) RefundRepository {
	return &GormRefundRepository{db: db}
}

func (r *GormRefundRepository) Create(ctx context.Context, tx *gorm.DB, refund *model.Refund) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(refund).Error
}

func (r *GormRefundRepository) GetByRefundNo(ctx context.Context, refundNo string) (*model.Refund, error) {
	var refund model.Refund
	err := r.db.WithContext(ctx).Where("refund_no = ?", refundNo).First(&refund).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	return &refund, nil
}

func (r *GormRefundRepository) ListByPaymentID(ctx context.Context, paymentID int64) ([]*model.Refund, error) {
	var refunds []*model.Refund
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&refunds).Error
	return refunds, err
}

func (r *GormRefundRepository) SumByPaymentID(ctx context.Context, paymentID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Refund{}).
		Where("payment_id = ? AND status <> ?", paymentID, model.RefundStatusRejected).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *GormRefundRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, refundID int64, fromStatus, toStatus string) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Refund{}).
		Where("id = ? AND status = ?", refundID, fromStatus).
		Updates(map[string]interface{}{
			"status":     toStatus,
			"decided_at": gorm.Expr("NOW()"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}

	return nil
}

func (r *GormRefundRepository) SetRestock(ctx context.Context, tx *gorm.DB, refundID int64, restock bool) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Refund{}).
		Where("id = ?", refundID).
		Update("restock", restock).Error
}

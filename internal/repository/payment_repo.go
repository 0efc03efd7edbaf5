package repository

import (
	"context"
	"errors"
	"time"

	"bookstore/internal/model"

	"gorm.io/gorm"
)

var ErrPaymentNotFound = errors.New("支付单不存在")

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, payment *model.PaymentTransaction) error
	GetByID(ctx context.Context, paymentID int64) (*model.PaymentTransaction, error)
	GetByOrderID(ctx context.Context, orderID int64) (*model.PaymentTransaction, error)
	// GetByTransactionCode 网关回调按交易码找支付单，未知的码返回 nil 而不是错误
	GetByTransactionCode(ctx context.Context, transactionCode string) (*model.PaymentTransaction, error)
	// UpdateStatus 同样是状态守卫式更新，支付单从 PENDING 只能流转一次
	UpdateStatus(ctx context.Context, tx *gorm.DB, paymentID int64, fromStatus, toStatus string) error
	SetIntentRef(ctx context.Context, paymentID int64, intentRef string) error
}

type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) PaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, tx *gorm.DB, payment *model.PaymentTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *GormPaymentRepository) GetByID(ctx context.Context, paymentID int64) (*model.PaymentTransaction, error) {
	var payment model.PaymentTransaction
	err := r.db.WithContext(ctx).Where("id = ?", paymentID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *GormPaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*model.PaymentTransaction, error) {
	var payment model.PaymentTransaction
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *GormPaymentRepository) GetByTransactionCode(ctx context.Context, transactionCode string) (*model.PaymentTransaction, error) {
	var payment model.PaymentTransaction
	err := r.db.WithContext(ctx).Where("transaction_code = ?", transactionCode).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *GormPaymentRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, paymentID int64, fromStatus, toStatus string) error {
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	if toStatus == model.PaymentStatusPaid {
		now := time.Now()
		updates["paid_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("id = ? AND status = ?", paymentID, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}

	return nil
}

func (r *GormPaymentRepository) SetIntentRef(ctx context.Context, paymentID int64, intentRef string) error {
	return r.db.WithContext(ctx).
		Model(&model.PaymentTransaction{}).
		Where("id = ?", paymentID).
		Update("intent_ref", intentRef).Error
}

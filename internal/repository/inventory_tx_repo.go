package repository

import (
	"context"

	"bookstore/internal/model"

	"gorm.io/gorm"
)

// InventoryTxRepository 库存流水，只追加
type InventoryTxRepository interface {
	Create(ctx context.Context, tx *gorm.DB, invTx *model.InventoryTransaction) error
	ListByReferenceNo(ctx context.Context, referenceNo string) ([]*model.InventoryTransaction, error)
	ListByBookID(ctx context.Context, bookID int64, limit int) ([]*model.InventoryTransaction, error)
}

type GormInventoryTxRepository struct {
	db *gorm.DB
}

func NewGormInventoryTxRepository(db *gorm.DB) InventoryTxRepository {
	return &GormInventoryTxRepository{db: db}
}

func (r *GormInventoryTxRepository) Create(ctx context.Context, tx *gorm.DB, invTx *model.InventoryTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(invTx).Error
}

func (r *GormInventoryTxRepository) ListByReferenceNo(ctx context.Context, referenceNo string) ([]*model.InventoryTransaction, error) {
	var list []*model.InventoryTransaction
	err := r.db.WithContext(ctx).
		Where("reference_no = ?", referenceNo).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *GormInventoryTxRepository) ListByBookID(ctx context.Context, bookID int64, limit int) ([]*model.InventoryTransaction, error) {
	var list []*model.InventoryTransaction
	err := r.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

package service

import (
	"context"
	"errors"
	"fmt"

	"bookstore/internal/model"
	"bookstore/internal/repository"

	"gorm.io/gorm"
)

// StockLedger 库存台账，库存计数器的唯一操作入口
//
// 每次变更 = 一条带守卫条件的 UPDATE + 一条只追加的库存流水。
// 串行化由存储层的行锁保证（见 StockRepository），同一 (book, warehouse)
// 上并发 Reserve 的成功总量绝不会超过在库数量——防超卖是这个组件存在的全部意义。
//
// Release 本身不防重复释放，调用方必须用订单状态守卫保证
// 每个订单项至多释放一次。
type StockLedger struct {
	stockRepo repository.StockRepository
	invTxRepo repository.InventoryTxRepository
}

func NewStockLedger(stockRepo repository.StockRepository, invTxRepo repository.InventoryTxRepository) *StockLedger {
	return &StockLedger{
		stockRepo: stockRepo,
		invTxRepo: invTxRepo,
	}
}

// Reserve 预占库存：reserved += qty，不动 on_hand
// 可售数量不足时返回 InsufficientStockError，多件订单的调用方必须整单回退
func (l *StockLedger) Reserve(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64, referenceNo string) error {
	if qty <= 0 {
		return NewValidationError("预占数量必须大于0: bookID=%d, qty=%d", bookID, qty)
	}

	err := l.stockRepo.Reserve(ctx, tx, bookID, warehouseID, qty)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) || errors.Is(err, repository.ErrStockNotFound) {
			return &InsufficientStockError{BookID: bookID, WarehouseID: warehouseID, Quantity: qty}
		}
		return err
	}

	return l.invTxRepo.Create(ctx, tx, &model.InventoryTransaction{
		BookID:         bookID,
		WarehouseID:    warehouseID,
		Type:           model.InventoryTxTypeOutbound,
		QuantityChange: -qty,
		ReferenceNo:    referenceNo,
		Remark:         "预占",
	})
}

// Release 释放预占：reserved -= qty
// 取消、超时、未售出退款走这里
func (l *StockLedger) Release(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64, referenceNo string) error {
	if qty <= 0 {
		return NewValidationError("释放数量必须大于0: bookID=%d, qty=%d", bookID, qty)
	}

	if err := l.stockRepo.Release(ctx, tx, bookID, warehouseID, qty); err != nil {
		return fmt.Errorf("释放预占失败: bookID=%d, %w", bookID, err)
	}

	return l.invTxRepo.Create(ctx, tx, &model.InventoryTransaction{
		BookID:         bookID,
		WarehouseID:    warehouseID,
		Type:           model.InventoryTxTypeOutbound,
		QuantityChange: qty,
		ReferenceNo:    referenceNo,
		Remark:         "释放预占",
	})
}

// ConfirmSale 确认售出：reserved -= qty, on_hand -= qty, sold += qty
// 支付确认时对每个订单项恰好调用一次
func (l *StockLedger) ConfirmSale(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64, referenceNo string) error {
	if qty <= 0 {
		return NewValidationError("确认数量必须大于0: bookID=%d, qty=%d", bookID, qty)
	}

	if err := l.stockRepo.ConfirmSale(ctx, tx, bookID, warehouseID, qty); err != nil {
		return fmt.Errorf("确认售出失败: bookID=%d, %w", bookID, err)
	}

	return l.invTxRepo.Create(ctx, tx, &model.InventoryTransaction{
		BookID:         bookID,
		WarehouseID:    warehouseID,
		Type:           model.InventoryTxTypeOutbound,
		QuantityChange: -qty,
		ReferenceNo:    referenceNo,
		Remark:         "确认售出",
	})
}

// Adjust 人工调整（退货入库、盘亏、破损），绕过预占直接增减 on_hand
func (l *StockLedger) Adjust(ctx context.Context, tx *gorm.DB, bookID, warehouseID, delta int64, reason string) error {
	if delta == 0 {
		return NewValidationError("调整数量不能为0: bookID=%d", bookID)
	}

	err := l.stockRepo.Adjust(ctx, tx, bookID, warehouseID, delta)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			return &InsufficientStockError{BookID: bookID, WarehouseID: warehouseID, Quantity: -delta}
		}
		return err
	}

	txType := model.InventoryTxTypeAdjustment
	if delta > 0 {
		txType = model.InventoryTxTypeInbound
	}

	return l.invTxRepo.Create(ctx, tx, &model.InventoryTransaction{
		BookID:         bookID,
		WarehouseID:    warehouseID,
		Type:           txType,
		QuantityChange: delta,
		ReferenceNo:    reason,
		Remark:         "人工调整",
	})
}

// Get 查询当前库存快照
func (l *StockLedger) Get(ctx context.Context, bookID, warehouseID int64) (*model.StockItem, error) {
	return l.stockRepo.Get(ctx, bookID, warehouseID)
}

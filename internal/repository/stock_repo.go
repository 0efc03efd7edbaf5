package repository

import (
	"context"
	"errors"

	"bookstore/internal/model"

	"gorm.io/gorm"
)

var (
	ErrStockNotFound     = errors.New("库存记录不存在")
	ErrInsufficientStock = errors.New("可售库存不足")
	ErrStockConflict     = errors.New("库存并发冲突，操作未生效")
)

// StockRepository 库存计数器的唯一写入口
//
// 【关键点】所有变更都是带条件的单条 UPDATE，約束直接写进 WHERE：
//
//	预占:   reserved += qty  WHERE on_hand - reserved >= qty
//	释放:   reserved -= qty  WHERE reserved >= qty
//	确认:   reserved -= qty, on_hand -= qty, sold += qty  WHERE reserved >= qty
//
// 条件不满足时 RowsAffected = 0，数据库行锁保证了同一 (book, warehouse)
// 上的并发操作串行化——多实例部署下内存互斥锁起不到这个作用
type StockRepository interface {
	Get(ctx context.Context, bookID, warehouseID int64) (*model.StockItem, error)
	Create(ctx context.Context, item *model.StockItem) error
	Reserve(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64) error
	Release(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64) error
	ConfirmSale(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64) error
	Adjust(ctx context.Context, tx *gorm.DB, bookID, warehouseID, delta int64) error
}

type GormStockRepository struct {
	db *gorm.DB
}

func NewGormStockRepository(db *gorm.DB) StockRepository {
	return &GormStockRepository{db: db}
}

func (r *GormStockRepository) Get(ctx context.Context, bookID, warehouseID int64) (*model.StockItem, error) {
	var item model.StockItem
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND warehouse_id = ?", bookID, warehouseID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStockNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *GormStockRepository) Create(ctx context.Context, item *model.StockItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *GormStockRepository) Reserve(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.StockItem{}).
		Where("book_id = ? AND warehouse_id = ? AND on_hand - reserved >= ?", bookID, warehouseID, qty).
		UpdateColumn("reserved", gorm.Expr("reserved + ?", qty))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// 区分"没有这行库存"和"有但不够卖"
		if _, err := r.Get(ctx, bookID, warehouseID); err != nil {
			return err
		}
		return ErrInsufficientStock
	}

	return nil
}

func (r *GormStockRepository) Release(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.StockItem{}).
		Where("book_id = ? AND warehouse_id = ? AND reserved >= ?", bookID, warehouseID, qty).
		UpdateColumn("reserved", gorm.Expr("reserved - ?", qty))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStockConflict
	}

	return nil
}

func (r *GormStockRepository) ConfirmSale(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.StockItem{}).
		Where("book_id = ? AND warehouse_id = ? AND reserved >= ?", bookID, warehouseID, qty).
		Updates(map[string]interface{}{
			"reserved": gorm.Expr("reserved - ?", qty),
			"on_hand":  gorm.Expr("on_hand - ?", qty),
			"sold":     gorm.Expr("sold + ?", qty),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStockConflict
	}

	return nil
}

func (r *GormStockRepository) Adjust(ctx context.Context, tx *gorm.DB, bookID, warehouseID, delta int64) error {
	if tx == nil {
		tx = r.db
	}
	// 负向调整不能把可售数量调成负数
	result := tx.WithContext(ctx).
		Model(&model.StockItem{}).
		Where("book_id = ? AND warehouse_id = ? AND on_hand - reserved + ? >= 0", bookID, warehouseID, delta).
		UpdateColumn("on_hand", gorm.Expr("on_hand + ?", delta))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, bookID, warehouseID); err != nil {
			return err
		}
		return ErrInsufficientStock
	}

	return nil
}

package model

import (
	"time"
)

// StockItem 库存表，按 (book_id, warehouse_id) 维度一行
// 核心不变式：0 <= Reserved <= OnHand，0 <= Sold
// 可售数量 = OnHand - Reserved，所有变更只能通过 StockLedger 的条件更新完成，
// 禁止在内存里读-改-写（多实例部署下会超卖）
type StockItem struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BookID      int64     `gorm:"uniqueIndex:uk_book_warehouse;not null" json:"book_id"`
	WarehouseID int64     `gorm:"uniqueIndex:uk_book_warehouse;not null" json:"warehouse_id"`
	OnHand      int64     `gorm:"not null;default:0" json:"on_hand"`   // 在库数量
	Reserved    int64     `gorm:"not null;default:0" json:"reserved"`  // 未支付订单预占数量
	Sold        int64     `gorm:"not null;default:0" json:"sold"`      // 累计售出数量
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StockItem) TableName() string {
	return "stock_item"
}

// Available 当前可售数量
func (s *StockItem) Available() int64 {
	return s.OnHand - s.Reserved
}

// ============================================================================
// 库存流水
// ============================================================================

const (
	InventoryTxTypeInbound    = "INBOUND"    // 入库
	InventoryTxTypeOutbound   = "OUTBOUND"   // 出库（预占/确认售出/释放）
	InventoryTxTypeAdjustment = "ADJUSTMENT" // 人工调整（退货入库、盘亏等）
)

// InventoryTransaction 库存流水表
// 每次 StockLedger 变更记一行，只追加，不修改，不删除，是库存对账的依据
type InventoryTransaction struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BookID         int64     `gorm:"index;not null" json:"book_id"`
	WarehouseID    int64     `gorm:"not null" json:"warehouse_id"`
	Type           string    `gorm:"type:varchar(20);not null" json:"type"`
	QuantityChange int64     `gorm:"not null" json:"quantity_change"`                    // 带符号，正数增加可售，负数减少
	ReferenceNo    string    `gorm:"type:varchar(64);index;not null" json:"reference_no"` // 关联订单号/退款单号/调整原因
	Remark         string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (InventoryTransaction) TableName() string {
	return "inventory_transaction"
}

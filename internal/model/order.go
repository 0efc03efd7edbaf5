package model

import (
	"time"
)

// OrderStatus 订单状态
// 使用封闭的类型而不是裸字符串，所有状态流转必须经过 CanTransitionTo 校验
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"    // 待支付（库存已预占）
	OrderStatusPaid       OrderStatus = "PAID"       // 已支付（库存已确认售出）
	OrderStatusProcessing OrderStatus = "PROCESSING" // 处理中（已通知发货）
	OrderStatusCompleted  OrderStatus = "COMPLETED"  // 已完成
	OrderStatusCancelled  OrderStatus = "CANCELLED"  // 已取消（预占已释放）
	OrderStatusRefunded   OrderStatus = "REFUNDED"   // 已全额退款
)

// ValidStatusTransitions 订单状态机
// 不在表里的流转一律拒绝，取消只允许在支付前，支付后的逆向操作必须走退款
var ValidStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusCompleted:  {OrderStatusRefunded},
}

func CanTransitionTo(currentStatus, targetStatus OrderStatus) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsTerminal 终态订单不再接受任何支付回调
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// Order 订单主表
// 金额不变式：FinalAmount = TotalAmount - DiscountAmount >= 0
// TotalAmount = Σ OrderItem.Subtotal，创建后不再变化
type Order struct {
	ID             int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo        string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"` // 订单号，人工可读，客服查询用
	UserID         int64       `gorm:"index;not null" json:"user_id"`
	Status         OrderStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	TotalAmount    int64       `gorm:"not null" json:"total_amount"`             // 商品小计（分）
	DiscountAmount int64       `gorm:"not null;default:0" json:"discount_amount"` // 优惠金额（分）
	FinalAmount    int64       `gorm:"not null" json:"final_amount"`             // 应付金额（分）
	CouponID       *int64      `gorm:"index" json:"coupon_id,omitempty"`
	Address        string      `gorm:"type:varchar(512);not null" json:"address"`
	Items          []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt      time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
	PaidAt         *time.Time  `json:"paid_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	CancelledAt    *time.Time  `json:"cancelled_at,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem 订单明细
// UnitPrice 是下单时刻的价格快照，后续书目调价不影响历史订单
type OrderItem struct {
	ID          int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64 `gorm:"index;not null" json:"order_id"`
	BookID      int64 `gorm:"index;not null" json:"book_id"`
	WarehouseID int64 `gorm:"not null" json:"warehouse_id"`
	Quantity    int64 `gorm:"not null" json:"quantity"`
	UnitPrice   int64 `gorm:"not null" json:"unit_price"` // 单价快照（分）
	Subtotal    int64 `gorm:"not null" json:"subtotal"`   // Quantity * UnitPrice
}

func (OrderItem) TableName() string {
	return "order_item"
}

package model

import (
	"time"
)

const (
	PaymentStatusPending   = "PENDING"   // 等待网关回调
	PaymentStatusPaid      = "PAID"      // 支付成功
	PaymentStatusFailed    = "FAILED"    // 网关返回失败
	PaymentStatusCancelled = "CANCELLED" // 取消/超时关闭
)

// PaymentTransaction 支付单，与订单一对一
// Pending 只会流转到一个终态一次；Paid 之后可以挂多笔退款单
type PaymentTransaction struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID         int64      `gorm:"uniqueIndex;not null" json:"order_id"`
	TransactionCode string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_code"` // 网关回调用的唯一码
	Amount          int64      `gorm:"not null" json:"amount"`                                        // 应付金额（分）
	Status          string     `gorm:"type:varchar(20);index;not null" json:"status"`
	IntentRef       string     `gorm:"type:varchar(128)" json:"intent_ref"` // 网关侧支付意向引用
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transaction"
}

package model

import (
	"time"
)

const (
	RefundStatusPending   = "PENDING"   // 已申请，待审核
	RefundStatusApproved  = "APPROVED"  // 审核通过，退款处理中
	RefundStatusRejected  = "REJECTED"  // 审核拒绝
	RefundStatusCompleted = "COMPLETED" // 退款完成
)

// Refund 退款单，挂在支付单下，允许多笔部分退款
// 约束：同一支付单下累计退款金额（不含 REJECTED）不得超过支付金额
type Refund struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID int64      `gorm:"index;not null" json:"payment_id"`
	RefundNo  string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"refund_no"`
	Amount    int64      `gorm:"not null" json:"amount"` // 退款金额（分）
	Reason    string     `gorm:"type:varchar(256)" json:"reason"`
	Status    string     `gorm:"type:varchar(20);index;not null" json:"status"`
	Restock   bool       `gorm:"not null;default:false" json:"restock"` // 审核时是否回补库存（策略记录）
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

func (Refund) TableName() string {
	return "refund"
}

package model

import (
	"time"
)

// OrderStatusLog 订单状态变更日志
// 每次状态流转记一行，只追加，不修改，不删除，构成完整的审计链
// OldStatus 为空表示订单创建（None -> PENDING）
type OrderStatusLog struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64       `gorm:"index;not null" json:"order_id"`
	OldStatus OrderStatus `gorm:"type:varchar(20)" json:"old_status"`
	NewStatus OrderStatus `gorm:"type:varchar(20);not null" json:"new_status"`
	ChangedBy string      `gorm:"type:varchar(64);not null" json:"changed_by"` // 操作者：user/gateway/expire_job/operator
	Reason    string      `gorm:"type:varchar(256)" json:"reason"`
	ChangedAt time.Time   `gorm:"autoCreateTime;index" json:"changed_at"`
}

func (OrderStatusLog) TableName() string {
	return "order_status_log"
}

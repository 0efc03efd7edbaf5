package model

import (
	"time"
)

// Coupon 优惠券表
// 单次使用：IsUsed 只在支付确认时翻转一次，校验阶段绝不写库，
// 用户反复编辑购物车触发的重复校验不会把券提前消耗掉
type Coupon struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code         string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"` // 券码，大小写不敏感
	Value        int64     `gorm:"not null" json:"value"`                             // 百分比值或固定金额（分）
	IsPercentage bool      `gorm:"not null;default:false" json:"is_percentage"`
	ExpiresAt    time.Time `gorm:"not null" json:"expires_at"`
	UserID       *int64    `gorm:"index" json:"user_id,omitempty"` // 为空表示公共券
	IsUsed       bool      `gorm:"not null;default:false" json:"is_used"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Coupon) TableName() string {
	return "coupon"
}

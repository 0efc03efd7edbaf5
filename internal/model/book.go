package model

import (
	"time"
)

// Book 书目表（目录协作方的本地投影）
// 下单时一律按当前 Price 重新计价，绝不信任调用方传入的价格
type Book struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string    `gorm:"type:varchar(256);not null" json:"title"`
	Author    string    `gorm:"type:varchar(128)" json:"author"`
	Price     int64     `gorm:"not null" json:"price"` // 当前售价（分）
	Available bool      `gorm:"not null;default:true" json:"available"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Book) TableName() string {
	return "book"
}

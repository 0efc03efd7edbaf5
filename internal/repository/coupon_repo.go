package repository

import (
	"context"
	"errors"
	"strings"

	"bookstore/internal/model"

	"gorm.io/gorm"
)

var (
	ErrCouponNotFound    = errors.New("优惠券不存在")
	ErrCouponAlreadyUsed = errors.New("优惠券已被使用")
)

type CouponRepository interface {
	Create(ctx context.Context, coupon *model.Coupon) error
	// GetByCode 券码大小写不敏感；只读，校验阶段不写任何字段
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)
	GetByID(ctx context.Context, couponID int64) (*model.Coupon, error)
	// MarkUsed 守卫式翻转 is_used，只有支付确认时才调用；
	// 翻转失败说明券已在别处被消耗，返回 ErrCouponAlreadyUsed
	MarkUsed(ctx context.Context, tx *gorm.DB, couponID int64) error
}

type GormCouponRepository struct {
	db *gorm.DB
}

func NewGormCouponRepository(db *gorm.DB) CouponRepository {
	return &GormCouponRepository{db: db}
}

func (r *GormCouponRepository) Create(ctx context.Context, coupon *model.Coupon) error {
	coupon.Code = strings.ToUpper(coupon.Code)
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *GormCouponRepository) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := r.db.WithContext(ctx).
		Where("LOWER(code) = ?", strings.ToLower(code)).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

func (r *GormCouponRepository) GetByID(ctx context.Context, couponID int64) (*model.Coupon, error) {
	var coupon model.Coupon
	err := r.db.WithContext(ctx).Where("id = ?", couponID).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

func (r *GormCouponRepository) MarkUsed(ctx context.Context, tx *gorm.DB, couponID int64) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Coupon{}).
		Where("id = ? AND is_used = ?", couponID, false).
		Update("is_used", true)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrCouponAlreadyUsed
	}

	return nil
}

package service

import (
	"time"

	"bookstore/internal/model"
)

// CalculateDiscount 优惠计算，纯函数
//
// 【关键点】这里只做校验和算术，绝不写库。
// 把券标记为已使用是支付确认时的事，所以用户在购物车页面
// 反复触发校验也不会把券提前消耗掉。
//
// 百分比券: discount = subtotal * value / 100
// 固定金额券: discount = value
// 结果统一收敛到 [0, subtotal]，保证 finalAmount 不会算成负数
func CalculateDiscount(coupon *model.Coupon, subtotal int64, userID int64, now time.Time) (int64, error) {
	if coupon.IsUsed {
		return 0, &CouponInvalidError{Code: coupon.Code, Reason: "已被使用"}
	}
	if coupon.ExpiresAt.Before(now) {
		return 0, &CouponInvalidError{Code: coupon.Code, Reason: "已过期"}
	}
	if coupon.UserID != nil && *coupon.UserID != userID {
		return 0, &CouponInvalidError{Code: coupon.Code, Reason: "不属于当前用户"}
	}

	var discount int64
	if coupon.IsPercentage {
		discount = subtotal * coupon.Value / 100
	} else {
		discount = coupon.Value
	}

	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}

	return discount, nil
}

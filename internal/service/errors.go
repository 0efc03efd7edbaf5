package service

import (
	"errors"
	"fmt"

	"bookstore/internal/model"
)

// ============================================================================
// 业务错误类型
// ============================================================================
//
// 交互式调用把这些错误映射成对调用方可见的结果；
// 后台任务里单个订单的错误只记日志，不中断整批处理

// ValidationError 入参不合法，任何写操作之前就被拒绝
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError 库存不足，明确指出是哪本书不够
// 多件商品的订单整单拒绝，绝不部分预占
type InsufficientStockError struct {
	BookID      int64
	WarehouseID int64
	Quantity    int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("库存不足: bookID=%d, warehouseID=%d, 需要数量=%d", e.BookID, e.WarehouseID, e.Quantity)
}

// CouponInvalidError 优惠券不可用（已使用/已过期/不属于当前用户）
type CouponInvalidError struct {
	Code   string
	Reason string
}

func (e *CouponInvalidError) Error() string {
	return fmt.Sprintf("优惠券不可用: code=%s, 原因=%s", e.Code, e.Reason)
}

// InvalidTransitionError 当前状态下不允许请求的状态变更
// 附带订单当前的权威状态，调用方据此重新同步而不是盲目重试
type InvalidTransitionError struct {
	OrderNo string
	Current model.OrderStatus
	Target  model.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("订单状态不允许此操作: orderNo=%s, 当前状态=%s, 目标状态=%s", e.OrderNo, e.Current, e.Target)
}

// ConcurrencyConflictError 状态守卫更新输掉了并发竞争
// 调用方应当重新查询当前状态，而不是原样重放
type ConcurrencyConflictError struct {
	OrderNo string
	Current model.OrderStatus
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("订单状态已被并发修改: orderNo=%s, 当前状态=%s", e.OrderNo, e.Current)
}

// IsBusinessError 是否是可预期的业务错误（而非存储故障）
func IsBusinessError(err error) bool {
	var ve *ValidationError
	var se *InsufficientStockError
	var ce *CouponInvalidError
	var te *InvalidTransitionError
	var ke *ConcurrencyConflictError
	return errors.As(err, &ve) || errors.As(err, &se) || errors.As(err, &ce) ||
		errors.As(err, &te) || errors.As(err, &ke)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bookstore/internal/infrastructure/lock"
	"bookstore/internal/model"
	"bookstore/internal/repository"
	"bookstore/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// RefundService 退款流程
//
// 支付后的逆向操作只能走退款，不能取消。允许多笔部分退款，
// 同一支付单下累计退款金额（含在途）不得超过支付金额；
// 累计完成的退款达到订单应付金额时，订单才流转到 REFUNDED。
type RefundService struct {
	txm         repository.TxManager
	orderRepo   repository.OrderRepository
	paymentRepo repository.PaymentRepository
	refundRepo  repository.RefundRepository
	ledger      *StockLedger
	history     *StatusHistoryRecorder
	redisClient *redis.Client // 可为 nil，同 OrderService
}

func NewRefundService(
	txm repository.TxManager,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	refundRepo repository.RefundRepository,
	ledger *StockLedger,
	history *StatusHistoryRecorder,
	redisClient *redis.Client,
) *RefundService {
	return &RefundService{
		txm:         txm,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		refundRepo:  refundRepo,
		ledger:      ledger,
		history:     history,
		redisClient: redisClient,
	}
}

// refundableStatuses 允许发起退款的订单状态
func refundable(status model.OrderStatus) bool {
	return status == model.OrderStatusPaid ||
		status == model.OrderStatusProcessing ||
		status == model.OrderStatusCompleted
}

// RequestRefund 申请退款，生成待审核的退款单
// 超额申请直接拒绝，不落任何退款记录
func (s *RefundService) RequestRefund(ctx context.Context, orderID, amount int64, reason string) (*model.Refund, error) {
	if amount <= 0 {
		return nil, NewValidationError("退款金额必须大于0")
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !refundable(order.Status) {
		return nil, &InvalidTransitionError{
			OrderNo: order.OrderNo,
			Current: order.Status,
			Target:  model.OrderStatusRefunded,
		}
	}

	payment, err := s.paymentRepo.GetByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if payment.Status != model.PaymentStatusPaid {
		return nil, NewValidationError("支付单未完成支付，无法退款: orderNo=%s", order.OrderNo)
	}

	// 同一订单的并发退款申请串行化，防止双份申请一起绕过额度校验
	if s.redisClient != nil {
		refundLock := lock.NewRefundLock(s.redisClient, order.OrderNo)
		if err := refundLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer refundLock.Unlock(ctx)
	}

	refunded, err := s.refundRepo.SumByPaymentID(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("查询已退金额失败: %w", err)
	}

	if amount > payment.Amount-refunded {
		return nil, NewValidationError("退款金额超过可退余额: 申请=%d, 可退=%d", amount, payment.Amount-refunded)
	}

	refund := &model.Refund{
		PaymentID: payment.ID,
		RefundNo:  idgen.GenerateRefundNo(),
		Amount:    amount,
		Reason:    reason,
		Status:    model.RefundStatusPending,
	}
	if err := s.refundRepo.Create(ctx, nil, refund); err != nil {
		return nil, fmt.Errorf("创建退款单失败: %w", err)
	}

	log.Printf("[RefundService] 退款申请已受理: refundNo=%s, orderNo=%s, amount=%d",
		refund.RefundNo, order.OrderNo, amount)

	return refund, nil
}

// ApproveRefund 审核通过并完成退款
//
// restock 是审核时的策略决定：未发货的退款通常回补库存，
// 已发货在途的等实物回仓后再人工调整，这里只按审核人的决定执行并记录在退款单上。
// 累计完成退款达到应付金额时订单流转到 REFUNDED。
func (s *RefundService) ApproveRefund(ctx context.Context, refundNo string, restock bool, actor string) (*model.Refund, error) {
	refund, err := s.refundRepo.GetByRefundNo(ctx, refundNo)
	if err != nil {
		return nil, err
	}
	if refund.Status != model.RefundStatusPending {
		return nil, NewValidationError("退款单不在待审核状态: refundNo=%s, status=%s", refundNo, refund.Status)
	}

	payment, order, err := s.resolveOrder(ctx, refund)
	if err != nil {
		return nil, err
	}

	// 事务外先算已完成的累计退款，事务内只加上本次金额
	priorCompleted, err := s.completedTotal(ctx, payment.ID)
	if err != nil {
		return nil, err
	}

	err = s.txm.Transaction(ctx, func(tx *gorm.DB) error {
		// 两跳守卫流转：PENDING -> APPROVED -> COMPLETED，输掉竞争直接报并发冲突
		if err := s.refundRepo.UpdateStatus(ctx, tx, refund.ID, model.RefundStatusPending, model.RefundStatusApproved); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return &ConcurrencyConflictError{OrderNo: order.OrderNo, Current: order.Status}
			}
			return err
		}
		if err := s.refundRepo.UpdateStatus(ctx, tx, refund.ID, model.RefundStatusApproved, model.RefundStatusCompleted); err != nil {
			return err
		}
		if err := s.refundRepo.SetRestock(ctx, tx, refund.ID, restock); err != nil {
			return err
		}

		if restock {
			for _, it := range order.Items {
				if err := s.ledger.Adjust(ctx, tx, it.BookID, it.WarehouseID, it.Quantity, refund.RefundNo); err != nil {
					return err
				}
			}
		}

		// 累计完成退款到全额，订单进入终态 REFUNDED
		if priorCompleted+refund.Amount >= order.FinalAmount {
			if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, order.Status, model.OrderStatusRefunded); err != nil {
				if errors.Is(err, repository.ErrStatusConflict) {
					return &ConcurrencyConflictError{OrderNo: order.OrderNo, Current: order.Status}
				}
				return err
			}
			if err := s.history.Record(ctx, tx, order.ID, order.Status, model.OrderStatusRefunded, actor, "累计退款到全额"); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[RefundService] 退款完成: refundNo=%s, orderNo=%s, amount=%d, restock=%v",
		refund.RefundNo, order.OrderNo, refund.Amount, restock)

	return s.refundRepo.GetByRefundNo(ctx, refundNo)
}

// RejectRefund 审核拒绝，被拒绝的金额重新计入可退余额
func (s *RefundService) RejectRefund(ctx context.Context, refundNo, actor, reason string) error {
	refund, err := s.refundRepo.GetByRefundNo(ctx, refundNo)
	if err != nil {
		return err
	}

	if err := s.refundRepo.UpdateStatus(ctx, nil, refund.ID, model.RefundStatusPending, model.RefundStatusRejected); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return NewValidationError("退款单不在待审核状态: refundNo=%s", refundNo)
		}
		return err
	}

	log.Printf("[RefundService] 退款已拒绝: refundNo=%s, actor=%s, reason=%s", refundNo, actor, reason)
	return nil
}

func (s *RefundService) ListRefunds(ctx context.Context, orderID int64) ([]*model.Refund, error) {
	payment, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.refundRepo.ListByPaymentID(ctx, payment.ID)
}

// resolveOrder 退款单通过 payment_id 外键回溯订单，不持有双向内存引用
func (s *RefundService) resolveOrder(ctx context.Context, refund *model.Refund) (*model.PaymentTransaction, *model.Order, error) {
	payment, err := s.paymentRepo.GetByID(ctx, refund.PaymentID)
	if err != nil {
		return nil, nil, err
	}
	order, err := s.orderRepo.GetByID(ctx, payment.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return payment, order, nil
}

// completedTotal 已完成退款的累计金额
func (s *RefundService) completedTotal(ctx context.Context, paymentID int64) (int64, error) {
	refunds, err := s.refundRepo.ListByPaymentID(ctx, paymentID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range refunds {
		if r.Status == model.RefundStatusCompleted {
			total += r.Amount
		}
	}
	return total, nil
}

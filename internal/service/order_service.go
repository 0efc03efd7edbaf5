package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"bookstore/internal/config"
	"bookstore/internal/gateway"
	"bookstore/internal/infrastructure/lock"
	"bookstore/internal/model"
	"bookstore/internal/repository"
	"bookstore/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// errTransitionLost 状态守卫更新输掉并发竞争时的内部信号
// 对外这不是错误：另一个调用者已经完成了同样的流转，当前调用按幂等 no-op 处理
var errTransitionLost = errors.New("状态流转已被并发完成")

// OrderService 订单生命周期引擎
//
// 状态机：PENDING -> PAID -> PROCESSING -> COMPLETED
//
//	PENDING -> CANCELLED（取消/超时/支付失败）
//	PAID/PROCESSING/COMPLETED -> REFUNDED（累计退款到全额时）
//
// 所有状态流转走状态守卫式条件更新（见 OrderRepository.UpdateStatus），
// 同一订单上的并发操作谁先落库谁生效，输家把流转当作已完成处理。
type OrderService struct {
	txm         repository.TxManager
	orderRepo   repository.OrderRepository
	paymentRepo repository.PaymentRepository
	couponRepo  repository.CouponRepository
	bookRepo    repository.BookRepository
	outboxRepo  repository.OutboxRepository
	ledger      *StockLedger
	history     *StatusHistoryRecorder
	gw          gateway.PaymentGateway
	redisClient *redis.Client // 可为 nil（单测/单实例），锁只是减少无谓的并发空转，正确性由守卫更新保证
	cfg         *config.Config
}

func NewOrderService(
	txm repository.TxManager,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	couponRepo repository.CouponRepository,
	bookRepo repository.BookRepository,
	outboxRepo repository.OutboxRepository,
	ledger *StockLedger,
	history *StatusHistoryRecorder,
	gw gateway.PaymentGateway,
	redisClient *redis.Client,
	cfg *config.Config,
) *OrderService {
	return &OrderService{
		txm:         txm,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		couponRepo:  couponRepo,
		bookRepo:    bookRepo,
		outboxRepo:  outboxRepo,
		ledger:      ledger,
		history:     history,
		gw:          gw,
		redisClient: redisClient,
		cfg:         cfg,
	}
}

type CreateOrderItem struct {
	BookID      int64
	WarehouseID int64
	Quantity    int64
}

type CreateOrderRequest struct {
	UserID     int64
	Items      []CreateOrderItem
	Address    string
	CouponCode string
}

// CreateOrder 创建订单
//
// 【关键点】
// 1. 一律按目录当前价格重新计价，绝不信任购物车传来的价格
// 2. 预占全有或全无：任何一件预占失败，已预占的全部释放，整单拒绝
// 3. 订单 + 明细 + 支付单 + 状态日志在一个事务里落库
// 4. 支付意向在事务提交后创建（不把数据库事务挂在外部调用上），
//    失败只记日志，订单停在 PENDING 由超时扫描兜底回收库存
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*model.Order, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, err
	}

	// 同一用户的并发下单先在入口处串行化，减少锁库存的无效竞争
	if s.redisClient != nil {
		checkoutLock := lock.NewCheckoutLock(s.redisClient, req.UserID)
		if err := checkoutLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer checkoutLock.Unlock(ctx)
	}

	orderNo := idgen.GenerateOrderNo()
	now := time.Now()

	// 重新计价
	items, totalAmount, err := s.priceItems(ctx, req)
	if err != nil {
		return nil, err
	}

	// 优惠计算（只读校验，券的消耗在支付确认时）
	var discountAmount int64
	var couponID *int64
	if req.CouponCode != "" {
		coupon, err := s.couponRepo.GetByCode(ctx, req.CouponCode)
		if err != nil {
			if errors.Is(err, repository.ErrCouponNotFound) {
				return nil, &CouponInvalidError{Code: req.CouponCode, Reason: "不存在"}
			}
			return nil, fmt.Errorf("查询优惠券失败: %w", err)
		}
		discountAmount, err = CalculateDiscount(coupon, totalAmount, req.UserID, now)
		if err != nil {
			return nil, err
		}
		couponID = &coupon.ID
	}

	// 逐件预占，任何一件失败就把前面已预占的全部补偿释放
	reserved := make([]CreateOrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if err := s.ledger.Reserve(ctx, nil, it.BookID, it.WarehouseID, it.Quantity, orderNo); err != nil {
			s.releaseReserved(ctx, reserved, orderNo)
			return nil, err
		}
		reserved = append(reserved, it)
	}

	order := &model.Order{
		OrderNo:        orderNo,
		UserID:         req.UserID,
		Status:         model.OrderStatusPending,
		TotalAmount:    totalAmount,
		DiscountAmount: discountAmount,
		FinalAmount:    totalAmount - discountAmount,
		CouponID:       couponID,
		Address:        req.Address,
		Items:          items,
	}

	payment := &model.PaymentTransaction{
		TransactionCode: idgen.GenerateTransactionNo(),
		Amount:          order.FinalAmount,
		Status:          model.PaymentStatusPending,
	}

	err = s.txm.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("创建订单失败: %w", err)
		}
		payment.OrderID = order.ID
		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return fmt.Errorf("创建支付单失败: %w", err)
		}
		if err := s.history.Record(ctx, tx, order.ID, "", model.OrderStatusPending, actorUser(req.UserID), "创建订单"); err != nil {
			return fmt.Errorf("记录状态日志失败: %w", err)
		}
		return nil
	})
	if err != nil {
		// 落库失败，预占必须全部吐回去
		s.releaseReserved(ctx, reserved, orderNo)
		return nil, err
	}

	// 事务已提交，支付意向尽力而为
	intentRef, err := s.gw.CreateIntent(ctx, payment.TransactionCode, payment.Amount)
	if err != nil {
		log.Printf("[OrderService] 创建支付意向失败，等待超时回收: orderNo=%s, err=%v", orderNo, err)
	} else if err := s.paymentRepo.SetIntentRef(ctx, payment.ID, intentRef); err != nil {
		log.Printf("[OrderService] 保存支付意向引用失败: orderNo=%s, err=%v", orderNo, err)
	}

	log.Printf("[OrderService] 订单创建成功: orderNo=%s, userID=%d, finalAmount=%d",
		orderNo, req.UserID, order.FinalAmount)

	return order, nil
}

func (s *OrderService) validateCreateRequest(req *CreateOrderRequest) error {
	if req.UserID <= 0 {
		return NewValidationError("用户ID不合法")
	}
	if len(req.Items) == 0 {
		return NewValidationError("订单至少需要一件商品")
	}
	if req.Address == "" {
		return NewValidationError("收货地址不能为空")
	}
	seen := make(map[[2]int64]bool, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return NewValidationError("购买数量必须大于0: bookID=%d", it.BookID)
		}
		key := [2]int64{it.BookID, it.WarehouseID}
		if seen[key] {
			return NewValidationError("同一本书重复出现，请先在购物车合并: bookID=%d", it.BookID)
		}
		seen[key] = true
	}
	return nil
}

// priceItems 按目录当前价格生成明细快照
func (s *OrderService) priceItems(ctx context.Context, req *CreateOrderRequest) ([]model.OrderItem, int64, error) {
	bookIDs := make([]int64, 0, len(req.Items))
	for _, it := range req.Items {
		bookIDs = append(bookIDs, it.BookID)
	}

	books, err := s.bookRepo.GetByIDs(ctx, bookIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("查询书目失败: %w", err)
	}

	items := make([]model.OrderItem, 0, len(req.Items))
	var totalAmount int64
	for _, it := range req.Items {
		book, ok := books[it.BookID]
		if !ok {
			return nil, 0, NewValidationError("书目不存在: bookID=%d", it.BookID)
		}
		if !book.Available {
			return nil, 0, NewValidationError("书目已下架: %s", book.Title)
		}
		subtotal := it.Quantity * book.Price
		items = append(items, model.OrderItem{
			BookID:      it.BookID,
			WarehouseID: it.WarehouseID,
			Quantity:    it.Quantity,
			UnitPrice:   book.Price,
			Subtotal:    subtotal,
		})
		totalAmount += subtotal
	}
	return items, totalAmount, nil
}

// releaseReserved 补偿释放，失败只记日志（库存流水里留有预占记录可供人工核对）
func (s *OrderService) releaseReserved(ctx context.Context, reserved []CreateOrderItem, orderNo string) {
	for _, it := range reserved {
		if err := s.ledger.Release(ctx, nil, it.BookID, it.WarehouseID, it.Quantity, orderNo); err != nil {
			log.Printf("[OrderService] 补偿释放失败: orderNo=%s, bookID=%d, err=%v", orderNo, it.BookID, err)
		}
	}
}

// GetOrder 订单快照
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.orderRepo.GetByID(ctx, orderID)
}

func (s *OrderService) GetOrderByNo(ctx context.Context, orderNo string) (*model.Order, error) {
	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
}

// HandlePaymentCallback 网关回调入口，按交易码定位订单
// 未知交易码只记日志并确认，避免网关重试风暴反复触发无效处理
func (s *OrderService) HandlePaymentCallback(ctx context.Context, transactionCode string, result gateway.PaymentResult) error {
	payment, err := s.paymentRepo.GetByTransactionCode(ctx, transactionCode)
	if err != nil {
		return fmt.Errorf("查询支付单失败: %w", err)
	}
	if payment == nil {
		log.Printf("[OrderService] 回调携带未知交易码，已忽略: transactionCode=%s", transactionCode)
		return nil
	}
	return s.OnPaymentResult(ctx, payment.OrderID, result, "gateway")
}

// OnPaymentResult 支付结果对账，幂等
//
// 【关键点】
//   - 同一结果重复投递到已是终态的订单 = no-op，绝不二次确认/二次释放
//   - 确认售出失败会回滚整个事务，支付单保持 PENDING 等待重试，
//     绝不在库存不一致的情况下把订单标成已支付
//   - 超时取消先落库、迟到的 PAID 回调后到时，不回退库存重新确认，
//     而是打对账标记转人工处理
func (s *OrderService) OnPaymentResult(ctx context.Context, orderID int64, result gateway.PaymentResult, actor string) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status != model.OrderStatusPending {
		if result == gateway.PaymentResultPaid && order.Status == model.OrderStatusCancelled {
			return s.flagPaymentConflict(ctx, order)
		}
		// 重复投递，当作已处理
		log.Printf("[OrderService] 支付结果重复投递，忽略: orderNo=%s, status=%s, result=%s",
			order.OrderNo, order.Status, result)
		return nil
	}

	payment, err := s.paymentRepo.GetByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}

	switch result {
	case gateway.PaymentResultPaid:
		return s.confirmPayment(ctx, order, payment, actor)
	case gateway.PaymentResultFailed:
		return s.failPendingOrder(ctx, order, payment, model.PaymentStatusFailed, actor, "支付失败")
	default:
		return NewValidationError("未知的支付结果: %s", result)
	}
}

func (s *OrderService) confirmPayment(ctx context.Context, order *model.Order, payment *model.PaymentTransaction, actor string) error {
	err := s.txm.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPending, model.OrderStatusPaid); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return errTransitionLost
			}
			return err
		}

		// 每个订单项恰好确认一次；任何一件失败整个事务回滚，支付单留在 PENDING
		for _, it := range order.Items {
			if err := s.ledger.ConfirmSale(ctx, tx, it.BookID, it.WarehouseID, it.Quantity, order.OrderNo); err != nil {
				return err
			}
		}

		if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID, model.PaymentStatusPending, model.PaymentStatusPaid); err != nil {
			return err
		}

		// 券在这里消耗；翻转失败说明券已在别处被用掉，不影响本单支付
		if order.CouponID != nil {
			if err := s.couponRepo.MarkUsed(ctx, tx, *order.CouponID); err != nil {
				if !errors.Is(err, repository.ErrCouponAlreadyUsed) {
					return err
				}
				log.Printf("[OrderService] 优惠券已在别处被使用: orderNo=%s, couponID=%d", order.OrderNo, *order.CouponID)
			}
		}

		if err := s.history.Record(ctx, tx, order.ID, model.OrderStatusPending, model.OrderStatusPaid, actor, "支付成功"); err != nil {
			return err
		}

		// 随事务写入发货通知，由 outbox 任务投递
		payload, _ := json.Marshal(map[string]interface{}{
			"order_no":     order.OrderNo,
			"user_id":      order.UserID,
			"final_amount": order.FinalAmount,
			"address":      order.Address,
			"paid_at":      time.Now().Format(time.RFC3339),
		})
		return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
			MessageKey: order.OrderNo,
			Topic:      s.cfg.Kafka.Topic.OrderPaid,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
	})

	if errors.Is(err, errTransitionLost) {
		// 输掉竞争：看一眼最终落成了什么
		current, gerr := s.orderRepo.GetByID(ctx, order.ID)
		if gerr != nil {
			return gerr
		}
		if current.Status == model.OrderStatusCancelled {
			return s.flagPaymentConflict(ctx, current)
		}
		log.Printf("[OrderService] 支付确认已被并发完成: orderNo=%s, status=%s", order.OrderNo, current.Status)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("[OrderService] 支付确认成功: orderNo=%s, amount=%d", order.OrderNo, order.FinalAmount)
	return nil
}

// failPendingOrder 失败/超时/取消的公共路径：释放全部预占并关单
func (s *OrderService) failPendingOrder(ctx context.Context, order *model.Order, payment *model.PaymentTransaction, paymentStatus, actor, reason string) error {
	err := s.txm.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPending, model.OrderStatusCancelled); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return errTransitionLost
			}
			return err
		}

		for _, it := range order.Items {
			if err := s.ledger.Release(ctx, tx, it.BookID, it.WarehouseID, it.Quantity, order.OrderNo); err != nil {
				return err
			}
		}

		if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID, model.PaymentStatusPending, paymentStatus); err != nil {
			return err
		}

		return s.history.Record(ctx, tx, order.ID, model.OrderStatusPending, model.OrderStatusCancelled, actor, reason)
	})

	if errors.Is(err, errTransitionLost) {
		log.Printf("[OrderService] 关单已被并发完成: orderNo=%s", order.OrderNo)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("[OrderService] 订单已关闭: orderNo=%s, reason=%s", order.OrderNo, reason)
	return nil
}

// Cancel 用户主动取消，只允许在支付前
func (s *OrderService) Cancel(ctx context.Context, orderID int64, actor, reason string) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != model.OrderStatusPending {
		return nil, &InvalidTransitionError{
			OrderNo: order.OrderNo,
			Current: order.Status,
			Target:  model.OrderStatusCancelled,
		}
	}

	payment, err := s.paymentRepo.GetByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	if err := s.failPendingOrder(ctx, order, payment, model.PaymentStatusCancelled, actor, reason); err != nil {
		return nil, err
	}

	return s.orderRepo.GetByID(ctx, orderID)
}

// ExpirePendingOrders 超时扫描：超过阈值仍未支付的订单按支付失败处理
// 单个订单出错只记日志，不阻塞整批
func (s *OrderService) ExpirePendingOrders(ctx context.Context, limit int) (int, error) {
	threshold := time.Duration(s.cfg.Business.OrderTimeoutMinutes) * time.Minute
	before := time.Now().Add(-threshold)

	orders, err := s.orderRepo.GetExpiredPending(ctx, before, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, order := range orders {
		payment, err := s.paymentRepo.GetByOrderID(ctx, order.ID)
		if err != nil {
			log.Printf("[OrderService] 查询超时订单支付单失败: orderNo=%s, err=%v", order.OrderNo, err)
			continue
		}
		if err := s.failPendingOrder(ctx, order, payment, model.PaymentStatusCancelled, "expire_job", "支付超时"); err != nil {
			log.Printf("[OrderService] 关闭超时订单失败: orderNo=%s, err=%v", order.OrderNo, err)
			continue
		}
		expired++
	}

	return expired, nil
}

// flagPaymentConflict 超时关单赢了、迟到的 PAID 回调输了的场景
// 库存已经释放，绝不悄悄重新确认售出，打标记转人工对账
func (s *OrderService) flagPaymentConflict(ctx context.Context, order *model.Order) error {
	log.Printf("[OrderService] 订单已超时关闭但收到支付成功回调，转人工对账: orderNo=%s", order.OrderNo)

	payload, _ := json.Marshal(map[string]interface{}{
		"order_no":     order.OrderNo,
		"user_id":      order.UserID,
		"final_amount": order.FinalAmount,
		"reason":       "订单已取消后收到支付成功回调",
		"flagged_at":   time.Now().Format(time.RFC3339),
	})
	return s.outboxRepo.Create(ctx, nil, &model.OutboxMessage{
		MessageKey: order.OrderNo,
		Topic:      s.cfg.Kafka.Topic.PaymentReconcile,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}

func actorUser(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

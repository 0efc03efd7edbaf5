package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bookstore/internal/model"
	"bookstore/internal/repository"

	"gorm.io/gorm"
)

// 内存版仓储，守卫语义与 GORM 实现保持一致（条件不满足时返回相同的哨兵错误），
// 服务层的并发性质才能在单测里如实复现

// ----------------------------------------------------------------------------
// 事务
// ----------------------------------------------------------------------------

// memTxManager 直接执行回调，内存仓储忽略 tx 参数
type memTxManager struct{}

func (m *memTxManager) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

// ----------------------------------------------------------------------------
// 库存
// ----------------------------------------------------------------------------

type stockKey struct {
	bookID      int64
	warehouseID int64
}

type memStockRepo struct {
	mu    sync.Mutex
	items map[stockKey]*model.StockItem
}

func newMemStockRepo() *memStockRepo {
	return &memStockRepo{items: make(map[stockKey]*model.StockItem)}
}

func (r *memStockRepo) put(bookID, warehouseID, onHand int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[stockKey{bookID, warehouseID}] = &model.StockItem{
		ID:          int64(len(r.items) + 1),
		BookID:      bookID,
		WarehouseID: warehouseID,
		OnHand:      onHand,
	}
}

func (r *memStockRepo) Get(ctx context.Context, bookID, warehouseID int64) (*model.StockItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[stockKey{bookID, warehouseID}]
	if !ok {
		return nil, repository.ErrStockNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *memStockRepo) Create(ctx context.Context, item *model.StockItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[stockKey{item.BookID, item.WarehouseID}] = item
	return nil
}

func (r *memStockRepo) Reserve(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[stockKey{bookID, warehouseID}]
	if !ok {
		return repository.ErrStockNotFound
	}
	if item.OnHand-item.Reserved < qty {
		return repository.ErrInsufficientStock
	}
	item.Reserved += qty
	return nil
}

func (r *memStockRepo) Release(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[stockKey{bookID, warehouseID}]
	if !ok || item.Reserved < qty {
		return repository.ErrStockConflict
	}
	item.Reserved -= qty
	return nil
}

func (r *memStockRepo) ConfirmSale(ctx context.Context, tx *gorm.DB, bookID, warehouseID, qty int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[stockKey{bookID, warehouseID}]
	if !ok || item.Reserved < qty {
		return repository.ErrStockConflict
	}
	item.Reserved -= qty
	item.OnHand -= qty
	item.Sold += qty
	return nil
}

func (r *memStockRepo) Adjust(ctx context.Context, tx *gorm.DB, bookID, warehouseID, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[stockKey{bookID, warehouseID}]
	if !ok {
		return repository.ErrStockNotFound
	}
	if item.OnHand-item.Reserved+delta < 0 {
		return repository.ErrInsufficientStock
	}
	item.OnHand += delta
	return nil
}

// ----------------------------------------------------------------------------
// 库存流水
// ----------------------------------------------------------------------------

type memInvTxRepo struct {
	mu  sync.Mutex
	txs []*model.InventoryTransaction
}

func newMemInvTxRepo() *memInvTxRepo {
	return &memInvTxRepo{}
}

func (r *memInvTxRepo) Create(ctx context.Context, tx *gorm.DB, invTx *model.InventoryTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	invTx.ID = int64(len(r.txs) + 1)
	r.txs = append(r.txs, invTx)
	return nil
}

func (r *memInvTxRepo) ListByReferenceNo(ctx context.Context, referenceNo string) ([]*model.InventoryTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.InventoryTransaction
	for _, t := range r.txs {
		if t.ReferenceNo == referenceNo {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memInvTxRepo) ListByBookID(ctx context.Context, bookID int64, limit int) ([]*model.InventoryTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.InventoryTransaction
	for _, t := range r.txs {
		if t.BookID == bookID {
			out = append(out, t)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// 订单
// ----------------------------------------------------------------------------

type memOrderRepo struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*model.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[int64]*model.Order)}
}

func (r *memOrderRepo) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	order.CreatedAt = time.Now()
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *memOrderRepo) GetByID(ctx context.Context, orderID int64) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *memOrderRepo) GetByOrderNo(ctx context.Context, orderNo string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.OrderNo == orderNo {
			cp := *order
			return &cp, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (r *memOrderRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID int64, fromStatus, toStatus model.OrderStatus) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, fromStatus, toStatus)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok || order.Status != fromStatus {
		return repository.ErrStatusConflict
	}
	order.Status = toStatus
	now := time.Now()
	switch toStatus {
	case model.OrderStatusPaid:
		order.PaidAt = &now
	case model.OrderStatusCompleted:
		order.CompletedAt = &now
	case model.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	return nil
}

func (r *memOrderRepo) GetExpiredPending(ctx context.Context, before time.Time, limit int) ([]*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Order
	for _, order := range r.orders {
		if order.Status == model.OrderStatusPending && order.CreatedAt.Before(before) {
			cp := *order
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memOrderRepo) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			cp := *order
			out = append(out, &cp)
		}
	}
	return out, int64(len(out)), nil
}

// setCreatedAt 把订单创建时间拨回过去，模拟超时场景
func (r *memOrderRepo) setCreatedAt(orderID int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order, ok := r.orders[orderID]; ok {
		order.CreatedAt = at
	}
}

// ----------------------------------------------------------------------------
// 支付单
// ----------------------------------------------------------------------------

type memPaymentRepo struct {
	mu       sync.Mutex
	nextID   int64
	payments map[int64]*model.PaymentTransaction
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[int64]*model.PaymentTransaction)}
}

func (r *memPaymentRepo) Create(ctx context.Context, tx *gorm.DB, payment *model.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	payment.ID = r.nextID
	cp := *payment
	r.payments[payment.ID] = &cp
	return nil
}

func (r *memPaymentRepo) GetByID(ctx context.Context, paymentID int64) (*model.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	cp := *payment
	return &cp, nil
}

func (r *memPaymentRepo) GetByOrderID(ctx context.Context, orderID int64) (*model.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, payment := range r.payments {
		if payment.OrderID == orderID {
			cp := *payment
			return &cp, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

func (r *memPaymentRepo) GetByTransactionCode(ctx context.Context, transactionCode string) (*model.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, payment := range r.payments {
		if payment.TransactionCode == transactionCode {
			cp := *payment
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memPaymentRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, paymentID int64, fromStatus, toStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.payments[paymentID]
	if !ok || payment.Status != fromStatus {
		return repository.ErrStatusConflict
	}
	payment.Status = toStatus
	if toStatus == model.PaymentStatusPaid {
		now := time.Now()
		payment.PaidAt = &now
	}
	return nil
}

func (r *memPaymentRepo) SetIntentRef(ctx context.Context, paymentID int64, intentRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if payment, ok := r.payments[paymentID]; ok {
		payment.IntentRef = intentRef
	}
	return nil
}

// ----------------------------------------------------------------------------
// 优惠券
// ----------------------------------------------------------------------------

type memCouponRepo struct {
	mu      sync.Mutex
	coupons map[int64]*model.Coupon
}

func newMemCouponRepo() *memCouponRepo {
	return &memCouponRepo{coupons: make(map[int64]*model.Coupon)}
}

func (r *memCouponRepo) Create(ctx context.Context, coupon *model.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if coupon.ID == 0 {
		coupon.ID = int64(len(r.coupons) + 1)
	}
	cp := *coupon
	r.coupons[coupon.ID] = &cp
	return nil
}

func (r *memCouponRepo) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, coupon := range r.coupons {
		if coupon.Code == code {
			cp := *coupon
			return &cp, nil
		}
	}
	return nil, repository.ErrCouponNotFound
}

func (r *memCouponRepo) GetByID(ctx context.Context, couponID int64) (*model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	coupon, ok := r.coupons[couponID]
	if !ok {
		return nil, repository.ErrCouponNotFound
	}
	cp := *coupon
	return &cp, nil
}

func (r *memCouponRepo) MarkUsed(ctx context.Context, tx *gorm.DB, couponID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	coupon, ok := r.coupons[couponID]
	if !ok || coupon.IsUsed {
		return repository.ErrCouponAlreadyUsed
	}
	coupon.IsUsed = true
	return nil
}

// ----------------------------------------------------------------------------
// 书目
// ----------------------------------------------------------------------------

type memBookRepo struct {
	mu    sync.Mutex
	books map[int64]*model.Book
}

func newMemBookRepo() *memBookRepo {
	return &memBookRepo{books: make(map[int64]*model.Book)}
}

func (r *memBookRepo) put(book *model.Book) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books[book.ID] = book
}

func (r *memBookRepo) GetByID(ctx context.Context, bookID int64) (*model.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	book, ok := r.books[bookID]
	if !ok {
		return nil, repository.ErrBookNotFound
	}
	cp := *book
	return &cp, nil
}

func (r *memBookRepo) GetByIDs(ctx context.Context, bookIDs []int64) (map[int64]*model.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]*model.Book, len(bookIDs))
	for _, id := range bookIDs {
		if book, ok := r.books[id]; ok {
			cp := *book
			out[id] = &cp
		}
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// Outbox
// ----------------------------------------------------------------------------

type memOutboxRepo struct {
	mu       sync.Mutex
	messages []*model.OutboxMessage
}

func newMemOutboxRepo() *memOutboxRepo {
	return &memOutboxRepo{}
}

func (r *memOutboxRepo) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.ID = int64(len(r.messages) + 1)
	r.messages = append(r.messages, msg)
	return nil
}

func (r *memOutboxRepo) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.OutboxMessage
	for _, msg := range r.messages {
		if msg.Status == model.OutboxStatusPending {
			out = append(out, msg)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memOutboxRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			msg.Status = status
		}
	}
	return nil
}

func (r *memOutboxRepo) IncrementRetryCount(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			msg.RetryCount++
		}
	}
	return nil
}

func (r *memOutboxRepo) MarkAsFailed(ctx context.Context, id int64) error {
	return r.UpdateStatus(ctx, id, model.OutboxStatusFailed)
}

// byTopic 按主题过滤，断言对账标记/发货通知是否落了消息
func (r *memOutboxRepo) byTopic(topic string) []*model.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.OutboxMessage
	for _, msg := range r.messages {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// 退款单
// ----------------------------------------------------------------------------

type memRefundRepo struct {
	mu      sync.Mutex
	nextID  int64
	refunds map[int64]*model.Refund
}

func newMemRefundRepo() *memRefundRepo {
	return &memRefundRepo{refunds: make(map[int64]*model.Refund)}
}

func (r *memRefundRepo) Create(ctx context.Context, tx *gorm.DB, refund *model.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	refund.ID = r.nextID
	cp := *refund
	r.refunds[refund.ID] = &cp
	return nil
}

func (r *memRefundRepo) GetByRefundNo(ctx context.Context, refundNo string) (*model.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, refund := range r.refunds {
		if refund.RefundNo == refundNo {
			cp := *refund
			return &cp, nil
		}
	}
	return nil, repository.ErrRefundNotFound
}

func (r *memRefundRepo) ListByPaymentID(ctx context.Context, paymentID int64) ([]*model.Refund, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Refund
	for _, refund := range r.refunds {
		if refund.PaymentID == paymentID {
			cp := *refund
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRefundRepo) SumByPaymentID(ctx context.Context, paymentID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, refund := range r.refunds {
		if refund.PaymentID == paymentID && refund.Status != model.RefundStatusRejected {
			total += refund.Amount
		}
	}
	return total, nil
}

func (r *memRefundRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, refundID int64, fromStatus, toStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	refund, ok := r.refunds[refundID]
	if !ok || refund.Status != fromStatus {
		return repository.ErrStatusConflict
	}
	refund.Status = toStatus
	if toStatus != model.RefundStatusPending {
		now := time.Now()
		refund.DecidedAt = &now
	}
	return nil
}

func (r *memRefundRepo) SetRestock(ctx context.Context, tx *gorm.DB, refundID int64, restock bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if refund, ok := r.refunds[refundID]; ok {
		refund.Restock = restock
	}
	return nil
}

// ----------------------------------------------------------------------------
// 状态日志
// ----------------------------------------------------------------------------

type memStatusLogRepo struct {
	mu   sync.Mutex
	logs []*model.OrderStatusLog
}

func newMemStatusLogRepo() *memStatusLogRepo {
	return &memStatusLogRepo{}
}

func (r *memStatusLogRepo) Create(ctx context.Context, tx *gorm.DB, logEntry *model.OrderStatusLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	logEntry.ID = int64(len(r.logs) + 1)
	logEntry.ChangedAt = time.Now()
	r.logs = append(r.logs, logEntry)
	return nil
}

func (r *memStatusLogRepo) ListByOrderID(ctx context.Context, orderID int64) ([]*model.OrderStatusLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.OrderStatusLog
	for _, entry := range r.logs {
		if entry.OrderID == orderID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// 支付网关
// ----------------------------------------------------------------------------

type memGateway struct {
	mu      sync.Mutex
	intents []string
	fail    bool
}

func (g *memGateway) CreateIntent(ctx context.Context, transactionCode string, amount int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return "", fmt.Errorf("网关不可用")
	}
	g.intents = append(g.intents, transactionCode)
	return "intent-" + transactionCode, nil
}

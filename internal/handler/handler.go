package handler

import (
	"errors"
	"strconv"

	"bookstore/internal/config"
	"bookstore/internal/gateway"
	"bookstore/internal/repository"
	"bookstore/internal/service"
	"bookstore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	orderService  *service.OrderService
	refundService *service.RefundService
	ledger        *service.StockLedger
	history       *service.StatusHistoryRecorder
	cfg           *config.Config
}

// NewHandler 创建处理器实例，在这里完成仓储和服务的拼装
func NewHandler(db *gorm.DB, rdb *redis.Client, gw gateway.PaymentGateway, cfg *config.Config) *Handler {
	txm := repository.NewGormTxManager(db)
	orderRepo := repository.NewGormOrderRepository(db)
	paymentRepo := repository.NewGormPaymentRepository(db)
	couponRepo := repository.NewGormCouponRepository(db)
	bookRepo := repository.NewGormBookRepository(db)
	outboxRepo := repository.NewGormOutboxRepository(db)
	refundRepo := repository.NewGormRefundRepository(db)
	stockRepo := repository.NewGormStockRepository(db)
	invTxRepo := repository.NewGormInventoryTxRepository(db)
	statusLogRepo := repository.NewGormStatusLogRepository(db)

	ledger := service.NewStockLedger(stockRepo, invTxRepo)
	history := service.NewStatusHistoryRecorder(statusLogRepo)

	return &Handler{
		orderService: service.NewOrderService(
			txm, orderRepo, paymentRepo, couponRepo, bookRepo, outboxRepo,
			ledger, history, gw, rdb, cfg,
		),
		refundService: service.NewRefundService(
			txm, orderRepo, paymentRepo, refundRepo, ledger, history, rdb,
		),
		ledger:  ledger,
		history: history,
		cfg:     cfg,
	}
}

// OrderService 暴露订单服务，供后台超时任务复用同一套装配
func (h *Handler) OrderService() *service.OrderService {
	return h.orderService
}

// respondError 业务错误映射到响应码，存储错误一律 500
func respondError(c *gin.Context, err error) {
	var ve *service.ValidationError
	var se *service.InsufficientStockError
	var ce *service.CouponInvalidError
	var te *service.InvalidTransitionError
	var ke *service.ConcurrencyConflictError

	switch {
	case errors.As(err, &ve):
		response.ParamError(c, ve.Error())
	case errors.As(err, &se):
		response.BusinessError(c, response.CodeInsufficientStock, se.Error())
	case errors.As(err, &ce):
		response.BusinessError(c, response.CodeCouponInvalid, ce.Error())
	case errors.As(err, &te):
		// 附带当前权威状态，调用方据此重新同步
		c.JSON(200, response.Response{
			Code:    response.CodeInvalidTransition,
			Message: te.Error(),
			Data:    gin.H{"current_status": te.Current},
		})
	case errors.As(err, &ke):
		c.JSON(200, response.Response{
			Code:    response.CodeConcurrencyConflict,
			Message: ke.Error(),
			Data:    gin.H{"current_status": ke.Current},
		})
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrRefundNotFound),
		errors.Is(err, repository.ErrStockNotFound),
		errors.Is(err, repository.ErrPaymentNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 订单相关接口
// ============================================================

// CreateOrderRequest 创建订单请求
// 购物车只传书目和数量，价格一律服务端重新计算
type CreateOrderRequest struct {
	UserID     int64  `json:"user_id" binding:"required"`
	Address    string `json:"address" binding:"required"`
	CouponCode string `json:"coupon_code"`
	Items      []struct {
		BookID      int64 `json:"book_id" binding:"required"`
		WarehouseID int64 `json:"warehouse_id"`
		Quantity    int64 `json:"quantity" binding:"required,gt=0"`
	} `json:"items" binding:"required,dive"`
}

// CreateOrder 创建订单
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	serviceReq := &service.CreateOrderRequest{
		UserID:     req.UserID,
		Address:    req.Address,
		CouponCode: req.CouponCode,
	}
	for _, it := range req.Items {
		warehouseID := it.WarehouseID
		if warehouseID == 0 {
			warehouseID = h.cfg.Business.DefaultWarehouseID
		}
		serviceReq.Items = append(serviceReq.Items, service.CreateOrderItem{
			BookID:      it.BookID,
			WarehouseID: warehouseID,
			Quantity:    it.Quantity,
		})
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), serviceReq)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, order)
}

// GetOrder 查询订单详情
// GET /api/v1/order/detail?order_id=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Query("order_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "order_id 参数错误")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, order)
}

// ListOrders 查询用户订单列表
// GET /api/v1/order/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetOrderHistory 查询订单状态变更历史
// GET /api/v1/order/history?order_id=xxx
func (h *Handler) GetOrderHistory(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Query("order_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "order_id 参数错误")
		return
	}

	logs, err := h.history.History(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, logs)
}

// CancelOrder 取消订单（仅限支付前）
// POST /api/v1/order/cancel
func (h *Handler) CancelOrder(c *gin.Context) {
	var req struct {
		OrderID int64  `json:"order_id" binding:"required"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.orderService.Cancel(c.Request.Context(), req.OrderID, "user", req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, order)
}

// ============================================================
// 支付回调接口
// ============================================================

// PaymentCallbackRequest 网关回调载荷
type PaymentCallbackRequest struct {
	TransactionCode string `json:"transaction_code" binding:"required"`
	Result          string `json:"result" binding:"required,oneof=PAID FAILED"`
}

// PaymentCallback 支付网关异步回调
// POST /api/v1/payment/callback
//
// 【关键点】回调是幂等的：重复投递、乱序投递都不会二次确认或二次释放库存；
// 未知交易码记日志后直接确认，避免网关重试风暴
func (h *Handler) PaymentCallback(c *gin.Context) {
	var req PaymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	err := h.orderService.HandlePaymentCallback(
		c.Request.Context(),
		req.TransactionCode,
		gateway.PaymentResult(req.Result),
	)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "已受理"})
}

// ============================================================
// 退款相关接口
// ============================================================

// RequestRefund 申请退款
// POST /api/v1/refund/request
func (h *Handler) RequestRefund(c *gin.Context) {
	var req struct {
		OrderID int64  `json:"order_id" binding:"required"`
		Amount  int64  `json:"amount" binding:"required,gt=0"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	refund, err := h.refundService.RequestRefund(c.Request.Context(), req.OrderID, req.Amount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, refund)
}

// ApproveRefund 审核通过退款
// POST /api/v1/refund/approve
func (h *Handler) ApproveRefund(c *gin.Context) {
	var req struct {
		RefundNo string `json:"refund_no" binding:"required"`
		Restock  bool   `json:"restock"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	refund, err := h.refundService.ApproveRefund(c.Request.Context(), req.RefundNo, req.Restock, "operator")
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, refund)
}

// RejectRefund 审核拒绝退款
// POST /api/v1/refund/reject
func (h *Handler) RejectRefund(c *gin.Context) {
	var req struct {
		RefundNo string `json:"refund_no" binding:"required"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.refundService.RejectRefund(c.Request.Context(), req.RefundNo, "operator", req.Reason); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "已拒绝"})
}

// ============================================================
// 库存相关接口
// ============================================================

// GetStock 查询库存快照
// GET /api/v1/stock/detail?book_id=xxx&warehouse_id=xxx
func (h *Handler) GetStock(c *gin.Context) {
	bookID, err := strconv.ParseInt(c.Query("book_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "book_id 参数错误")
		return
	}
	warehouseID, err := strconv.ParseInt(c.DefaultQuery("warehouse_id", "1"), 10, 64)
	if err != nil {
		response.ParamError(c, "warehouse_id 参数错误")
		return
	}

	item, err := h.ledger.Get(c.Request.Context(), bookID, warehouseID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"book_id":      item.BookID,
		"warehouse_id": item.WarehouseID,
		"on_hand":      item.OnHand,
		"reserved":     item.Reserved,
		"sold":         item.Sold,
		"available":    item.Available(),
	})
}

// AdjustStock 人工调整库存（补货/盘亏/破损）
// POST /api/v1/stock/adjust
func (h *Handler) AdjustStock(c *gin.Context) {
	var req struct {
		BookID      int64  `json:"book_id" binding:"required"`
		WarehouseID int64  `json:"warehouse_id"`
		Delta       int64  `json:"delta" binding:"required"`
		Reason      string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	warehouseID := req.WarehouseID
	if warehouseID == 0 {
		warehouseID = h.cfg.Business.DefaultWarehouseID
	}

	if err := h.ledger.Adjust(c.Request.Context(), nil, req.BookID, warehouseID, req.Delta, req.Reason); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "调整完成"})
}

package handler

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 订单相关
		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.GET("/detail", h.GetOrder)
			order.GET("/list", h.ListOrders)
			order.GET("/history", h.GetOrderHistory)
			order.POST("/cancel", h.CancelOrder)
		}

		// 支付回调
		payment := api.Group("/payment")
		{
			payment.POST("/callback", h.PaymentCallback)
		}

		// 退款相关
		refund := api.Group("/refund")
		{
			refund.POST("/request", h.RequestRefund)
			refund.POST("/approve", h.ApproveRefund)
			refund.POST("/reject", h.RejectRefund)
		}

		// 库存相关
		stock := api.Group("/stock")
		{
			stock.GET("/detail", h.GetStock)
			stock.POST("/adjust", h.AdjustStock)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

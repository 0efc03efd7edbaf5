package job

import (
	"context"
	"log"
	"time"

	"bookstore/internal/config"
	"bookstore/internal/service"
)

// OrderExpireJob 待支付订单超时扫描
// 独立于请求处理的周期任务，是库存被废弃结账单长期占用的兜底：
// 超过阈值仍未收到支付结果的订单按支付失败处理（关单 + 释放预占）
type OrderExpireJob struct {
	orderService *service.OrderService
	stopCh       chan struct{}
	interval     time.Duration
	batchSize    int
}

func NewOrderExpireJob(orderService *service.OrderService, cfg *config.Config) *OrderExpireJob {
	interval := time.Duration(cfg.Business.ExpireSweepSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	batchSize := cfg.Business.ExpireBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OrderExpireJob{
		orderService: orderService,
		stopCh:       make(chan struct{}),
		interval:     interval,
		batchSize:    batchSize,
	}
}

func (j *OrderExpireJob) Start(ctx context.Context) {
	log.Println("[OrderExpireJob] 订单超时扫描任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OrderExpireJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[OrderExpireJob] 任务停止")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *OrderExpireJob) Stop() {
	close(j.stopCh)
}

func (j *OrderExpireJob) sweep(ctx context.Context) {
	expired, err := j.orderService.ExpirePendingOrders(ctx, j.batchSize)
	if err != nil {
		log.Printf("[OrderExpireJob] 扫描超时订单失败: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[OrderExpireJob] 本轮关闭 %d 个超时订单", expired)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookstore/internal/config"
	"bookstore/internal/gateway"
	"bookstore/internal/handler"
	"bookstore/internal/infrastructure/cache"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/infrastructure/mq"
	"bookstore/internal/job"
	"bookstore/internal/repository"
	"bookstore/pkg/idgen"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化 ID 生成器
	idgen.Init(cfg.Business.SnowflakeWorkerID)

	// 初始化 MySQL
	db := database.InitMySQL(&cfg.MySQL)

	// 初始化 Redis
	redisClient := cache.InitRedis(&cfg.Redis)

	// 初始化 Kafka
	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 支付网关对接（本地为日志桩，生产替换为真实网关客户端）
	gw := gateway.NewLoggingGateway()

	// 创建处理器（内部完成仓储与服务的装配）
	h := handler.NewHandler(db, redisClient, gw, cfg)

	// 启动后台任务
	outboxSender := job.NewOutboxSender(repository.NewGormOutboxRepository(db), cfg)
	go outboxSender.Start(ctx)

	expireJob := job.NewOrderExpireJob(h.OrderService(), cfg)
	go expireJob.Start(ctx)

	// 设置路由
	router := handler.SetupRouter(h)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}

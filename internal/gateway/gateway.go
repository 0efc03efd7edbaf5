package gateway

import (
	"context"
	"fmt"
	"log"
)

// PaymentResult 网关异步回调的结果
type PaymentResult string

const (
	PaymentResultPaid   PaymentResult = "PAID"
	PaymentResultFailed PaymentResult = "FAILED"
)

// PaymentGateway 外部支付网关
// 线上协议细节不在本系统范围内：下单时创建支付意向拿到引用，
// 之后网关按 transactionCode 异步回调支付结果（可能乱序、可能重复投递）
type PaymentGateway interface {
	CreateIntent(ctx context.Context, transactionCode string, amount int64) (string, error)
}

// LoggingGateway 本地联调用的网关桩，只记日志，从不回调
// 真实环境替换成对接具体渠道的 HTTP 客户端实现
type LoggingGateway struct{}

func NewLoggingGateway() *LoggingGateway {
	return &LoggingGateway{}
}

func (g *LoggingGateway) CreateIntent(ctx context.Context, transactionCode string, amount int64) (string, error) {
	log.Printf("[Gateway] 创建支付意向: transactionCode=%s, amount=%d", transactionCode, amount)
	return fmt.Sprintf("intent-%s", transactionCode), nil
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookstore/pkg/idgen"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 加锁：SET key value NX EX timeout
//   - NX 保证互斥，EX 防止持有者崩溃后死锁
//   - value 标识锁的持有者，释放时校验，防止删掉别人的锁
//
// 释放：Lua 脚本保证"校验+删除"原子执行
//
// 【注意】这里的锁只用来压缩无效的并发空转（同一用户重复下单、
// 同一订单重复退款申请），库存和状态的正确性由存储层的守卫更新保证，
// 不依赖这把锁。

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 持有者标识
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，Lua 脚本校验持有者后删除
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 业务锁
// ============================================================================

// NewCheckoutLock 下单锁，按用户维度
// 同一用户的重复提交在入口处串行化，不同用户互不影响
func NewCheckoutLock(client *redis.Client, userID int64) *DistributedLock {
	key := fmt.Sprintf("order:lock:user:%d", userID)
	return NewDistributedLock(client, key, fmt.Sprintf("%d", idgen.NextID()), 30*time.Second)
}

// NewRefundLock 退款锁，按订单维度
// 并发退款申请串行化，配合额度校验防止超退
func NewRefundLock(client *redis.Client, orderNo string) *DistributedLock {
	key := fmt.Sprintf("refund:lock:order:%s", orderNo)
	return NewDistributedLock(client, key, fmt.Sprintf("%d", idgen.NextID()), 30*time.Second)
}

package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"otakumori/internal/config"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 奖励发放（每日签到、抽卡、任务领取、商店购买）在进入数据库事务前
// 先按用户加锁，把同一用户的并发请求挡在数据库之外。
// 数据库事务内仍然会 SELECT ... FOR UPDATE 锁定用户行，Redis 锁只是第一道防线。
//
// 加锁：SET key value NX EX timeout
// 释放锁：Lua 脚本校验 value 后删除，避免误删别人的锁
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
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
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
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
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	_, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 按用户维度的奖励锁
// ============================================================================

// UserLocker 为每个用户提供一把独立的锁，不同用户之间互不影响
type UserLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewUserLocker(client *redis.Client, cfg *config.RedisConfig) *UserLocker {
	u := &UserLocker{
		client:        client,
		expiration:    cfg.LockTTL,
		retryInterval: cfg.LockRetryInterval,
		maxRetries:    cfg.LockMaxRetries,
	}
	if u.expiration <= 0 {
		u.expiration = 30 * time.Second
	}
	if u.retryInterval <= 0 {
		u.retryInterval = 100 * time.Millisecond
	}
	if u.maxRetries <= 0 {
		u.maxRetries = 1
	}
	return u
}

// UserLockKey 用户奖励锁的 key
func UserLockKey(userID int64) string {
	return fmt.Sprintf("petals:lock:user:%d", userID)
}

// LockUser 获取用户锁，返回释放函数
// token 使用请求的幂等键，便于追踪是哪个请求持有锁
func (u *UserLocker) LockUser(ctx context.Context, userID int64, token string) (func(), error) {
	l := NewDistributedLock(u.client, UserLockKey(userID), token, u.expiration)
	if err := l.Lock(ctx, u.retryInterval, u.maxRetries); err != nil {
		return nil, err
	}
	return func() {
		// 请求可能已经取消，释放锁不能依赖请求的 ctx
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.Unlock(releaseCtx); err != nil {
			slog.Warn("释放用户锁失败", "user_id", userID, "err", err)
		}
	}, nil
}

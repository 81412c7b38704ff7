package service

import (
	"context"
	"errors"
	"fmt"

	"otakumori/internal/infrastructure/lock"
)

// Locker 用户级互斥锁，实现见 infrastructure/lock.UserLocker
// 锁被占用且重试耗尽时返回 lock.ErrLockFailed
type Locker interface {
	LockUser(ctx context.Context, userID int64, token string) (func(), error)
}

// NopLocker 未启用 Redis 时使用，只依赖数据库行锁
type NopLocker struct{}

func (NopLocker) LockUser(context.Context, int64, string) (func(), error) {
	return func() {}, nil
}

// lockUser 只有锁竞争映射为 ErrBusy，Redis 故障等按内部错误返回
func lockUser(ctx context.Context, locker Locker, userID int64, token string) (func(), error) {
	unlock, err := locker.LockUser(ctx, userID, token)
	if errors.Is(err, lock.ErrLockFailed) {
		return nil, fmt.Errorf("%w: user %d", ErrBusy, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("获取用户锁失败: %w", err)
	}
	return unlock, nil
}

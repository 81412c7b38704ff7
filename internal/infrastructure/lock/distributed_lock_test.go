package lock

import (
	"context"
	"testing"
	"time"

	"otakumori/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDistributedLockOwnership(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	owner := NewDistributedLock(client, "petals:lock:test", "owner", time.Minute)
	other := NewDistributedLock(client, "petals:lock:test", "other", time.Minute)

	ok, err := owner.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = other.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// 非持有者释放不会删除锁
	require.NoError(t, other.Unlock(ctx))
	assert.True(t, mr.Exists("petals:lock:test"))

	require.NoError(t, owner.Unlock(ctx))
	assert.False(t, mr.Exists("petals:lock:test"))

	ok, err = other.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistributedLockExpires(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	l := NewDistributedLock(client, "petals:lock:ttl", "a", 5*time.Second)
	ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	ok, err = NewDistributedLock(client, "petals:lock:ttl", "b", 5*time.Second).TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUserLocker(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	locker := NewUserLocker(client, &config.RedisConfig{
		LockTTL:           time.Minute,
		LockRetryInterval: 5 * time.Millisecond,
		LockMaxRetries:    3,
	})

	unlock, err := locker.LockUser(ctx, 42, "req-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(UserLockKey(42)))

	_, err = locker.LockUser(ctx, 42, "req-2")
	require.ErrorIs(t, err, ErrLockFailed)

	// 不同用户互不影响
	unlockOther, err := locker.LockUser(ctx, 7, "req-3")
	require.NoError(t, err)
	unlockOther()

	unlock()
	assert.False(t, mr.Exists(UserLockKey(42)))

	unlock, err = locker.LockUser(ctx, 42, "req-4")
	require.NoError(t, err)
	unlock()
}

func TestUserLockerRedisDown(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewUserLocker(client, &config.RedisConfig{LockRetryInterval: time.Millisecond, LockMaxRetries: 3})
	mr.Close()

	_, err := locker.LockUser(context.Background(), 42, "req-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockFailed)
}

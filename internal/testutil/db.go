// Package testutil 测试辅助：内存 sqlite、固定时钟、测试用户
package testutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"otakumori/internal/config"
	"otakumori/internal/infrastructure/database"
	"otakumori/internal/model"
	"otakumori/pkg/dayclock"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var nameReplacer = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// NewDB 每个测试独立的内存数据库，已迁移并写入目录数据
// 只开一个连接，事务里的查询必须走 tx
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	return open(t, fmt.Sprintf("file:%s?mode=memory&cache=shared", nameReplacer.Replace(t.Name())), 1)
}

// NewFileDB 临时目录下的文件数据库，允许多个连接并发
// 事务以 BEGIN IMMEDIATE 开始，写事务在 sqlite 上串行执行，拿不到锁时等待而不是报 SQLITE_BUSY
func NewFileDB(t *testing.T, maxOpenConns int) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "otakumori.db")
	return open(t, "file:"+path+"?_busy_timeout=5000&_txlock=immediate", maxOpenConns)
}

func open(t *testing.T, dsn string, maxOpenConns int) *gorm.DB {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxOpenConns: maxOpenConns,
		MaxIdleConns: maxOpenConns,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Config 默认配置，gin 使用 test 模式
func Config() *config.Config {
	cfg := config.Default()
	cfg.Server.Mode = "test"
	cfg.Stripe.WebhookSecret = "whsec_test"
	return cfg
}

// Clock 固定在 now 的时钟
func Clock(t *testing.T, now time.Time) *dayclock.Clock {
	t.Helper()
	clock, err := dayclock.New(config.Default().Business.Timezone)
	require.NoError(t, err)
	return clock.WithNow(func() time.Time { return now })
}

// CreateUser 直接写入用户和钱包，余额不经过账本
func CreateUser(t *testing.T, db *gorm.DB, externalID string, balance int64) *model.User {
	t.Helper()
	user := &model.User{
		ExternalID:   externalID,
		Username:     externalID,
		PetalBalance: balance,
	}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&model.PetalWallet{UserID: user.ID}).Error)
	return user
}

// Balance 读取当前缓存余额
func Balance(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()
	var user model.User
	require.NoError(t, db.First(&user, userID).Error)
	return user.PetalBalance
}

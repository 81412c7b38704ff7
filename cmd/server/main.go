package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"otakumori/internal/config"
	"otakumori/internal/handler"
	"otakumori/internal/infrastructure/cache"
	"otakumori/internal/infrastructure/database"
	"otakumori/internal/infrastructure/mq"
	"otakumori/internal/job"
	"otakumori/internal/service"
	"otakumori/pkg/dayclock"
	"otakumori/pkg/idgen"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "otakumori",
		Short:        "Otaku-mori petal economy service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "配置文件路径，为空时只使用默认值和环境变量")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "启动 HTTP 服务和后台任务",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "迁移表结构并写入任务/商品目录",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, db, err := bootstrap(configPath)
				if err != nil {
					return err
				}
				if err := database.Migrate(db); err != nil {
					return err
				}
				slog.Info("迁移完成")
				return nil
			},
		},
		newReconcileCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "打印版本号",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func newReconcileCmd(configPath *string) *cobra.Command {
	var (
		userID int64
		fix    bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "按账本重算缓存余额，--user 为空时检查全部用户",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fix && userID == 0 {
				return errors.New("--fix requires --user")
			}
			cfg, db, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			clock, err := dayclock.New(cfg.Business.Timezone)
			if err != nil {
				return err
			}
			ledger := service.NewLedgerService(db, cfg, clock)
			ctx := cmd.Context()

			if userID == 0 {
				drifted := job.NewBalanceAuditJob(db, ledger, cfg).RunOnce(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "drifted users: %d\n", drifted)
				return nil
			}

			result, err := ledger.Reconcile(ctx, userID, fix)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user=%d cached=%d ledger=%d drift=%d repaired=%t\n",
				result.UserID, result.Cached, result.Ledger, result.Drift, result.Repaired)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "用户ID")
	cmd.Flags().BoolVar(&fix, "fix", false, "用账本结果覆盖缓存余额")
	return cmd
}

// bootstrap 加载配置、初始化日志和数据库
func bootstrap(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return nil, nil, err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func runServe(configPath string) error {
	cfg, db, err := bootstrap(configPath)
	if err != nil {
		return err
	}

	if err := database.Migrate(db); err != nil {
		return err
	}

	clock, err := dayclock.New(cfg.Business.Timezone)
	if err != nil {
		return err
	}

	// 初始化 Redis
	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// 初始化 Kafka
	producer, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer producer.Close()

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := handler.NewHandler(db, redisClient, cfg, clock)

	// 启动后台任务
	if producer != nil {
		outboxSender := job.NewOutboxSender(db, producer, cfg)
		go outboxSender.Start(ctx)
	}

	auditJob := job.NewBalanceAuditJob(db, service.NewLedgerService(db, cfg, clock), cfg)
	go auditJob.Start(ctx)

	router := handler.SetupRouter(h, cfg)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("服务启动", "port", cfg.Server.Port, "version", version, "timezone", cfg.Business.Timezone)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	slog.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("服务关闭异常", "err", err)
	}

	slog.Info("服务已关闭")
	return nil
}

package job

import (
	"context"
	"log/slog"
	"time"

	"otakumori/internal/config"
	"otakumori/internal/metrics"
	"otakumori/internal/model"
	"otakumori/internal/repository"

	"gorm.io/gorm"
)

// Publisher 消息发送方，实现见 infrastructure/mq.Producer
type Publisher interface {
	Publish(topic, key, value string) error
}

// OutboxSender 轮询本地消息表，把账本和审核事件投递到 Kafka
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  Publisher
	cfg        *config.Config
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher Publisher, cfg *config.Config) *OutboxSender {
	interval := cfg.Business.OutboxInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		logger:     slog.With("component", "outbox_sender"),
		interval:   interval,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息发送任务启动", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// ProcessPending 处理一批待发送消息，返回发送成功的条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	batch, err := s.outboxRepo.ListPending(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", "err", err)
		return 0
	}

	sent := 0
	for _, msg := range batch {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.OutboxPublished.WithLabelValues("sent").Inc()
		if err := s.outboxRepo.MarkSent(ctx, msg.ID); err != nil {
			s.logger.Error("更新消息状态失败", "id", msg.ID, "err", err)
			return false
		}
		s.logger.Debug("消息发送成功", "id", msg.ID, "topic", msg.Topic, "key", msg.MessageKey)
		return true
	}

	metrics.OutboxPublished.WithLabelValues("error").Inc()
	s.logger.Warn("消息发送失败", "id", msg.ID, "event", msg.EventType, "retry", msg.RetryCount+1, "err", err)

	status, err := s.outboxRepo.RecordFailure(ctx, msg, s.cfg.Business.MaxRetryCount)
	if err != nil {
		s.logger.Error("记录发送失败出错", "id", msg.ID, "err", err)
		return false
	}
	if status == model.OutboxStatusFailed {
		metrics.OutboxPublished.WithLabelValues("failed").Inc()
		s.logger.Warn("消息超过最大重试次数，标记为失败", "id", msg.ID)
	}
	return false
}

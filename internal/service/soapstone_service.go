package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"otakumori/internal/config"
	"otakumori/internal/metrics"
	"otakumori/internal/model"
	"otakumori/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MaxSoapstoneLength = 280
	soapstoneListLimit = 50
)

// SoapstoneService 社区留言与举报
type SoapstoneService struct {
	db            *gorm.DB
	cfg           *config.Config
	soapstoneRepo *repository.SoapstoneRepository
	outboxRepo    *repository.OutboxRepository
}

func NewSoapstoneService(db *gorm.DB, cfg *config.Config) *SoapstoneService {
	return &SoapstoneService{
		db:            db,
		cfg:           cfg,
		soapstoneRepo: repository.NewSoapstoneRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
	}
}

// ReportResult 举报后的留言状态，Hidden 表示本次举报触发了隐藏
type ReportResult struct {
	Message *model.SoapstoneMessage `json:"message"`
	Hidden  bool                    `json:"hidden"`
}

func (s *SoapstoneService) Create(ctx context.Context, userID int64, text string) (*model.SoapstoneMessage, error) {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return nil, fmt.Errorf("%w: text is required", ErrValidation)
	}
	if n > MaxSoapstoneLength {
		return nil, fmt.Errorf("%w: text exceeds %d characters", ErrValidation, MaxSoapstoneLength)
	}

	msg := &model.SoapstoneMessage{
		PublicID: uuid.NewString(),
		UserID:   userID,
		Text:     text,
		Status:   model.SoapstoneStatusVisible,
	}
	if err := s.soapstoneRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("创建留言失败: %w", err)
	}
	return msg, nil
}

func (s *SoapstoneService) ListVisible(ctx context.Context, limit int) ([]*model.SoapstoneMessage, error) {
	if limit <= 0 || limit > soapstoneListLimit {
		limit = soapstoneListLimit
	}
	return s.soapstoneRepo.ListVisible(ctx, limit)
}

// Report 举报计数 +1，达到阈值时在同一事务里隐藏留言
// 已隐藏的留言继续累计举报数，但不会再次触发隐藏事件
func (s *SoapstoneService) Report(ctx context.Context, publicID string) (*ReportResult, error) {
	var result *ReportResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.soapstoneRepo.Increment(ctx, tx, publicID, "reports"); err != nil {
			return s.notFound(err, publicID)
		}

		hidden, err := s.soapstoneRepo.HideIfReported(ctx, tx, publicID, s.cfg.Business.ReportHideThreshold)
		if err != nil {
			return fmt.Errorf("更新留言状态失败: %w", err)
		}

		msg, err := s.soapstoneRepo.GetByPublicID(ctx, tx, publicID)
		if err != nil {
			return s.notFound(err, publicID)
		}

		if hidden {
			payload := map[string]interface{}{
				"id":       msg.PublicID,
				"userId":   msg.UserID,
				"reports":  msg.Reports,
				"hiddenAt": time.Now().UTC().Format(time.RFC3339),
			}
			if err := s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.ModerationEvents, model.EventSoapstoneHidden, msg.PublicID, payload); err != nil {
				return fmt.Errorf("写入消息失败: %w", err)
			}
		}

		result = &ReportResult{Message: msg, Hidden: hidden}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Hidden {
		metrics.SoapstoneAutoHidden.Inc()
		slog.Info("留言举报数达到阈值，已隐藏", "id", publicID, "reports", result.Message.Reports)
	}
	return result, nil
}

func (s *SoapstoneService) Appraise(ctx context.Context, publicID string) (*model.SoapstoneMessage, error) {
	var msg *model.SoapstoneMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.soapstoneRepo.Increment(ctx, tx, publicID, "appraises"); err != nil {
			return s.notFound(err, publicID)
		}
		var err error
		msg, err = s.soapstoneRepo.GetByPublicID(ctx, tx, publicID)
		if err != nil {
			return s.notFound(err, publicID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *SoapstoneService) notFound(err error, publicID string) error {
	if errors.Is(err, repository.ErrSoapstoneNotFound) {
		return fmt.Errorf("%w: soapstone %s", ErrNotFound, publicID)
	}
	return err
}

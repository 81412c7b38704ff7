package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"otakumori/internal/config"
	"otakumori/internal/model"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// WebhookService 处理 Stripe 回调，支付完成后发放花瓣
type WebhookService struct {
	cfg    *config.Config
	ledger *LedgerService
	users  *UserService
}

func NewWebhookService(cfg *config.Config, ledger *LedgerService, users *UserService) *WebhookService {
	return &WebhookService{cfg: cfg, ledger: ledger, users: users}
}

type WebhookResult struct {
	EventID   string `json:"eventId"`
	Type      string `json:"type"`
	Credited  bool   `json:"credited"`
	Petals    int64  `json:"petals,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// HandleStripe 校验签名并处理事件
// Stripe 会重发同一个事件，事件ID作为幂等键，重复事件直接确认
func (s *WebhookService) HandleStripe(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.Stripe.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	result := &WebhookResult{EventID: event.ID, Type: string(event.Type)}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		slog.Debug("忽略 Stripe 事件", "event_id", event.ID, "type", event.Type)
		return result, nil
	}

	var session stripe.CheckoutSession
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", ErrValidation, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", ErrValidation, err)
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		slog.Info("支付未完成，跳过发放", "event_id", event.ID, "payment_status", session.PaymentStatus)
		return result, nil
	}

	externalID := session.ClientReferenceID
	if externalID == "" {
		externalID = session.Metadata["userId"]
	}
	if externalID == "" {
		slog.Warn("Stripe 事件缺少用户标识", "event_id", event.ID)
		return result, nil
	}

	petals := session.AmountTotal / 100 * s.cfg.Stripe.PetalsPerUnit
	if petals <= 0 {
		return result, nil
	}

	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// 重试也无法成功，直接确认
			slog.Warn("Stripe 事件对应的用户不存在", "event_id", event.ID, "external_id", externalID)
			return result, nil
		}
		return nil, err
	}

	_, err = s.ledger.Credit(ctx, Posting{
		UserID:         user.ID,
		Amount:         petals,
		Reason:         model.ReasonPurchaseReward,
		IdempotencyKey: "stripe:" + event.ID,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			result.Duplicate = true
			return result, nil
		}
		return nil, err
	}

	result.Credited = true
	result.Petals = petals
	slog.Info("购买花瓣已到账", "event_id", event.ID, "user_id", user.ID, "petals", petals)
	return result, nil
}

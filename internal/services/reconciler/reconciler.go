// Package reconciler применяет события биллинг-провайдера к записям
// о подписках. События могут приходить повторно, не по порядку и без
// ключа корреляции, поэтому все переходы идемпотентны, а аномалии
// подтверждаются без изменения состояния и публикуются для ручного
// разбора.
//
// Политика ответов провайдеру сформулирована явно: повторную доставку
// провоцирует только ошибка аутентификации (проверка подписи на уровне
// HTTP-обработчика). Любой другой исход, включая ошибки записи в базу,
// подтверждается, чтобы не устраивать бесконечные ретраи, и остаётся
// виден через логи, метрики и очередь аномалий.
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/month"
	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/sl"
	"github.com/magabrotheeeer/ai-chat-metering/internal/metrics"
	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
)

// Причины аномалий реконсилиации.
const (
	AnomalyCorrelationMissing  = "correlation_missing"
	AnomalyUnmatchedProduct    = "unmatched_product"
	AnomalyUnknownSubscription = "unknown_subscription"
)

// Исходы обработки события для метрик.
const (
	outcomeApplied = "applied"
	outcomeIgnored = "ignored"
	outcomeAnomaly = "anomaly"
	outcomeError   = "error"
)

// Repository определяет переходы состояния подписки в хранилище.
type Repository interface {
	// UpsertSubscription вставляет или безусловно перезаписывает запись по user_uid.
	UpsertSubscription(ctx context.Context, sub models.Subscription) error
	// UpdateSubscriptionByProviderID обновляет тариф и статус по ID подписки
	// у провайдера, возвращает количество изменённых строк.
	UpdateSubscriptionByProviderID(ctx context.Context, providerID, plan, status string, currentPeriodEnd *time.Time) (int, error)
	// CancelSubscriptionByProviderID переводит подписку в canceled, сохраняя тариф.
	CancelSubscriptionByProviderID(ctx context.Context, providerID string, currentPeriodEnd *time.Time) (int, error)
	// RevokeSubscriptionByProviderID откатывает подписку на free.
	RevokeSubscriptionByProviderID(ctx context.Context, providerID string) (int, error)
}

// Cache описывает инвалидацию кешированных проекций.
type Cache interface {
	Invalidate(key string) error
}

// AnomalyPublisher публикует аномалии для ручного разбора.
type AnomalyPublisher interface {
	PublishAnomaly(anomaly Anomaly) error
}

// Anomaly событие, подтверждённое без изменения состояния.
type Anomaly struct {
	Reason                 string `json:"reason"`
	EventType              string `json:"event_type"`
	ProviderSubscriptionID string `json:"provider_subscription_id,omitempty"`
	ProductID              string `json:"product_id,omitempty"`
}

// Service применяет события вебхуков к хранилищу подписок.
type Service struct {
	repo      Repository
	cache     Cache
	products  map[string]string // product id провайдера -> внутренний тариф
	publisher AnomalyPublisher
	log       *slog.Logger
}

// New создает Service. products — привязки product id к тарифам из конфига.
func New(repo Repository, cache Cache, products map[string]string, publisher AnomalyPublisher, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		products:  products,
		publisher: publisher,
		log:       log,
	}
}

// ProcessEvent разбирает проверенное тело вебхука и применяет переход
// состояния. Возвращаемая ошибка означает сбой записи в хранилище;
// обработчик логирует её, но провайдеру всё равно отвечает подтверждением.
func (s *Service) ProcessEvent(ctx context.Context, body []byte) error {
	const op = "reconciler.ProcessEvent"
	log := s.log.With(slog.String("op", op))

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.WebhookEvents.WithLabelValues("unparsed", outcomeIgnored).Inc()
		return fmt.Errorf("%s: unmarshal event: %w", op, err)
	}
	log = log.With(slog.String("event_type", event.Type))

	var p payload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		metrics.WebhookEvents.WithLabelValues(event.Type, outcomeIgnored).Inc()
		return fmt.Errorf("%s: unmarshal payload: %w", op, err)
	}

	switch event.Type {
	case EventCheckoutCompleted, EventCheckoutUpdated:
		return s.applyCheckout(ctx, log, event.Type, &p)
	case EventSubscriptionCreated, EventSubscriptionActive, EventSubscriptionUpdated:
		return s.applyActivate(ctx, log, event.Type, &p)
	case EventSubscriptionCanceled:
		return s.applyCancel(ctx, log, event.Type, &p)
	case EventSubscriptionRevoked:
		return s.applyRevoke(ctx, log, event.Type, &p)
	default:
		log.Info("ignored webhook event")
		metrics.WebhookEvents.WithLabelValues(event.Type, outcomeIgnored).Inc()
		return nil
	}
}

// applyCheckout обрабатывает завершение оплаты через checkout-сессию.
// Ключ корреляции обязателен: сессию создавали мы и клали туда user_uid,
// его отсутствие — аномалия, а не повод для ретраев провайдера.
func (s *Service) applyCheckout(ctx context.Context, log *slog.Logger, eventType string, p *payload) error {
	if eventType == EventCheckoutUpdated &&
		p.Status != checkoutStatusConfirmed && p.Status != checkoutStatusSucceeded {
		log.Info("checkout update without confirmation, skipping", slog.String("status", p.Status))
		metrics.WebhookEvents.WithLabelValues(eventType, outcomeIgnored).Inc()
		return nil
	}

	userUID, ok := extractUserUID(p)
	if !ok {
		log.Error("no user_uid in checkout event, acknowledged without processing")
		s.reportAnomaly(log, Anomaly{
			Reason:    AnomalyCorrelationMissing,
			EventType: eventType,
			ProductID: p.ProductID,
		})
		metrics.WebhookEvents.WithLabelValues(eventType, outcomeAnomaly).Inc()
		return nil
	}

	plan := s.mapPlan(log, eventType, p.ProductID)

	var providerID *string
	if id := p.providerSubscriptionID(); id != "" {
		providerID = &id
	}

	err := s.repo.UpsertSubscription(ctx, models.Subscription{
		UserUID:                userUID,
		Plan:                   plan,
		Status:                 models.StatusActive,
		ProviderSubscriptionID: providerID,
		CurrentPeriodEnd:       p.CurrentPeriodEnd,
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, outcomeError).Inc()
		return err
	}

	s.invalidateProjection(log, userUID)
	log.Info("subscription activated via checkout",
		slog.String("user_uid", userUID), slog.String("plan", plan))
	metrics.WebhookEvents.WithLabelValues(eventType, outcomeApplied).Inc()
	return nil
}

// applyActivate обрабатывает создание/активацию/обновление подписки.
// Ключуемся по user_uid, когда он есть в metadata, иначе по
// идентификатору подписки провайдера.
func (s *Service) applyActivate(ctx context.Context, log *slog.Logger, eventType string, p *payload) error {
	plan := s.mapPlan(log, eventType, p.ProductID)

	if userUID, ok := extractUserUID(p); ok {
		var providerID *string
		if p.ID != "" {
			providerID = &p.ID
		}
		err := s.repo.UpsertSubscription(ctx, models.Subscription{
			UserUID:                userUID,
			Plan:                   plan,
			Status:                 models.StatusActive,
			ProviderSubscriptionID: providerID,
			CurrentPeriodEnd:       p.CurrentPeriodEnd,
		})
		if err != nil {
			metrics.WebhookEvents.WithLabelValues(eventType, outcomeError).Inc()
			return err
		}
		s.invalidateProjection(log, userUID)
		log.Info("subscription activated", slog.String("user_uid", userUID), slog.String("plan", plan))
		metrics.WebhookEvents.WithLabelValues(eventType, outcomeApplied).Inc()
		return nil
	}

	rows, err := s.repo.UpdateSubscriptionByProviderID(ctx, p.ID, plan, models.StatusActive, p.CurrentPeriodEnd)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, outcomeError).Inc()
		return err
	}
	if rows == 0 {
		log.Error("subscription event for unknown provider subscription",
			slog.String("provider_subscription_id", p.ID))
		s.reportAnomaly(log, Anomaly{
			Reason:                 AnomalyUnknownSubscription,
			EventType:              eventType,
			ProviderSubscriptionID: p.ID,
			ProductID:              p.ProductID,
		})
		metrics.WebhookEvents.WithLabelValues(eventType, outcomeAnomaly).Inc()
		return nil
	}

	log.Info("subscription updated", slog.String("provider_subscription_id", p.ID), slog.String("plan", plan))
	metrics.WebhookEvents.WithLabelValues(eventType, outcomeApplied).Inc()
	return nil
}

// applyCancel переводит подписку в canceled: тариф и конец периода
// сохраняются, доступ остаётся до конца оплаченного периода.
func (s *Service) applyCancel(ctx context.Context, log *slog.Logger, eventType string, p *payload) error {
	rows, err := s.repo.CancelSubscriptionByProviderID(ctx, p.ID, p.CurrentPeriodEnd)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, outcomeError).Inc()
		return err
	}
	if rows == 0 {
		s.reportAnomaly(log, Anomaly{
			Reason:                 AnomalyUnknownSubscription,
			EventType:              eventType,
			ProviderSubscriptionID: p.ID,
		})
		metrics.WebhookEvents.WithLabelValues(eventType, outcomeAnomaly).Inc()
		return nil
	}

	log.Info("subscription canceled", slog.String("provider_subscription_id", p.ID))
	metrics.WebhookEvents.WithLabelValues(eventType, outcomeApplied).Inc()
	return nil
}

// applyRevoke откатывает подписку на free и обнуляет привязку
// к провайдеру. Состояние терминальное до нового checkout.
func (s *Service) applyRevoke(ctx context.Context, log *slog.Logger, eventType string, p *payload) error {
	rows, err := s.repo.RevokeSubscriptionByProviderID(ctx, p.ID)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, outcomeError).Inc()
		return err
	}
	if rows == 0 {
		s.reportAnomaly(log, Anomaly{
			Reason:                 AnomalyUnknownSubscription,
			EventType:              eventType,
			ProviderSubscriptionID: p.ID,
		})
		metrics.WebhookEvents.WithLabelValues(eventType, outcomeAnomaly).Inc()
		return nil
	}

	log.Info("subscription revoked", slog.String("provider_subscription_id", p.ID))
	metrics.WebhookEvents.WithLabelValues(eventType, outcomeApplied).Inc()
	return nil
}

// mapPlan отображает product id провайдера во внутренний тариф точным
// совпадением строк. Неизвестный product id даёт free и аномалию —
// платный тариф никогда не назначается молча.
func (s *Service) mapPlan(log *slog.Logger, eventType, productID string) string {
	if plan, ok := s.products[productID]; ok {
		return plan
	}
	log.Error("product id is not bound to any plan, defaulting to free",
		slog.String("product_id", productID))
	s.reportAnomaly(log, Anomaly{
		Reason:    AnomalyUnmatchedProduct,
		EventType: eventType,
		ProductID: productID,
	})
	return models.PlanFree
}

func (s *Service) reportAnomaly(log *slog.Logger, anomaly Anomaly) {
	metrics.ReconcileAnomalies.WithLabelValues(anomaly.Reason).Inc()
	if err := s.publisher.PublishAnomaly(anomaly); err != nil {
		log.Warn("failed to publish reconcile anomaly", sl.Err(err))
	}
}

// invalidateProjection сбрасывает кешированный срез использования,
// чтобы UI увидел новый тариф в пределах секунд.
func (s *Service) invalidateProjection(log *slog.Logger, userUID string) {
	key := fmt.Sprintf("usage:%s:%s", userUID, month.Key(time.Now()))
	if err := s.cache.Invalidate(key); err != nil {
		log.Warn("failed to invalidate usage cache", slog.String("key", key), sl.Err(err))
	}
}

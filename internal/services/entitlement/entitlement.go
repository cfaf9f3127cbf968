// Package entitlement содержит бизнес-логику квотирования чат-запросов:
// допуск запроса по тарифу и месячному счётчику (quota guard), учёт
// завершённых запросов (usage recorder) и проекцию использования для UI.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/month"
	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/sl"
	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
	"github.com/magabrotheeeer/ai-chat-metering/internal/plans"
	"github.com/magabrotheeeer/ai-chat-metering/internal/storage/repository"
)

// Repository определяет методы хранилища для подписок и счётчиков.
type Repository interface {
	// GetSubscription возвращает запись о подписке пользователя.
	GetSubscription(ctx context.Context, userUID string) (*models.Subscription, error)
	// GetUsageCount возвращает счётчик за месяц, 0 при отсутствии строки.
	GetUsageCount(ctx context.Context, userUID, month string) (int, error)
	// IncrementUsage атомарно увеличивает счётчик и возвращает новое значение.
	IncrementUsage(ctx context.Context, userUID, month string) (int, error)
}

// Cache описывает методы для кэширования проекций.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Decision результат проверки квоты перед обращением к модели.
type Decision struct {
	Allowed bool   // Пропустить запрос к модели
	Plan    string // Тариф, по которому принято решение
	Limit   int    // Месячный лимит тарифа (plans.Unlimited для безлимита)
	Count   int    // Текущее значение счётчика
}

// Service реализует quota guard и usage recorder поверх хранилища.
type Service struct {
	repo    Repository
	cache   Cache
	catalog *plans.Catalog
	log     *slog.Logger
}

// New создает новый Service.
func New(repo Repository, cache Cache, catalog *plans.Catalog, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		log:     log,
	}
}

// Admit решает, пропускать ли чат-запрос пользователя.
//
// Тариф берётся из записи о подписке, отсутствие записи означает free.
// Безлимитный тариф пропускается без чтения счётчика. Ошибки чтения
// не блокируют пользователя: тариф деградирует к free, счётчик к нулю.
//
// Проверка носит advisory-характер: между Admit и RecordUsage нет
// блокировки, параллельные запросы одного пользователя у границы
// лимита могут превысить квоту на число одновременных запросов минус один.
func (s *Service) Admit(ctx context.Context, userUID string) Decision {
	plan := s.resolvePlan(ctx, userUID)

	if s.catalog.IsUnlimited(plan) {
		return Decision{Allowed: true, Plan: plan, Limit: plans.Unlimited}
	}

	limit := s.catalog.Quota(plan)
	count, err := s.repo.GetUsageCount(ctx, userUID, month.Key(time.Now()))
	if err != nil {
		s.log.Error("failed to read usage count, assuming zero", sl.Err(err),
			slog.String("user_uid", userUID))
		count = 0
	}

	if count >= limit {
		return Decision{Allowed: false, Plan: plan, Limit: limit, Count: count}
	}
	return Decision{Allowed: true, Plan: plan, Limit: limit, Count: count}
}

// RecordUsage увеличивает месячный счётчик пользователя на единицу.
// Вызывается ровно один раз после успешного завершения потока модели,
// не до него и не при обрыве.
func (s *Service) RecordUsage(ctx context.Context, userUID string) error {
	monthKey := month.Key(time.Now())
	count, err := s.repo.IncrementUsage(ctx, userUID, monthKey)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	cacheKey := usageCacheKey(userUID, monthKey)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate usage cache", slog.String("key", cacheKey), sl.Err(err))
	}

	s.log.Info("usage recorded", slog.String("user_uid", userUID),
		slog.String("month", monthKey), slog.Int("count", count))
	return nil
}

// UsageSummary возвращает срез использования за текущий месяц для UI.
// Любая ошибка чтения деградирует к срезу free/0, страница не падает.
func (s *Service) UsageSummary(ctx context.Context, userUID string) models.UsageSummary {
	monthKey := month.Key(time.Now())
	cacheKey := usageCacheKey(userUID, monthKey)

	var cached models.UsageSummary
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read usage cache", slog.String("key", cacheKey), sl.Err(err))
	}
	if found {
		return cached
	}

	plan := s.resolvePlan(ctx, userUID)
	count, err := s.repo.GetUsageCount(ctx, userUID, monthKey)
	if err != nil {
		s.log.Error("failed to read usage count, assuming zero", sl.Err(err),
			slog.String("user_uid", userUID))
		count = 0
	}

	summary := models.UsageSummary{
		Plan:  plan,
		Count: count,
		Limit: s.catalog.Quota(plan),
		Month: monthKey,
	}
	if err := s.cache.Set(cacheKey, summary, 30*time.Second); err != nil {
		s.log.Warn("failed to cache usage summary", slog.String("key", cacheKey), sl.Err(err))
	}
	return summary
}

// Subscription возвращает запись о подписке пользователя.
// Отсутствие записи не ошибка: возвращается nil.
func (s *Service) Subscription(ctx context.Context, userUID string) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, userUID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// resolvePlan возвращает действующий тариф пользователя.
// Нет записи или ошибка чтения — free. Статус canceled сохраняет
// оплаченный тариф до конца периода, revoked/expired по инварианту
// хранят plan = free, отдельной ветки не требуется.
func (s *Service) resolvePlan(ctx context.Context, userUID string) string {
	sub, err := s.repo.GetSubscription(ctx, userUID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return models.PlanFree
	}
	if err != nil {
		s.log.Error("failed to read subscription, assuming free plan", sl.Err(err),
			slog.String("user_uid", userUID))
		return models.PlanFree
	}
	return sub.Plan
}

func usageCacheKey(userUID, monthKey string) string {
	return fmt.Sprintf("usage:%s:%s", userUID, monthKey)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
)

// GetSubscription возвращает запись о подписке пользователя.
// Возвращает ErrSubscriptionNotFound, если записи нет.
func (s *Storage) GetSubscription(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	query := `SELECT user_uid, plan, status, provider_subscription_id, current_period_end, updated_at
			  FROM subscriptions WHERE user_uid = $1`
	row := s.DB.QueryRowContext(ctx, query, userUID)

	var result models.Subscription
	err := row.Scan(&result.UserUID, &result.Plan, &result.Status,
		&result.ProviderSubscriptionID, &result.CurrentPeriodEnd, &result.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}

// UpsertSubscription вставляет или перезаписывает запись о подписке
// по user_uid. Перезапись безусловная: события провайдера считаются
// причинно упорядоченными в пределах одной подписки, повторная
// доставка того же события приводит к тому же состоянию.
func (s *Storage) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	const op = "storage.UpsertSubscription"
	query := `INSERT INTO subscriptions (user_uid, plan, status, provider_subscription_id, current_period_end, updated_at)
			  VALUES ($1, $2, $3, $4, $5, now())
			  ON CONFLICT (user_uid) DO UPDATE
			  SET plan = EXCLUDED.plan,
			      status = EXCLUDED.status,
			      provider_subscription_id = EXCLUDED.provider_subscription_id,
			      current_period_end = EXCLUDED.current_period_end,
			      updated_at = now()`
	_, err := s.DB.ExecContext(ctx, query,
		sub.UserUID, sub.Plan, sub.Status, sub.ProviderSubscriptionID, sub.CurrentPeriodEnd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateSubscriptionByProviderID обновляет тариф, статус и конец периода
// по идентификатору подписки у провайдера. Возвращает количество
// изменённых строк: 0 означает, что подписка с таким ID нам неизвестна.
func (s *Storage) UpdateSubscriptionByProviderID(ctx context.Context, providerID, plan, status string, currentPeriodEnd *time.Time) (int, error) {
	const op = "storage.UpdateSubscriptionByProviderID"
	query := `UPDATE subscriptions
			  SET plan = $1, status = $2, current_period_end = $3, updated_at = now()
			  WHERE provider_subscription_id = $4`
	result, err := s.DB.ExecContext(ctx, query, plan, status, currentPeriodEnd, providerID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// CancelSubscriptionByProviderID переводит подписку в статус canceled,
// сохраняя тариф до конца оплаченного периода.
func (s *Storage) CancelSubscriptionByProviderID(ctx context.Context, providerID string, currentPeriodEnd *time.Time) (int, error) {
	const op = "storage.CancelSubscriptionByProviderID"
	query := `UPDATE subscriptions
			  SET status = $1, current_period_end = COALESCE($2, current_period_end), updated_at = now()
			  WHERE provider_subscription_id = $3`
	result, err := s.DB.ExecContext(ctx, query, models.StatusCanceled, currentPeriodEnd, providerID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// RevokeSubscriptionByProviderID откатывает подписку на free:
// статус revoked, привязка к провайдеру обнуляется.
func (s *Storage) RevokeSubscriptionByProviderID(ctx context.Context, providerID string) (int, error) {
	const op = "storage.RevokeSubscriptionByProviderID"
	query := `UPDATE subscriptions
			  SET plan = $1, status = $2, provider_subscription_id = NULL, updated_at = now()
			  WHERE provider_subscription_id = $3`
	result, err := s.DB.ExecContext(ctx, query, models.PlanFree, models.StatusRevoked, providerID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

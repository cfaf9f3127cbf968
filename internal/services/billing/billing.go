// Package billing связывает приложение с API биллинг-провайдера:
// создание checkout-сессий для оплаты тарифа, выдача ссылок на
// клиентский портал и запрос отмены подписки. Сервис никогда не
// пишет в таблицу подписок: единственным источником записи остаётся
// реконсилиатор вебхуков.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/ai-chat-metering/internal/billingprovider"
	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
	"github.com/magabrotheeeer/ai-chat-metering/internal/storage/repository"
)

var (
	// ErrUnconfiguredPlan тариф не продаётся: product id не задан в конфиге.
	ErrUnconfiguredPlan = errors.New("plan is not configured for purchase")
	// ErrNoCustomer у провайдера нет покупателя с таким email.
	ErrNoCustomer = errors.New("no billing customer for email")
	// ErrNoSubscription у пользователя нет активной подписки у провайдера.
	ErrNoSubscription = errors.New("no provider subscription to cancel")
)

// ProviderClient определяет используемые методы API провайдера.
type ProviderClient interface {
	CreateCheckout(ctx context.Context, req billingprovider.CreateCheckoutRequest) (*billingprovider.Checkout, error)
	ListCustomers(ctx context.Context, email string) ([]billingprovider.Customer, error)
	CreateCustomerSession(ctx context.Context, customerID, returnURL string) (*billingprovider.CustomerSession, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
}

// SubscriptionReader читает запись о подписке пользователя.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, userUID string) (*models.Subscription, error)
}

// Service мост между HTTP-обработчиками и API провайдера.
type Service struct {
	provider        ProviderClient
	repo            SubscriptionReader
	products        map[string]string // тариф -> product id провайдера
	successURL      string
	portalReturnURL string
	log             *slog.Logger
}

// New создает Service. products — привязки тарифов к product id из конфига.
func New(provider ProviderClient, repo SubscriptionReader, products map[string]string,
	successURL, portalReturnURL string, log *slog.Logger) *Service {
	return &Service{
		provider:        provider,
		repo:            repo,
		products:        products,
		successURL:      successURL,
		portalReturnURL: portalReturnURL,
		log:             log,
	}
}

// CreateCheckout создаёт checkout-сессию для оплаты тарифа и возвращает
// URL для редиректа. user_uid кладётся в metadata сессии, чтобы
// реконсилиатор смог связать событие оплаты с пользователем.
func (s *Service) CreateCheckout(ctx context.Context, userUID, email, plan string) (string, error) {
	const op = "billing.CreateCheckout"

	productID, ok := s.products[plan]
	if !ok || productID == "" {
		return "", fmt.Errorf("%s: plan %q: %w", op, plan, ErrUnconfiguredPlan)
	}

	checkout, err := s.provider.CreateCheckout(ctx, billingprovider.CreateCheckoutRequest{
		Products:      []string{productID},
		SuccessURL:    s.successURL,
		CustomerEmail: email,
		Metadata:      map[string]string{"user_uid": userUID},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("checkout session created", slog.String("user_uid", userUID),
		slog.String("plan", plan), slog.String("checkout_id", checkout.ID))
	return checkout.URL, nil
}

// CreatePortalSession возвращает URL клиентского портала провайдера,
// где пользователь управляет оплатой. Покупатель ищется по email.
func (s *Service) CreatePortalSession(ctx context.Context, email string) (string, error) {
	const op = "billing.CreatePortalSession"

	customers, err := s.provider.ListCustomers(ctx, email)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if len(customers) == 0 {
		return "", fmt.Errorf("%s: %w", op, ErrNoCustomer)
	}

	session, err := s.provider.CreateCustomerSession(ctx, customers[0].ID, s.portalReturnURL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return session.CustomerPortalURL, nil
}

// CancelSubscription просит провайдера отменить подписку пользователя
// в конце оплаченного периода. Запись в базе не меняется: её обновит
// вебхук subscription.canceled.
func (s *Service) CancelSubscription(ctx context.Context, userUID string) error {
	const op = "billing.CancelSubscription"

	sub, err := s.repo.GetSubscription(ctx, userUID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNoSubscription)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if sub.ProviderSubscriptionID == nil {
		return fmt.Errorf("%s: %w", op, ErrNoSubscription)
	}

	if err := s.provider.CancelAtPeriodEnd(ctx, *sub.ProviderSubscriptionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("subscription cancellation requested", slog.String("user_uid", userUID),
		slog.String("provider_subscription_id", *sub.ProviderSubscriptionID))
	return nil
}

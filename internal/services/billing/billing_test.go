package billing

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ai-chat-metering/internal/billingprovider"
	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
	"github.com/magabrotheeeer/ai-chat-metering/internal/storage/repository"
)

// MockProvider реализует интерфейс billing.ProviderClient
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreateCheckout(ctx context.Context, req billingprovider.CreateCheckoutRequest) (*billingprovider.Checkout, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingprovider.Checkout), args.Error(1)
}

func (m *MockProvider) ListCustomers(ctx context.Context, email string) ([]billingprovider.Customer, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billingprovider.Customer), args.Error(1)
}

func (m *MockProvider) CreateCustomerSession(ctx context.Context, customerID, returnURL string) (*billingprovider.CustomerSession, error) {
	args := m.Called(ctx, customerID, returnURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingprovider.CustomerSession), args.Error(1)
}

func (m *MockProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

// MockSubscriptionReader реализует интерфейс billing.SubscriptionReader
type MockSubscriptionReader struct {
	mock.Mock
}

func (m *MockSubscriptionReader) GetSubscription(ctx context.Context, userUID string) (*models.Subscription, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

var testProducts = map[string]string{
	models.PlanPro:       "prod_pro",
	models.PlanUnlimited: "prod_unlimited",
}

func newTestService(provider ProviderClient, repo SubscriptionReader) *Service {
	return New(provider, repo, testProducts, "https://app.example/success", "https://app.example/account", testLogger())
}

func TestCreateCheckout(t *testing.T) {
	t.Run("успешное создание сессии с user_uid в metadata", func(t *testing.T) {
		provider := new(MockProvider)
		provider.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(req billingprovider.CreateCheckoutRequest) bool {
			return len(req.Products) == 1 && req.Products[0] == "prod_pro" &&
				req.Metadata["user_uid"] == "uid-1" &&
				req.CustomerEmail == "user@example.com"
		})).Return(&billingprovider.Checkout{ID: "ch_1", URL: "https://pay.example/ch_1"}, nil)

		service := newTestService(provider, new(MockSubscriptionReader))
		url, err := service.CreateCheckout(context.Background(), "uid-1", "user@example.com", models.PlanPro)

		require.NoError(t, err)
		assert.Equal(t, "https://pay.example/ch_1", url)
		provider.AssertExpectations(t)
	})

	t.Run("тариф без product id отклоняется", func(t *testing.T) {
		service := newTestService(new(MockProvider), new(MockSubscriptionReader))
		_, err := service.CreateCheckout(context.Background(), "uid-1", "user@example.com", models.PlanFree)
		assert.ErrorIs(t, err, ErrUnconfiguredPlan)
	})

	t.Run("ошибка провайдера пробрасывается", func(t *testing.T) {
		provider := new(MockProvider)
		provider.On("CreateCheckout", mock.Anything, mock.Anything).
			Return(nil, errors.New("provider down"))

		service := newTestService(provider, new(MockSubscriptionReader))
		_, err := service.CreateCheckout(context.Background(), "uid-1", "user@example.com", models.PlanPro)
		assert.Error(t, err)
	})
}

func TestCreatePortalSession(t *testing.T) {
	t.Run("успешная выдача ссылки на портал", func(t *testing.T) {
		provider := new(MockProvider)
		provider.On("ListCustomers", mock.Anything, "user@example.com").
			Return([]billingprovider.Customer{{ID: "cus_1", Email: "user@example.com"}}, nil)
		provider.On("CreateCustomerSession", mock.Anything, "cus_1", "https://app.example/account").
			Return(&billingprovider.CustomerSession{CustomerPortalURL: "https://portal.example/s_1"}, nil)

		service := newTestService(provider, new(MockSubscriptionReader))
		url, err := service.CreatePortalSession(context.Background(), "user@example.com")

		require.NoError(t, err)
		assert.Equal(t, "https://portal.example/s_1", url)
	})

	t.Run("без покупателя возвращается ErrNoCustomer", func(t *testing.T) {
		provider := new(MockProvider)
		provider.On("ListCustomers", mock.Anything, "new@example.com").
			Return([]billingprovider.Customer{}, nil)

		service := newTestService(provider, new(MockSubscriptionReader))
		_, err := service.CreatePortalSession(context.Background(), "new@example.com")
		assert.ErrorIs(t, err, ErrNoCustomer)
	})
}

func TestCancelSubscription(t *testing.T) {
	providerID := "sub_1"

	t.Run("запрос отмены уходит провайдеру, база не трогается", func(t *testing.T) {
		repo := new(MockSubscriptionReader)
		repo.On("GetSubscription", mock.Anything, "uid-1").
			Return(&models.Subscription{UserUID: "uid-1", Plan: models.PlanPro,
				Status: models.StatusActive, ProviderSubscriptionID: &providerID}, nil)

		provider := new(MockProvider)
		provider.On("CancelAtPeriodEnd", mock.Anything, "sub_1").Return(nil)

		service := newTestService(provider, repo)
		require.NoError(t, service.CancelSubscription(context.Background(), "uid-1"))
		provider.AssertExpectations(t)
	})

	t.Run("без записи о подписке возвращается ErrNoSubscription", func(t *testing.T) {
		repo := new(MockSubscriptionReader)
		repo.On("GetSubscription", mock.Anything, "uid-1").
			Return(nil, repository.ErrSubscriptionNotFound)

		service := newTestService(new(MockProvider), repo)
		err := service.CancelSubscription(context.Background(), "uid-1")
		assert.ErrorIs(t, err, ErrNoSubscription)
	})

	t.Run("free-запись без provider id тоже ErrNoSubscription", func(t *testing.T) {
		repo := new(MockSubscriptionReader)
		repo.On("GetSubscription", mock.Anything, "uid-1").
			Return(&models.Subscription{UserUID: "uid-1", Plan: models.PlanFree,
				Status: models.StatusRevoked}, nil)

		service := newTestService(new(MockProvider), repo)
		err := service.CancelSubscription(context.Background(), "uid-1")
		assert.ErrorIs(t, err, ErrNoSubscription)
	})
}

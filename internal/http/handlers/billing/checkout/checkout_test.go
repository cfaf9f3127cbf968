package checkout

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/ai-chat-metering/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ai-chat-metering/internal/services/billing"
)

// MockService реализует интерфейс checkout.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateCheckout(ctx context.Context, userUID, email, plan string) (string, error) {
	args := m.Called(ctx, userUID, email, plan)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func doRequest(handler http.Handler, body string, withUser bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(body))
	if withUser {
		ctx := context.WithValue(req.Context(), middlewarectx.UserUID, "uid-1")
		ctx = context.WithValue(ctx, middlewarectx.Email, "user@example.com")
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTP(t *testing.T) {
	t.Run("успешное создание сессии возвращает url", func(t *testing.T) {
		service := new(MockService)
		service.On("CreateCheckout", mock.Anything, "uid-1", "user@example.com", "pro").
			Return("https://pay.example/ch_1", nil)

		rec := doRequest(New(testLogger(), service), `{"plan": "pro"}`, true)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "https://pay.example/ch_1")
		service.AssertExpectations(t)
	})

	t.Run("тариф без product id возвращает 400", func(t *testing.T) {
		service := new(MockService)
		service.On("CreateCheckout", mock.Anything, "uid-1", "user@example.com", "free").
			Return("", billing.ErrUnconfiguredPlan)

		rec := doRequest(New(testLogger(), service), `{"plan": "free"}`, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ошибка провайдера возвращает 500", func(t *testing.T) {
		service := new(MockService)
		service.On("CreateCheckout", mock.Anything, "uid-1", "user@example.com", "pro").
			Return("", errors.New("provider down"))

		rec := doRequest(New(testLogger(), service), `{"plan": "pro"}`, true)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("пустой plan не проходит валидацию", func(t *testing.T) {
		rec := doRequest(New(testLogger(), new(MockService)), `{}`, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("без пользователя в контексте возвращается 401", func(t *testing.T) {
		rec := doRequest(New(testLogger(), new(MockService)), `{"plan": "pro"}`, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/webhooksig"
)

const testSecret = "whsec_dGVzdC1zZWNyZXQta2V5"

// MockService реализует интерфейс webhook.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) ProcessEvent(ctx context.Context, body []byte) error {
	args := m.Called(ctx, body)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(body))
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	signature, err := webhooksig.Sign(testSecret, "msg_1", timestamp, []byte(body))
	require.NoError(t, err)
	req.Header.Set(webhooksig.HeaderID, "msg_1")
	req.Header.Set(webhooksig.HeaderTimestamp, timestamp)
	req.Header.Set(webhooksig.HeaderSignature, signature)
	return req
}

const eventBody = `{"type": "subscription.active", "data": {"id": "sub_1"}}`

func TestServeHTTP(t *testing.T) {
	t.Run("подписанное событие обрабатывается и подтверждается", func(t *testing.T) {
		service := new(MockService)
		service.On("ProcessEvent", mock.Anything, []byte(eventBody)).Return(nil)

		handler := New(testLogger(), service, testSecret)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(t, eventBody))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received": true}`, rec.Body.String())
		service.AssertExpectations(t)
	})

	t.Run("без подписи возвращается 401, событие не обрабатывается", func(t *testing.T) {
		service := new(MockService)
		handler := New(testLogger(), service, testSecret)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(eventBody))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		service.AssertNotCalled(t, "ProcessEvent")
	})

	t.Run("чужой секрет возвращает 401", func(t *testing.T) {
		service := new(MockService)
		handler := New(testLogger(), service, "whsec_b3RoZXItc2VjcmV0")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(t, eventBody))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		service.AssertNotCalled(t, "ProcessEvent")
	})

	t.Run("подменённое тело не проходит проверку", func(t *testing.T) {
		service := new(MockService)
		handler := New(testLogger(), service, testSecret)

		req := signedRequest(t, eventBody)
		req.Body = io.NopCloser(strings.NewReader(`{"type": "subscription.revoked", "data": {"id": "sub_1"}}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("ошибка обработки всё равно подтверждается 200", func(t *testing.T) {
		service := new(MockService)
		service.On("ProcessEvent", mock.Anything, mock.Anything).Return(errors.New("db down"))

		handler := New(testLogger(), service, testSecret)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(t, eventBody))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received": true}`, rec.Body.String())
	})

	t.Run("протухшая метка времени отклоняется", func(t *testing.T) {
		service := new(MockService)
		handler := New(testLogger(), service, testSecret)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(eventBody))
		timestamp := fmt.Sprintf("%d", time.Now().Add(-time.Hour).Unix())
		signature, err := webhooksig.Sign(testSecret, "msg_1", timestamp, []byte(eventBody))
		require.NoError(t, err)
		req.Header.Set(webhooksig.HeaderID, "msg_1")
		req.Header.Set(webhooksig.HeaderTimestamp, timestamp)
		req.Header.Set(webhooksig.HeaderSignature, signature)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

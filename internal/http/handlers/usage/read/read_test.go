package read

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/ai-chat-metering/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
)

// MockService реализует интерфейс read.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) UsageSummary(ctx context.Context, userUID string) models.UsageSummary {
	args := m.Called(ctx, userUID)
	return args.Get(0).(models.UsageSummary)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestServeHTTP(t *testing.T) {
	t.Run("срез использования отдаётся с данными тарифа", func(t *testing.T) {
		service := new(MockService)
		service.On("UsageSummary", mock.Anything, "uid-1").
			Return(models.UsageSummary{Plan: models.PlanPro, Count: 42, Limit: 100, Month: "2025-01"})

		handler := New(testLogger(), service)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
		req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserUID, "uid-1"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"plan":"pro"`)
		assert.Contains(t, rec.Body.String(), `"count":42`)
		assert.Contains(t, rec.Body.String(), `"month":"2025-01"`)
		service.AssertExpectations(t)
	})

	t.Run("без пользователя в контексте возвращается 401", func(t *testing.T) {
		handler := New(testLogger(), new(MockService))
		req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

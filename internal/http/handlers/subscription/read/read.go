// Package read реализует HTTP-обработчик для получения записи
// о подписке пользователя.
package read

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ai-chat-metering/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/response"
	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/sl"
	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
)

// Service описывает интерфейс бизнес-логики чтения подписки.
type Service interface {
	Subscription(ctx context.Context, userUID string) (*models.Subscription, error)
}

// Handler обрабатывает запросы на получение подписки пользователя.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// subscriptionView представление подписки для клиента.
type subscriptionView struct {
	Plan             string `json:"plan"`
	Status           string `json:"status"`
	CurrentPeriodEnd string `json:"current_period_end,omitempty"`
}

// ServeHTTP обрабатывает HTTP-запрос на чтение подписки.
// Пользователь без записи о подписке получает free/active:
// отсутствие строки — нормальное состояние, а не ошибка.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.read"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("no user uid in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	sub, err := h.service.Subscription(r.Context(), userUID)
	if err != nil {
		log.Error("failed to read subscription", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read subscription"))
		return
	}

	view := subscriptionView{Plan: models.PlanFree, Status: models.StatusActive}
	if sub != nil {
		view.Plan = sub.Plan
		view.Status = sub.Status
		if sub.CurrentPeriodEnd != nil {
			view.CurrentPeriodEnd = sub.CurrentPeriodEnd.Format(time.RFC3339)
		}
	}

	log.Info("subscription served", slog.String("user_uid", userUID), slog.String("plan", view.Plan))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription": view,
	}))
}

// Package read реализует HTTP-обработчик для получения среза
// использования квоты за текущий месяц.
package read

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ai-chat-metering/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/response"
	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
)

// Service описывает интерфейс бизнес-логики среза использования.
type Service interface {
	UsageSummary(ctx context.Context, userUID string) models.UsageSummary
}

// Handler обрабатывает запросы на получение среза использования.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP обрабатывает HTTP-запрос на срез использования за текущий
// месяц. Сервис деградирует к free/0 при ошибках чтения, поэтому
// обработчик всегда отвечает 200.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.usage.read"

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

	summary := h.service.UsageSummary(r.Context(), userUID)

	log.Info("usage summary served", slog.String("user_uid", userUID),
		slog.String("plan", summary.Plan), slog.Int("count", summary.Count))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"usage": summary,
	}))
}

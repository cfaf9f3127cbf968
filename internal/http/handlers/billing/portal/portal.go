// Package portal реализует HTTP-обработчик выдачи ссылки на клиентский
// портал биллинг-провайдера, где пользователь управляет оплатой.
package portal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ai-chat-metering/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/response"
	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/sl"
	"github.com/magabrotheeeer/ai-chat-metering/internal/services/billing"
)

// Service описывает интерфейс бизнес-логики клиентского портала.
type Service interface {
	CreatePortalSession(ctx context.Context, email string) (string, error)
}

// Handler обрабатывает запросы на выдачу ссылки на портал.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP обрабатывает HTTP-запрос на выдачу ссылки на портал.
// Покупатель у провайдера ищется по email из токена.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.portal"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	email, ok := r.Context().Value(middlewarectx.Email).(string)
	if !ok || email == "" {
		log.Error("no email in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	url, err := h.service.CreatePortalSession(r.Context(), email)
	if errors.Is(err, billing.ErrNoCustomer) {
		log.Info("no billing customer for user", slog.String("email", email))
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("no billing account"))
		return
	}
	if err != nil {
		log.Error("failed to create portal session", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create portal session"))
		return
	}

	log.Info("portal session created")
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"url": url,
	}))
}

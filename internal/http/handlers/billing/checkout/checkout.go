// Package checkout реализует HTTP-обработчик создания checkout-сессии
// для оплаты тарифа.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ai-chat-metering/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/response"
	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/sl"
	"github.com/magabrotheeeer/ai-chat-metering/internal/services/billing"
)

// Request тело запроса на создание checkout-сессии.
type Request struct {
	Plan string `json:"plan" validate:"required"`
}

// Service описывает интерфейс бизнес-логики создания checkout-сессии.
type Service interface {
	CreateCheckout(ctx context.Context, userUID, email, plan string) (string, error)
}

// Handler обрабатывает запросы на создание checkout-сессии.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, validate: validator.New()}
}

// ServeHTTP обрабатывает HTTP-запрос на создание checkout-сессии
// и возвращает URL для редиректа на страницу оплаты.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		validateErrs := err.(validator.ValidationErrors)
		log.Error("invalid request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(validateErrs))
		return
	}

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("no user uid in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}
	email, _ := r.Context().Value(middlewarectx.Email).(string)

	url, err := h.service.CreateCheckout(r.Context(), userUID, email, req.Plan)
	if errors.Is(err, billing.ErrUnconfiguredPlan) {
		log.Error("plan is not configured for purchase", slog.String("plan", req.Plan))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("plan is not available for purchase"))
		return
	}
	if err != nil {
		log.Error("failed to create checkout session", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create checkout session"))
		return
	}

	log.Info("checkout session created", slog.String("user_uid", userUID), slog.String("plan", req.Plan))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"url": url,
	}))
}

// Package aichatmetering предоставляет маршруты для основного приложения.
package aichatmetering

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/ai-chat-metering/internal/aiprovider"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/handlers/billing/checkout"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/handlers/billing/portal"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/handlers/billing/webhook"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/handlers/chat/send"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/handlers/health"
	subscriptioncancel "github.com/magabrotheeeer/ai-chat-metering/internal/http/handlers/subscription/cancel"
	subscriptionread "github.com/magabrotheeeer/ai-chat-metering/internal/http/handlers/subscription/read"
	usageread "github.com/magabrotheeeer/ai-chat-metering/internal/http/handlers/usage/read"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/middlewarectx"
	jwtlib "github.com/magabrotheeeer/ai-chat-metering/internal/lib/jwt"
	billingservice "github.com/magabrotheeeer/ai-chat-metering/internal/services/billing"
	chatservice "github.com/magabrotheeeer/ai-chat-metering/internal/services/chat"
	entitlementservice "github.com/magabrotheeeer/ai-chat-metering/internal/services/entitlement"
	reconcilerservice "github.com/magabrotheeeer/ai-chat-metering/internal/services/reconciler"
	"github.com/magabrotheeeer/ai-chat-metering/internal/storage/repository"
)

// RouteDeps зависимости HTTP-обработчиков.
type RouteDeps struct {
	JWTMaker      jwtlib.Maker
	Entitlement   *entitlementservice.Service
	Chat          *chatservice.Service
	AI            *aiprovider.Client
	Billing       *billingservice.Service
	Reconciler    *reconcilerservice.Service
	Storage       *repository.Storage
	WebhookSecret string
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps RouteDeps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	limiter := rate.NewLimiter(rate.Limit(50), 100)

	r.Route("/api/v1", func(r chi.Router) {
		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(deps.JWTMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(limiter, logger))
			r.Post("/chat", send.New(logger, deps.Entitlement, deps.Chat, deps.AI).ServeHTTP)
			r.Get("/usage", usageread.New(logger, deps.Entitlement).ServeHTTP)
			r.Get("/subscription", subscriptionread.New(logger, deps.Entitlement).ServeHTTP)
			r.Post("/subscription/cancel", subscriptioncancel.New(logger, deps.Billing).ServeHTTP)
			r.Post("/billing/checkout", checkout.New(logger, deps.Billing).ServeHTTP)
			r.Post("/billing/portal", portal.New(logger, deps.Billing).ServeHTTP)
		})

		// Вебхук аутентифицируется подписью, не JWT
		r.Post("/billing/webhook", webhook.New(logger, deps.Reconciler, deps.WebhookSecret).ServeHTTP)

		r.Get("/health", health.New(logger, deps.Storage).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}

// Package aichatmetering собирает приложение: хранилище, кеш, очередь
// аномалий, клиенты модели и биллинг-провайдера, сервисы и HTTP-сервер.
package aichatmetering

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/ai-chat-metering/internal/aiprovider"
	"github.com/magabrotheeeer/ai-chat-metering/internal/billingprovider"
	"github.com/magabrotheeeer/ai-chat-metering/internal/cache"
	"github.com/magabrotheeeer/ai-chat-metering/internal/config"
	jwtlib "github.com/magabrotheeeer/ai-chat-metering/internal/lib/jwt"
	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ai-chat-metering/internal/migrations"
	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
	"github.com/magabrotheeeer/ai-chat-metering/internal/plans"
	"github.com/magabrotheeeer/ai-chat-metering/internal/services/billing"
	"github.com/magabrotheeeer/ai-chat-metering/internal/services/chat"
	"github.com/magabrotheeeer/ai-chat-metering/internal/services/entitlement"
	"github.com/magabrotheeeer/ai-chat-metering/internal/services/reconciler"
	"github.com/magabrotheeeer/ai-chat-metering/internal/storage/repository"
)

// App агрегат запущенного приложения.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *repository.Storage
	amqpConn *amqp.Connection
}

// New инициализирует зависимости и собирает HTTP-сервер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	amqpConn, amqpCh, err := rabbitmq.Connect(cfg.RabbitMQURL)
	if err != nil {
		return nil, err
	}
	if err = rabbitmq.SetupQueues(amqpCh, rabbitmq.GetBillingQueues()); err != nil {
		return nil, err
	}

	jwtMaker := jwtlib.NewMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	aiClient := aiprovider.NewClient(cfg.AIAPIURL, cfg.AIAPIKey, cfg.Model, cfg.AITimeout)
	billingClient := billingprovider.NewClient(cfg.BillingAPIURL, cfg.AccessToken)

	catalog := plans.NewCatalog(cfg.PlanLimits.Free, cfg.PlanLimits.Pro)
	entitlementService := entitlement.New(db, cacheRedis, catalog, logger)
	chatService := chat.New(db, logger)

	productPlans := map[string]string{
		cfg.ProductIDPro:       models.PlanPro,
		cfg.ProductIDUnlimited: models.PlanUnlimited,
	}
	planProducts := map[string]string{
		models.PlanPro:       cfg.ProductIDPro,
		models.PlanUnlimited: cfg.ProductIDUnlimited,
	}

	publisher := rabbitmq.NewAnomalyPublisher(amqpCh)
	reconcilerService := reconciler.New(db, cacheRedis, productPlans, publisher, logger)
	billingService := billing.New(billingClient, db, planProducts,
		cfg.SuccessURL, cfg.PortalReturnURL, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, RouteDeps{
		JWTMaker:      jwtMaker,
		Entitlement:   entitlementService,
		Chat:          chatService,
		AI:            aiClient,
		Billing:       billingService,
		Reconciler:    reconcilerService,
		Storage:       db,
		WebhookSecret: cfg.WebhookSecret,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		db:       db,
		amqpConn: amqpConn,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.db.DB.Close()
		a.amqpConn.Close()
		return err
	}
}

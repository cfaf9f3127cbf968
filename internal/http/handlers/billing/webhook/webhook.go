// Package webhook реализует HTTP-обработчик вебхуков биллинг-провайдера.
//
// Подпись проверяется на сырых байтах тела до любого парсинга. Повторную
// доставку провоцирует только ошибка аутентификации: отсутствие подписи
// или несовпадение HMAC. Все остальные исходы, включая ошибки обработки,
// подтверждаются ответом 200 {"received": true} — ретраи провайдера не
// исправят ни битый payload, ни упавшую базу, а лишь размножат событие.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/sl"
	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/webhooksig"
)

// maxBodySize предел размера тела вебхука.
const maxBodySize = 1 << 20

// Service описывает интерфейс реконсилиации событий.
type Service interface {
	ProcessEvent(ctx context.Context, body []byte) error
}

// Handler обрабатывает вебхуки биллинг-провайдера.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string
}

// New создает новый Handler с секретом для проверки подписи.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// ServeHTTP обрабатывает HTTP-запрос вебхука.
//
// Выполняет:
// - Чтение сырого тела и проверку подписи standard-webhooks.
// - Передачу проверенного тела реконсилиатору.
// - Подтверждение 200 {"received": true} при любом исходе обработки.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"
	log := h.log.With(slog.String("op", op))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := webhooksig.Verify(h.webhookSecret, r.Header, body); err != nil {
		if errors.Is(err, webhooksig.ErrMissingSignature) {
			log.Error("missing webhook signature")
		} else {
			log.Error("invalid webhook signature", sl.Err(err))
		}
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if err := h.service.ProcessEvent(r.Context(), body); err != nil {
		// Подтверждаем несмотря на ошибку: событие уже видно в логах
		// и метриках, ретрай провайдера ничего не исправит.
		log.Error("failed to process webhook event", sl.Err(err))
	}

	render.JSON(w, r, map[string]bool{"received": true})
}

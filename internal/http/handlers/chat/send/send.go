// Package send реализует HTTP-обработчик чат-запроса к модели.
//
// Handler проверяет квоту пользователя, фиксирует начало хода,
// стримит ответ модели клиенту чанками и после успешного завершения
// потока сохраняет ответ и списывает единицу квоты.
package send

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ai-chat-metering/internal/aiprovider"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ai-chat-metering/internal/http/response"
	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/sl"
	"github.com/magabrotheeeer/ai-chat-metering/internal/metrics"
	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
	"github.com/magabrotheeeer/ai-chat-metering/internal/plans"
	"github.com/magabrotheeeer/ai-chat-metering/internal/services/chat"
	"github.com/magabrotheeeer/ai-chat-metering/internal/services/entitlement"
)

// Request тело чат-запроса: история реплик и, для продолжения
// диалога, идентификатор существующего диалога.
type Request struct {
	ConversationID string               `json:"conversation_id" validate:"omitempty,uuid"`
	Messages       []models.ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

// EntitlementService описывает интерфейс квотирования.
type EntitlementService interface {
	Admit(ctx context.Context, userUID string) entitlement.Decision
	RecordUsage(ctx context.Context, userUID string) error
}

// ChatService описывает интерфейс ведения диалогов.
type ChatService interface {
	StartTurn(ctx context.Context, userUID, conversationID string, messages []models.ChatMessage) (string, error)
	CompleteTurn(ctx context.Context, conversationID, content string) error
}

// Streamer описывает интерфейс потоковой генерации модели.
type Streamer interface {
	StreamGenerate(ctx context.Context, history []aiprovider.Message, onChunk func(text string) error) error
}

// Handler обрабатывает чат-запросы с потоковым ответом.
type Handler struct {
	log         *slog.Logger
	entitlement EntitlementService
	chat        ChatService
	ai          Streamer
	validate    *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, entitlementService EntitlementService, chatService ChatService, ai Streamer) *Handler {
	return &Handler{
		log:         log,
		entitlement: entitlementService,
		chat:        chatService,
		ai:          ai,
		validate:    validator.New(),
	}
}

// ServeHTTP обрабатывает HTTP-запрос на чат с моделью.
//
// Выполняет:
// - Декодирование и валидацию запроса.
// - Проверку месячной квоты, отказ с 429 и остатком квоты.
// - Сохранение реплики пользователя и стриминг ответа модели.
// - Списание квоты ровно один раз после успешного завершения потока.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.chat.send"

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
	log = log.With(slog.String("user_uid", userUID))

	decision := h.entitlement.Admit(r.Context(), userUID)
	if !decision.Allowed {
		log.Info("chat request denied by quota",
			slog.Int("limit", decision.Limit), slog.Int("count", decision.Count))
		metrics.ChatRequests.WithLabelValues("denied").Inc()
		render.Status(r, http.StatusTooManyRequests)
		render.JSON(w, r, response.Response{
			Status: response.StatusError,
			Error:  "monthly quota exceeded",
			Data:   map[string]int{"limit": decision.Limit, "count": decision.Count},
		})
		return
	}

	conversationID, err := h.chat.StartTurn(r.Context(), userUID, req.ConversationID, req.Messages)
	if err != nil {
		log.Error("failed to start chat turn", sl.Err(err))
		metrics.ChatRequests.WithLabelValues("error").Inc()
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not start chat"))
		return
	}
	log = log.With(slog.String("conversation_id", conversationID))

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("response writer does not support streaming")
		metrics.ChatRequests.WithLabelValues("error").Inc()
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("streaming is not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Conversation-Id", conversationID)
	w.WriteHeader(http.StatusOK)

	var answer strings.Builder
	streamErr := h.ai.StreamGenerate(r.Context(), chat.BuildHistory(req.Messages), func(text string) error {
		answer.WriteString(text)
		if _, err := w.Write([]byte(text)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	// Клиент мог уйти во время или сразу после потока, сохранение
	// и списание не должны от этого зависеть.
	ctx := context.WithoutCancel(r.Context())

	if streamErr != nil {
		// Заголовки уже отправлены: обрыв виден клиенту по
		// незавершённому телу. Частичный ответ сохраняется,
		// квота за оборванный ответ не списывается.
		log.Error("model stream failed", sl.Err(streamErr))
		metrics.ChatRequests.WithLabelValues("stream_error").Inc()
		if answer.Len() > 0 {
			if err := h.chat.CompleteTurn(ctx, conversationID, answer.String()); err != nil {
				log.Error("failed to save partial assistant message", sl.Err(err))
			}
		}
		return
	}

	if err := h.chat.CompleteTurn(ctx, conversationID, answer.String()); err != nil {
		log.Error("failed to save assistant message", sl.Err(err))
	}
	if decision.Limit != plans.Unlimited {
		if err := h.entitlement.RecordUsage(ctx, userUID); err != nil {
			log.Error("failed to record usage", sl.Err(err))
		}
	}

	log.Info("chat turn completed", slog.Int("answer_len", answer.Len()))
	metrics.ChatRequests.WithLabelValues("allowed").Inc()
}

// Package chat содержит логику ведения диалогов: создание диалога
// при первом сообщении, сохранение реплик и подготовка истории
// для модели.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/ai-chat-metering/internal/aiprovider"
	"github.com/magabrotheeeer/ai-chat-metering/internal/lib/sl"
	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
)

// Роли реплик в диалоге.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// maxTitleRunes длина заголовка диалога, который выводится в списке.
const maxTitleRunes = 40

// Repository определяет методы хранилища для диалогов.
type Repository interface {
	CreateConversation(ctx context.Context, conv models.Conversation) error
	SaveMessage(ctx context.Context, conversationID, role, content string) error
}

// Service сохраняет диалоги и готовит историю для модели.
type Service struct {
	repo Repository
	log  *slog.Logger
}

// New создает новый Service.
func New(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// StartTurn фиксирует начало хода: при пустом conversationID создаётся
// новый диалог с заголовком из первого сообщения пользователя, затем
// сохраняется последняя реплика пользователя. Возвращает идентификатор
// диалога, в котором идёт ход.
func (s *Service) StartTurn(ctx context.Context, userUID, conversationID string, messages []models.ChatMessage) (string, error) {
	const op = "chat.StartTurn"

	last, ok := lastUserMessage(messages)
	if !ok {
		return "", fmt.Errorf("%s: no user message in request", op)
	}

	if conversationID == "" {
		conversationID = uuid.New().String()
		conv := models.Conversation{
			ID:      conversationID,
			UserUID: userUID,
			Title:   makeTitle(last.Content),
		}
		if err := s.repo.CreateConversation(ctx, conv); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("conversation created",
			slog.String("conversation_id", conversationID), slog.String("user_uid", userUID))
	}

	if err := s.repo.SaveMessage(ctx, conversationID, RoleUser, last.Content); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return conversationID, nil
}

// CompleteTurn сохраняет накопленный ответ модели. Вызывается после
// успешного завершения потока, ошибка сохранения не отменяет уже
// отданный клиенту ответ, поэтому только логируется вызывающим.
func (s *Service) CompleteTurn(ctx context.Context, conversationID, content string) error {
	const op = "chat.CompleteTurn"
	if err := s.repo.SaveMessage(ctx, conversationID, RoleAssistant, content); err != nil {
		s.log.Error("failed to save assistant message", sl.Err(err),
			slog.String("conversation_id", conversationID))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// BuildHistory переводит реплики запроса в формат провайдера модели:
// роль user остаётся user, всё остальное становится model. История
// обрезается до первой реплики пользователя, модель не принимает
// диалог, начинающийся с собственного ответа.
func BuildHistory(messages []models.ChatMessage) []aiprovider.Message {
	start := -1
	for i, m := range messages {
		if m.Role == RoleUser {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	history := make([]aiprovider.Message, 0, len(messages)-start)
	for _, m := range messages[start:] {
		role := "model"
		if m.Role == RoleUser {
			role = "user"
		}
		history = append(history, aiprovider.Message{Role: role, Text: m.Content})
	}
	return history
}

// lastUserMessage возвращает последнюю реплику с ролью user.
func lastUserMessage(messages []models.ChatMessage) (models.ChatMessage, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i], true
		}
	}
	return models.ChatMessage{}, false
}

// makeTitle обрезает текст до длины заголовка по рунам.
func makeTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= maxTitleRunes {
		return content
	}
	return string(runes[:maxTitleRunes])
}

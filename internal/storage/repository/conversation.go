package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
)

// CreateConversation сохраняет новый диалог пользователя.
func (s *Storage) CreateConversation(ctx context.Context, conv models.Conversation) error {
	const op = "storage.CreateConversation"
	query := `INSERT INTO conversations (id, user_uid, title) VALUES ($1, $2, $3)`
	if _, err := s.DB.ExecContext(ctx, query, conv.ID, conv.UserUID, conv.Title); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SaveMessage сохраняет реплику диалога: роль user или assistant.
func (s *Storage) SaveMessage(ctx context.Context, conversationID, role, content string) error {
	const op = "storage.SaveMessage"
	query := `INSERT INTO messages (conversation_id, role, content) VALUES ($1, $2, $3)`
	if _, err := s.DB.ExecContext(ctx, query, conversationID, role, content); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

package chat

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ai-chat-metering/internal/models"
)

// MockRepository реализует интерфейс chat.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateConversation(ctx context.Context, conv models.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

func (m *MockRepository) SaveMessage(ctx context.Context, conversationID, role, content string) error {
	args := m.Called(ctx, conversationID, role, content)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestStartTurn_NewConversation(t *testing.T) {
	repo := new(MockRepository)
	repo.On("CreateConversation", mock.Anything, mock.MatchedBy(func(conv models.Conversation) bool {
		return conv.UserUID == "uid-1" && conv.Title == "Привет" && uuid.Validate(conv.ID) == nil
	})).Return(nil)
	repo.On("SaveMessage", mock.Anything, mock.AnythingOfType("string"), RoleUser, "Привет").Return(nil)

	service := New(repo, testLogger())
	conversationID, err := service.StartTurn(context.Background(), "uid-1", "", []models.ChatMessage{
		{Role: RoleUser, Content: "Привет"},
	})

	require.NoError(t, err)
	assert.NoError(t, uuid.Validate(conversationID))
	repo.AssertExpectations(t)
}

func TestStartTurn_ExistingConversation(t *testing.T) {
	repo := new(MockRepository)
	repo.On("SaveMessage", mock.Anything, "conv-1", RoleUser, "продолжим").Return(nil)

	service := New(repo, testLogger())
	conversationID, err := service.StartTurn(context.Background(), "uid-1", "conv-1", []models.ChatMessage{
		{Role: RoleUser, Content: "Привет"},
		{Role: RoleAssistant, Content: "Здравствуйте!"},
		{Role: RoleUser, Content: "продолжим"},
	})

	require.NoError(t, err)
	assert.Equal(t, "conv-1", conversationID)
	repo.AssertNotCalled(t, "CreateConversation")
}

func TestStartTurn_NoUserMessage(t *testing.T) {
	service := New(new(MockRepository), testLogger())
	_, err := service.StartTurn(context.Background(), "uid-1", "", []models.ChatMessage{
		{Role: RoleAssistant, Content: "один ответ без вопроса"},
	})
	assert.Error(t, err)
}

func TestStartTurn_TitleTruncated(t *testing.T) {
	long := strings.Repeat("д", 100)

	repo := new(MockRepository)
	repo.On("CreateConversation", mock.Anything, mock.MatchedBy(func(conv models.Conversation) bool {
		return len([]rune(conv.Title)) == maxTitleRunes
	})).Return(nil)
	repo.On("SaveMessage", mock.Anything, mock.AnythingOfType("string"), RoleUser, long).Return(nil)

	service := New(repo, testLogger())
	_, err := service.StartTurn(context.Background(), "uid-1", "", []models.ChatMessage{
		{Role: RoleUser, Content: long},
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCompleteTurn(t *testing.T) {
	repo := new(MockRepository)
	repo.On("SaveMessage", mock.Anything, "conv-1", RoleAssistant, "ответ модели").Return(nil)

	service := New(repo, testLogger())
	require.NoError(t, service.CompleteTurn(context.Background(), "conv-1", "ответ модели"))
	repo.AssertExpectations(t)
}

func TestBuildHistory(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.ChatMessage
		want     []string // пары role:text
	}{
		{
			name: "роль assistant становится model",
			messages: []models.ChatMessage{
				{Role: RoleUser, Content: "вопрос"},
				{Role: RoleAssistant, Content: "ответ"},
				{Role: RoleUser, Content: "уточнение"},
			},
			want: []string{"user:вопрос", "model:ответ", "user:уточнение"},
		},
		{
			name: "история начинается с первой реплики пользователя",
			messages: []models.ChatMessage{
				{Role: RoleAssistant, Content: "приветствие интерфейса"},
				{Role: RoleUser, Content: "вопрос"},
			},
			want: []string{"user:вопрос"},
		},
		{
			name: "без реплик пользователя история пуста",
			messages: []models.ChatMessage{
				{Role: RoleAssistant, Content: "ответ"},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := BuildHistory(tt.messages)
			var got []string
			for _, m := range history {
				got = append(got, m.Role+":"+m.Text)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

package telegram

import (
	"context"
	"io"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/domain"
)

type MockBotClient struct {
	mock.Mock
}

func (m *MockBotClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *MockBotClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *MockBotClient) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	args := m.Called(config)
	return args.Get(0).(tgbotapi.UpdatesChannel)
}

func (m *MockBotClient) StopReceivingUpdates() {
	m.Called()
}

type MockAllocationAPI struct {
	mock.Mock
}

func (m *MockAllocationAPI) Allocate(ctx context.Context, requesterID, rawRange string) (*domain.Allocation, error) {
	args := m.Called(ctx, requesterID, rawRange)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Allocation), args.Error(1)
}

func (m *MockAllocationAPI) Cancel(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error) {
	args := m.Called(ctx, requesterID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Allocation), args.Error(1)
}

func (m *MockAllocationAPI) Replace(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error) {
	args := m.Called(ctx, requesterID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Allocation), args.Error(1)
}

func (m *MockAllocationAPI) Get(ctx context.Context, requesterID string, id uuid.UUID) (*domain.Allocation, error) {
	args := m.Called(ctx, requesterID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Allocation), args.Error(1)
}

func (m *MockAllocationAPI) History(ctx context.Context, requesterID string) ([]*domain.Allocation, error) {
	args := m.Called(ctx, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Allocation), args.Error(1)
}

func (m *MockAllocationAPI) Active(ctx context.Context, requesterID string) ([]*domain.Allocation, error) {
	args := m.Called(ctx, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Allocation), args.Error(1)
}

func (m *MockAllocationAPI) Latest(ctx context.Context, requesterID string) (*domain.Allocation, error) {
	args := m.Called(ctx, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Allocation), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sentText matches a MessageConfig to chatID whose text contains substr.
func sentText(chatID int64, substr string) interface{} {
	return mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == chatID && strings.Contains(msg.Text, substr)
	})
}

// editedText matches an EditMessageTextConfig of messageID whose text contains substr.
func editedText(chatID int64, messageID int, substr string) interface{} {
	return mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		edit, ok := c.(tgbotapi.EditMessageTextConfig)
		return ok && edit.ChatID == chatID && edit.MessageID == messageID && strings.Contains(edit.Text, substr)
	})
}

func callbackAnswer(text string, alert bool) interface{} {
	return mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		cb, ok := c.(tgbotapi.CallbackConfig)
		return ok && cb.Text == text && cb.ShowAlert == alert
	})
}

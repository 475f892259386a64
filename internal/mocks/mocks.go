package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/models"
	"chat-client/internal/realtime"
)

type MessageAPIMock struct {
	mock.Mock
}

func (m *MessageAPIMock) ListMessages(ctx context.Context, chatroomID int) ([]models.MessageDTO, error) {
	args := m.Called(ctx, chatroomID)
	var list []models.MessageDTO
	if val := args.Get(0); val != nil {
		list = val.([]models.MessageDTO)
	}
	return list, args.Error(1)
}

func (m *MessageAPIMock) CreateMessage(ctx context.Context, chatroomID int, in models.SendInput) (models.MessageDTO, error) {
	args := m.Called(ctx, chatroomID, in)
	var dto models.MessageDTO
	if val := args.Get(0); val != nil {
		dto = val.(models.MessageDTO)
	}
	return dto, args.Error(1)
}

type ChatroomAPIMock struct {
	mock.Mock
}

func (m *ChatroomAPIMock) ListChatrooms(ctx context.Context) ([]models.ChatroomDTO, error) {
	args := m.Called(ctx)
	var list []models.ChatroomDTO
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatroomDTO)
	}
	return list, args.Error(1)
}

func (m *ChatroomAPIMock) CreateChatroom(ctx context.Context, name string) (models.ChatroomDTO, error) {
	args := m.Called(ctx, name)
	var dto models.ChatroomDTO
	if val := args.Get(0); val != nil {
		dto = val.(models.ChatroomDTO)
	}
	return dto, args.Error(1)
}

// SubscriberMock returns the configured unsubscribe func, or a no-op.
type SubscriberMock struct {
	mock.Mock
}

func (m *SubscriberMock) Subscribe(chatroomID int, h realtime.Handlers) func() {
	args := m.Called(chatroomID, h)
	if fn, ok := args.Get(0).(func()); ok && fn != nil {
		return fn
	}
	return func() {}
}

type ArchiverMock struct {
	mock.Mock
}

func (m *ArchiverMock) Archive(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/identity"
	"chat-client/internal/models"
	"chat-client/internal/room"
)

type RoomEngineMock struct {
	mock.Mock
}

func (m *RoomEngineMock) Activate(ctx context.Context, chatroomID int) error {
	args := m.Called(ctx, chatroomID)
	return args.Error(0)
}

func (m *RoomEngineMock) Refresh(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *RoomEngineMock) SendAsync(ctx context.Context, in models.SendInput) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *RoomEngineMock) Retry(msg models.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *RoomEngineMock) Snapshot() room.View {
	args := m.Called()
	return args.Get(0).(room.View)
}

type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) List(ctx context.Context) ([]models.Chatroom, error) {
	args := m.Called(ctx)
	var rooms []models.Chatroom
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Chatroom)
	}
	return rooms, args.Error(1)
}

func (m *DirectoryMock) Refetch(ctx context.Context) ([]models.Chatroom, error) {
	args := m.Called(ctx)
	var rooms []models.Chatroom
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Chatroom)
	}
	return rooms, args.Error(1)
}

func (m *DirectoryMock) Create(ctx context.Context, name string) (models.Chatroom, error) {
	args := m.Called(ctx, name)
	var created models.Chatroom
	if val := args.Get(0); val != nil {
		created = val.(models.Chatroom)
	}
	return created, args.Error(1)
}

type IdentityStoreMock struct {
	mock.Mock
}

func (m *IdentityStoreMock) Load() (identity.Identity, error) {
	args := m.Called()
	var id identity.Identity
	if val := args.Get(0); val != nil {
		id = val.(identity.Identity)
	}
	return id, args.Error(1)
}

func (m *IdentityStoreMock) Rename(name string) (identity.Identity, error) {
	args := m.Called(name)
	var id identity.Identity
	if val := args.Get(0); val != nil {
		id = val.(identity.Identity)
	}
	return id, args.Error(1)
}

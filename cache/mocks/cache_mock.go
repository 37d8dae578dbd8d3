package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/wepaintai/wepaintai-sub000/cache"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}

func (m *MockCache) AddStroke(ctx context.Context, sessionId string, strokeId string, order int64, strokeData []byte) error {
	args := m.Called(ctx, sessionId, strokeId, order, strokeData)
	return args.Error(0)
}

func (m *MockCache) AddStrokesBatch(ctx context.Context, sessionId string, strokes []cache.StrokeCacheItem) error {
	args := m.Called(ctx, sessionId, strokes)
	return args.Error(0)
}

func (m *MockCache) RemoveStroke(ctx context.Context, sessionId string, strokeId string) error {
	args := m.Called(ctx, sessionId, strokeId)
	return args.Error(0)
}

func (m *MockCache) GetStrokesSince(ctx context.Context, sessionId string, afterOrder int64) ([][]byte, error) {
	args := m.Called(ctx, sessionId, afterOrder)
	return args.Get(0).([][]byte), args.Error(1)
}

func (m *MockCache) GetSessionStrokeCount(ctx context.Context, sessionId string) (int64, error) {
	args := m.Called(ctx, sessionId)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCache) SetSessionComplete(ctx context.Context, sessionId string) error {
	args := m.Called(ctx, sessionId)
	return args.Error(0)
}

func (m *MockCache) IsSessionComplete(ctx context.Context, sessionId string) (bool, error) {
	args := m.Called(ctx, sessionId)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) InvalidateSessions(ctx context.Context, sessionIds []string) error {
	args := m.Called(ctx, sessionIds)
	return args.Error(0)
}

func (m *MockCache) RememberTempStroke(ctx context.Context, sessionId string, tempId string, strokeId string, order int64) (bool, error) {
	args := m.Called(ctx, sessionId, tempId, strokeId, order)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) LookupTempStroke(ctx context.Context, sessionId string, tempId string) (string, int64, bool, error) {
	args := m.Called(ctx, sessionId, tempId)
	return args.String(0), args.Get(1).(int64), args.Bool(2), args.Error(3)
}

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/store"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateSession(ctx context.Context, session models.Session) (models.Session, error) {
	args := m.Called(ctx, session)
	return args.Get(0).(models.Session), args.Error(1)
}

func (m *MockStore) GetSession(ctx context.Context, sessionId string) (models.Session, error) {
	args := m.Called(ctx, sessionId)
	return args.Get(0).(models.Session), args.Error(1)
}

func (m *MockStore) NextStrokeOrder(ctx context.Context, sessionId string) (int64, error) {
	args := m.Called(ctx, sessionId)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) IncrementSessionStrokeCount(ctx context.Context, sessionId string, delta int) error {
	args := m.Called(ctx, sessionId, delta)
	return args.Error(0)
}

func (m *MockStore) SetClearedThrough(ctx context.Context, sessionId string, order int64) error {
	args := m.Called(ctx, sessionId, order)
	return args.Error(0)
}

func (m *MockStore) WriteStrokeBatch(ctx context.Context, strokes []models.Stroke) ([]models.Stroke, error) {
	args := m.Called(ctx, strokes)
	var r0 []models.Stroke
	if args.Get(0) != nil {
		r0 = args.Get(0).([]models.Stroke)
	}
	return r0, args.Error(1)
}

func (m *MockStore) ListStrokesSince(ctx context.Context, sessionId string, afterOrder int64, limit int32) ([]models.Stroke, error) {
	args := m.Called(ctx, sessionId, afterOrder, limit)
	return args.Get(0).([]models.Stroke), args.Error(1)
}

func (m *MockStore) SetStrokeDeleted(ctx context.Context, sessionId string, order int64, deleted bool) error {
	args := m.Called(ctx, sessionId, order, deleted)
	return args.Error(0)
}

func (m *MockStore) LatestNonDeletedStroke(ctx context.Context, sessionId string) (models.Stroke, error) {
	args := m.Called(ctx, sessionId)
	return args.Get(0).(models.Stroke), args.Error(1)
}

func (m *MockStore) EarliestDeletedStrokeAfter(ctx context.Context, sessionId string, afterOrder int64) (models.Stroke, error) {
	args := m.Called(ctx, sessionId, afterOrder)
	return args.Get(0).(models.Stroke), args.Error(1)
}

func (m *MockStore) MarkAllStrokesDeleted(ctx context.Context, sessionId string) (int, error) {
	args := m.Called(ctx, sessionId)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) DeleteLayerStrokes(ctx context.Context, sessionId string, layerId string) (int, error) {
	args := m.Called(ctx, sessionId, layerId)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) GetLayers(ctx context.Context, sessionId string) ([]models.Layer, error) {
	args := m.Called(ctx, sessionId)
	return args.Get(0).([]models.Layer), args.Error(1)
}

func (m *MockStore) CreateLayer(ctx context.Context, layer models.Layer, expectedVersion int64) error {
	args := m.Called(ctx, layer, expectedVersion)
	return args.Error(0)
}

func (m *MockStore) DeleteLayer(ctx context.Context, sessionId string, layerId string, orders map[string]int, expectedVersion int64) error {
	args := m.Called(ctx, sessionId, layerId, orders, expectedVersion)
	return args.Error(0)
}

func (m *MockStore) ApplyLayerOrders(ctx context.Context, sessionId string, orders map[string]int, expectedVersion int64) error {
	args := m.Called(ctx, sessionId, orders, expectedVersion)
	return args.Error(0)
}

func (m *MockStore) PatchLayer(ctx context.Context, sessionId string, layerId string, patch store.LayerPatch) error {
	args := m.Called(ctx, sessionId, layerId, patch)
	return args.Error(0)
}

package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/service"
	"github.com/wepaintai/wepaintai-sub000/store"
)

func marshalStroke(t *testing.T, stroke models.Stroke) []byte {
	b, err := json.Marshal(stroke)
	assert.NoError(t, err)
	return b
}

func TestCreateSession_StartsWithPaintLayer(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	storedId := newSessionId(t)
	mockStore.On("CreateSession", ctx, mock.Anything).Return(models.Session{Id: storedId}, nil)
	mockStore.On("GetSession", mock.Anything, storedId).Return(models.Session{Id: storedId}, nil)
	mockStore.On("GetLayers", mock.Anything, mock.Anything).Return([]models.Layer{}, nil)
	mockStore.On("CreateLayer", mock.Anything, mock.MatchedBy(func(l models.Layer) bool {
		return l.Kind == models.LayerPaint && l.Order == 0
	}), int64(0)).Return(nil)
	mockCache.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	session, layers, err := svc.CreateSession(ctx)

	assert.NoError(t, err)
	assert.Equal(t, storedId, session.Id)
	assert.Len(t, layers, 1)
	assert.True(t, layers[0].IsPaint())
}

func TestGetSession_NotFound(t *testing.T) {
	svc, mockStore, _, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{}, store.ErrItemNotFound)

	_, err := svc.GetSession(ctx, sessionId)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
}

func TestGetSession_MalformedId(t *testing.T) {
	svc, mockStore, _, _, _, _ := setupService(t)

	_, err := svc.GetSession(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, service.ErrSessionNotFound)

	// The store is never consulted for a malformed id
	mockStore.AssertNotCalled(t, "GetSession", mock.Anything, mock.Anything)
}

func TestLoadSession_ServedFromCompleteCache(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	s1 := models.Stroke{Id: "s1", SessionId: sessionId, LayerId: "a", Order: 1}
	s2 := models.Stroke{Id: "s2", SessionId: sessionId, LayerId: "a", Order: 2}

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)
	mockStore.On("GetLayers", ctx, sessionId).Return([]models.Layer{paintLayer("a", 0)}, nil)
	mockCache.On("GetStrokesSince", ctx, sessionId, int64(0)).Return(
		[][]byte{marshalStroke(t, s1), marshalStroke(t, s2)}, nil)
	mockCache.On("IsSessionComplete", ctx, sessionId).Return(true, nil)

	strokes, layers, err := svc.LoadSession(ctx, sessionId, 0)

	assert.NoError(t, err)
	assert.Len(t, strokes, 2)
	assert.Len(t, layers, 1)
	mockStore.AssertNotCalled(t, "ListStrokesSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadSession_CacheIncomplete_MergesStore(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)

	// Order 2 exists in both; the cached copy carries a fresher deleted
	// flag and must win the merge.
	dbS1 := models.Stroke{Id: "s1", SessionId: sessionId, LayerId: "a", Order: 1}
	dbS2 := models.Stroke{Id: "s2", SessionId: sessionId, LayerId: "a", Order: 2}
	cachedS2 := dbS2
	cachedS2.Deleted = true
	cachedS3 := models.Stroke{Id: "s3", SessionId: sessionId, LayerId: "a", Order: 3}

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)
	mockStore.On("GetLayers", ctx, sessionId).Return([]models.Layer{paintLayer("a", 0)}, nil)
	mockCache.On("GetStrokesSince", ctx, sessionId, int64(0)).Return(
		[][]byte{marshalStroke(t, cachedS2), marshalStroke(t, cachedS3)}, nil)
	mockCache.On("IsSessionComplete", ctx, sessionId).Return(false, nil)
	mockStore.On("ListStrokesSince", ctx, sessionId, int64(0), int32(0)).Return([]models.Stroke{dbS1, dbS2}, nil)
	mockCache.On("AddStrokesBatch", ctx, sessionId, mock.Anything).Return(nil)
	mockCache.On("SetSessionComplete", ctx, sessionId).Return(nil)

	strokes, _, err := svc.LoadSession(ctx, sessionId, 0)

	assert.NoError(t, err)
	assert.Len(t, strokes, 3)
	assert.Equal(t, int64(1), strokes[0].Order)
	assert.Equal(t, int64(2), strokes[1].Order)
	assert.True(t, strokes[1].Deleted, "cached copy must win on an order tie")
	assert.Equal(t, int64(3), strokes[2].Order)
}

func TestLoadSession_CatchUpDoesNotReseedCache(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	dbS5 := models.Stroke{Id: "s5", SessionId: sessionId, LayerId: "a", Order: 5}

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)
	mockStore.On("GetLayers", ctx, sessionId).Return([]models.Layer{paintLayer("a", 0)}, nil)
	mockCache.On("GetStrokesSince", ctx, sessionId, int64(4)).Return([][]byte{}, nil)
	mockCache.On("IsSessionComplete", ctx, sessionId).Return(false, nil)
	mockStore.On("ListStrokesSince", ctx, sessionId, int64(4), int32(0)).Return([]models.Stroke{dbS5}, nil)

	strokes, _, err := svc.LoadSession(ctx, sessionId, 4)

	assert.NoError(t, err)
	assert.Len(t, strokes, 1)
	mockCache.AssertNotCalled(t, "SetSessionComplete", mock.Anything, mock.Anything)
	mockCache.AssertNotCalled(t, "AddStrokesBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadSession_CreatesPaintLayerWhenMissing(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)

	mockStore.On("GetSession", mock.Anything, sessionId).Return(models.Session{Id: sessionId}, nil)
	mockStore.On("GetLayers", mock.Anything, sessionId).Return([]models.Layer{imageLayer("img", 0)}, nil)
	mockStore.On("CreateLayer", mock.Anything, mock.MatchedBy(func(l models.Layer) bool {
		return l.Kind == models.LayerPaint && l.Order == 1
	}), int64(0)).Return(nil)
	mockCache.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mockCache.On("GetStrokesSince", ctx, sessionId, int64(0)).Return([][]byte{}, nil)
	mockCache.On("IsSessionComplete", ctx, sessionId).Return(true, nil)

	_, layers, err := svc.LoadSession(ctx, sessionId, 0)

	assert.NoError(t, err)
	assert.Len(t, layers, 2)
	assert.True(t, layers[1].IsPaint())
}

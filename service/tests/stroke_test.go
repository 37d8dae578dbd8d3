package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	cachemocks "github.com/wepaintai/wepaintai-sub000/cache/mocks"
	"github.com/wepaintai/wepaintai-sub000/models"
	mqmocks "github.com/wepaintai/wepaintai-sub000/mq/mocks"
	"github.com/wepaintai/wepaintai-sub000/service"
	"github.com/wepaintai/wepaintai-sub000/store"
	storemocks "github.com/wepaintai/wepaintai-sub000/store/mocks"
	"github.com/wepaintai/wepaintai-sub000/worker"
)

// Helper to setup the service with mocks
func setupService(t *testing.T) (*service.Service, *storemocks.MockStore, *cachemocks.MockCache, *mqmocks.MockMQ, *worker.StrokeBatcher, *worker.StatBatcher) {
	mockStore := new(storemocks.MockStore)
	mockCache := new(cachemocks.MockCache)
	mockMQ := new(mqmocks.MockMQ)

	// Real batchers are used; tests verify items are pushed to their channels
	statBatcher := worker.NewStatBatcher(mockStore, 1000)
	strokeBatcher := worker.NewStrokeBatcher(mockStore, 1000, statBatcher)

	svc, err := service.NewService(
		mockStore,
		mockCache,
		mockMQ,
		strokeBatcher,
		statBatcher,
		[]byte("secret"),
	)
	assert.NoError(t, err)

	return svc, mockStore, mockCache, mockMQ, strokeBatcher, statBatcher
}

// Helper that creates a channel and wraps a mock call to signal when it's called
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	call.Run(func(args mock.Arguments) {
		close(done)
	})
	return done
}

func newSessionId(t *testing.T) string {
	id, err := uuid.NewV7()
	assert.NoError(t, err)
	return id.String()
}

func validStroke(layerId string) models.Stroke {
	return models.Stroke{
		LayerId:    layerId,
		Points:     []models.Point{{X: 1, Y: 2, Pressure: 0.5}, {X: 3, Y: 4, Pressure: 0.6}},
		BrushColor: "#112233",
		BrushSize:  12,
		Opacity:    1,
		ColorMode:  models.ColorSolid,
	}
}

func TestCommitStroke_Success(t *testing.T) {
	svc, mockStore, mockCache, _, strokeBatcher, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	layerId := "layer1"

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId, StrokeCount: 10}, nil)
	mockCache.On("LookupTempStroke", ctx, sessionId, "temp1").Return("", int64(0), false, nil)
	mockStore.On("GetLayers", ctx, sessionId).Return([]models.Layer{{Id: layerId, Kind: models.LayerPaint}}, nil)
	mockCache.On("GetSessionStrokeCount", ctx, sessionId).Return(int64(10), nil)
	mockStore.On("NextStrokeOrder", ctx, sessionId).Return(int64(42), nil)
	mockCache.On("RememberTempStroke", ctx, sessionId, "temp1", mock.Anything, int64(42)).Return(true, nil)

	addStrokeDone := wrapMockWithSignal(mockCache.On("AddStroke", mock.Anything, sessionId, mock.Anything, int64(42), mock.Anything).Return(nil))
	publishDone := wrapMockWithSignal(mockCache.On("Publish", mock.Anything, "session:"+sessionId, mock.Anything).Return(nil))

	committed, err := svc.CommitStroke(ctx, sessionId, "temp1", validStroke(layerId))

	assert.NoError(t, err)
	assert.NotEmpty(t, committed.Id)
	assert.Equal(t, int64(42), committed.Order)
	assert.Equal(t, sessionId, committed.SessionId)
	assert.False(t, committed.Deleted)

	// Verify stroke batcher received item
	select {
	case item := <-strokeBatcher.WriteCh:
		assert.Equal(t, committed.Id, item.Id)
		assert.Equal(t, int64(42), item.Order)
	case <-time.After(100 * time.Millisecond):
		assert.Fail(t, "timed out waiting for stroke batcher")
	}

	select {
	case <-addStrokeDone:
	case <-time.After(1 * time.Second):
		assert.Fail(t, "timed out waiting for AddStroke")
	}

	select {
	case <-publishDone:
	case <-time.After(1 * time.Second):
		assert.Fail(t, "timed out waiting for Publish")
	}
}

func TestCommitStroke_TempIdReplay(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)
	// The dedup hit short-circuits before layer and quota checks
	mockCache.On("LookupTempStroke", ctx, sessionId, "temp1").Return("stroke-original", int64(7), true, nil)

	committed, err := svc.CommitStroke(ctx, sessionId, "temp1", validStroke("layer1"))

	assert.NoError(t, err)
	assert.Equal(t, "stroke-original", committed.Id)
	assert.Equal(t, int64(7), committed.Order)

	// No new order was drawn
	mockStore.AssertNotCalled(t, "NextStrokeOrder", mock.Anything, mock.Anything)
}

func TestCommitStroke_UnknownLayer(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)
	mockCache.On("LookupTempStroke", ctx, sessionId, "temp1").Return("", int64(0), false, nil)
	mockStore.On("GetLayers", ctx, sessionId).Return([]models.Layer{{Id: "other", Kind: models.LayerPaint}}, nil)

	_, err := svc.CommitStroke(ctx, sessionId, "temp1", validStroke("deleted-layer"))

	assert.ErrorIs(t, err, service.ErrLayerNotFound)
	mockStore.AssertNotCalled(t, "NextStrokeOrder", mock.Anything, mock.Anything)
}

func TestCommitStroke_InvalidStroke(t *testing.T) {
	svc, mockStore, _, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)

	stroke := validStroke("layer1")
	stroke.BrushColor = "red"

	_, err := svc.CommitStroke(ctx, sessionId, "", stroke)
	assert.Error(t, err)
}

func TestCommitStroke_QuotaExceeded(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	layerId := "layer1"

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)
	mockStore.On("GetLayers", ctx, sessionId).Return([]models.Layer{{Id: layerId, Kind: models.LayerPaint}}, nil)
	mockCache.On("GetSessionStrokeCount", ctx, sessionId).Return(int64(10000), nil)

	_, err := svc.CommitStroke(ctx, sessionId, "", validStroke(layerId))

	assert.ErrorIs(t, err, service.ErrQuotaExceeded)
	mockStore.AssertNotCalled(t, "NextStrokeOrder", mock.Anything, mock.Anything)
}

func TestCommitStroke_QuotaCacheMiss_FallsBackToStoreCount(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	layerId := "layer1"

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId, StrokeCount: 10000}, nil)
	mockStore.On("GetLayers", ctx, sessionId).Return([]models.Layer{{Id: layerId, Kind: models.LayerPaint}}, nil)
	mockCache.On("GetSessionStrokeCount", ctx, sessionId).Return(int64(0), assert.AnError)

	_, err := svc.CommitStroke(ctx, sessionId, "", validStroke(layerId))

	assert.ErrorIs(t, err, service.ErrQuotaExceeded)
}

func TestUndo_Success(t *testing.T) {
	svc, mockStore, mockCache, _, strokeBatcher, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	target := models.Stroke{Id: "s9", SessionId: sessionId, LayerId: "layer1", Order: 9}

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)
	mockStore.On("LatestNonDeletedStroke", ctx, sessionId).Return(target, nil)
	mockStore.On("SetStrokeDeleted", ctx, sessionId, int64(9), true).Return(nil)
	mockCache.On("AddStroke", ctx, sessionId, "s9", int64(9), mock.Anything).Return(nil)
	publishDone := wrapMockWithSignal(mockCache.On("Publish", mock.Anything, "session:"+sessionId, mock.Anything).Return(nil))

	undone, err := svc.Undo(ctx, sessionId)

	assert.NoError(t, err)
	assert.NotNil(t, undone)
	assert.Equal(t, "s9", undone.Id)
	assert.True(t, undone.Deleted)

	// The batcher is told about the flip in case the stroke is still buffered
	select {
	case flag := <-strokeBatcher.FlagCh:
		assert.Equal(t, int64(9), flag.Order)
		assert.True(t, flag.Deleted)
	case <-time.After(100 * time.Millisecond):
		assert.Fail(t, "timed out waiting for flag request")
	}

	select {
	case <-publishDone:
	case <-time.After(1 * time.Second):
		assert.Fail(t, "timed out waiting for Publish")
	}
}

func TestUndo_NothingToUndo(t *testing.T) {
	svc, mockStore, _, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)
	mockStore.On("LatestNonDeletedStroke", ctx, sessionId).Return(models.Stroke{}, store.ErrItemNotFound)

	undone, err := svc.Undo(ctx, sessionId)

	assert.NoError(t, err)
	assert.Nil(t, undone)
	mockStore.AssertNotCalled(t, "SetStrokeDeleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRedo_Success(t *testing.T) {
	svc, mockStore, mockCache, _, strokeBatcher, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	target := models.Stroke{Id: "s5", SessionId: sessionId, LayerId: "layer1", Order: 5, Deleted: true}

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)
	mockStore.On("LatestNonDeletedStroke", ctx, sessionId).Return(models.Stroke{Order: 3}, nil)
	mockStore.On("EarliestDeletedStrokeAfter", ctx, sessionId, int64(3)).Return(target, nil)
	mockStore.On("GetLayers", ctx, sessionId).Return([]models.Layer{{Id: "layer1", Kind: models.LayerPaint}}, nil)
	mockStore.On("SetStrokeDeleted", ctx, sessionId, int64(5), false).Return(nil)
	mockCache.On("AddStroke", ctx, sessionId, "s5", int64(5), mock.Anything).Return(nil)
	mockCache.On("Publish", mock.Anything, "session:"+sessionId, mock.Anything).Return(nil)

	restored, err := svc.Redo(ctx, sessionId)

	assert.NoError(t, err)
	assert.NotNil(t, restored)
	assert.Equal(t, "s5", restored.Id)
	assert.False(t, restored.Deleted)

	select {
	case flag := <-strokeBatcher.FlagCh:
		assert.False(t, flag.Deleted)
	case <-time.After(100 * time.Millisecond):
		assert.Fail(t, "timed out waiting for flag request")
	}
}

func TestRedo_LayerGone_NoOp(t *testing.T) {
	svc, mockStore, _, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	target := models.Stroke{Id: "s5", SessionId: sessionId, LayerId: "gone", Order: 5, Deleted: true}

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)
	mockStore.On("LatestNonDeletedStroke", ctx, sessionId).Return(models.Stroke{}, store.ErrItemNotFound)
	mockStore.On("EarliestDeletedStrokeAfter", ctx, sessionId, int64(0)).Return(target, nil)
	mockStore.On("GetLayers", ctx, sessionId).Return([]models.Layer{{Id: "layer1", Kind: models.LayerPaint}}, nil)

	restored, err := svc.Redo(ctx, sessionId)

	assert.NoError(t, err)
	assert.Nil(t, restored)
	mockStore.AssertNotCalled(t, "SetStrokeDeleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRedo_AfterClear_NoOp(t *testing.T) {
	svc, mockStore, _, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)

	// Everything before order 10 was cleared; nothing deleted after it
	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId, ClearedThrough: 10}, nil)
	mockStore.On("LatestNonDeletedStroke", ctx, sessionId).Return(models.Stroke{}, store.ErrItemNotFound)
	mockStore.On("EarliestDeletedStrokeAfter", ctx, sessionId, int64(10)).Return(models.Stroke{}, store.ErrItemNotFound)

	restored, err := svc.Redo(ctx, sessionId)

	assert.NoError(t, err)
	assert.Nil(t, restored)
}

func TestClearSession(t *testing.T) {
	svc, mockStore, mockCache, _, strokeBatcher, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)

	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId, StrokeSeq: 17}, nil)
	mockStore.On("SetClearedThrough", ctx, sessionId, int64(17)).Return(nil)
	mockStore.On("MarkAllStrokesDeleted", ctx, sessionId).Return(4, nil)
	mockCache.On("InvalidateSessions", ctx, []string{sessionId}).Return(nil)
	publishDone := wrapMockWithSignal(mockCache.On("Publish", mock.Anything, "session:"+sessionId, mock.Anything).Return(nil))

	err := svc.ClearSession(ctx, sessionId)

	assert.NoError(t, err)

	// The batcher must be told about the watermark so buffered strokes
	// cannot flush back to life.
	select {
	case clearReq := <-strokeBatcher.ClearCh:
		assert.Equal(t, sessionId, clearReq.SessionId)
		assert.Equal(t, int64(17), clearReq.ThroughOrder)
	case <-time.After(100 * time.Millisecond):
		assert.Fail(t, "timed out waiting for batcher clear request")
	}

	select {
	case <-publishDone:
	case <-time.After(1 * time.Second):
		assert.Fail(t, "timed out waiting for Publish")
	}
	mockStore.AssertExpectations(t)
}

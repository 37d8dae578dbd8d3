package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/service"
	"github.com/wepaintai/wepaintai-sub000/store"
)

func TestPublishPresence_UnknownSessionRejected(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{}, store.ErrItemNotFound)

	err := svc.PublishPresence(ctx, sessionId, models.Presence{CursorX: 1, CursorY: 2})

	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	mockCache.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishLiveStroke_UnknownSessionRejected(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{}, store.ErrItemNotFound)

	err := svc.PublishLiveStroke(ctx, sessionId, models.LiveStroke{Points: []models.Point{{X: 1, Y: 2}}})

	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	mockCache.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishPresence_MalformedSessionIdRejected(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)

	err := svc.PublishPresence(context.Background(), "not-a-session", models.Presence{})

	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	mockStore.AssertNotCalled(t, "GetSession", mock.Anything, mock.Anything)
	mockCache.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishLiveStroke_ExistenceCheckIsMemoized(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{Id: sessionId}, nil)
	mockCache.On("Publish", ctx, "session:"+sessionId+":live", mock.Anything).Return(nil)

	for i := 0; i < 5; i++ {
		assert.NoError(t, svc.PublishLiveStroke(ctx, sessionId, models.LiveStroke{}))
	}

	// Frame-rate traffic must not hit the store per publish.
	mockStore.AssertNumberOfCalls(t, "GetSession", 1)
	mockCache.AssertNumberOfCalls(t, "Publish", 5)
}

func TestClearLiveStroke_UnknownSessionRejected(t *testing.T) {
	svc, mockStore, mockCache, _, _, _ := setupService(t)
	ctx := context.Background()

	sessionId := newSessionId(t)
	mockStore.On("GetSession", ctx, sessionId).Return(models.Session{}, store.ErrItemNotFound)

	err := svc.ClearLiveStroke(ctx, sessionId, "participant-1")

	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	mockCache.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

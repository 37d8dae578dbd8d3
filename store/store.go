package store

import (
	"context"
	"errors"

	"github.com/wepaintai/wepaintai-sub000/models"
)

// LayerPatch carries independent per-layer mutations. Nil fields are
// left untouched; none of them have ordering side effects.
type LayerPatch struct {
	Visible   *bool
	Opacity   *float64
	Transform *models.Transform
}

// PaintStore is the authoritative persistence collaborator. The stroke
// order sequence it owns is the single serialization point per session:
// NextStrokeOrder must never hand the same value to two callers.
//
// Layer mutations that touch the shared order namespace take the
// expected registry version; implementations apply the whole re-pack
// atomically and fail with ErrConditionFailed when the version moved.
type PaintStore interface {
	CreateSession(ctx context.Context, session models.Session) (models.Session, error)
	GetSession(ctx context.Context, sessionId string) (models.Session, error)
	NextStrokeOrder(ctx context.Context, sessionId string) (int64, error)
	IncrementSessionStrokeCount(ctx context.Context, sessionId string, delta int) error
	SetClearedThrough(ctx context.Context, sessionId string, order int64) error

	WriteStrokeBatch(ctx context.Context, strokes []models.Stroke) ([]models.Stroke, error)
	ListStrokesSince(ctx context.Context, sessionId string, afterOrder int64, limit int32) ([]models.Stroke, error)
	SetStrokeDeleted(ctx context.Context, sessionId string, order int64, deleted bool) error
	LatestNonDeletedStroke(ctx context.Context, sessionId string) (models.Stroke, error)
	EarliestDeletedStrokeAfter(ctx context.Context, sessionId string, afterOrder int64) (models.Stroke, error)
	MarkAllStrokesDeleted(ctx context.Context, sessionId string) (int, error)
	DeleteLayerStrokes(ctx context.Context, sessionId string, layerId string) (int, error)

	GetLayers(ctx context.Context, sessionId string) ([]models.Layer, error)
	CreateLayer(ctx context.Context, layer models.Layer, expectedVersion int64) error
	DeleteLayer(ctx context.Context, sessionId string, layerId string, orders map[string]int, expectedVersion int64) error
	ApplyLayerOrders(ctx context.Context, sessionId string, orders map[string]int, expectedVersion int64) error
	PatchLayer(ctx context.Context, sessionId string, layerId string, patch LayerPatch) error
}

// Custom error types for clarity
var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
)

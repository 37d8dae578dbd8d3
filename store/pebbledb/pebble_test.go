package pebbledb

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/store"
)

func newTestStore(t *testing.T) *PebblePaintStore {
	p, err := NewPebblePaintStore(t.TempDir())
	assert.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func newTestSession(t *testing.T, p *PebblePaintStore) models.Session {
	session, err := p.CreateSession(context.Background(), models.Session{Id: "sess-1"})
	assert.NoError(t, err)
	return session
}

func commitStroke(t *testing.T, p *PebblePaintStore, sessionId, strokeId, layerId string) models.Stroke {
	ctx := context.Background()
	order, err := p.NextStrokeOrder(ctx, sessionId)
	assert.NoError(t, err)

	s := models.Stroke{Id: strokeId, SessionId: sessionId, LayerId: layerId, Order: order}
	unprocessed, err := p.WriteStrokeBatch(ctx, []models.Stroke{s})
	assert.NoError(t, err)
	assert.Empty(t, unprocessed)
	return s
}

// Session meta fields the API never serializes still have to survive a
// write/read cycle and a process restart.
func TestSessionMetaSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	p, err := NewPebblePaintStore(dir)
	assert.NoError(t, err)

	_, err = p.CreateSession(ctx, models.Session{Id: "sess-1"})
	assert.NoError(t, err)

	first, err := p.NextStrokeOrder(ctx, "sess-1")
	assert.NoError(t, err)
	second, err := p.NextStrokeOrder(ctx, "sess-1")
	assert.NoError(t, err)
	assert.Greater(t, second, first)

	assert.NoError(t, p.SetClearedThrough(ctx, "sess-1", second))
	layer := models.Layer{Id: "layer-1", SessionId: "sess-1", Kind: models.LayerPaint}
	assert.NoError(t, p.CreateLayer(ctx, layer, 0))
	assert.NoError(t, p.Close())

	p, err = NewPebblePaintStore(dir)
	assert.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	session, err := p.GetSession(ctx, "sess-1")
	assert.NoError(t, err)
	assert.Equal(t, second, session.StrokeSeq)
	assert.Equal(t, second, session.ClearedThrough)
	assert.Equal(t, int64(1), session.LayerVersion)

	third, err := p.NextStrokeOrder(ctx, "sess-1")
	assert.NoError(t, err)
	assert.Greater(t, third, second)
}

func TestNextStrokeOrder_MonotonicAndDistinct(t *testing.T) {
	p := newTestStore(t)
	session := newTestSession(t, p)
	ctx := context.Background()

	var prev int64
	for i := 0; i < 50; i++ {
		order, err := p.NextStrokeOrder(ctx, session.Id)
		assert.NoError(t, err)
		assert.Greater(t, order, prev)
		prev = order
	}
}

func TestNextStrokeOrder_ConcurrentCallersNeverShare(t *testing.T) {
	p := newTestStore(t)
	session := newTestSession(t, p)
	ctx := context.Background()

	const n = 100
	orders := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := p.NextStrokeOrder(ctx, session.Id)
			assert.NoError(t, err)
			orders <- order
		}()
	}
	wg.Wait()
	close(orders)

	seen := make(map[int64]bool)
	for order := range orders {
		assert.False(t, seen[order], "order %d issued twice", order)
		seen[order] = true
	}
	assert.Len(t, seen, n)
}

func TestUndoRedo_LIFOAcrossFullDepth(t *testing.T) {
	p := newTestStore(t)
	session := newTestSession(t, p)
	ctx := context.Background()

	const n = 5
	strokes := make([]models.Stroke, 0, n)
	for i := 0; i < n; i++ {
		strokes = append(strokes, commitStroke(t, p, session.Id, "", "layer1"))
	}

	// Undo everything, newest first
	for i := n - 1; i >= 0; i-- {
		latest, err := p.LatestNonDeletedStroke(ctx, session.Id)
		assert.NoError(t, err)
		assert.Equal(t, strokes[i].Order, latest.Order)
		assert.NoError(t, p.SetStrokeDeleted(ctx, session.Id, latest.Order, true))
	}

	_, err := p.LatestNonDeletedStroke(ctx, session.Id)
	assert.ErrorIs(t, err, store.ErrItemNotFound)

	// Redo everything, oldest deleted first
	for i := 0; i < n; i++ {
		frontier := int64(0)
		if latest, err := p.LatestNonDeletedStroke(ctx, session.Id); err == nil {
			frontier = latest.Order
		}
		next, err := p.EarliestDeletedStrokeAfter(ctx, session.Id, frontier)
		assert.NoError(t, err)
		assert.Equal(t, strokes[i].Order, next.Order)
		assert.NoError(t, p.SetStrokeDeleted(ctx, session.Id, next.Order, false))
	}

	final, err := p.ListStrokesSince(ctx, session.Id, 0, 0)
	assert.NoError(t, err)
	assert.Len(t, final, n)
	for _, s := range final {
		assert.False(t, s.Deleted)
	}
}

func TestUndo_DoesNotReclaimOrder(t *testing.T) {
	p := newTestStore(t)
	session := newTestSession(t, p)
	ctx := context.Background()

	a := commitStroke(t, p, session.Id, "a", "layer1")
	assert.NoError(t, p.SetStrokeDeleted(ctx, session.Id, a.Order, true))

	// The next commit draws a fresh order even though a's is free
	b := commitStroke(t, p, session.Id, "b", "layer1")
	assert.Greater(t, b.Order, a.Order)
}

func TestClearWatermark_BlocksRedoOfClearedStrokes(t *testing.T) {
	p := newTestStore(t)
	session := newTestSession(t, p)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		commitStroke(t, p, session.Id, "", "layer1")
	}

	current, err := p.GetSession(ctx, session.Id)
	assert.NoError(t, err)
	assert.NoError(t, p.SetClearedThrough(ctx, session.Id, current.StrokeSeq))

	deleted, err := p.MarkAllStrokesDeleted(ctx, session.Id)
	assert.NoError(t, err)
	assert.Equal(t, 3, deleted)

	// Nothing is redoable past the watermark
	cleared, err := p.GetSession(ctx, session.Id)
	assert.NoError(t, err)
	_, err = p.EarliestDeletedStrokeAfter(ctx, session.Id, cleared.ClearedThrough)
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestListStrokesSince_CatchUpExcludesBoundary(t *testing.T) {
	p := newTestStore(t)
	session := newTestSession(t, p)
	ctx := context.Background()

	s1 := commitStroke(t, p, session.Id, "s1", "layer1")
	s2 := commitStroke(t, p, session.Id, "s2", "layer1")

	since, err := p.ListStrokesSince(ctx, session.Id, s1.Order, 0)
	assert.NoError(t, err)
	assert.Len(t, since, 1)
	assert.Equal(t, s2.Order, since[0].Order)
}

func layerFixture(sessionId, id string, kind models.LayerKind, order int) models.Layer {
	return models.Layer{
		Id: id, SessionId: sessionId, Kind: kind, Visible: true, Opacity: 1,
		Order: order, Transform: models.IdentityTransform(),
	}
}

func TestLayerRegistry_VersionCAS(t *testing.T) {
	p := newTestStore(t)
	session := newTestSession(t, p)
	ctx := context.Background()

	assert.NoError(t, p.CreateLayer(ctx, layerFixture(session.Id, "a", models.LayerPaint, 0), 0))

	// Stale version loses
	err := p.CreateLayer(ctx, layerFixture(session.Id, "b", models.LayerPaint, 1), 0)
	assert.ErrorIs(t, err, store.ErrConditionFailed)

	// Fresh version wins
	assert.NoError(t, p.CreateLayer(ctx, layerFixture(session.Id, "b", models.LayerPaint, 1), 1))
}

func TestLayerRegistry_RepackAtomicOrders(t *testing.T) {
	p := newTestStore(t)
	session := newTestSession(t, p)
	ctx := context.Background()

	assert.NoError(t, p.CreateLayer(ctx, layerFixture(session.Id, "a", models.LayerPaint, 0), 0))
	assert.NoError(t, p.CreateLayer(ctx, layerFixture(session.Id, "b", models.LayerImage, 1), 1))
	assert.NoError(t, p.CreateLayer(ctx, layerFixture(session.Id, "c", models.LayerPaint, 2), 2))

	// Move "a" to the top
	assert.NoError(t, p.ApplyLayerOrders(ctx, session.Id, map[string]int{"b": 0, "c": 1, "a": 2}, 3))

	layers, err := p.GetLayers(ctx, session.Id)
	assert.NoError(t, err)
	assert.Len(t, layers, 3)

	seen := make(map[int]bool)
	for _, l := range layers {
		seen[l.Order] = true
	}
	for i := 0; i < 3; i++ {
		assert.True(t, seen[i], "orders must be exactly {0..N-1}")
	}
}

func TestDeleteLayer_RepacksSurvivors(t *testing.T) {
	p := newTestStore(t)
	session := newTestSession(t, p)
	ctx := context.Background()

	assert.NoError(t, p.CreateLayer(ctx, layerFixture(session.Id, "a", models.LayerPaint, 0), 0))
	assert.NoError(t, p.CreateLayer(ctx, layerFixture(session.Id, "b", models.LayerImage, 1), 1))
	assert.NoError(t, p.CreateLayer(ctx, layerFixture(session.Id, "c", models.LayerPaint, 2), 2))

	assert.NoError(t, p.DeleteLayer(ctx, session.Id, "b", map[string]int{"a": 0, "c": 1}, 3))

	layers, err := p.GetLayers(ctx, session.Id)
	assert.NoError(t, err)
	assert.Len(t, layers, 2)
	for _, l := range layers {
		assert.NotEqual(t, "b", l.Id)
		assert.Less(t, l.Order, 2)
	}
}

func TestDeleteLayerStrokes_PurgesOnlyTargetLayer(t *testing.T) {
	p := newTestStore(t)
	session := newTestSession(t, p)
	ctx := context.Background()

	commitStroke(t, p, session.Id, "s1", "doomed")
	commitStroke(t, p, session.Id, "s2", "kept")
	commitStroke(t, p, session.Id, "s3", "doomed")

	purged, err := p.DeleteLayerStrokes(ctx, session.Id, "doomed")
	assert.NoError(t, err)
	assert.Equal(t, 2, purged)

	remaining, err := p.ListStrokesSince(ctx, session.Id, 0, 0)
	assert.NoError(t, err)
	assert.Len(t, remaining, 1)
	assert.Equal(t, "kept", remaining[0].LayerId)
}

func TestPatchLayer_IndependentFields(t *testing.T) {
	p := newTestStore(t)
	session := newTestSession(t, p)
	ctx := context.Background()

	assert.NoError(t, p.CreateLayer(ctx, layerFixture(session.Id, "a", models.LayerImage, 0), 0))

	visible := false
	assert.NoError(t, p.PatchLayer(ctx, session.Id, "a", store.LayerPatch{Visible: &visible}))

	transform := models.Transform{X: 10, Y: 20, ScaleX: 2, ScaleY: 2, Rotation: 45}
	assert.NoError(t, p.PatchLayer(ctx, session.Id, "a", store.LayerPatch{Transform: &transform}))

	layers, err := p.GetLayers(ctx, session.Id)
	assert.NoError(t, err)
	assert.Len(t, layers, 1)
	assert.False(t, layers[0].Visible)
	assert.Equal(t, transform, layers[0].Transform)
	assert.Equal(t, float64(1), layers[0].Opacity, "unpatched fields keep their values")
}

func TestCreateSession_Idempotent(t *testing.T) {
	p := newTestStore(t)
	ctx := context.Background()

	first, err := p.CreateSession(ctx, models.Session{Id: "sess-1"})
	assert.NoError(t, err)

	_, err = p.NextStrokeOrder(ctx, "sess-1")
	assert.NoError(t, err)

	// Re-creating returns the existing session, sequence intact
	again, err := p.CreateSession(ctx, models.Session{Id: "sess-1"})
	assert.NoError(t, err)
	assert.Equal(t, first.Id, again.Id)
	assert.Equal(t, int64(1), again.StrokeSeq)
}

// Package pebbledb is a single-node PaintStore used in dev mode and in
// self-hosted deployments where DynamoDB is not available. Keys are
// prefix-ordered so stroke iteration follows commit order; a store-wide
// mutex serializes the per-session sequence and the layer registry
// transitions, which is sufficient for a single process owning the DB.
package pebbledb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/store"
)

type PebblePaintStore struct {
	db *pebble.DB
	mu sync.Mutex
}

func NewPebblePaintStore(path string) (*PebblePaintStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebblePaintStore{db: db}, nil
}

func (p *PebblePaintStore) Close() error {
	return p.db.Close()
}

func sessionKey(sessionId string) []byte {
	return []byte("session:" + sessionId + ":meta")
}

func strokeKey(sessionId string, order int64) []byte {
	return []byte(fmt.Sprintf("session:%s:stroke:%020d", sessionId, order))
}

func strokePrefix(sessionId string) []byte {
	return []byte("session:" + sessionId + ":stroke:")
}

func layerKey(sessionId string, layerId string) []byte {
	return []byte("session:" + sessionId + ":layer:" + layerId)
}

func layerPrefix(sessionId string) []byte {
	return []byte("session:" + sessionId + ":layer:")
}

func (p *PebblePaintStore) getJSON(key []byte, out any) error {
	val, closer, err := p.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return store.ErrItemNotFound
		}
		return err
	}
	defer closer.Close()
	return json.Unmarshal(val, out)
}

func (p *PebblePaintStore) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.db.Set(key, data, pebble.Sync)
}

// getSession and putSession go through pebbleSession so the fields the
// domain struct withholds from JSON still round-trip to disk.
func (p *PebblePaintStore) getSession(sessionId string) (models.Session, error) {
	var ps pebbleSession
	if err := p.getJSON(sessionKey(sessionId), &ps); err != nil {
		return models.Session{}, err
	}
	return sessionFromPebble(ps), nil
}

func (p *PebblePaintStore) putSession(session models.Session) error {
	return p.setJSON(sessionKey(session.Id), sessionToPebble(session))
}

func (p *PebblePaintStore) CreateSession(ctx context.Context, session models.Session) (models.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, err := p.getSession(session.Id)
	if err == nil {
		return existing, nil
	} else if err != store.ErrItemNotFound {
		return models.Session{}, err
	}

	session.Created = time.Now().Unix()
	if err := p.putSession(session); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func (p *PebblePaintStore) GetSession(ctx context.Context, sessionId string) (models.Session, error) {
	return p.getSession(sessionId)
}

func (p *PebblePaintStore) NextStrokeOrder(ctx context.Context, sessionId string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.getSession(sessionId)
	if err != nil {
		return 0, err
	}
	session.StrokeSeq++
	if err := p.putSession(session); err != nil {
		return 0, err
	}
	return session.StrokeSeq, nil
}

func (p *PebblePaintStore) IncrementSessionStrokeCount(ctx context.Context, sessionId string, delta int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.getSession(sessionId)
	if err != nil {
		return err
	}
	session.StrokeCount += delta
	return p.putSession(session)
}

func (p *PebblePaintStore) SetClearedThrough(ctx context.Context, sessionId string, order int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.getSession(sessionId)
	if err != nil {
		return err
	}
	session.ClearedThrough = order
	return p.putSession(session)
}

func (p *PebblePaintStore) WriteStrokeBatch(ctx context.Context, strokes []models.Stroke) ([]models.Stroke, error) {
	batch := p.db.NewBatch()
	defer batch.Close()

	for _, s := range strokes {
		data, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		if err := batch.Set(strokeKey(s.SessionId, s.Order), data, nil); err != nil {
			return nil, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return strokes, err
	}
	return nil, nil
}

// iterStrokes walks a session's strokes in ascending order, calling fn
// until it returns false.
func (p *PebblePaintStore) iterStrokes(sessionId string, afterOrder int64, fn func(models.Stroke) bool) error {
	prefix := strokePrefix(sessionId)
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()

	start := prefix
	if afterOrder > 0 {
		// Seek past afterOrder; the trailing byte skips the exact key.
		start = append(strokeKey(sessionId, afterOrder), 0)
	}

	for iter.SeekGE(start); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var s models.Stroke
		if err := json.Unmarshal(iter.Value(), &s); err != nil {
			continue
		}
		if !fn(s) {
			break
		}
	}
	return iter.Error()
}

func (p *PebblePaintStore) ListStrokesSince(ctx context.Context, sessionId string, afterOrder int64, limit int32) ([]models.Stroke, error) {
	strokes := []models.Stroke{}
	err := p.iterStrokes(sessionId, afterOrder, func(s models.Stroke) bool {
		strokes = append(strokes, s)
		return limit <= 0 || len(strokes) < int(limit)
	})
	return strokes, err
}

func (p *PebblePaintStore) SetStrokeDeleted(ctx context.Context, sessionId string, order int64, deleted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s models.Stroke
	if err := p.getJSON(strokeKey(sessionId, order), &s); err != nil {
		return err
	}
	s.Deleted = deleted
	return p.setJSON(strokeKey(sessionId, order), s)
}

func (p *PebblePaintStore) LatestNonDeletedStroke(ctx context.Context, sessionId string) (models.Stroke, error) {
	var found models.Stroke
	ok := false
	err := p.iterStrokes(sessionId, 0, func(s models.Stroke) bool {
		if !s.Deleted {
			found = s
			ok = true
		}
		return true
	})
	if err != nil {
		return models.Stroke{}, err
	}
	if !ok {
		return models.Stroke{}, store.ErrItemNotFound
	}
	return found, nil
}

func (p *PebblePaintStore) EarliestDeletedStrokeAfter(ctx context.Context, sessionId string, afterOrder int64) (models.Stroke, error) {
	var found models.Stroke
	ok := false
	err := p.iterStrokes(sessionId, afterOrder, func(s models.Stroke) bool {
		if s.Deleted {
			found = s
			ok = true
			return false
		}
		return true
	})
	if err != nil {
		return models.Stroke{}, err
	}
	if !ok {
		return models.Stroke{}, store.ErrItemNotFound
	}
	return found, nil
}

func (p *PebblePaintStore) MarkAllStrokesDeleted(ctx context.Context, sessionId string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var live []models.Stroke
	err := p.iterStrokes(sessionId, 0, func(s models.Stroke) bool {
		if !s.Deleted {
			live = append(live, s)
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	for i, s := range live {
		s.Deleted = true
		if err := p.setJSON(strokeKey(sessionId, s.Order), s); err != nil {
			return i, err
		}
	}
	return len(live), nil
}

func (p *PebblePaintStore) DeleteLayerStrokes(ctx context.Context, sessionId string, layerId string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var targets []int64
	err := p.iterStrokes(sessionId, 0, func(s models.Stroke) bool {
		if s.LayerId == layerId {
			targets = append(targets, s.Order)
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	for _, order := range targets {
		if err := batch.Delete(strokeKey(sessionId, order), nil); err != nil {
			return 0, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return len(targets), nil
}

func (p *PebblePaintStore) GetLayers(ctx context.Context, sessionId string) ([]models.Layer, error) {
	prefix := layerPrefix(sessionId)
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	layers := []models.Layer{}
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var l models.Layer
		if err := json.Unmarshal(iter.Value(), &l); err != nil {
			continue
		}
		layers = append(layers, l)
	}
	return layers, iter.Error()
}

// bumpLayerVersion enforces the registry CAS under the store mutex.
// Callers must hold p.mu.
func (p *PebblePaintStore) bumpLayerVersion(sessionId string, expectedVersion int64) error {
	session, err := p.getSession(sessionId)
	if err != nil {
		return err
	}
	if session.LayerVersion != expectedVersion {
		return store.ErrConditionFailed
	}
	session.LayerVersion++
	return p.putSession(session)
}

func (p *PebblePaintStore) CreateLayer(ctx context.Context, layer models.Layer, expectedVersion int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.bumpLayerVersion(layer.SessionId, expectedVersion); err != nil {
		return err
	}
	return p.setJSON(layerKey(layer.SessionId, layer.Id), layer)
}

func (p *PebblePaintStore) ApplyLayerOrders(ctx context.Context, sessionId string, orders map[string]int, expectedVersion int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.bumpLayerVersion(sessionId, expectedVersion); err != nil {
		return err
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	for layerId, order := range orders {
		var l models.Layer
		if err := p.getJSON(layerKey(sessionId, layerId), &l); err != nil {
			return err
		}
		l.Order = order
		data, err := json.Marshal(l)
		if err != nil {
			return err
		}
		if err := batch.Set(layerKey(sessionId, layerId), data, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (p *PebblePaintStore) DeleteLayer(ctx context.Context, sessionId string, layerId string, orders map[string]int, expectedVersion int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var l models.Layer
	if err := p.getJSON(layerKey(sessionId, layerId), &l); err != nil {
		return err
	}

	if err := p.bumpLayerVersion(sessionId, expectedVersion); err != nil {
		return err
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(layerKey(sessionId, layerId), nil); err != nil {
		return err
	}
	for id, order := range orders {
		var other models.Layer
		if err := p.getJSON(layerKey(sessionId, id), &other); err != nil {
			return err
		}
		other.Order = order
		data, err := json.Marshal(other)
		if err != nil {
			return err
		}
		if err := batch.Set(layerKey(sessionId, id), data, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (p *PebblePaintStore) PatchLayer(ctx context.Context, sessionId string, layerId string, patch store.LayerPatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var l models.Layer
	if err := p.getJSON(layerKey(sessionId, layerId), &l); err != nil {
		return err
	}
	if patch.Visible != nil {
		l.Visible = *patch.Visible
	}
	if patch.Opacity != nil {
		l.Opacity = *patch.Opacity
	}
	if patch.Transform != nil {
		l.Transform = *patch.Transform
	}
	return p.setJSON(layerKey(sessionId, layerId), l)
}

package service

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gofrs/uuid/v5"
	"github.com/wepaintai/wepaintai-sub000/cache"
	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/store"
)

func (s *Service) CreateSession(ctx context.Context) (models.Session, []models.Layer, error) {
	sessionUUID, err := uuid.NewV7()
	if err != nil {
		return models.Session{}, nil, err
	}

	session, err := s.Store.CreateSession(ctx, models.Session{Id: sessionUUID.String()})
	if err != nil {
		return models.Session{}, nil, err
	}

	// Every session starts with one paint layer so the first brush
	// stroke always has a resolvable target.
	layer, err := s.createDefaultPaintLayer(ctx, session.Id)
	if err != nil {
		return models.Session{}, nil, err
	}

	return session, []models.Layer{layer}, nil
}

func (s *Service) GetSession(ctx context.Context, sessionId string) (models.Session, error) {
	if err := ValidateSessionId(sessionId); err != nil {
		return models.Session{}, ErrSessionNotFound
	}
	session, err := s.Store.GetSession(ctx, sessionId)
	if err == store.ErrItemNotFound {
		return models.Session{}, ErrSessionNotFound
	}
	return session, err
}

// LoadSession returns the committed strokes after afterOrder plus the
// current layer list. A full load (afterOrder == 0) serves from the
// cache when resident and otherwise rebuilds the cache from the store;
// catch-up reads merge both sources so a stroke cached but not yet
// flushed durably is never missed.
func (s *Service) LoadSession(ctx context.Context, sessionId string, afterOrder int64) ([]models.Stroke, []models.Layer, error) {
	if _, err := s.GetSession(ctx, sessionId); err != nil {
		return nil, nil, err
	}

	layers, err := s.GetLayers(ctx, sessionId)
	if err != nil {
		return nil, nil, err
	}

	// Implicit default layer on first load
	if !hasPaintLayer(layers) {
		layer, err := s.createDefaultPaintLayer(ctx, sessionId)
		if err != nil {
			return nil, nil, err
		}
		layers = append(layers, layer)
	}

	strokes, err := s.loadStrokes(ctx, sessionId, afterOrder)
	if err != nil {
		return nil, nil, err
	}

	return strokes, layers, nil
}

func (s *Service) loadStrokes(ctx context.Context, sessionId string, afterOrder int64) ([]models.Stroke, error) {
	cachedRaw, cacheErr := s.Cache.GetStrokesSince(ctx, sessionId, afterOrder)
	cached := []models.Stroke{}
	if cacheErr == nil {
		for _, b := range cachedRaw {
			var stroke models.Stroke
			if err := json.Unmarshal(b, &stroke); err == nil {
				cached = append(cached, stroke)
			}
		}
	}

	isComplete, _ := s.Cache.IsSessionComplete(ctx, sessionId)
	if isComplete && cacheErr == nil {
		return cached, nil
	}

	// Fallback to the store and merge with whatever the cache had
	dbStrokes, err := s.Store.ListStrokesSince(ctx, sessionId, afterOrder, 0)
	if err != nil {
		return nil, err
	}

	finalStrokes := mergeStrokes(dbStrokes, cached)

	// Only a full load re-seeds the cache; catch-up reads are partial
	// and must not mark the session complete.
	if afterOrder == 0 {
		batchItems := make([]cache.StrokeCacheItem, 0, len(dbStrokes))
		for _, stroke := range dbStrokes {
			sBytes, _ := json.Marshal(stroke)
			batchItems = append(batchItems, cache.StrokeCacheItem{
				StrokeId: stroke.Id,
				Order:    stroke.Order,
				Data:     sBytes,
			})
		}

		if len(batchItems) > 0 {
			if err := s.Cache.AddStrokesBatch(ctx, sessionId, batchItems); err != nil {
				log.Printf("Failed to seed stroke cache for session %s: %v", sessionId, err)
			}
		}
		if err := s.Cache.SetSessionComplete(ctx, sessionId); err != nil {
			log.Printf("Failed to mark session %s complete: %v", sessionId, err)
		}
	}

	return finalStrokes, nil
}

// mergeStrokes zips two order-ascending stroke lists, preferring the
// cached copy on a tie since undo/redo flags land in the cache first.
func mergeStrokes(dbStrokes []models.Stroke, cachedStrokes []models.Stroke) []models.Stroke {
	finalStrokes := make([]models.Stroke, 0, len(dbStrokes)+len(cachedStrokes))
	i, j := 0, 0
	for i < len(dbStrokes) && j < len(cachedStrokes) {
		dbOrder := dbStrokes[i].Order
		cachedOrder := cachedStrokes[j].Order

		if dbOrder == cachedOrder {
			finalStrokes = append(finalStrokes, cachedStrokes[j])
			i++
			j++
		} else if dbOrder < cachedOrder {
			finalStrokes = append(finalStrokes, dbStrokes[i])
			i++
		} else {
			finalStrokes = append(finalStrokes, cachedStrokes[j])
			j++
		}
	}
	if i < len(dbStrokes) {
		finalStrokes = append(finalStrokes, dbStrokes[i:]...)
	}
	if j < len(cachedStrokes) {
		finalStrokes = append(finalStrokes, cachedStrokes[j:]...)
	}
	return finalStrokes
}

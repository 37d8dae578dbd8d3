package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/wepaintai/wepaintai-sub000/metrics"
	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/store"
	"github.com/wepaintai/wepaintai-sub000/worker"
)

// Registry mutations retry this many times when the store reports a
// version conflict from a concurrent mutation on another node.
const layerRepackAttempts = 3

func sessionChannel(sessionId string) string {
	return "session:" + sessionId
}

type LayersChangedMessage struct {
	Type string            `json:"type"`
	Data LayersChangedData `json:"data"`
}

type LayersChangedData struct {
	SessionId string         `json:"sessionId"`
	Layers    []models.Layer `json:"layers"`
}

func hasPaintLayer(layers []models.Layer) bool {
	for _, l := range layers {
		if l.IsPaint() {
			return true
		}
	}
	return false
}

// sortLayers re-sorts by (order, creation time, id). The registry keeps
// orders densely packed, so this is normally the identity; if a
// corrupted list with duplicate orders is ever observed the sort repairs
// it deterministically instead of crashing.
func sortLayers(layers []models.Layer) {
	sort.SliceStable(layers, func(i, j int) bool {
		if layers[i].Order != layers[j].Order {
			return layers[i].Order < layers[j].Order
		}
		if layers[i].Created != layers[j].Created {
			return layers[i].Created < layers[j].Created
		}
		return layers[i].Id < layers[j].Id
	})
}

func (s *Service) GetLayers(ctx context.Context, sessionId string) ([]models.Layer, error) {
	layers, err := s.Store.GetLayers(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	sortLayers(layers)
	return layers, nil
}

func (s *Service) layerExists(ctx context.Context, sessionId string, layerId string) (bool, error) {
	layers, err := s.Store.GetLayers(ctx, sessionId)
	if err != nil {
		return false, err
	}
	for _, l := range layers {
		if l.Id == layerId {
			return true, nil
		}
	}
	return false, nil
}

type CreateLayerParams struct {
	SessionId string
	Kind      models.LayerKind
	Image     *models.ImageInfo
}

func (s *Service) createDefaultPaintLayer(ctx context.Context, sessionId string) (models.Layer, error) {
	return s.CreateLayer(ctx, CreateLayerParams{SessionId: sessionId, Kind: models.LayerPaint})
}

func (s *Service) CreateLayer(ctx context.Context, params CreateLayerParams) (models.Layer, error) {
	if !models.ValidLayerKind(params.Kind) {
		return models.Layer{}, errors.New("invalid layer kind")
	}
	if params.Kind == models.LayerPaint && params.Image != nil {
		return models.Layer{}, errors.New("paint layers carry no raster asset")
	}
	if params.Kind != models.LayerPaint {
		if params.Image == nil || params.Image.Width <= 0 || params.Image.Height <= 0 {
			return models.Layer{}, errors.New("image layers require pixel dimensions")
		}
	}

	unlock := s.lockSession(params.SessionId)
	defer unlock()

	layerUUID, err := uuid.NewV7()
	if err != nil {
		return models.Layer{}, err
	}

	var layer models.Layer
	for attempt := 0; attempt < layerRepackAttempts; attempt++ {
		session, err := s.GetSession(ctx, params.SessionId)
		if err != nil {
			return models.Layer{}, err
		}
		layers, err := s.Store.GetLayers(ctx, params.SessionId)
		if err != nil {
			return models.Layer{}, err
		}

		// New layers always start on top
		layer = models.Layer{
			Id:        layerUUID.String(),
			SessionId: params.SessionId,
			Kind:      params.Kind,
			Visible:   true,
			Opacity:   1,
			Order:     len(layers),
			Transform: models.IdentityTransform(),
			Image:     params.Image,
			Created:   time.Now().UnixMilli(),
		}

		err = s.Store.CreateLayer(ctx, layer, session.LayerVersion)
		if err == store.ErrConditionFailed {
			metrics.LayerRepackRetries.Inc()
			continue
		}
		if err != nil {
			return models.Layer{}, err
		}

		metrics.LayerMutations.WithLabelValues("create").Inc()
		s.broadcastLayers(params.SessionId)
		return layer, nil
	}
	return models.Layer{}, store.ErrConditionFailed
}

// ReorderLayer moves a layer to targetOrder, clamped into [0, N-1], and
// re-packs every order to 0..N-1 in one atomic transition. Reordering a
// layer onto its current position is a no-op.
func (s *Service) ReorderLayer(ctx context.Context, sessionId string, layerId string, targetOrder int) ([]models.Layer, error) {
	unlock := s.lockSession(sessionId)
	defer unlock()

	for attempt := 0; attempt < layerRepackAttempts; attempt++ {
		session, err := s.GetSession(ctx, sessionId)
		if err != nil {
			return nil, err
		}
		layers, err := s.GetLayers(ctx, sessionId)
		if err != nil {
			return nil, err
		}

		idx := -1
		for i, l := range layers {
			if l.Id == layerId {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, ErrLayerNotFound
		}

		// Clamp, never reject
		if targetOrder < 0 {
			targetOrder = 0
		}
		if targetOrder > len(layers)-1 {
			targetOrder = len(layers) - 1
		}
		if targetOrder == idx {
			return layers, nil
		}

		moved := layers[idx]
		rest := append(append([]models.Layer{}, layers[:idx]...), layers[idx+1:]...)
		reordered := append(append(append([]models.Layer{}, rest[:targetOrder]...), moved), rest[targetOrder:]...)

		orders := make(map[string]int, len(reordered))
		for i := range reordered {
			reordered[i].Order = i
			orders[reordered[i].Id] = i
		}

		err = s.Store.ApplyLayerOrders(ctx, sessionId, orders, session.LayerVersion)
		if err == store.ErrConditionFailed {
			metrics.LayerRepackRetries.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.LayerMutations.WithLabelValues("reorder").Inc()
		s.broadcastLayers(sessionId)
		return reordered, nil
	}
	return nil, store.ErrConditionFailed
}

// DeleteLayer removes the layer, re-packs the remaining orders to
// 0..N-1 preserving relative order, and enqueues the stroke cascade.
// The last paint layer of a session cannot be deleted.
func (s *Service) DeleteLayer(ctx context.Context, sessionId string, layerId string) ([]models.Layer, error) {
	unlock := s.lockSession(sessionId)
	defer unlock()

	for attempt := 0; attempt < layerRepackAttempts; attempt++ {
		session, err := s.GetSession(ctx, sessionId)
		if err != nil {
			return nil, err
		}
		layers, err := s.GetLayers(ctx, sessionId)
		if err != nil {
			return nil, err
		}

		idx := -1
		paintCount := 0
		for i, l := range layers {
			if l.Id == layerId {
				idx = i
			}
			if l.IsPaint() {
				paintCount++
			}
		}
		if idx == -1 {
			return nil, ErrLayerNotFound
		}
		if layers[idx].IsPaint() && paintCount == 1 {
			return nil, ErrLastPaintLayer
		}

		remaining := append(append([]models.Layer{}, layers[:idx]...), layers[idx+1:]...)
		orders := make(map[string]int, len(remaining))
		for i := range remaining {
			remaining[i].Order = i
			orders[remaining[i].Id] = i
		}

		err = s.Store.DeleteLayer(ctx, sessionId, layerId, orders, session.LayerVersion)
		if err == store.ErrConditionFailed {
			metrics.LayerRepackRetries.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		// Stroke cascade runs off the request path; the purge worker
		// also invalidates the session cache.
		if err := worker.EnqueueLayerPurge(ctx, s.MQ, sessionId, layerId); err != nil {
			log.Printf("Failed to enqueue layer purge for %s/%s: %v", sessionId, layerId, err)
		}

		metrics.LayerMutations.WithLabelValues("delete").Inc()
		s.broadcastLayers(sessionId)
		return remaining, nil
	}
	return nil, store.ErrConditionFailed
}

func (s *Service) SetLayerVisibility(ctx context.Context, sessionId string, layerId string, visible bool) error {
	err := s.Store.PatchLayer(ctx, sessionId, layerId, store.LayerPatch{Visible: &visible})
	return s.finishLayerPatch(sessionId, "visibility", err)
}

func (s *Service) SetLayerOpacity(ctx context.Context, sessionId string, layerId string, opacity float64) error {
	if err := ValidateOpacity(opacity); err != nil {
		return err
	}
	err := s.Store.PatchLayer(ctx, sessionId, layerId, store.LayerPatch{Opacity: &opacity})
	return s.finishLayerPatch(sessionId, "opacity", err)
}

func (s *Service) SetLayerTransform(ctx context.Context, sessionId string, layerId string, transform models.Transform) error {
	err := s.Store.PatchLayer(ctx, sessionId, layerId, store.LayerPatch{Transform: &transform})
	return s.finishLayerPatch(sessionId, "transform", err)
}

func (s *Service) finishLayerPatch(sessionId string, op string, err error) error {
	if err == store.ErrItemNotFound {
		return ErrLayerNotFound
	}
	if err != nil {
		return err
	}
	metrics.LayerMutations.WithLabelValues(op).Inc()
	s.broadcastLayers(sessionId)
	return nil
}

// broadcastLayers publishes the full post-mutation layer list so
// subscribers only ever observe complete orderings, never intermediate
// per-record shifts.
func (s *Service) broadcastLayers(sessionId string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		layers, err := s.GetLayers(ctx, sessionId)
		if err != nil {
			log.Printf("Failed to read layers for broadcast on session %s: %v", sessionId, err)
			return
		}

		msg := LayersChangedMessage{
			Type: "layers_changed",
			Data: LayersChangedData{SessionId: sessionId, Layers: layers},
		}
		msgBytes, _ := json.Marshal(msg)
		if err := s.Cache.Publish(ctx, sessionChannel(sessionId), msgBytes); err != nil {
			log.Printf("Failed to publish layers_changed for session %s: %v", sessionId, err)
		}
	}()
}

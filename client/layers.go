package client

import (
	"context"

	"github.com/wepaintai/wepaintai-sub000/models"
)

// CreateLayerFunc asks the server for a fresh paint layer.
type CreateLayerFunc func(ctx context.Context) (models.Layer, error)

// ResolveTargetLayer picks the layer a finished stroke commits to.
//
// An eraser targets whatever layer is active, any kind: erasing over an
// image layer is how image content is masked out. A brush stroke needs
// a paint layer: the active one if it is paint, otherwise the first
// paint layer bottom-up, otherwise a new paint layer created on demand.
func ResolveTargetLayer(ctx context.Context, layers []models.Layer, activeLayerId string, isEraser bool, create CreateLayerFunc) (string, error) {
	var active *models.Layer
	for i := range layers {
		if layers[i].Id == activeLayerId {
			active = &layers[i]
			break
		}
	}

	if isEraser && active != nil {
		return active.Id, nil
	}

	if active != nil && active.IsPaint() {
		return active.Id, nil
	}

	for _, l := range layers {
		if l.IsPaint() {
			return l.Id, nil
		}
	}

	layer, err := create(ctx)
	if err != nil {
		return "", err
	}
	return layer.Id, nil
}

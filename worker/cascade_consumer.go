package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/wepaintai/wepaintai-sub000/cache"
	"github.com/wepaintai/wepaintai-sub000/mq"
	"github.com/wepaintai/wepaintai-sub000/store"
)

// PurgeLayerStrokesMessage is enqueued when a layer is deleted. The
// registry re-pack happens synchronously; the stroke cascade (every
// stroke whose LayerId points at the layer, cross-layer erase strokes
// included) is purged here off the request path.
type PurgeLayerStrokesMessage struct {
	SessionId string `json:"sessionId"`
	LayerId   string `json:"layerId"`
}

// EnqueueLayerPurge serializes and sends the purge job for a deleted
// layer, so callers never hand-roll the message body.
func EnqueueLayerPurge(ctx context.Context, queue mq.MessageQueue, sessionId string, layerId string) error {
	body, err := json.Marshal(PurgeLayerStrokesMessage{SessionId: sessionId, LayerId: layerId})
	if err != nil {
		return err
	}
	return queue.Send(ctx, string(body))
}

type CascadeConsumer struct {
	purgeQueue  mq.MessageQueue
	paintStore  store.PaintStore
	paintCache  cache.PaintCache
	statBatcher *StatBatcher
}

func NewCascadeConsumer(purgeQueue mq.MessageQueue, paintStore store.PaintStore, paintCache cache.PaintCache, statBatcher *StatBatcher) *CascadeConsumer {
	return &CascadeConsumer{
		purgeQueue:  purgeQueue,
		paintStore:  paintStore,
		paintCache:  paintCache,
		statBatcher: statBatcher,
	}
}

// Allow up to 5 minutes for purging a large layer's strokes
const visibilityTimeout = 300

func (c CascadeConsumer) Run(shutdownCtx context.Context) {
	for {
		msg, err := c.purgeQueue.Receive(shutdownCtx, visibilityTimeout)

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Printf("cascadeConsumer receive error: %v", err)
			continue
		}

		if msg == nil {
			continue
		}

		var purgeMsg PurgeLayerStrokesMessage
		if err := json.Unmarshal([]byte(msg.Body), &purgeMsg); err != nil {
			continue
		}

		// timeout should be a little less than queue visibility timeout
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(visibilityTimeout-1)*time.Second)

		deleted, err := c.paintStore.DeleteLayerStrokes(ctx, purgeMsg.SessionId, purgeMsg.LayerId)
		if err == nil {
			// Drop the whole cached session so the next load rebuilds
			// without the purged strokes.
			if cacheErr := c.paintCache.InvalidateSessions(ctx, []string{purgeMsg.SessionId}); cacheErr != nil {
				log.Printf("Failed to invalidate session %s: %v", purgeMsg.SessionId, cacheErr)
			}
			if deleted > 0 {
				c.statBatcher.UpdateCh <- StatUpdate{
					SessionId: purgeMsg.SessionId,
					Delta:     -deleted,
				}
				log.Printf("Purged %d strokes from layer %s in session %s", deleted, purgeMsg.LayerId, purgeMsg.SessionId)
			}
		}
		cancel()

		if err != nil {
			log.Printf("paintStore delete layer strokes error: %v", err)
			continue
		}

		err = c.purgeQueue.Delete(context.Background(), msg)
		if err != nil {
			log.Printf("cascadeConsumer delete error: %v", err)
			continue
		}
	}
}

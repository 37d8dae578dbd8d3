package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/wepaintai/wepaintai-sub000/metrics"
	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/store"
	"github.com/wepaintai/wepaintai-sub000/worker"
)

// A session stops accepting commits past this many committed strokes.
// Undo does not reclaim quota; orders are never reissued.
const maxSessionStrokes = 10000

type StrokeCommittedMessage struct {
	Type string              `json:"type"`
	Data StrokeCommittedData `json:"data"`
}

type StrokeCommittedData struct {
	SessionId string        `json:"sessionId"`
	TempId    string        `json:"tempId,omitempty"`
	Stroke    models.Stroke `json:"stroke"`
}

type StrokeFlagMessage struct {
	Type string         `json:"type"`
	Data StrokeFlagData `json:"data"`
}

type StrokeFlagData struct {
	SessionId string `json:"sessionId"`
	StrokeId  string `json:"strokeId"`
	Order     int64  `json:"order"`
}

type SessionClearedMessage struct {
	Type string             `json:"type"`
	Data SessionClearedData `json:"data"`
}

type SessionClearedData struct {
	SessionId string `json:"sessionId"`
}

// CommitStroke appends a stroke to the session's ordered log and
// returns it with its assigned order. A non-empty tempId makes the
// commit idempotent: retries of an unacknowledged commit return the
// already-assigned stroke instead of appending a duplicate.
func (s *Service) CommitStroke(ctx context.Context, sessionId string, tempId string, stroke models.Stroke) (models.Stroke, error) {
	session, err := s.GetSession(ctx, sessionId)
	if err != nil {
		metrics.CommitsRejected.WithLabelValues("session").Inc()
		return models.Stroke{}, err
	}
	if err := ValidateStroke(stroke); err != nil {
		metrics.CommitsRejected.WithLabelValues("invalid").Inc()
		return models.Stroke{}, err
	}

	if tempId != "" {
		if prior, ok := s.replayTempStroke(ctx, sessionId, tempId, stroke); ok {
			return prior, nil
		}
	}

	exists, err := s.layerExists(ctx, sessionId, stroke.LayerId)
	if err != nil {
		return models.Stroke{}, err
	}
	if !exists {
		metrics.CommitsRejected.WithLabelValues("layer").Inc()
		return models.Stroke{}, ErrLayerNotFound
	}

	if err := s.checkStrokeQuota(ctx, session); err != nil {
		metrics.CommitsRejected.WithLabelValues("quota").Inc()
		return models.Stroke{}, err
	}

	order, err := s.Store.NextStrokeOrder(ctx, sessionId)
	if err != nil {
		return models.Stroke{}, err
	}

	strokeUUID, err := uuid.NewV7()
	if err != nil {
		return models.Stroke{}, err
	}

	stroke.Id = strokeUUID.String()
	stroke.SessionId = sessionId
	stroke.Order = order
	stroke.Deleted = false

	if tempId != "" {
		claimed, err := s.Cache.RememberTempStroke(ctx, sessionId, tempId, stroke.Id, order)
		if err != nil {
			log.Printf("Failed to record temp stroke %s for session %s: %v", tempId, sessionId, err)
		} else if !claimed {
			// A concurrent retry won the claim; its stroke is the one
			// that counts. The order drawn here stays a gap in the log.
			if prior, ok := s.replayTempStroke(ctx, sessionId, tempId, stroke); ok {
				return prior, nil
			}
		}
	}

	// Ack path: cache + broadcast now, durable write via the batcher.
	s.StrokeBatcher.WriteCh <- stroke

	strokeBytes, _ := json.Marshal(stroke)
	if err := s.Cache.AddStroke(ctx, sessionId, stroke.Id, order, strokeBytes); err != nil {
		log.Printf("Failed to cache stroke %s for session %s: %v", stroke.Id, sessionId, err)
	}

	s.publishSessionEvent(sessionId, StrokeCommittedMessage{
		Type: "stroke_committed",
		Data: StrokeCommittedData{SessionId: sessionId, TempId: tempId, Stroke: stroke},
	})

	metrics.StrokesCommitted.Inc()
	return stroke, nil
}

// replayTempStroke rebuilds the result of an earlier commit from the
// temp-id map so a retry observes the same id and order.
func (s *Service) replayTempStroke(ctx context.Context, sessionId string, tempId string, stroke models.Stroke) (models.Stroke, bool) {
	strokeId, order, ok, err := s.Cache.LookupTempStroke(ctx, sessionId, tempId)
	if err != nil {
		log.Printf("Failed to look up temp stroke %s for session %s: %v", tempId, sessionId, err)
		return models.Stroke{}, false
	}
	if !ok {
		return models.Stroke{}, false
	}
	stroke.Id = strokeId
	stroke.SessionId = sessionId
	stroke.Order = order
	stroke.Deleted = false
	return stroke, true
}

func (s *Service) checkStrokeQuota(ctx context.Context, session models.Session) error {
	count, err := s.Cache.GetSessionStrokeCount(ctx, session.Id)
	if err != nil || count == 0 {
		// Cache cold; the durable counter lags the batcher but a
		// session at quota has long since flushed.
		count = int64(session.StrokeCount)
	}
	if count >= maxSessionStrokes {
		return ErrQuotaExceeded
	}
	return nil
}

// Undo soft-deletes the most recent non-deleted stroke of the session,
// regardless of author. Returns nil when there is nothing to undo.
func (s *Service) Undo(ctx context.Context, sessionId string) (*models.Stroke, error) {
	if _, err := s.GetSession(ctx, sessionId); err != nil {
		return nil, err
	}

	stroke, err := s.Store.LatestNonDeletedStroke(ctx, sessionId)
	if err == store.ErrItemNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.flagStroke(ctx, stroke, true); err != nil {
		return nil, err
	}

	s.publishSessionEvent(sessionId, StrokeFlagMessage{
		Type: "stroke_deleted",
		Data: StrokeFlagData{SessionId: sessionId, StrokeId: stroke.Id, Order: stroke.Order},
	})

	stroke.Deleted = true
	return &stroke, nil
}

// Redo restores the earliest deleted stroke past the current undo
// frontier. Strokes cleared away stay cleared: the frontier never falls
// below the session's cleared-through watermark. A redo whose target
// layer has since been deleted is a no-op.
func (s *Service) Redo(ctx context.Context, sessionId string) (*models.Stroke, error) {
	session, err := s.GetSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	frontier := session.ClearedThrough
	latest, err := s.Store.LatestNonDeletedStroke(ctx, sessionId)
	if err != nil && err != store.ErrItemNotFound {
		return nil, err
	}
	if err == nil && latest.Order > frontier {
		frontier = latest.Order
	}

	stroke, err := s.Store.EarliestDeletedStrokeAfter(ctx, sessionId, frontier)
	if err == store.ErrItemNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	exists, err := s.layerExists(ctx, sessionId, stroke.LayerId)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	if err := s.flagStroke(ctx, stroke, false); err != nil {
		return nil, err
	}

	s.publishSessionEvent(sessionId, StrokeFlagMessage{
		Type: "stroke_restored",
		Data: StrokeFlagData{SessionId: sessionId, StrokeId: stroke.Id, Order: stroke.Order},
	})

	stroke.Deleted = false
	return &stroke, nil
}

// flagStroke flips the soft-delete flag everywhere the stroke lives:
// the durable record, any copy still buffered in the write batcher, and
// the replay cache.
func (s *Service) flagStroke(ctx context.Context, stroke models.Stroke, deleted bool) error {
	if err := s.Store.SetStrokeDeleted(ctx, stroke.SessionId, stroke.Order, deleted); err != nil && err != store.ErrItemNotFound {
		return err
	}

	s.StrokeBatcher.FlagCh <- worker.StrokeFlagRequest{
		SessionId: stroke.SessionId,
		Order:     stroke.Order,
		Deleted:   deleted,
	}

	stroke.Deleted = deleted
	strokeBytes, _ := json.Marshal(stroke)
	if err := s.Cache.AddStroke(ctx, stroke.SessionId, stroke.Id, stroke.Order, strokeBytes); err != nil {
		log.Printf("Failed to update cached stroke %s for session %s: %v", stroke.Id, stroke.SessionId, err)
	}
	return nil
}

// ClearSession soft-deletes every live stroke and advances the
// cleared-through watermark to the current end of the log, so cleared
// strokes are unreachable by redo.
func (s *Service) ClearSession(ctx context.Context, sessionId string) error {
	session, err := s.GetSession(ctx, sessionId)
	if err != nil {
		return err
	}

	// Watermark first: a crash between the two writes leaves some
	// strokes live, which a repeat clear fixes, but never makes a
	// cleared stroke redoable.
	if err := s.Store.SetClearedThrough(ctx, sessionId, session.StrokeSeq); err != nil {
		return err
	}
	if _, err := s.Store.MarkAllStrokesDeleted(ctx, sessionId); err != nil {
		return err
	}

	// The durable pass only sees flushed strokes; the batcher flags
	// anything still buffered at or below the watermark.
	s.StrokeBatcher.ClearCh <- worker.SessionClearRequest{
		SessionId:    sessionId,
		ThroughOrder: session.StrokeSeq,
	}

	if err := s.Cache.InvalidateSessions(ctx, []string{sessionId}); err != nil {
		log.Printf("Failed to invalidate cache for cleared session %s: %v", sessionId, err)
	}

	s.publishSessionEvent(sessionId, SessionClearedMessage{
		Type: "session_cleared",
		Data: SessionClearedData{SessionId: sessionId},
	})
	return nil
}

func (s *Service) publishSessionEvent(sessionId string, msg any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		msgBytes, _ := json.Marshal(msg)
		if err := s.Cache.Publish(ctx, sessionChannel(sessionId), msgBytes); err != nil {
			log.Printf("Failed to publish session event for %s: %v", sessionId, err)
		}
	}()
}

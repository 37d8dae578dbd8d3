package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/wepaintai/wepaintai-sub000/metrics"
	"github.com/wepaintai/wepaintai-sub000/models"
)

// The live channel carries presence and in-progress stroke previews.
// Everything on it is fire-and-forget: nothing is stored, delivery is
// best effort, and the committed log never depends on it.

func liveChannel(sessionId string) string {
	return "session:" + sessionId + ":live"
}

type PresenceMessage struct {
	Type string          `json:"type"`
	Data models.Presence `json:"data"`
}

type LiveStrokeMessage struct {
	Type string            `json:"type"`
	Data models.LiveStroke `json:"data"`
}

// Live publishes still require the session to exist. The check runs at
// pointer-move rates, so positive results are memoized briefly instead
// of hitting the store per frame.
const liveSessionCheckTTL = 30 * time.Second

func (s *Service) checkLiveSession(ctx context.Context, sessionId string) error {
	s.liveSessionsMu.Lock()
	checked, ok := s.liveSessions[sessionId]
	s.liveSessionsMu.Unlock()
	if ok && time.Since(checked) < liveSessionCheckTTL {
		return nil
	}

	if _, err := s.GetSession(ctx, sessionId); err != nil {
		return err
	}

	s.liveSessionsMu.Lock()
	s.liveSessions[sessionId] = time.Now()
	s.liveSessionsMu.Unlock()
	return nil
}

func (s *Service) PublishPresence(ctx context.Context, sessionId string, presence models.Presence) error {
	if err := s.checkLiveSession(ctx, sessionId); err != nil {
		return err
	}
	presence.LastSeen = time.Now().UnixMilli()
	s.publishLive(ctx, sessionId, "presence", PresenceMessage{Type: "presence", Data: presence})
	return nil
}

func (s *Service) PublishLiveStroke(ctx context.Context, sessionId string, liveStroke models.LiveStroke) error {
	if err := s.checkLiveSession(ctx, sessionId); err != nil {
		return err
	}
	s.publishLive(ctx, sessionId, "live_stroke", LiveStrokeMessage{Type: "live_stroke", Data: liveStroke})
	return nil
}

// ClearLiveStroke broadcasts an empty terminal preview for the author,
// telling peers to drop their rendered preview. The reconciler sends it
// when the committed stroke arrives.
func (s *Service) ClearLiveStroke(ctx context.Context, sessionId string, participantId string) error {
	if err := s.checkLiveSession(ctx, sessionId); err != nil {
		return err
	}
	s.publishLive(ctx, sessionId, "live_stroke", LiveStrokeMessage{
		Type: "live_stroke",
		Data: models.LiveStroke{ParticipantId: participantId, Done: true},
	})
	return nil
}

func (s *Service) publishLive(ctx context.Context, sessionId string, kind string, msg any) {
	msgBytes, _ := json.Marshal(msg)
	if err := s.Cache.Publish(ctx, liveChannel(sessionId), msgBytes); err != nil {
		// Dropped live messages are invisible to correctness
		log.Printf("Dropped live %s message for session %s: %v", kind, sessionId, err)
		return
	}
	metrics.LiveMessages.WithLabelValues(kind).Inc()
}

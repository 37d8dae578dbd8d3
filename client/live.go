package client

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/wepaintai/wepaintai-sub000/models"
	"golang.org/x/time/rate"
)

const (
	// ~60 frames a second; one token per frame, no burst so a flurry of
	// pointer events coalesces into the next frame.
	liveFrameInterval = 16 * time.Millisecond

	// Presence heartbeat while the connection is idle.
	heartbeatInterval = 20 * time.Second
)

type liveFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// LivePublisher streams the in-progress stroke and cursor presence over
// the selector. Frames carry the full point list so far, so a dropped
// or throttled frame is fully superseded by the next one.
type LivePublisher struct {
	selector      *Selector
	participantId string
	limiter       *rate.Limiter

	mu       sync.Mutex
	current  *models.LiveStroke
	presence models.Presence
	dirty    bool
}

func NewLivePublisher(selector *Selector, participantId string) *LivePublisher {
	return &LivePublisher{
		selector:      selector,
		participantId: participantId,
		limiter:       rate.NewLimiter(rate.Every(liveFrameInterval), 1),
		presence:      models.Presence{ParticipantId: participantId},
	}
}

// BeginStroke starts a preview. The first point always goes out
// immediately: peers should see ink the moment the pointer lands, and
// one frame per stroke start cannot flood anyone.
func (p *LivePublisher) BeginStroke(stroke models.LiveStroke) {
	p.mu.Lock()
	stroke.ParticipantId = p.participantId
	stroke.Done = false
	p.current = &stroke
	frame := *p.current
	p.dirty = false
	p.mu.Unlock()

	p.send(frame)
	p.limiter.Reserve()
}

// AddPoint extends the in-flight preview. Frames are throttled; points
// arriving between frames ride the next one.
func (p *LivePublisher) AddPoint(point models.Point) {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	p.current.Points = append(p.current.Points, point)
	if !p.limiter.Allow() {
		p.dirty = true
		p.mu.Unlock()
		return
	}
	frame := *p.current
	p.dirty = false
	p.mu.Unlock()

	p.send(frame)
}

// CompleteStroke ends the preview and tells peers to drop it. Both
// pointer-up and pointer-released-outside-canvas funnel here; calling
// it without an in-flight stroke is a no-op, so the two paths can race
// safely.
func (p *LivePublisher) CompleteStroke() {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	frame := *p.current
	frame.Done = true
	p.current = nil
	p.dirty = false
	p.mu.Unlock()

	// Completion frames bypass the throttle
	p.send(frame)
}

func (p *LivePublisher) send(stroke models.LiveStroke) {
	frameBytes, _ := json.Marshal(liveFrame{Type: "live_stroke", Data: stroke})
	if err := p.selector.SendFrame(frameBytes); err != nil {
		log.Printf("Dropped live stroke frame: %v", err)
	}
}

// UpdatePresence records the cursor state and publishes it under the
// same frame throttle as stroke previews.
func (p *LivePublisher) UpdatePresence(cursorX, cursorY float64, isDrawing bool, currentTool string) {
	p.mu.Lock()
	p.presence.CursorX = cursorX
	p.presence.CursorY = cursorY
	p.presence.IsDrawing = isDrawing
	p.presence.CurrentTool = currentTool
	p.presence.LastSeen = time.Now().UnixMilli()
	allowed := p.limiter.Allow()
	presence := p.presence
	p.mu.Unlock()

	if allowed {
		p.sendPresence(presence)
	}
}

func (p *LivePublisher) sendPresence(presence models.Presence) {
	frameBytes, _ := json.Marshal(liveFrame{Type: "presence", Data: presence})
	if err := p.selector.SendFrame(frameBytes); err != nil {
		log.Printf("Dropped presence frame: %v", err)
	}
}

// Run flushes throttled stroke frames and heartbeats presence so peers
// can GC us by staleness only after a real disconnect.
func (p *LivePublisher) Run(ctx context.Context) {
	flushTicker := time.NewTicker(liveFrameInterval)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer flushTicker.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-flushTicker.C:
			p.mu.Lock()
			if p.current == nil || !p.dirty || !p.limiter.Allow() {
				p.mu.Unlock()
				continue
			}
			frame := *p.current
			p.dirty = false
			p.mu.Unlock()
			p.send(frame)

		case <-heartbeat.C:
			p.mu.Lock()
			p.presence.LastSeen = time.Now().UnixMilli()
			presence := p.presence
			p.mu.Unlock()
			p.sendPresence(presence)

		case <-ctx.Done():
			return
		}
	}
}

package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wepaintai/wepaintai-sub000/models"
)

// A participant whose presence has not been refreshed within this
// window is considered gone. Publishers heartbeat every 20s, so two
// missed heartbeats plus slack.
const presenceStaleAfter = 45 * time.Second

// PresenceTable holds the last known presence per participant, updated
// from the live channel and garbage collected by staleness. There is no
// leave message; silence is the only disconnect signal.
type PresenceTable struct {
	mu      sync.Mutex
	entries map[string]models.Presence
	now     func() time.Time
}

func NewPresenceTable() *PresenceTable {
	return &PresenceTable{
		entries: make(map[string]models.Presence),
		now:     time.Now,
	}
}

// Apply ingests a presence frame. Older frames never clobber newer
// ones: frames can arrive out of order across transports.
func (t *PresenceTable) Apply(presence models.Presence) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[presence.ParticipantId]; ok && existing.LastSeen > presence.LastSeen {
		return
	}
	t.entries[presence.ParticipantId] = presence
}

// Remove drops a participant immediately, for transports that do signal
// disconnects.
func (t *PresenceTable) Remove(participantId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, participantId)
}

// Snapshot returns the live participants sorted by id for stable
// iteration in renderers.
func (t *PresenceTable) Snapshot() []models.Presence {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-presenceStaleAfter).UnixMilli()
	out := make([]models.Presence, 0, len(t.entries))
	for _, p := range t.entries {
		if p.LastSeen >= cutoff {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantId < out[j].ParticipantId })
	return out
}

func (t *PresenceTable) gc() {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-presenceStaleAfter).UnixMilli()
	for id, p := range t.entries {
		if p.LastSeen < cutoff {
			delete(t.entries, id)
		}
	}
}

// Run garbage collects stale entries until the context ends.
func (t *PresenceTable) Run(ctx context.Context) {
	ticker := time.NewTicker(presenceStaleAfter / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.gc()
		case <-ctx.Done():
			return
		}
	}
}

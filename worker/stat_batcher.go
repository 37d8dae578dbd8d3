package worker

import (
	"context"
	"log"
	"time"

	"github.com/wepaintai/wepaintai-sub000/store"
)

type StatUpdate struct {
	SessionId string
	Delta     int
}

// StatBatcher coalesces committed-stroke count deltas per session and
// writes them to the session meta item on a ticker, so the hot commit
// path never pays for a counter write.
type StatBatcher struct {
	UpdateCh           chan StatUpdate
	paintStore         store.PaintStore
	tickerMilliseconds int
}

func NewStatBatcher(paintStore store.PaintStore, tickerMilliseconds int) *StatBatcher {
	return &StatBatcher{
		UpdateCh:           make(chan StatUpdate, 1024),
		paintStore:         paintStore,
		tickerMilliseconds: tickerMilliseconds,
	}
}

func (b *StatBatcher) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(b.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	sessionCounts := make(map[string]int)

	flush := func() {
		for sessionId, count := range sessionCounts {
			if count == 0 {
				continue
			}
			go func(id string, c int) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := b.paintStore.IncrementSessionStrokeCount(ctx, id, c); err != nil {
					log.Printf("Failed to update stroke count for session %s: %v", id, err)
				}
			}(sessionId, count)
		}
		sessionCounts = make(map[string]int)
	}

	for {
		select {
		case update := <-b.UpdateCh:
			if update.SessionId != "" {
				sessionCounts[update.SessionId] += update.Delta
			}

			if len(sessionCounts) >= 100 {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			flush()
			return
		}
	}
}

package worker

import (
	"context"
	"log"
	"time"

	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/store"
)

// StrokeFlagRequest flips the soft-delete flag on a stroke that may
// still be sitting in the write buffer. Undo/redo send it alongside the
// store patch so the flag is not lost when the flush races the patch.
type StrokeFlagRequest struct {
	SessionId string
	Order     int64
	Deleted   bool
}

// SessionClearRequest marks every buffered stroke of the session at or
// below ThroughOrder deleted, including strokes that have not been
// drained from WriteCh yet. Clear sends it so a stroke committed just
// before the clear cannot flush back to life.
type SessionClearRequest struct {
	SessionId    string
	ThroughOrder int64
}

type batchKey struct {
	sessionId string
	order     int64
}

type StrokeBatcher struct {
	WriteCh            chan models.Stroke
	FlagCh             chan StrokeFlagRequest
	ClearCh            chan SessionClearRequest
	paintStore         store.PaintStore
	statBatcher        *StatBatcher
	tickerMilliseconds int
}

// Commits are acknowledged to clients as soon as the order is assigned
// and the stroke is cached and broadcast; the durable write rides this
// batcher (25 per BatchWriteItem or a ticker flush, whichever first).
func NewStrokeBatcher(paintStore store.PaintStore, tickerMilliseconds int, statBatcher *StatBatcher) *StrokeBatcher {
	return &StrokeBatcher{
		WriteCh:            make(chan models.Stroke, 1024), // buffer to absorb bursts
		FlagCh:             make(chan StrokeFlagRequest, 1024),
		ClearCh:            make(chan SessionClearRequest, 64),
		paintStore:         paintStore,
		statBatcher:        statBatcher,
		tickerMilliseconds: tickerMilliseconds,
	}
}

func (b *StrokeBatcher) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(b.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	batch := make([]models.Stroke, 0, 25)
	batchIndices := make(map[batchKey]int, 25)

	// Flags whose stroke has not arrived yet, applied on arrival.
	pendingFlags := make(map[batchKey]bool)
	// Per-session clear watermarks; strokes at or below arrive deleted.
	clearedThrough := make(map[string]int64)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		// Explicitly ignore cancel: when shutdownCtx causes Run to
		// return, any pending batch write should still finish.
		_ = cancel
		unprocessed, err := b.paintStore.WriteStrokeBatch(ctx, batch)

		if err != nil {
			log.Printf("Error writing stroke batch to store: %v", err)
		}

		// Successes are everything in batch minus unprocessed
		failed := make(map[batchKey]bool)
		for _, u := range unprocessed {
			failed[batchKey{u.SessionId, u.Order}] = true
		}

		for _, s := range batch {
			if !failed[batchKey{s.SessionId, s.Order}] {
				b.statBatcher.UpdateCh <- StatUpdate{
					SessionId: s.SessionId,
					Delta:     1,
				}
			}
		}

		batch = batch[:0]
		clear(batchIndices)
	}

	for {
		select {
		case stroke := <-b.WriteCh:
			key := batchKey{stroke.SessionId, stroke.Order}
			if through, ok := clearedThrough[stroke.SessionId]; ok && stroke.Order <= through {
				stroke.Deleted = true
			}
			if deleted, ok := pendingFlags[key]; ok {
				stroke.Deleted = deleted
				delete(pendingFlags, key)
			}
			batch = append(batch, stroke)
			batchIndices[key] = len(batch) - 1
			if len(batch) == 25 {
				flush()
			}

		case flagReq := <-b.FlagCh:
			key := batchKey{flagReq.SessionId, flagReq.Order}
			if idx, ok := batchIndices[key]; ok {
				batch[idx].Deleted = flagReq.Deleted
				continue
			}
			// Not buffered: either already flushed, or still queued in
			// WriteCh. Patch the durable record; if it is not there yet,
			// hold the flag until the stroke arrives.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := b.paintStore.SetStrokeDeleted(ctx, flagReq.SessionId, flagReq.Order, flagReq.Deleted)
			cancel()
			if err == store.ErrItemNotFound {
				pendingFlags[key] = flagReq.Deleted
			} else if err != nil {
				log.Printf("Error flagging stroke %d in session %s: %v", flagReq.Order, flagReq.SessionId, err)
			}

		case clearReq := <-b.ClearCh:
			if clearReq.ThroughOrder > clearedThrough[clearReq.SessionId] {
				clearedThrough[clearReq.SessionId] = clearReq.ThroughOrder
			}
			for i := range batch {
				if batch[i].SessionId == clearReq.SessionId && batch[i].Order <= clearReq.ThroughOrder {
					batch[i].Deleted = true
				}
			}

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			flush()
			return
		}
	}
}

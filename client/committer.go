package client

import (
	"context"
	"log"
	"time"

	"github.com/wepaintai/wepaintai-sub000/models"
)

// CommitFunc sends one stroke commit and returns the server's
// assignment. Implementations wrap whatever wire the client is on.
type CommitFunc func(ctx context.Context, tempId string, stroke models.Stroke) (models.Stroke, error)

// Committer drains the reconciler's unsent strokes, always resending
// with the original temp id so a commit that was executed but not
// acknowledged is deduplicated server-side instead of duplicated.
type Committer struct {
	reconciler *Reconciler
	commit     CommitFunc
	interval   time.Duration
}

func NewCommitter(reconciler *Reconciler, commit CommitFunc) *Committer {
	return &Committer{
		reconciler: reconciler,
		commit:     commit,
		interval:   500 * time.Millisecond,
	}
}

// CommitStroke registers the stroke locally and attempts the commit
// immediately. On failure the stroke stays local-only and the retry
// loop picks it up.
func (c *Committer) CommitStroke(ctx context.Context, stroke models.Stroke) string {
	tempId := c.reconciler.AddLocal(stroke)
	c.attempt(ctx, tempId, stroke)
	return tempId
}

func (c *Committer) attempt(ctx context.Context, tempId string, stroke models.Stroke) {
	if state, ok := c.reconciler.State(tempId); !ok || state != StateLocalOnly {
		return
	}
	c.reconciler.MarkPending(tempId)

	committed, err := c.commit(ctx, tempId, stroke)
	if err != nil {
		log.Printf("Stroke commit %s failed, will retry: %v", tempId, err)
		c.reconciler.MarkFailed(tempId)
		return
	}
	c.reconciler.Confirm(tempId, committed)
}

// Run retries unsent strokes until the context ends.
func (c *Committer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, pending := range c.reconciler.Unsent() {
				c.attempt(ctx, pending.TempId, pending.Stroke)
			}

		case <-ctx.Done():
			return
		}
	}
}

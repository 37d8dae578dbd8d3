package cache

import "context"

type StrokeCacheItem struct {
	StrokeId string
	Order    int64
	Data     []byte
}

// PaintCache is the ephemeral collaborator: the pub/sub fabric for both
// the committed-stroke fan-out and the fire-and-forget live channel,
// plus a per-session replay cache of committed strokes keyed by order.
type PaintCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error

	AddStroke(ctx context.Context, sessionId string, strokeId string, order int64, strokeData []byte) error
	AddStrokesBatch(ctx context.Context, sessionId string, strokes []StrokeCacheItem) error
	RemoveStroke(ctx context.Context, sessionId string, strokeId string) error
	GetStrokesSince(ctx context.Context, sessionId string, afterOrder int64) ([][]byte, error)
	GetSessionStrokeCount(ctx context.Context, sessionId string) (int64, error)

	SetSessionComplete(ctx context.Context, sessionId string) error
	IsSessionComplete(ctx context.Context, sessionId string) (bool, error)
	InvalidateSessions(ctx context.Context, sessionIds []string) error

	// Temp-id dedup map for idempotent commit retries. Remember returns
	// false when the temp id was already claimed by an earlier commit.
	RememberTempStroke(ctx context.Context, sessionId string, tempId string, strokeId string, order int64) (bool, error)
	LookupTempStroke(ctx context.Context, sessionId string, tempId string) (strokeId string, order int64, ok bool, err error)
}

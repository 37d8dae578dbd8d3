package client

import (
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/wepaintai/wepaintai-sub000/models"
)

// A local stroke is evicted from the pending set only under
// backpressure, never on a timer: a slow commit is still expected to
// land, and dropping it early would make the canvas lie.
const maxPendingStrokes = 20

type StrokeState int

const (
	// StateLocalOnly: drawn locally, commit not yet in flight (or
	// failed and awaiting retry).
	StateLocalOnly StrokeState = iota
	// StatePending: commit sent, acknowledgement outstanding.
	StatePending
	// StateConfirmed: server assignment received; rendered from the
	// committed log.
	StateConfirmed
)

type localStroke struct {
	tempId string
	stroke models.Stroke
	state  StrokeState
	seq    int // local arrival order, for stable rendering and eviction
}

// Reconciler folds the locally drawn strokes and the server's committed
// log into one render list. A stroke the user just drew is rendered
// immediately from its local entry; when the server's committed copy
// arrives (by direct ack or broadcast) the local entry is swapped for
// it in place, so every stroke is rendered exactly once at all times.
type Reconciler struct {
	mu        sync.Mutex
	locals    map[string]*localStroke // keyed by temp id
	committed map[int64]models.Stroke // keyed by order
	nextSeq   int
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		locals:    make(map[string]*localStroke),
		committed: make(map[int64]models.Stroke),
	}
}

// AddLocal registers a finished local stroke and returns the temp id
// that must accompany its commit. When the pending set is full the
// oldest local stroke is evicted to bound memory on a dead connection.
func (r *Reconciler) AddLocal(stroke models.Stroke) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.locals) >= maxPendingStrokes {
		r.evictOldestLocked()
	}

	tempUUID, err := uuid.NewV7()
	if err != nil {
		// v7 generation only fails when the entropy source does;
		// fall back to v4 semantics via the same library.
		tempUUID = uuid.Must(uuid.NewV4())
	}
	tempId := tempUUID.String()

	r.locals[tempId] = &localStroke{
		tempId: tempId,
		stroke: stroke,
		state:  StateLocalOnly,
		seq:    r.nextSeq,
	}
	r.nextSeq++
	return tempId
}

func (r *Reconciler) evictOldestLocked() {
	oldest := ""
	oldestSeq := -1
	for tempId, ls := range r.locals {
		if oldestSeq == -1 || ls.seq < oldestSeq {
			oldest = tempId
			oldestSeq = ls.seq
		}
	}
	if oldest != "" {
		delete(r.locals, oldest)
	}
}

// MarkPending is called when the commit for tempId goes on the wire.
func (r *Reconciler) MarkPending(tempId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ls, ok := r.locals[tempId]; ok {
		ls.state = StatePending
	}
}

// MarkFailed returns the stroke to local-only so the committer retries
// it with the same temp id, keeping the retry idempotent server-side.
func (r *Reconciler) MarkFailed(tempId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ls, ok := r.locals[tempId]; ok {
		ls.state = StateLocalOnly
	}
}

// Confirm swaps the local entry for the server's committed stroke. The
// swap happens at most once per temp id; a confirmation for an unknown
// temp id (already swapped via broadcast, or evicted) degrades to a
// plain remote apply, which is idempotent by order.
func (r *Reconciler) Confirm(tempId string, committed models.Stroke) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locals, tempId)
	r.committed[committed.Order] = committed
}

// ApplyCommitted ingests a committed stroke from the broadcast channel.
// When the broadcast carries our own temp id it doubles as the swap, so
// whichever of ack and broadcast arrives first wins and the other is a
// no-op.
func (r *Reconciler) ApplyCommitted(tempId string, committed models.Stroke) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tempId != "" {
		delete(r.locals, tempId)
	}
	r.committed[committed.Order] = committed
}

// SetDeleted applies a stroke_deleted or stroke_restored broadcast.
func (r *Reconciler) SetDeleted(order int64, deleted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.committed[order]; ok {
		s.Deleted = deleted
		r.committed[order] = s
	}
}

// Clear applies a session_cleared broadcast: every committed stroke is
// soft-deleted. Local strokes still awaiting commit are kept; their
// commits land after the clear watermark and stay live.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for order, s := range r.committed {
		s.Deleted = true
		r.committed[order] = s
	}
}

// Seed replaces the committed set from a load response.
func (r *Reconciler) Seed(strokes []models.Stroke) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = make(map[int64]models.Stroke, len(strokes))
	for _, s := range strokes {
		r.committed[s.Order] = s
	}
}

// DropLayer removes committed strokes of a deleted layer, mirroring the
// server-side cascade.
func (r *Reconciler) DropLayer(layerId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for order, s := range r.committed {
		if s.LayerId == layerId {
			delete(r.committed, order)
		}
	}
	for tempId, ls := range r.locals {
		if ls.stroke.LayerId == layerId {
			delete(r.locals, tempId)
		}
	}
}

// Unsent returns the local-only strokes in arrival order, for the
// committer's retry pass.
func (r *Reconciler) Unsent() []PendingCommit {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make([]PendingCommit, 0)
	for _, ls := range r.locals {
		if ls.state == StateLocalOnly {
			pending = append(pending, PendingCommit{TempId: ls.tempId, Stroke: ls.stroke, seq: ls.seq})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	return pending
}

type PendingCommit struct {
	TempId string
	Stroke models.Stroke
	seq    int
}

// RenderList is the exactly-once view of the canvas: non-deleted
// committed strokes in order, then local strokes on top in arrival
// order.
func (r *Reconciler) RenderList() []models.Stroke {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Stroke, 0, len(r.committed)+len(r.locals))
	for _, s := range r.committed {
		if !s.Deleted {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })

	locals := make([]*localStroke, 0, len(r.locals))
	for _, ls := range r.locals {
		locals = append(locals, ls)
	}
	sort.Slice(locals, func(i, j int) bool { return locals[i].seq < locals[j].seq })
	for _, ls := range locals {
		out = append(out, ls.stroke)
	}
	return out
}

// PendingCount reports the locally held strokes not yet confirmed.
func (r *Reconciler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locals)
}

// State reports the lifecycle state of a temp id. The second return is
// false once the stroke has been confirmed or evicted.
func (r *Reconciler) State(tempId string) (StrokeState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ls, ok := r.locals[tempId]; ok {
		return ls.state, true
	}
	return StateConfirmed, false
}

// Package metrics holds the process-wide prometheus collectors. The
// /metrics endpoint is registered by the API next to the health check.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StrokesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paint_strokes_committed_total",
		Help: "Strokes accepted into the ordered event log.",
	})

	CommitsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paint_commits_rejected_total",
		Help: "Stroke commits rejected before order assignment.",
	}, []string{"reason"})

	LayerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paint_layer_mutations_total",
		Help: "Layer registry mutations by operation.",
	}, []string{"op"})

	LayerRepackRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paint_layer_repack_retries_total",
		Help: "Registry re-packs retried after a version conflict.",
	})

	LiveMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paint_live_messages_total",
		Help: "Fire-and-forget live channel publishes by kind.",
	}, []string{"kind"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paint_ws_connections",
		Help: "Open websocket connections.",
	})

	// Transport fallback selector: frames mirrored per path. The
	// selector never affects correctness, so these two counters are its
	// whole observable surface.
	SelectorFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paint_selector_frames_total",
		Help: "Live preview frames sent, by transport path.",
	}, []string{"path"})
)

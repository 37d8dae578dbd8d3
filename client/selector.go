package client

import (
	"log"
	"sync"

	"github.com/wepaintai/wepaintai-sub000/metrics"
)

// PeerChannel is an optional direct transport for live traffic (a data
// channel, a LAN socket). The selector never depends on it for
// correctness; committed traffic always rides the relay.
type PeerChannel interface {
	Connected() bool
	Send(frame []byte) error
}

// RelayFunc sends a frame over the authoritative pub/sub relay.
type RelayFunc func(frame []byte) error

const (
	ModePeer  = "peer"
	ModeRelay = "relay"
)

// Selector fans live frames out across the available transports. The
// relay is always used; when a peer channel is connected frames are
// mirrored onto it so nearby peers see previews with less latency.
// Peer send failures are dropped: the relay copy already went out.
type Selector struct {
	mu    sync.RWMutex
	peer  PeerChannel
	relay RelayFunc
}

func NewSelector(relay RelayFunc) *Selector {
	return &Selector{relay: relay}
}

// SetPeer installs or removes (nil) the peer channel.
func (s *Selector) SetPeer(peer PeerChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peer = peer
}

func (s *Selector) IsPeerConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer != nil && s.peer.Connected()
}

// Mode reports the richest transport currently available.
func (s *Selector) Mode() string {
	if s.IsPeerConnected() {
		return ModePeer
	}
	return ModeRelay
}

func (s *Selector) SendFrame(frame []byte) error {
	s.mu.RLock()
	peer := s.peer
	s.mu.RUnlock()

	if peer != nil && peer.Connected() {
		if err := peer.Send(frame); err != nil {
			log.Printf("Peer frame send failed: %v", err)
		} else {
			metrics.SelectorFrames.WithLabelValues(ModePeer).Inc()
		}
	}

	err := s.relay(frame)
	if err == nil {
		metrics.SelectorFrames.WithLabelValues(ModeRelay).Inc()
	}
	return err
}

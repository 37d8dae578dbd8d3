package ws

import (
	"context"
	"log"

	"github.com/wepaintai/wepaintai-sub000/cache"
)

type subscription struct {
	client    *Client
	sessionId string
}

// Hub maintains the set of active clients and fans session broadcasts
// out to them. Each subscribed session holds two cache subscriptions:
// the durable event channel (committed strokes, undo/redo flags, layer
// changes, clears) and the live channel (presence and stroke previews).
// Both are torn down when the last local client leaves the session.
type Hub struct {
	paintCache              cache.PaintCache
	OpenCh                  chan *Client
	CloseCh                 chan *Client
	SubscribeCh             chan subscription
	UnsubscribeCh           chan subscription
	participantToClients    map[string]map[*Client]struct{}
	sessionToClients        map[string]map[*Client]struct{}
	sessionSubscriberCancel map[string]context.CancelFunc
}

func NewHub(paintCache cache.PaintCache) *Hub {
	return &Hub{
		paintCache:              paintCache,
		OpenCh:                  make(chan *Client, 256),
		CloseCh:                 make(chan *Client, 256),
		SubscribeCh:             make(chan subscription, 1024),
		UnsubscribeCh:           make(chan subscription, 1024),
		participantToClients:    make(map[string]map[*Client]struct{}),
		sessionToClients:        make(map[string]map[*Client]struct{}),
		sessionSubscriberCancel: make(map[string]context.CancelFunc),
	}
}

const (
	maxConnectionsPerParticipant = 3
	maxSessionsPerConnection     = 8
)

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.OpenCh:
			if _, ok := h.participantToClients[client.participant.Id]; !ok {
				h.participantToClients[client.participant.Id] = make(map[*Client]struct{})
			}

			if len(h.participantToClients[client.participant.Id]) >= maxConnectionsPerParticipant {
				log.Printf("Participant %s reached max connections (%d)", client.participant.Id, maxConnectionsPerParticipant)
				close(client.Send)
				continue
			}

			h.participantToClients[client.participant.Id][client] = struct{}{}

		case client := <-h.CloseCh:
			for sessionId := range client.subscribedSessions {
				h.dropFromSession(client, sessionId)
			}
			delete(h.participantToClients[client.participant.Id], client)
			if len(h.participantToClients[client.participant.Id]) == 0 {
				delete(h.participantToClients, client.participant.Id)
			}

		case sub := <-h.SubscribeCh:
			if len(sub.client.subscribedSessions) >= maxSessionsPerConnection {
				log.Printf("Connection by participant %s reached max sessions (%d)", sub.client.participant.Id, maxSessionsPerConnection)
				continue
			}
			if h.sessionToClients[sub.sessionId] == nil {
				if !h.startSessionSubscriber(sub.sessionId) {
					continue
				}
			}
			h.sessionToClients[sub.sessionId][sub.client] = struct{}{}
			sub.client.subscribedSessions[sub.sessionId] = struct{}{}

		case unsub := <-h.UnsubscribeCh:
			h.dropFromSession(unsub.client, unsub.sessionId)
			delete(unsub.client.subscribedSessions, unsub.sessionId)
		}
	}
}

// startSessionSubscriber opens the node-local cache subscriptions for a
// session the first time a local client joins it.
func (h *Hub) startSessionSubscriber(sessionId string) bool {
	log.Printf("Subscriber does not exist, creating for session: %s", sessionId)

	ctx, cancel := context.WithCancel(context.Background())
	fanOut := func(messageBytes []byte) {
		for client := range h.sessionToClients[sessionId] {
			select {
			case client.Send <- messageBytes:
			default:
				// Slow consumer; live traffic is droppable and durable
				// events are recoverable via a catch-up load.
			}
		}
	}

	if err := h.paintCache.Subscribe(ctx, "session:"+sessionId, fanOut); err != nil {
		log.Printf("Failed to create event sub for session %s: %v", sessionId, err)
		cancel()
		return false
	}
	if err := h.paintCache.Subscribe(ctx, "session:"+sessionId+":live", fanOut); err != nil {
		log.Printf("Failed to create live sub for session %s: %v", sessionId, err)
		cancel()
		return false
	}

	h.sessionToClients[sessionId] = make(map[*Client]struct{})
	h.sessionSubscriberCancel[sessionId] = cancel
	return true
}

func (h *Hub) dropFromSession(client *Client, sessionId string) {
	delete(h.sessionToClients[sessionId], client)
	if len(h.sessionToClients[sessionId]) == 0 {
		if cancel, ok := h.sessionSubscriberCancel[sessionId]; ok {
			cancel()
			delete(h.sessionSubscriberCancel, sessionId)
		}
		delete(h.sessionToClients, sessionId)
	}
}

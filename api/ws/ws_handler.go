package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/service"
)

type Handler struct {
	Service *service.Service
	Hub     *Hub
}

func NewHandler(svc *service.Service, hub *Hub) *Handler {
	return &Handler{
		Service: svc,
		Hub:     hub,
	}
}

func (h *Handler) NewWsUpgrader(requiredOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == requiredOrigin
		},
		Subprotocols: []string{"wepaint-v1"},
	}
}

// ServeWS handles websocket requests from the peer. The auth token
// rides the second subprotocol slot since browsers cannot set headers
// on websocket upgrades.
func (h *Handler) ServeWS(wsUpgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, shutdownCtx context.Context) {
	protocols := r.Header.Get("Sec-WebSocket-Protocol")
	protocolsSplit := strings.Split(protocols, ",")

	if len(protocolsSplit) != 2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token := strings.TrimSpace(protocolsSplit[1])

	participant, authErr := h.Service.AuthenticateToken(token)

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade ws connection: %v", err)
		return
	}

	// Must upgrade the connection in order to be able to send custom close message
	if authErr != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthenticated"),
		)
		conn.Close()
		return
	}

	client := NewClient(h.Hub, conn, participant, h.HandleWsMessage)

	h.Hub.OpenCh <- client

	go client.ReadPump()
	go client.WritePump(shutdownCtx)
}

// Websocket message structs
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type sessionMessage struct {
	SessionId  string `json:"sessionId"`
	AfterOrder int64  `json:"afterOrder,omitempty"`
}

type commitMessage struct {
	SessionId string        `json:"sessionId"`
	TempId    string        `json:"tempId"`
	Stroke    models.Stroke `json:"stroke"`
}

type createLayerMessage struct {
	SessionId string            `json:"sessionId"`
	Kind      models.LayerKind  `json:"kind"`
	Image     *models.ImageInfo `json:"image,omitempty"`
}

type layerMessage struct {
	SessionId   string            `json:"sessionId"`
	LayerId     string            `json:"layerId"`
	TargetOrder int               `json:"targetOrder,omitempty"`
	Visible     *bool             `json:"visible,omitempty"`
	Opacity     *float64          `json:"opacity,omitempty"`
	Transform   *models.Transform `json:"transform,omitempty"`
}

type presenceMessage struct {
	SessionId string          `json:"sessionId"`
	Presence  models.Presence `json:"presence"`
}

type liveStrokeMessage struct {
	SessionId  string            `json:"sessionId"`
	LiveStroke models.LiveStroke `json:"liveStroke"`
}

type responseMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (h *Handler) HandleWsMessage(client *Client, messageType int, messageBytes []byte) {
	var msg message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		log.Printf("Invalid JSON: %v", err)
		return
	}

	var resp responseMessage

	switch msg.Type {
	case "load":
		var sessionMsg sessionMessage
		if err := json.Unmarshal(msg.Data, &sessionMsg); err != nil {
			log.Printf("Invalid load data: %v", err)
			return
		}
		resp = h.handleLoad(client, sessionMsg)

	case "subscribe":
		var sessionMsg sessionMessage
		if err := json.Unmarshal(msg.Data, &sessionMsg); err != nil {
			log.Printf("Invalid subscribe data: %v", err)
			return
		}
		resp = h.handleSubscribe(client, sessionMsg)

	case "unsubscribe":
		var sessionMsg sessionMessage
		if err := json.Unmarshal(msg.Data, &sessionMsg); err != nil {
			log.Printf("Invalid unsubscribe data: %v", err)
			return
		}
		resp = h.handleUnsubscribe(client, sessionMsg)

	case "commit":
		var commitMsg commitMessage
		if err := json.Unmarshal(msg.Data, &commitMsg); err != nil {
			log.Printf("Invalid commit data: %v", err)
			return
		}
		resp = h.handleCommit(client, commitMsg)

	case "undo", "redo", "clear":
		var sessionMsg sessionMessage
		if err := json.Unmarshal(msg.Data, &sessionMsg); err != nil {
			log.Printf("Invalid %s data: %v", msg.Type, err)
			return
		}
		resp = h.handleHistory(client, msg.Type, sessionMsg)

	case "create_layer":
		var createMsg createLayerMessage
		if err := json.Unmarshal(msg.Data, &createMsg); err != nil {
			log.Printf("Invalid create_layer data: %v", err)
			return
		}
		resp = h.handleCreateLayer(client, createMsg)

	case "reorder_layer", "delete_layer", "set_layer_visibility", "set_layer_opacity", "set_layer_transform":
		var layerMsg layerMessage
		if err := json.Unmarshal(msg.Data, &layerMsg); err != nil {
			log.Printf("Invalid %s data: %v", msg.Type, err)
			return
		}
		resp = h.handleLayerMutation(client, msg.Type, layerMsg)

	case "presence":
		var presenceMsg presenceMessage
		if err := json.Unmarshal(msg.Data, &presenceMsg); err != nil {
			log.Printf("Invalid presence data: %v", err)
			return
		}
		presenceMsg.Presence.ParticipantId = client.participant.Id
		if err := h.Service.PublishPresence(context.Background(), presenceMsg.SessionId, presenceMsg.Presence); err != nil {
			log.Printf("Presence rejected for session %s: %v", presenceMsg.SessionId, err)
			resp = responseMessage{Type: "presence_response", Data: map[string]any{"success": false, "sessionId": presenceMsg.SessionId}}
			break
		}
		return

	case "live_stroke":
		var liveMsg liveStrokeMessage
		if err := json.Unmarshal(msg.Data, &liveMsg); err != nil {
			log.Printf("Invalid live_stroke data: %v", err)
			return
		}
		liveMsg.LiveStroke.ParticipantId = client.participant.Id
		if err := h.Service.PublishLiveStroke(context.Background(), liveMsg.SessionId, liveMsg.LiveStroke); err != nil {
			log.Printf("Live stroke rejected for session %s: %v", liveMsg.SessionId, err)
			resp = responseMessage{Type: "live_stroke_response", Data: map[string]any{"success": false, "sessionId": liveMsg.SessionId}}
			break
		}
		return

	default:
		log.Printf("Unknown message type: %v", msg.Type)
	}

	if resp.Type != "" {
		respBytes, err := json.Marshal(resp)
		if err != nil {
			log.Printf("Error marshaling response JSON: %v", err)
			return
		}
		client.Send <- respBytes
	}
}

func (h *Handler) handleLoad(client *Client, sessionMsg sessionMessage) responseMessage {
	resp := responseMessage{
		Type: "load_response",
	}

	strokes, layers, err := h.Service.LoadSession(context.Background(), sessionMsg.SessionId, sessionMsg.AfterOrder)
	if err != nil {
		log.Printf("LoadSession failed: %v", err)
		resp.Data = map[string]any{"success": false, "sessionId": sessionMsg.SessionId, "strokes": []models.Stroke{}, "layers": []models.Layer{}}
		return resp
	}

	resp.Data = map[string]any{"success": true, "sessionId": sessionMsg.SessionId, "afterOrder": sessionMsg.AfterOrder, "strokes": strokes, "layers": layers}
	return resp
}

func (h *Handler) handleSubscribe(client *Client, sessionMsg sessionMessage) responseMessage {
	resp := responseMessage{
		Type: "subscribe_response",
	}

	if err := service.ValidateSessionId(sessionMsg.SessionId); err != nil {
		log.Printf("Subscribe session id validation failed: %v", err)
		resp.Data = map[string]any{"success": false, "sessionId": sessionMsg.SessionId}
		return resp
	}

	sub := subscription{client: client, sessionId: sessionMsg.SessionId}
	h.Hub.SubscribeCh <- sub
	resp.Data = map[string]any{"success": true, "sessionId": sessionMsg.SessionId}

	return resp
}

func (h *Handler) handleUnsubscribe(client *Client, sessionMsg sessionMessage) responseMessage {
	resp := responseMessage{
		Type: "unsubscribe_response",
	}

	if err := service.ValidateSessionId(sessionMsg.SessionId); err != nil {
		log.Printf("Unsubscribe session id validation failed: %v", err)
		resp.Data = map[string]any{"success": false, "sessionId": sessionMsg.SessionId}
		return resp
	}

	sub := subscription{client: client, sessionId: sessionMsg.SessionId}
	h.Hub.UnsubscribeCh <- sub
	resp.Data = map[string]any{"success": true, "sessionId": sessionMsg.SessionId}

	return resp
}

func (h *Handler) handleCommit(client *Client, commitMsg commitMessage) responseMessage {
	resp := responseMessage{
		Type: "commit_response",
	}

	stroke := commitMsg.Stroke
	stroke.AuthorId = client.participant.Id
	if stroke.AuthorColor == "" {
		stroke.AuthorColor = client.participant.Color
	}

	committed, err := h.Service.CommitStroke(context.Background(), commitMsg.SessionId, commitMsg.TempId, stroke)
	if err != nil {
		log.Printf("CommitStroke failed: %v", err)
		resp.Data = map[string]any{
			"success":   false,
			"error":     err.Error(),
			"sessionId": commitMsg.SessionId,
			"tempId":    commitMsg.TempId,
		}
		return resp
	}

	resp.Data = map[string]any{
		"success":   true,
		"sessionId": commitMsg.SessionId,
		"tempId":    commitMsg.TempId,
		"strokeId":  committed.Id,
		"order":     committed.Order,
	}

	return resp
}

func (h *Handler) handleHistory(client *Client, msgType string, sessionMsg sessionMessage) responseMessage {
	resp := responseMessage{
		Type: msgType + "_response",
	}

	var stroke *models.Stroke
	var err error
	switch msgType {
	case "undo":
		stroke, err = h.Service.Undo(context.Background(), sessionMsg.SessionId)
	case "redo":
		stroke, err = h.Service.Redo(context.Background(), sessionMsg.SessionId)
	case "clear":
		err = h.Service.ClearSession(context.Background(), sessionMsg.SessionId)
	}

	if err != nil {
		log.Printf("%s failed: %v", msgType, err)
		resp.Data = map[string]any{"success": false, "error": err.Error(), "sessionId": sessionMsg.SessionId}
		return resp
	}

	data := map[string]any{"success": true, "sessionId": sessionMsg.SessionId}
	if msgType != "clear" {
		// applied=false means there was nothing to undo/redo
		data["applied"] = stroke != nil
		if stroke != nil {
			data["strokeId"] = stroke.Id
			data["order"] = stroke.Order
		}
	}
	resp.Data = data
	return resp
}

func (h *Handler) handleCreateLayer(client *Client, createMsg createLayerMessage) responseMessage {
	resp := responseMessage{
		Type: "create_layer_response",
	}

	layer, err := h.Service.CreateLayer(context.Background(), service.CreateLayerParams{
		SessionId: createMsg.SessionId,
		Kind:      createMsg.Kind,
		Image:     createMsg.Image,
	})
	if err != nil {
		log.Printf("CreateLayer failed: %v", err)
		resp.Data = map[string]any{"success": false, "error": err.Error(), "sessionId": createMsg.SessionId}
		return resp
	}

	resp.Data = map[string]any{"success": true, "sessionId": createMsg.SessionId, "layer": layer}
	return resp
}

func (h *Handler) handleLayerMutation(client *Client, msgType string, layerMsg layerMessage) responseMessage {
	resp := responseMessage{
		Type: msgType + "_response",
	}

	ctx := context.Background()
	var err error
	switch msgType {
	case "reorder_layer":
		_, err = h.Service.ReorderLayer(ctx, layerMsg.SessionId, layerMsg.LayerId, layerMsg.TargetOrder)
	case "delete_layer":
		_, err = h.Service.DeleteLayer(ctx, layerMsg.SessionId, layerMsg.LayerId)
	case "set_layer_visibility":
		if layerMsg.Visible == nil {
			err = errors.New("missing visible field")
		} else {
			err = h.Service.SetLayerVisibility(ctx, layerMsg.SessionId, layerMsg.LayerId, *layerMsg.Visible)
		}
	case "set_layer_opacity":
		if layerMsg.Opacity == nil {
			err = errors.New("missing opacity field")
		} else {
			err = h.Service.SetLayerOpacity(ctx, layerMsg.SessionId, layerMsg.LayerId, *layerMsg.Opacity)
		}
	case "set_layer_transform":
		if layerMsg.Transform == nil {
			err = errors.New("missing transform field")
		} else {
			err = h.Service.SetLayerTransform(ctx, layerMsg.SessionId, layerMsg.LayerId, *layerMsg.Transform)
		}
	}

	if err != nil {
		log.Printf("%s failed: %v", msgType, err)
		resp.Data = map[string]any{
			"success":   false,
			"error":     err.Error(),
			"sessionId": layerMsg.SessionId,
			"layerId":   layerMsg.LayerId,
		}
		return resp
	}

	resp.Data = map[string]any{"success": true, "sessionId": layerMsg.SessionId, "layerId": layerMsg.LayerId}
	return resp
}

package rest

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/wepaintai/wepaintai-sub000/models"
	"github.com/wepaintai/wepaintai-sub000/service"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{Service: svc}
}

type guestRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type guestResponse struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Token string `json:"token"`
}

// HandleGuest mints a guest identity. Sessions are joinable by link, so
// this is the only entry point to the whole API.
func (h *Handler) HandleGuest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req guestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = "Anonymous"
	}

	guest, token, err := h.Service.CreateGuest(req.Name, req.Color)
	if err != nil {
		log.Printf("Guest creation failed: %v", err)
		http.Error(w, "guest creation failed", http.StatusInternalServerError)
		return
	}

	resp := guestResponse{
		Id:    guest.Id,
		Name:  guest.Name,
		Color: guest.Color,
		Token: token,
	}
	h.sendResponse(w, resp)
}

type createSessionResponse struct {
	Session models.Session `json:"session"`
	Layers  []models.Layer `json:"layers"`
}

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := h.Service.AuthenticateToken(h.getTokenFromAuthHeader(r)); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	session, layers, err := h.Service.CreateSession(r.Context())
	if err != nil {
		log.Printf("Session creation failed: %v", err)
		http.Error(w, "session creation failed", http.StatusInternalServerError)
		return
	}

	h.sendResponse(w, createSessionResponse{Session: session, Layers: layers})
}

type getSessionResponse struct {
	Session models.Session `json:"session"`
	Strokes []models.Stroke `json:"strokes"`
	Layers  []models.Layer  `json:"layers"`
}

// HandleSession serves a point-in-time session snapshot over plain
// HTTP, for clients that want state before the websocket is up.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := h.Service.AuthenticateToken(h.getTokenFromAuthHeader(r)); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	sessionId := r.PathValue("id")
	session, err := h.Service.GetSession(r.Context(), sessionId)
	if err == service.ErrSessionNotFound {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Session lookup failed: %v", err)
		http.Error(w, "session lookup failed", http.StatusInternalServerError)
		return
	}

	strokes, layers, err := h.Service.LoadSession(r.Context(), sessionId, 0)
	if err != nil {
		log.Printf("Session load failed: %v", err)
		http.Error(w, "session load failed", http.StatusInternalServerError)
		return
	}

	h.sendResponse(w, getSessionResponse{Session: session, Strokes: strokes, Layers: layers})
}

func (h *Handler) sendResponse(w http.ResponseWriter, resp any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) getTokenFromAuthHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, prefix)
}

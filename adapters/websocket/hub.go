package websocket

import (
	"fmt"
	"sync"

	"github.com/satriahrh/cocoa-fruit/pdfchat/utils/log"
)

// Hub tracks connected clients per session
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]struct{}
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[*Client]struct{}),
	}
}

// Register adds a client and reports whether it is the first one of its
// session
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[client.sessionID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.sessions[client.sessionID] = clients
	}
	clients[client] = struct{}{}
	log.WithCtx(client.ctx).Debug("New client registered")
	return !ok
}

// Unregister removes and closes a client and reports whether it was the
// last one of its session
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[client.sessionID]
	if !ok {
		return false
	}
	if _, ok := clients[client]; !ok {
		return false
	}
	delete(clients, client)
	client.Close()
	log.WithCtx(client.ctx).Debug("Client unregistered")

	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
		return true
	}
	return false
}

// SendToSession sends a message to every client of a session
func (h *Hub) SendToSession(sessionID string, message Message) error {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.sessions[sessionID]))
	for client := range h.sessions[sessionID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return fmt.Errorf("no client connected for session %s", sessionID)
	}
	for _, client := range clients {
		if !client.IsClosed() {
			client.SendJSON(message)
		}
	}
	return nil
}

// IsSessionConnected checks if a session has at least one client
func (h *Hub) IsSessionConnected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.sessions {
		n += len(clients)
	}
	return n
}

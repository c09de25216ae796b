// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub tracks WebSocket connections grouped by session and fans events
// out to every connection watching that session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]bool

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
}

// NewHub creates an idle hub. Call Run in its own goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Publish queues an event for everyone watching its session. It never
// blocks the caller: if the hub's queue is full the event is dropped and
// clients recover by refetching state.
func (h *Hub) Publish(msg *Message) {
	select {
	case h.broadcast <- msg:
	default:
		slog.Warn("event dropped, broadcast queue full",
			"type", msg.Type, "session_id", msg.SessionID)
	}
}

// SessionConnections reports how many connections are watching a session.
func (h *Hub) SessionConnections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Run processes registrations and broadcasts until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.sessions[client.sessionID] == nil {
				h.sessions[client.sessionID] = make(map[*Client]bool)
			}
			h.sessions[client.sessionID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.sessions[client.sessionID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.sessions, client.sessionID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			raw, err := json.Marshal(msg)
			if err != nil {
				slog.Error("failed to marshal event", "type", msg.Type, "error", err)
				continue
			}

			h.mu.Lock()
			for client := range h.sessions[msg.SessionID] {
				select {
				case client.send <- raw:
				default:
					// Slow consumer: drop the connection, not the hub
					delete(h.sessions[msg.SessionID], client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/placepact/server/cliparse"
	"github.com/placepact/server/realtime"
)

type EventsHandler struct {
	db  *sql.DB
	cfg cliparse.Config
	hub *realtime.Hub
}

func NewEventsHandler(db *sql.DB, cfg cliparse.Config, hub *realtime.Hub) *EventsHandler {
	return &EventsHandler{db: db, cfg: cfg, hub: hub}
}

// Subscribe handles GET /sessions/:code/ws
func (h *EventsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	sess, ok := findSessionByCode(h.db, w, r)
	if !ok {
		return
	}

	if err := realtime.ServeWS(h.hub, w, r, sess.ID); err != nil {
		// Upgrade failures already wrote a response
		slog.Warn("websocket upgrade failed", "error", err, "session_id", sess.ID)
	}
}

// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/placepact/server/auth"
	"github.com/placepact/server/cliparse"
	"github.com/placepact/server/engine"
	"github.com/placepact/server/middleware"
	"github.com/placepact/server/models"
	"github.com/placepact/server/realtime"
)

type SessionHandler struct {
	db    *sql.DB
	cfg   cliparse.Config
	hub   *realtime.Hub
	coord *engine.Coordinator
}

func NewSessionHandler(db *sql.DB, cfg cliparse.Config, hub *realtime.Hub) *SessionHandler {
	return &SessionHandler{db: db, cfg: cfg, hub: hub, coord: engine.NewCoordinator(db)}
}

// CreateSession handles POST /sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.CreatorName == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "creator_name is required")
		return
	}
	if len(req.Items) < 2 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "at least 2 items are required")
		return
	}
	if len(req.Items) > 100 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "at most 100 items are allowed")
		return
	}

	seen := make(map[string]bool, len(req.Items))
	for i := range req.Items {
		item := &req.Items[i]
		if item.Name == "" {
			middleware.ErrorResponse(w, http.StatusBadRequest, "every item needs a name")
			return
		}
		if item.ItemID == "" {
			id, err := auth.GenerateID(8)
			if err != nil {
				slog.Error("failed to generate item id", "error", err)
				middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create session")
				return
			}
			item.ItemID = id
		}
		if seen[item.ItemID] {
			middleware.ErrorResponse(w, http.StatusBadRequest, "duplicate item id: "+item.ItemID)
			return
		}
		seen[item.ItemID] = true
	}

	sessionID, err := auth.GenerateID(16)
	if err != nil {
		slog.Error("failed to generate session id", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	hostKey := auth.GenerateHostKey(sessionID, h.cfg.HostKeySalt)
	joinCode := auth.GenerateJoinCode(sessionID, h.cfg.JoinCodeSalt)

	tx, err := h.db.Begin()
	if err != nil {
		slog.Error("failed to begin transaction", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create session")
		return
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO session (id, join_code, creator_name, status, phase, current_round, version, locked, created_at)
		VALUES ($1, $2, $3, $4, $5, 1, 0, FALSE, $6)
	`, sessionID, joinCode, req.CreatorName, models.StatusActive, models.PhaseSwiping, time.Now())
	if err != nil {
		slog.Error("failed to insert session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	for i, item := range req.Items {
		payload := item.Payload
		if payload == nil {
			payload = []byte("{}")
		}
		_, err = tx.Exec(`
			INSERT INTO session_item (session_id, item_id, name, payload, position)
			VALUES ($1, $2, $3, $4, $5)
		`, sessionID, item.ItemID, item.Name, string(payload), i)
		if err != nil {
			slog.Error("failed to insert item", "error", err, "session_id", sessionID)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create session")
			return
		}

		// Round 1 deck is the full item list in submission order
		_, err = tx.Exec(`
			INSERT INTO session_deck (session_id, round_number, item_id, position)
			VALUES ($1, 1, $2, $3)
		`, sessionID, item.ItemID, i)
		if err != nil {
			slog.Error("failed to insert deck row", "error", err, "session_id", sessionID)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create session")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed to commit session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	slog.Info("session created", "session_id", sessionID, "items", len(req.Items))

	middleware.JSONResponse(w, http.StatusCreated, models.CreateSessionResponse{
		SessionID: sessionID,
		JoinCode:  joinCode,
		HostKey:   hostKey,
	})
}

// GetSession handles GET /sessions/:code
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.findSession(w, r)
	if !ok {
		return
	}

	deck, err := loadDeck(h.db, sess.ID, sess.CurrentRound)
	if err != nil {
		slog.Error("failed to load deck", "error", err, "session_id", sess.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var participantCount int
	err = h.db.QueryRow(`
		SELECT COUNT(*) FROM session_participant WHERE session_id = $1
	`, sess.ID).Scan(&participantCount)
	if err != nil {
		slog.Error("failed to count participants", "error", err, "session_id", sess.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	matches, err := loadMatches(h.db, sess.ID)
	if err != nil {
		slog.Error("failed to load matches", "error", err, "session_id", sess.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var finalChoice *models.Match
	for i := range matches {
		if matches[i].IsFinalChoice {
			finalChoice = &matches[i]
			break
		}
	}

	middleware.JSONResponse(w, http.StatusOK, models.SessionStateResponse{
		Session:          sess,
		Deck:             deck,
		ParticipantCount: participantCount,
		Matches:          matches,
		FinalChoice:      finalChoice,
		CreatedAgo:       humanize.Time(sess.CreatedAt),
	})
}

// JoinSession handles POST /sessions/:code/join
func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.findSession(w, r)
	if !ok {
		return
	}

	if sess.Status != models.StatusActive {
		middleware.ErrorResponse(w, http.StatusConflict, "Session is no longer active")
		return
	}

	var req models.JoinSessionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if len(req.DisplayName) < 2 || len(req.DisplayName) > 50 {
		middleware.ErrorResponse(w, http.StatusBadRequest, "display_name must be 2-50 characters")
		return
	}

	participantID := auth.NewParticipantID()
	token, err := auth.GenerateParticipantToken()
	if err != nil {
		slog.Error("failed to generate participant token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to join session")
		return
	}

	// UNIQUE constraint on (session_id, display_name) rejects duplicates
	_, err = h.db.Exec(`
		INSERT INTO session_participant (session_id, participant_id, display_name, participant_token, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sess.ID, participantID, req.DisplayName, token, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			middleware.ErrorResponse(w, http.StatusConflict, "Display name already taken")
			return
		}
		slog.Error("failed to insert participant", "error", err, "session_id", sess.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to join session")
		return
	}

	slog.Info("participant joined", "session_id", sess.ID, "participant_id", participantID)
	h.hub.Publish(realtime.NewParticipantJoinedEvent(sess.ID, participantID, req.DisplayName))

	middleware.JSONResponse(w, http.StatusCreated, models.JoinSessionResponse{
		ParticipantID:    participantID,
		ParticipantToken: token,
	})
}

// LeaveSession handles POST /sessions/:code/leave
func (h *SessionHandler) LeaveSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.findSession(w, r)
	if !ok {
		return
	}

	participantID, ok := h.authenticateParticipant(w, r, sess.ID)
	if !ok {
		return
	}

	if _, err := h.db.Exec(`
		DELETE FROM session_participant WHERE session_id = $1 AND participant_id = $2
	`, sess.ID, participantID); err != nil {
		slog.Error("failed to remove participant", "error", err, "session_id", sess.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to leave session")
		return
	}

	slog.Info("participant left", "session_id", sess.ID, "participant_id", participantID)
	h.hub.Publish(realtime.NewParticipantLeftEvent(sess.ID, participantID))

	// The departure may have been the last missing vote
	var completion *models.RoundCompletionResult
	if sess.Status == models.StatusActive {
		result, err := h.coord.CheckAndComplete(r.Context(), sess.ID)
		if err != nil {
			slog.Warn("completion check after leave failed", "error", err, "session_id", sess.ID)
		} else if result.Completed {
			completion = result
			broadcastCompletion(h.db, h.hub, sess.ID, result)
		}
	}

	middleware.JSONResponse(w, http.StatusOK, models.LeaveSessionResponse{
		Left:       true,
		Completion: completion,
	})
}

// CloseSession handles POST /sessions/:code/close
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.findSession(w, r)
	if !ok {
		return
	}

	hostKey := r.Header.Get("X-Host-Key")
	if hostKey == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Host-Key header required")
		return
	}
	if err := auth.ValidateHostKey(sess.ID, hostKey, h.cfg.HostKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusForbidden, "Invalid host key")
		return
	}

	if sess.Status != models.StatusActive {
		middleware.ErrorResponse(w, http.StatusConflict, "Session is already closed")
		return
	}

	res, err := h.db.Exec(`
		UPDATE session SET status = $1, version = version + 1
		WHERE id = $2 AND status = $3 AND locked = FALSE
	`, models.StatusCompleted, sess.ID, models.StatusActive)
	if err != nil {
		slog.Error("failed to close session", "error", err, "session_id", sess.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to close session")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost the race against a round transition or another close
		middleware.ErrorResponse(w, http.StatusConflict, "Session is busy, try again")
		return
	}

	slog.Info("session closed by host", "session_id", sess.ID)

	closed := sess
	closed.Status = models.StatusCompleted
	closed.Version++
	h.hub.Publish(realtime.NewSessionUpdatedEvent(closed, humanize.Ordinal(closed.CurrentRound), models.ActionEnd))

	middleware.JSONResponse(w, http.StatusOK, models.CloseSessionResponse{
		Status: models.StatusCompleted,
	})
}

// findSession resolves the join code in the request path. On failure it
// writes the error response and returns ok=false.
func (h *SessionHandler) findSession(w http.ResponseWriter, r *http.Request) (models.Session, bool) {
	return findSessionByCode(h.db, w, r)
}

func (h *SessionHandler) authenticateParticipant(w http.ResponseWriter, r *http.Request, sessionID string) (string, bool) {
	return authenticateParticipant(h.db, w, r, sessionID)
}

// Shared helpers used by the session, voting, and results handlers.

func findSessionByCode(db *sql.DB, w http.ResponseWriter, r *http.Request) (models.Session, bool) {
	code := r.PathValue("code")
	if code == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "code is required")
		return models.Session{}, false
	}

	var sess models.Session
	err := db.QueryRow(`
		SELECT id, join_code, creator_name, status, phase, current_round, version, locked, created_at
		FROM session WHERE join_code = $1
	`, code).Scan(&sess.ID, &sess.JoinCode, &sess.CreatorName, &sess.Status, &sess.Phase,
		&sess.CurrentRound, &sess.Version, &sess.Locked, &sess.CreatedAt)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusNotFound, "Session not found")
		return models.Session{}, false
	}
	if err != nil {
		slog.Error("failed to query session", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return models.Session{}, false
	}

	return sess, true
}

func authenticateParticipant(db *sql.DB, w http.ResponseWriter, r *http.Request, sessionID string) (string, bool) {
	token := r.Header.Get("X-Participant-Token")
	if token == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "X-Participant-Token header required")
		return "", false
	}

	var participantID string
	err := db.QueryRow(`
		SELECT participant_id FROM session_participant
		WHERE session_id = $1 AND participant_token = $2
	`, sessionID, token).Scan(&participantID)

	if err == sql.ErrNoRows {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid participant token")
		return "", false
	}
	if err != nil {
		slog.Error("failed to look up participant", "error", err, "session_id", sessionID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return "", false
	}

	return participantID, true
}

func loadDeck(db *sql.DB, sessionID string, roundNumber int) ([]models.Item, error) {
	rows, err := db.Query(`
		SELECT i.item_id, i.name, i.payload, d.position
		FROM session_deck d
		JOIN session_item i ON i.session_id = d.session_id AND i.item_id = d.item_id
		WHERE d.session_id = $1 AND d.round_number = $2
		ORDER BY d.position
	`, sessionID, roundNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deck := []models.Item{}
	for rows.Next() {
		var item models.Item
		var payload sql.NullString
		if err := rows.Scan(&item.ItemID, &item.Name, &payload, &item.Position); err != nil {
			return nil, err
		}
		if payload.Valid {
			item.Payload = []byte(payload.String)
		}
		deck = append(deck, item)
	}
	return deck, rows.Err()
}

func loadMatches(db *sql.DB, sessionID string) ([]models.Match, error) {
	rows, err := db.Query(`
		SELECT session_id, item_id, name, payload, accept_count, matched_round, is_final_choice, created_at
		FROM session_match
		WHERE session_id = $1
		ORDER BY matched_round, item_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []models.Match{}
	for rows.Next() {
		var m models.Match
		var payload sql.NullString
		if err := rows.Scan(&m.SessionID, &m.ItemID, &m.Name, &payload,
			&m.AcceptCount, &m.MatchedRound, &m.IsFinalChoice, &m.CreatedAt); err != nil {
			return nil, err
		}
		if payload.Valid {
			m.Payload = []byte(payload.String)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// isUniqueViolation matches the driver-specific error text for unique
// constraint failures (sqlite and postgres).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

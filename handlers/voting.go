// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/placepact/server/cliparse"
	"github.com/placepact/server/engine"
	"github.com/placepact/server/middleware"
	"github.com/placepact/server/models"
	"github.com/placepact/server/realtime"
)

type VotingHandler struct {
	db    *sql.DB
	cfg   cliparse.Config
	hub   *realtime.Hub
	coord *engine.Coordinator
}

func NewVotingHandler(db *sql.DB, cfg cliparse.Config, hub *realtime.Hub) *VotingHandler {
	return &VotingHandler{db: db, cfg: cfg, hub: hub, coord: engine.NewCoordinator(db)}
}

// SubmitVote handles POST /sessions/:code/votes
func (h *VotingHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	sess, ok := findSessionByCode(h.db, w, r)
	if !ok {
		return
	}

	participantID, ok := authenticateParticipant(h.db, w, r, sess.ID)
	if !ok {
		return
	}

	var req models.SubmitVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Direction != models.DirectionAccept && req.Direction != models.DirectionReject {
		middleware.ErrorResponse(w, http.StatusBadRequest, "direction must be accept or reject")
		return
	}
	if req.ItemID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "item_id is required")
		return
	}

	if sess.Status != models.StatusActive {
		middleware.ErrorResponse(w, http.StatusConflict, "Session is no longer active")
		return
	}

	// Votes are only valid against the round the session is actually in
	if req.RoundNumber != sess.CurrentRound {
		middleware.ErrorResponse(w, http.StatusConflict, "Stale round: session has moved on")
		return
	}

	deck, err := engine.DeckItemIDs(r.Context(), h.db, sess.ID, sess.CurrentRound)
	if err != nil {
		slog.Error("failed to load deck", "error", err, "session_id", sess.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	inDeck := false
	for _, itemID := range deck {
		if itemID == req.ItemID {
			inDeck = true
			break
		}
	}
	if !inDeck {
		middleware.ErrorResponse(w, http.StatusConflict, "Item is not in the current round's deck")
		return
	}

	inserted, err := engine.InsertVote(r.Context(), h.db, models.Vote{
		SessionID:     sess.ID,
		RoundNumber:   req.RoundNumber,
		ParticipantID: participantID,
		ItemID:        req.ItemID,
		Direction:     req.Direction,
	})
	if err != nil {
		slog.Error("failed to insert vote", "error", err, "session_id", sess.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to record vote")
		return
	}

	if inserted {
		h.hub.Publish(realtime.NewVoteRecordedEvent(sess.ID, participantID, req.RoundNumber))
	}

	// Every accepted vote may be the one that completes the round
	var completion *models.RoundCompletionResult
	result, err := h.coord.CheckAndComplete(r.Context(), sess.ID)
	if err != nil {
		// The vote is durable; a failed check just means another caller
		// (or the next vote) will complete the round
		slog.Warn("completion check failed", "error", err, "session_id", sess.ID)
	} else if result.Completed {
		completion = result
		broadcastCompletion(h.db, h.hub, sess.ID, result)
	}

	status := http.StatusCreated
	if !inserted {
		status = http.StatusOK
	}
	middleware.JSONResponse(w, status, models.SubmitVoteResponse{
		Duplicate:  !inserted,
		Completion: completion,
	})
}

// broadcastCompletion pushes the events produced by a completed round:
// one match.created per unanimous item, final.choice when the final
// vote resolved, and a session.updated describing the transition.
func broadcastCompletion(db *sql.DB, hub *realtime.Hub, sessionID string, result *models.RoundCompletionResult) {
	for _, itemID := range result.Unanimous {
		hub.Publish(realtime.NewMatchCreatedEvent(sessionID, itemID, result.ParticipantCount, result.RoundNumber))
	}

	if result.FinalResult != nil {
		hub.Publish(realtime.NewFinalChoiceEvent(sessionID, *result.FinalResult))
	}

	sess, err := engine.SessionState(context.Background(), db, sessionID)
	if err != nil {
		slog.Warn("failed to reload session for broadcast", "error", err, "session_id", sessionID)
		return
	}
	hub.Publish(realtime.NewSessionUpdatedEvent(sess, humanize.Ordinal(sess.CurrentRound), result.NextAction))
}

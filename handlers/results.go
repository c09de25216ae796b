// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/placepact/server/cliparse"
	"github.com/placepact/server/middleware"
	"github.com/placepact/server/models"
)

type ResultsHandler struct {
	db  *sql.DB
	cfg cliparse.Config
}

func NewResultsHandler(db *sql.DB, cfg cliparse.Config) *ResultsHandler {
	return &ResultsHandler{db: db, cfg: cfg}
}

// GetMatches handles GET /sessions/:code/matches
func (h *ResultsHandler) GetMatches(w http.ResponseWriter, r *http.Request) {
	sess, ok := findSessionByCode(h.db, w, r)
	if !ok {
		return
	}

	matches, err := loadMatches(h.db, sess.ID)
	if err != nil {
		slog.Error("failed to load matches", "error", err, "session_id", sess.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.MatchesResponse{
		Matches: matches,
	})
}

// GetFinalResult handles GET /sessions/:code/result
//
// The final result stays sealed until the session completes. A winner
// exists only when a final choice was flagged; a session can also
// complete with matches but no single winner, or with nothing at all.
func (h *ResultsHandler) GetFinalResult(w http.ResponseWriter, r *http.Request) {
	sess, ok := findSessionByCode(h.db, w, r)
	if !ok {
		return
	}

	if sess.Status != models.StatusCompleted {
		middleware.ErrorResponse(w, http.StatusConflict, "Results are not available until the session completes")
		return
	}

	matches, err := loadMatches(h.db, sess.ID)
	if err != nil {
		slog.Error("failed to load matches", "error", err, "session_id", sess.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	var winner *models.Match
	for i := range matches {
		if matches[i].IsFinalChoice {
			winner = &matches[i]
			break
		}
	}

	middleware.JSONResponse(w, http.StatusOK, models.FinalResultResponse{
		Winner: winner,
	})
}

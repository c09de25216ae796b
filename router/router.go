// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"database/sql"
	"net/http"

	"github.com/placepact/server/cliparse"
	"github.com/placepact/server/handlers"
	"github.com/placepact/server/middleware"
	"github.com/placepact/server/realtime"
)

func NewRouter(db *sql.DB, cfg cliparse.Config, hub *realtime.Hub) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(db, cfg, hub)
	votingHandler := handlers.NewVotingHandler(db, cfg, hub)
	resultsHandler := handlers.NewResultsHandler(db, cfg)
	eventsHandler := handlers.NewEventsHandler(db, cfg, hub)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Session lifecycle
	mux.HandleFunc("POST /sessions", middleware.WithLogging(sessionHandler.CreateSession))
	mux.HandleFunc("GET /sessions/{code}", middleware.WithLogging(sessionHandler.GetSession))
	mux.HandleFunc("POST /sessions/{code}/join", middleware.WithLogging(sessionHandler.JoinSession))
	mux.HandleFunc("POST /sessions/{code}/leave", middleware.WithLogging(sessionHandler.LeaveSession))
	mux.HandleFunc("POST /sessions/{code}/close", middleware.WithLogging(sessionHandler.CloseSession))

	// Voting
	mux.HandleFunc("POST /sessions/{code}/votes", middleware.WithLogging(votingHandler.SubmitVote))

	// Results
	mux.HandleFunc("GET /sessions/{code}/matches", middleware.WithLogging(resultsHandler.GetMatches))
	mux.HandleFunc("GET /sessions/{code}/result", middleware.WithLogging(resultsHandler.GetFinalResult))

	// Realtime event stream (no logging wrapper: long-lived connection)
	mux.HandleFunc("GET /sessions/{code}/ws", eventsHandler.Subscribe)

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("placepact API v1"))
	})

	return mux
}

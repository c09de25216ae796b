// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Placepact API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg, hub)

# Endpoints

Health:

	GET /health

Session lifecycle:

	POST /sessions               - Create session (returns host_key)
	GET  /sessions/{code}        - Live session state
	POST /sessions/{code}/join   - Join as participant
	POST /sessions/{code}/leave  - Leave (requires X-Participant-Token)
	POST /sessions/{code}/close  - Close early (requires X-Host-Key)

Voting:

	POST /sessions/{code}/votes - Submit a vote (requires X-Participant-Token)

Results:

	GET /sessions/{code}/matches - Unanimous items so far
	GET /sessions/{code}/result  - Final result (completed only)

Realtime:

	GET /sessions/{code}/ws - WebSocket event stream

# Handler Initialization

The router creates handler instances with dependency injection:

	sessionHandler := handlers.NewSessionHandler(db, cfg, hub)
	votingHandler := handlers.NewVotingHandler(db, cfg, hub)
	resultsHandler := handlers.NewResultsHandler(db, cfg)
	eventsHandler := handlers.NewEventsHandler(db, cfg, hub)

All handlers receive the database connection and configuration; the
session, voting, and events handlers also share the realtime hub.
*/
package router

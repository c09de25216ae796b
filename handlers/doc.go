// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Placepact API.

# Handler Types

Each handler is a struct with database and config dependencies:

  - SessionHandler: Session lifecycle (create, join, leave, close)
  - VotingHandler: Vote submission and round completion
  - ResultsHandler: Matches and final result retrieval
  - EventsHandler: WebSocket event stream

Handlers are created via constructor functions that accept *sql.DB,
Config, and the realtime hub:

	sessionHandler := handlers.NewSessionHandler(db, cfg, hub)

# Session Lifecycle

Sessions progress through two states: active → completed

	POST /sessions                → CreateSession (returns host_key, join_code)
	POST /sessions/{code}/join    → JoinSession (returns participant_token)
	POST /sessions/{code}/leave   → LeaveSession
	POST /sessions/{code}/close   → CloseSession (host only)

Host operations require the X-Host-Key header.

# Voting Flow

Participants interact via the join code:

	POST /sessions/{code}/votes → SubmitVote (idempotent per item)

Participant operations require the X-Participant-Token header. Votes
against a stale round or an item outside the current deck are rejected
with 409. Each accepted vote triggers a round-completion check through
the engine coordinator; when a round resolves, the handler broadcasts
the resulting events over the hub.

# Results

	GET /sessions/{code}         → GetSession (live state)
	GET /sessions/{code}/matches → GetMatches
	GET /sessions/{code}/result  → GetFinalResult (sealed until completed)

# Event Stream

	GET /sessions/{code}/ws → Subscribe

Upgrades to a WebSocket connection that receives the session's typed
events (vote.recorded, session.updated, match.created, final.choice,
participant.joined, participant.left).
*/
package handlers

// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - CreateSessionRequest: creator_name, items
  - JoinSessionRequest: display_name
  - SubmitVoteRequest: round_number, item_id, direction

# Response Types

Types for JSON responses:

  - CreateSessionResponse: session_id, join_code, host_key
  - JoinSessionResponse: participant_id, participant_token
  - SubmitVoteResponse: duplicate, completion
  - SessionStateResponse: session, deck, participant_count, matches
  - FinalResultResponse: winner
  - ErrorResponse: error, message

# Domain Types

Internal data structures:

  - Session: versioned session state (round, version, locked flag)
  - Item: candidate item with payload snapshot
  - Participant: session member
  - Vote: one (round, participant, item) decision, append-only
  - Match: item accepted unanimously in some round
  - RoundCompletionResult: transient outcome of a completion check
  - FinalVoteResult: winner, vote count, tie-break flags

# Constants

Status values:

	StatusActive    = "active"
	StatusCompleted = "completed"

Phases:

	PhaseSwiping   = "swiping"
	PhaseFinalVote = "final_vote"

Vote directions:

	DirectionAccept = "accept"
	DirectionReject = "reject"

Next actions:

	ActionNextRound = "nextRound"
	ActionVote      = "vote"
	ActionEnd       = "end"
*/
package models

// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"encoding/json"
	"time"
)

// Session status constants
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Session phase constants
const (
	PhaseSwiping   = "swiping"
	PhaseFinalVote = "final_vote"
)

// Vote direction constants
const (
	DirectionAccept = "accept"
	DirectionReject = "reject"
)

// Next-action constants returned by round completion
const (
	ActionNextRound = "nextRound"
	ActionVote      = "vote"
	ActionEnd       = "end"
)

// Request types

type NewItem struct {
	ItemID  string          `json:"item_id,omitempty"` // generated when empty
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CreateSessionRequest struct {
	CreatorName string    `json:"creator_name"`
	Items       []NewItem `json:"items"`
}

type JoinSessionRequest struct {
	DisplayName string `json:"display_name"`
}

type SubmitVoteRequest struct {
	RoundNumber int    `json:"round_number"`
	ItemID      string `json:"item_id"`
	Direction   string `json:"direction"`
}

// Response types

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	JoinCode  string `json:"join_code"`
	HostKey   string `json:"host_key"`
}

type JoinSessionResponse struct {
	ParticipantID    string `json:"participant_id"`
	ParticipantToken string `json:"participant_token"`
}

type LeaveSessionResponse struct {
	Left       bool                   `json:"left"`
	Completion *RoundCompletionResult `json:"completion,omitempty"`
}

type CloseSessionResponse struct {
	Status string `json:"status"`
}

type SubmitVoteResponse struct {
	Duplicate  bool                   `json:"duplicate"`
	Completion *RoundCompletionResult `json:"completion,omitempty"`
}

type SessionStateResponse struct {
	Session          Session `json:"session"`
	Deck             []Item  `json:"deck"`
	ParticipantCount int     `json:"participant_count"`
	Matches          []Match `json:"matches"`
	FinalChoice      *Match  `json:"final_choice,omitempty"`
	CreatedAgo       string  `json:"created_ago"`
}

type MatchesResponse struct {
	Matches []Match `json:"matches"`
}

type FinalResultResponse struct {
	Winner *Match `json:"winner"`
}

// Domain types

type Session struct {
	ID           string    `json:"id"`
	JoinCode     string    `json:"join_code"`
	CreatorName  string    `json:"creator_name"`
	Status       string    `json:"status"`
	Phase        string    `json:"phase"`
	CurrentRound int       `json:"current_round"`
	Version      int       `json:"version"`
	Locked       bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Item struct {
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Position int             `json:"position"`
}

type Participant struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

type Vote struct {
	SessionID     string    `json:"session_id"`
	RoundNumber   int       `json:"round_number"`
	ParticipantID string    `json:"participant_id"`
	ItemID        string    `json:"item_id"`
	Direction     string    `json:"direction"`
	CreatedAt     time.Time `json:"created_at"`
}

type Match struct {
	SessionID     string          `json:"session_id"`
	ItemID        string          `json:"item_id"`
	Name          string          `json:"name"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	AcceptCount   int             `json:"accept_count"`
	MatchedRound  int             `json:"matched_round"`
	IsFinalChoice bool            `json:"is_final_choice"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Round completion types (transient, computed per check, never persisted)

type AdvancingItem struct {
	ItemID      string `json:"item_id"`
	AcceptCount int    `json:"accept_count"`
}

type RoundCompletionResult struct {
	Completed        bool             `json:"completed"`
	Version          int              `json:"version"`
	RoundNumber      int              `json:"round_number"`
	ParticipantCount int              `json:"participant_count"`
	Unanimous        []string         `json:"unanimous_item_ids"`
	Advancing        []AdvancingItem  `json:"advancing_items"`
	Eliminated       []string         `json:"eliminated_item_ids"`
	NextAction       string           `json:"next_action,omitempty"`
	FinalResult      *FinalVoteResult `json:"final_result,omitempty"`
}

type FinalVoteResult struct {
	WinnerItemID     string `json:"winner_item_id"`
	VoteCount        int    `json:"vote_count"`
	ParticipantCount int    `json:"participant_count"`
	WasTie           bool   `json:"was_tie"`
	TieBreakUsed     bool   `json:"tie_break_used"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

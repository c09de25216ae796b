// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package realtime

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/placepact/server/models"
)

// Event types
const (
	EventVoteRecorded      = "vote.recorded"
	EventSessionUpdated    = "session.updated"
	EventMatchCreated      = "match.created"
	EventFinalChoice       = "final.choice"
	EventParticipantJoined = "participant.joined"
	EventParticipantLeft   = "participant.left"
)

// Message is the envelope pushed to every connection watching a session.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func newMessage(eventType, sessionID string, payload interface{}) *Message {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal event payload", "type", eventType, "error", err)
		raw = []byte("{}")
	}
	return &Message{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   raw,
		Timestamp: time.Now(),
	}
}

// NewVoteRecordedEvent announces that a participant's vote landed.
// The direction is deliberately omitted so votes stay secret until the
// round resolves.
func NewVoteRecordedEvent(sessionID, participantID string, roundNumber int) *Message {
	return newMessage(EventVoteRecorded, sessionID, struct {
		ParticipantID string `json:"participant_id"`
		RoundNumber   int    `json:"round_number"`
	}{participantID, roundNumber})
}

// NewSessionUpdatedEvent announces a session transition: a new round, a
// phase change, or completion. Ordinal is a human-readable round label
// ("1st", "2nd") for display.
func NewSessionUpdatedEvent(sess models.Session, ordinal, nextAction string) *Message {
	return newMessage(EventSessionUpdated, sess.ID, struct {
		Status       string `json:"status"`
		Phase        string `json:"phase"`
		CurrentRound int    `json:"current_round"`
		RoundOrdinal string `json:"round_ordinal"`
		Version      int    `json:"version"`
		NextAction   string `json:"next_action,omitempty"`
	}{sess.Status, sess.Phase, sess.CurrentRound, ordinal, sess.Version, nextAction})
}

// NewMatchCreatedEvent announces a unanimous item.
func NewMatchCreatedEvent(sessionID, itemID string, acceptCount, matchedRound int) *Message {
	return newMessage(EventMatchCreated, sessionID, struct {
		ItemID       string `json:"item_id"`
		AcceptCount  int    `json:"accept_count"`
		MatchedRound int    `json:"matched_round"`
	}{itemID, acceptCount, matchedRound})
}

// NewFinalChoiceEvent announces the resolved final choice.
func NewFinalChoiceEvent(sessionID string, result models.FinalVoteResult) *Message {
	return newMessage(EventFinalChoice, sessionID, result)
}

// NewParticipantJoinedEvent announces a new participant.
func NewParticipantJoinedEvent(sessionID, participantID, displayName string) *Message {
	return newMessage(EventParticipantJoined, sessionID, struct {
		ParticipantID string `json:"participant_id"`
		DisplayName   string `json:"display_name"`
	}{participantID, displayName})
}

// NewParticipantLeftEvent announces a departure.
func NewParticipantLeftEvent(sessionID, participantID string) *Message {
	return newMessage(EventParticipantLeft, sessionID, struct {
		ParticipantID string `json:"participant_id"`
	}{participantID})
}

// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/placepact/server/models"
)

// InsertVote idempotently records a vote. The composite primary key on
// (session, round, participant, item) makes replays and concurrent
// duplicates no-ops: the first vote wins and later submissions are
// ignored, never overwritten. Returns true when a new row was inserted.
func InsertVote(ctx context.Context, db *sql.DB, v models.Vote) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO session_vote (session_id, round_number, participant_id, item_id, direction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`, v.SessionID, v.RoundNumber, v.ParticipantID, v.ItemID, v.Direction, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to insert vote: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read vote insert result: %w", err)
	}
	return n == 1, nil
}

// VotesForRound reads all votes for (session, round) in a single query,
// giving completeness checks and classification a consistent snapshot.
func VotesForRound(ctx context.Context, db *sql.DB, sessionID string, roundNumber int) ([]models.Vote, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, round_number, participant_id, item_id, direction, created_at
		FROM session_vote
		WHERE session_id = $1 AND round_number = $2
	`, sessionID, roundNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.SessionID, &v.RoundNumber, &v.ParticipantID, &v.ItemID, &v.Direction, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, v)
	}

	return votes, rows.Err()
}

// ParticipantIDs returns the current participant set for a session.
func ParticipantIDs(ctx context.Context, db *sql.DB, sessionID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT participant_id FROM session_participant
		WHERE session_id = $1
		ORDER BY joined_at, participant_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DeckItemIDs returns the deck for a given round in stored position order.
func DeckItemIDs(ctx context.Context, db *sql.DB, sessionID string, roundNumber int) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT item_id FROM session_deck
		WHERE session_id = $1 AND round_number = $2
		ORDER BY position
	`, sessionID, roundNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query deck: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deck item: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// SessionState reads the versioned session record.
func SessionState(ctx context.Context, db *sql.DB, sessionID string) (models.Session, error) {
	var s models.Session
	err := db.QueryRowContext(ctx, `
		SELECT id, join_code, creator_name, status, phase, current_round, version, locked, created_at
		FROM session
		WHERE id = $1
	`, sessionID).Scan(
		&s.ID, &s.JoinCode, &s.CreatorName, &s.Status, &s.Phase,
		&s.CurrentRound, &s.Version, &s.Locked, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return models.Session{}, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to read session state: %w", err)
	}
	return s, nil
}

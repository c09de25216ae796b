// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
// The DDL is kept portable across postgres and sqlite: no NOW() defaults
// (timestamps are always inserted explicitly) and payloads are TEXT JSON.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

const schema = `
-- Sessions (versioned state record; version + locked drive the CAS)
CREATE TABLE IF NOT EXISTS session (
    id TEXT PRIMARY KEY,
    join_code TEXT UNIQUE,
    creator_name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed')),
    phase TEXT NOT NULL DEFAULT 'swiping' CHECK (phase IN ('swiping', 'final_vote')),
    current_round INTEGER NOT NULL DEFAULT 1,
    version INTEGER NOT NULL DEFAULT 0,
    locked BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_join_code ON session(join_code);
CREATE INDEX IF NOT EXISTS idx_session_status ON session(status);

-- Candidate items (immutable payload snapshots for the whole session)
CREATE TABLE IF NOT EXISTS session_item (
    session_id TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
    item_id TEXT NOT NULL,
    name TEXT NOT NULL,
    payload TEXT,
    position INTEGER NOT NULL,
    PRIMARY KEY (session_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_session_item_session ON session_item(session_id);

-- Deck membership per round
CREATE TABLE IF NOT EXISTS session_deck (
    session_id TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
    round_number INTEGER NOT NULL,
    item_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (session_id, round_number, item_id)
);

CREATE INDEX IF NOT EXISTS idx_session_deck_round ON session_deck(session_id, round_number);

-- Participants
CREATE TABLE IF NOT EXISTS session_participant (
    session_id TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
    participant_id TEXT NOT NULL,
    display_name TEXT NOT NULL,
    participant_token TEXT NOT NULL,
    joined_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, participant_id),
    UNIQUE (session_id, display_name)
);

CREATE INDEX IF NOT EXISTS idx_session_participant_session ON session_participant(session_id);
CREATE INDEX IF NOT EXISTS idx_session_participant_token ON session_participant(session_id, participant_token);

-- Votes (append-only; the primary key makes inserts idempotent)
CREATE TABLE IF NOT EXISTS session_vote (
    session_id TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
    round_number INTEGER NOT NULL,
    participant_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    direction TEXT NOT NULL CHECK (direction IN ('accept', 'reject')),
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, round_number, participant_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_session_vote_round ON session_vote(session_id, round_number);

-- Matches (created only by committed round transitions)
CREATE TABLE IF NOT EXISTS session_match (
    session_id TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
    item_id TEXT NOT NULL,
    name TEXT NOT NULL,
    payload TEXT,
    accept_count INTEGER NOT NULL,
    matched_round INTEGER NOT NULL,
    is_final_choice BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (session_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_session_match_session ON session_match(session_id);
`

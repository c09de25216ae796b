// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database connection and schema creation.

# Opening a Connection

Open selects the driver from the configured type:

	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)

"postgres" uses github.com/lib/pq; "sqlite" uses modernc.org/sqlite (no cgo).
sqlite connections are capped to a single open connection since sqlite
serializes writers anyway.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

The schema includes:

  - session: Versioned session state (round, version, locked flag)
  - session_item: Immutable candidate item snapshots
  - session_deck: Deck membership per round
  - session_participant: Session members and their tokens
  - session_vote: Append-only votes, one per (round, participant, item)
  - session_match: Unanimously accepted items

# Relationships

	session 1──* session_item
	session 1──* session_deck
	session 1──* session_participant
	session 1──* session_vote
	session 1──* session_match

All foreign keys use ON DELETE CASCADE.

# Concurrency Invariants Enforced Here

  - session_vote's composite primary key makes vote inserts idempotent
    (ON CONFLICT DO NOTHING): duplicates are ignored, never overwritten.
  - session_match's primary key makes match creation idempotent across
    racing round transitions.
  - session.version backs the compare-and-set that serializes round
    transitions; session.locked marks a transition in flight.
  - session_participant's UNIQUE (session_id, display_name) resolves
    racing joins with the same name.
*/
package db

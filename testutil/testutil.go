// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/placepact/server/auth"
	"github.com/placepact/server/cliparse"
	"github.com/placepact/server/db"
	"github.com/placepact/server/models"
)

// SetupTestDB creates a fresh sqlite database with the full schema.
// Each test gets its own file under t.TempDir, so tests are isolated and
// need no external database.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := db.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:         3324,
		DatabaseURL:  "file:test.db",
		DatabaseType: "sqlite",
		HostKeySalt:  "test-host-salt",
		JoinCodeSalt: "test-code-salt",
	}
}

// CreateTestSession creates a session with the given deck item ids for
// round 1 and returns the session id, host key, and join code.
func CreateTestSession(t *testing.T, conn *sql.DB, cfg cliparse.Config, itemIDs []string) (sessionID, hostKey, joinCode string) {
	t.Helper()

	sessionID, _ = auth.GenerateID(16)
	hostKey = auth.GenerateHostKey(sessionID, cfg.HostKeySalt)
	joinCode = auth.GenerateJoinCode(sessionID, cfg.JoinCodeSalt)

	_, err := conn.Exec(`
		INSERT INTO session (id, join_code, creator_name, status, phase, current_round, version, locked, created_at)
		VALUES ($1, $2, 'TestHost', 'active', 'swiping', 1, 0, FALSE, $3)
	`, sessionID, joinCode, time.Now())
	if err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}

	for i, itemID := range itemIDs {
		AddTestItem(t, conn, sessionID, itemID, "Item "+itemID, i)
		_, err := conn.Exec(`
			INSERT INTO session_deck (session_id, round_number, item_id, position)
			VALUES ($1, 1, $2, $3)
		`, sessionID, itemID, i)
		if err != nil {
			t.Fatalf("Failed to add deck item: %v", err)
		}
	}

	return sessionID, hostKey, joinCode
}

// AddTestItem inserts a candidate item snapshot.
func AddTestItem(t *testing.T, conn *sql.DB, sessionID, itemID, name string, position int) {
	t.Helper()

	_, err := conn.Exec(`
		INSERT INTO session_item (session_id, item_id, name, payload, position)
		VALUES ($1, $2, $3, '{}', $4)
	`, sessionID, itemID, name, position)
	if err != nil {
		t.Fatalf("Failed to add test item: %v", err)
	}
}

// AddTestParticipant joins a participant to a session and returns the
// participant id and token.
func AddTestParticipant(t *testing.T, conn *sql.DB, sessionID, displayName string) (participantID, token string) {
	t.Helper()

	participantID = auth.NewParticipantID()
	token, _ = auth.GenerateParticipantToken()
	_, err := conn.Exec(`
		INSERT INTO session_participant (session_id, participant_id, display_name, participant_token, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sessionID, participantID, displayName, token, time.Now())
	if err != nil {
		t.Fatalf("Failed to add test participant: %v", err)
	}

	return participantID, token
}

// CastTestVote records a vote directly in the database.
func CastTestVote(t *testing.T, conn *sql.DB, sessionID string, round int, participantID, itemID, direction string) {
	t.Helper()

	_, err := conn.Exec(`
		INSERT INTO session_vote (session_id, round_number, participant_id, item_id, direction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`, sessionID, round, participantID, itemID, direction, time.Now())
	if err != nil {
		t.Fatalf("Failed to cast test vote: %v", err)
	}
}

// VoteOutRound casts votes so that every participant accepts or rejects
// each deck item per the accepts map (item id -> set of accepting
// participant ids); everyone else rejects.
func VoteOutRound(t *testing.T, conn *sql.DB, sessionID string, round int, deck []string, participantIDs []string, accepts map[string][]string) {
	t.Helper()

	for _, itemID := range deck {
		accepting := make(map[string]bool)
		for _, p := range accepts[itemID] {
			accepting[p] = true
		}
		for _, p := range participantIDs {
			direction := models.DirectionReject
			if accepting[p] {
				direction = models.DirectionAccept
			}
			CastTestVote(t, conn, sessionID, round, p, itemID, direction)
		}
	}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}

// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/placepact/server/models"
	"github.com/placepact/server/testutil"
)

// voteOutScenario casts the documented five-item scenario: A unanimous,
// B two accepts, C and E one accept, D rejected by everyone.
func voteOutScenario(t *testing.T, conn *sql.DB, sessionID string, participants []string) {
	t.Helper()
	testutil.VoteOutRound(t, conn, sessionID, 1,
		[]string{"A", "B", "C", "D", "E"},
		participants,
		map[string][]string{
			"A": {participants[0], participants[1], participants[2]},
			"B": {participants[0], participants[1]},
			"C": {participants[0]},
			"E": {participants[1]},
		})
}

func setupScenarioSession(t *testing.T, conn *sql.DB) (sessionID string, participants []string) {
	t.Helper()
	cfg := testutil.GetTestConfig()
	sessionID, _, _ = testutil.CreateTestSession(t, conn, cfg, []string{"A", "B", "C", "D", "E"})
	for _, name := range []string{"alice", "bob", "carol"} {
		id, _ := testutil.AddTestParticipant(t, conn, sessionID, name)
		participants = append(participants, id)
	}
	return sessionID, participants
}

func TestCompleteRoundIncomplete(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	sessionID, participants := setupScenarioSession(t, conn)

	// Only one participant has voted so far
	for _, item := range []string{"A", "B", "C", "D", "E"} {
		testutil.CastTestVote(t, conn, sessionID, 1, participants[0], item, models.DirectionAccept)
	}

	coord := NewCoordinator(conn)
	result, err := coord.CompleteRound(context.Background(), sessionID, []string{"A", "B", "C", "D", "E"}, 1, 0)
	if err != nil {
		t.Fatalf("CompleteRound() error = %v", err)
	}

	if result.Completed {
		t.Error("Expected Completed=false for a round with missing votes")
	}

	// An incomplete check must leave session state untouched
	sess, err := SessionState(context.Background(), conn, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Version != 0 || sess.CurrentRound != 1 || sess.Locked {
		t.Errorf("Session state changed by incomplete check: version=%d round=%d locked=%v",
			sess.Version, sess.CurrentRound, sess.Locked)
	}
}

func TestCheckAndCompleteAdvancesRound(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	sessionID, participants := setupScenarioSession(t, conn)
	voteOutScenario(t, conn, sessionID, participants)

	coord := NewCoordinator(conn)
	result, err := coord.CheckAndComplete(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("CheckAndComplete() error = %v", err)
	}

	if !result.Completed {
		t.Fatal("Expected Completed=true")
	}
	if result.Version != 1 {
		t.Errorf("Version = %d, want 1", result.Version)
	}
	if !reflect.DeepEqual(result.Unanimous, []string{"A"}) {
		t.Errorf("Unanimous = %v, want [A]", result.Unanimous)
	}
	if !reflect.DeepEqual(result.Eliminated, []string{"D"}) {
		t.Errorf("Eliminated = %v, want [D]", result.Eliminated)
	}
	if result.NextAction != models.ActionNextRound {
		t.Errorf("NextAction = %s, want %s", result.NextAction, models.ActionNextRound)
	}

	// Session advanced atomically: new round, bumped version, unlocked
	sess, err := SessionState(context.Background(), conn, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.CurrentRound != 2 {
		t.Errorf("CurrentRound = %d, want 2", sess.CurrentRound)
	}
	if sess.Version != 1 {
		t.Errorf("Version = %d, want 1", sess.Version)
	}
	if sess.Locked {
		t.Error("Session left locked after commit")
	}

	// Unanimous item became a match
	var matchCount int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM session_match WHERE session_id = $1`, sessionID).Scan(&matchCount); err != nil {
		t.Fatal(err)
	}
	if matchCount != 1 {
		t.Errorf("Match count = %d, want 1", matchCount)
	}

	// Next round's deck is the advancing items in ranked order
	deck, err := DeckItemIDs(context.Background(), conn, sessionID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(deck, []string{"B", "C", "E"}) {
		t.Errorf("Round 2 deck = %v, want [B C E]", deck)
	}
}

func TestCompleteRoundStaleVersion(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	sessionID, participants := setupScenarioSession(t, conn)
	voteOutScenario(t, conn, sessionID, participants)

	coord := NewCoordinator(conn)
	if _, err := coord.CheckAndComplete(context.Background(), sessionID); err != nil {
		t.Fatalf("CheckAndComplete() error = %v", err)
	}

	// Re-running the same round with the pre-transition version must fail
	// the compare-and-set without side effects
	_, err := coord.CompleteRound(context.Background(), sessionID, []string{"A", "B", "C", "D", "E"}, 1, 0)
	var mismatch *VersionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("CompleteRound() error = %v, want VersionMismatchError", err)
	}
	if mismatch.Current != 1 {
		t.Errorf("Mismatch current = %d, want 1", mismatch.Current)
	}

	var matchCount int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM session_match WHERE session_id = $1`, sessionID).Scan(&matchCount); err != nil {
		t.Fatal(err)
	}
	if matchCount != 1 {
		t.Errorf("Stale retry created side effects: match count = %d, want 1", matchCount)
	}
}

func TestCheckAndCompleteIdempotent(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	sessionID, participants := setupScenarioSession(t, conn)
	voteOutScenario(t, conn, sessionID, participants)

	coord := NewCoordinator(conn)
	first, err := coord.CheckAndComplete(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("First CheckAndComplete() error = %v", err)
	}
	if !first.Completed {
		t.Fatal("Expected first check to complete the round")
	}

	// A repeat check sees the new (incomplete) round and is a no-op
	second, err := coord.CheckAndComplete(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Second CheckAndComplete() error = %v", err)
	}
	if second.Completed {
		t.Error("Second check completed an unvoted round")
	}

	sess, err := SessionState(context.Background(), conn, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Version != 1 {
		t.Errorf("Version = %d after repeat check, want 1", sess.Version)
	}
}

// Many participants race to finalize the same round with the same
// expected version. The compare-and-set must let exactly one commit.
func TestCompleteRoundConcurrentCAS(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	sessionID, participants := setupScenarioSession(t, conn)
	voteOutScenario(t, conn, sessionID, participants)

	coord := NewCoordinator(conn)
	deck := []string{"A", "B", "C", "D", "E"}

	numCallers := 8
	var succeeded atomic.Int32
	var retryable atomic.Int32
	var unexpected atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numCallers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			result, err := coord.CompleteRound(context.Background(), sessionID, deck, 1, 0)
			var mismatch *VersionMismatchError
			switch {
			case err == nil && result.Completed:
				succeeded.Add(1)
			case errors.Is(err, ErrSessionLocked), errors.As(err, &mismatch):
				retryable.Add(1)
			default:
				unexpected.Add(1)
				t.Errorf("Unexpected outcome: result=%+v err=%v", result, err)
			}
		}()
	}

	wg.Wait()

	if succeeded.Load() != 1 {
		t.Errorf("Expected exactly 1 successful commit, got %d", succeeded.Load())
	}
	if retryable.Load() != int32(numCallers-1) {
		t.Errorf("Expected %d retryable losers, got %d", numCallers-1, retryable.Load())
	}

	// The committed state is the same as a lone completion would produce
	sess, err := SessionState(context.Background(), conn, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Version != 1 || sess.CurrentRound != 2 || sess.Locked {
		t.Errorf("Post-race session state: version=%d round=%d locked=%v",
			sess.Version, sess.CurrentRound, sess.Locked)
	}

	var matchCount int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM session_match WHERE session_id = $1`, sessionID).Scan(&matchCount); err != nil {
		t.Fatal(err)
	}
	if matchCount != 1 {
		t.Errorf("Match count = %d after race, want 1", matchCount)
	}
}

func TestCompleteRoundLocked(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	sessionID, participants := setupScenarioSession(t, conn)
	voteOutScenario(t, conn, sessionID, participants)

	if _, err := conn.Exec(`UPDATE session SET locked = TRUE WHERE id = $1`, sessionID); err != nil {
		t.Fatal(err)
	}

	coord := NewCoordinator(conn)
	_, err := coord.CompleteRound(context.Background(), sessionID, []string{"A", "B", "C", "D", "E"}, 1, 0)
	if !errors.Is(err, ErrSessionLocked) {
		t.Errorf("CompleteRound() error = %v, want ErrSessionLocked", err)
	}
}

func TestCheckAndCompleteWaitsOutLock(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	sessionID, participants := setupScenarioSession(t, conn)
	voteOutScenario(t, conn, sessionID, participants)

	if _, err := conn.Exec(`UPDATE session SET locked = TRUE WHERE id = $1`, sessionID); err != nil {
		t.Fatal(err)
	}

	// Release the lock while the coordinator is waiting
	go func() {
		time.Sleep(120 * time.Millisecond)
		conn.Exec(`UPDATE session SET locked = FALSE WHERE id = $1`, sessionID)
	}()

	coord := &Coordinator{db: conn, maxAttempts: 5, lockRetryWait: 50 * time.Millisecond}
	result, err := coord.CheckAndComplete(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("CheckAndComplete() error = %v", err)
	}
	if !result.Completed {
		t.Error("Expected the check to complete once the lock was released")
	}
}

func TestCheckAndCompleteRetryBudget(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	sessionID, participants := setupScenarioSession(t, conn)
	voteOutScenario(t, conn, sessionID, participants)

	// Lock held forever: the bounded loop must give up, not spin
	if _, err := conn.Exec(`UPDATE session SET locked = TRUE WHERE id = $1`, sessionID); err != nil {
		t.Fatal(err)
	}

	coord := &Coordinator{db: conn, maxAttempts: 3, lockRetryWait: 5 * time.Millisecond}
	_, err := coord.CheckAndComplete(context.Background(), sessionID)
	if err == nil {
		t.Fatal("Expected error after retry budget exhausted")
	}
	if !errors.Is(err, ErrSessionLocked) {
		t.Errorf("Exhaustion error should wrap the last cause, got %v", err)
	}
}

func TestCheckAndCompleteNoParticipants(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	cfg := testutil.GetTestConfig()
	sessionID, _, _ := testutil.CreateTestSession(t, conn, cfg, []string{"A"})

	coord := NewCoordinator(conn)
	_, err := coord.CheckAndComplete(context.Background(), sessionID)
	if !errors.Is(err, ErrNoParticipants) {
		t.Errorf("CheckAndComplete() error = %v, want ErrNoParticipants", err)
	}
}

// Two finalists, a decisive final vote, and the session completes with
// the winner flagged as the final choice.
func TestFinalVoteFlow(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	cfg := testutil.GetTestConfig()
	sessionID, _, _ := testutil.CreateTestSession(t, conn, cfg, []string{"X", "Y", "Z"})
	p1, _ := testutil.AddTestParticipant(t, conn, sessionID, "alice")
	p2, _ := testutil.AddTestParticipant(t, conn, sessionID, "bob")

	// Round 1: X and Y split, Z rejected -> two advancing -> final vote
	testutil.VoteOutRound(t, conn, sessionID, 1,
		[]string{"X", "Y", "Z"}, []string{p1, p2},
		map[string][]string{
			"X": {p1},
			"Y": {p2},
		})

	coord := NewCoordinator(conn)
	result, err := coord.CheckAndComplete(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Round 1 CheckAndComplete() error = %v", err)
	}
	if result.NextAction != models.ActionVote {
		t.Fatalf("NextAction = %s, want %s", result.NextAction, models.ActionVote)
	}

	sess, err := SessionState(context.Background(), conn, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Phase != models.PhaseFinalVote {
		t.Fatalf("Phase = %s, want %s", sess.Phase, models.PhaseFinalVote)
	}
	if sess.CurrentRound != 2 {
		t.Fatalf("CurrentRound = %d, want 2", sess.CurrentRound)
	}

	// Final vote: both participants back X
	testutil.VoteOutRound(t, conn, sessionID, 2,
		[]string{"X", "Y"}, []string{p1, p2},
		map[string][]string{
			"X": {p1, p2},
		})

	final, err := coord.CheckAndComplete(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Final vote CheckAndComplete() error = %v", err)
	}
	if !final.Completed || final.NextAction != models.ActionEnd {
		t.Fatalf("Final result: completed=%v next_action=%s", final.Completed, final.NextAction)
	}
	if final.FinalResult == nil {
		t.Fatal("FinalResult missing")
	}
	if final.FinalResult.WinnerItemID != "X" {
		t.Errorf("Winner = %s, want X", final.FinalResult.WinnerItemID)
	}
	if final.FinalResult.VoteCount != 2 {
		t.Errorf("VoteCount = %d, want 2", final.FinalResult.VoteCount)
	}
	if final.FinalResult.WasTie {
		t.Error("Unexpected tie flag")
	}

	sess, err = SessionState(context.Background(), conn, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != models.StatusCompleted {
		t.Errorf("Status = %s, want %s", sess.Status, models.StatusCompleted)
	}

	var isFinal bool
	err = conn.QueryRow(`
		SELECT is_final_choice FROM session_match WHERE session_id = $1 AND item_id = 'X'
	`, sessionID).Scan(&isFinal)
	if err != nil {
		t.Fatalf("Winner has no match record: %v", err)
	}
	if !isFinal {
		t.Error("Winner's match record not flagged as final choice")
	}
}

func TestFinalVoteTieResolvedDeterministically(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	cfg := testutil.GetTestConfig()
	sessionID, _, _ := testutil.CreateTestSession(t, conn, cfg, []string{"X", "Y", "Z"})
	p1, _ := testutil.AddTestParticipant(t, conn, sessionID, "alice")
	p2, _ := testutil.AddTestParticipant(t, conn, sessionID, "bob")

	testutil.VoteOutRound(t, conn, sessionID, 1,
		[]string{"X", "Y", "Z"}, []string{p1, p2},
		map[string][]string{
			"X": {p1},
			"Y": {p2},
		})

	coord := NewCoordinator(conn)
	if _, err := coord.CheckAndComplete(context.Background(), sessionID); err != nil {
		t.Fatal(err)
	}

	// Final vote splits 1-1: each backs their own finalist
	testutil.VoteOutRound(t, conn, sessionID, 2,
		[]string{"X", "Y"}, []string{p1, p2},
		map[string][]string{
			"X": {p1},
			"Y": {p2},
		})

	final, err := coord.CheckAndComplete(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("CheckAndComplete() error = %v", err)
	}
	if final.FinalResult == nil {
		t.Fatal("FinalResult missing")
	}
	if !final.FinalResult.WasTie || !final.FinalResult.TieBreakUsed {
		t.Error("Tie flags not set on 1-1 split")
	}
	if final.FinalResult.WinnerItemID != "X" {
		t.Errorf("Winner = %s, want X (smallest id)", final.FinalResult.WinnerItemID)
	}
}

func TestFinalChoiceSetOnce(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	cfg := testutil.GetTestConfig()
	sessionID, _, _ := testutil.CreateTestSession(t, conn, cfg, []string{"X", "Y"})

	insertMatch := func(itemID string) {
		_, err := conn.Exec(`
			INSERT INTO session_match (session_id, item_id, name, payload, accept_count, matched_round, is_final_choice, created_at)
			VALUES ($1, $2, $2, '{}', 1, 1, FALSE, $3)
		`, sessionID, itemID, time.Now())
		if err != nil {
			t.Fatal(err)
		}
	}
	insertMatch("X")
	insertMatch("Y")

	mark := func(itemID string) {
		tx, err := conn.Begin()
		if err != nil {
			t.Fatal(err)
		}
		if err := markFinalChoice(context.Background(), tx, sessionID, itemID); err != nil {
			t.Fatal(err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(err)
		}
	}

	mark("X")
	mark("Y") // must be a no-op: a final choice already exists

	var finalCount int
	err := conn.QueryRow(`
		SELECT COUNT(*) FROM session_match WHERE session_id = $1 AND is_final_choice = TRUE
	`, sessionID).Scan(&finalCount)
	if err != nil {
		t.Fatal(err)
	}
	if finalCount != 1 {
		t.Errorf("Final choice count = %d, want exactly 1", finalCount)
	}

	var xIsFinal bool
	if err := conn.QueryRow(`
		SELECT is_final_choice FROM session_match WHERE session_id = $1 AND item_id = 'X'
	`, sessionID).Scan(&xIsFinal); err != nil {
		t.Fatal(err)
	}
	if !xIsFinal {
		t.Error("First marked item lost its final choice flag")
	}
}

// A round blocked on a participant who never votes completes once that
// participant leaves: completeness is judged against the current set.
func TestDepartedParticipantUnblocksRound(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	defer conn.Close()

	sessionID, participants := setupScenarioSession(t, conn)

	// Only the first two participants vote
	testutil.VoteOutRound(t, conn, sessionID, 1,
		[]string{"A", "B", "C", "D", "E"},
		participants[:2],
		map[string][]string{
			"A": {participants[0], participants[1]},
			"B": {participants[0]},
			"C": {participants[1]},
			"E": {participants[0]},
		})

	coord := NewCoordinator(conn)
	result, err := coord.CheckAndComplete(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("CheckAndComplete() error = %v", err)
	}
	if result.Completed {
		t.Fatal("Round completed while a participant still owes votes")
	}

	if _, err := conn.Exec(`
		DELETE FROM session_participant WHERE session_id = $1 AND participant_id = $2
	`, sessionID, participants[2]); err != nil {
		t.Fatal(err)
	}

	result, err = coord.CheckAndComplete(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("CheckAndComplete() after leave error = %v", err)
	}
	if !result.Completed {
		t.Error("Round still blocked after the missing participant left")
	}
	if result.ParticipantCount != 2 {
		t.Errorf("ParticipantCount = %d, want 2", result.ParticipantCount)
	}
}

// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/placepact/server/models"
)

const (
	defaultMaxAttempts   = 4
	defaultLockRetryWait = 500 * time.Millisecond
)

// Coordinator orchestrates round completion: it detects when every
// participant has voted on every deck item, classifies the outcome, and
// commits the session-state transition under optimistic concurrency.
//
// It is safe to invoke concurrently from every participant after each of
// their votes. The session version compare-and-set is the sole
// serialization point: exactly one racing caller commits a given
// transition, the rest observe VersionMismatchError or ErrSessionLocked
// and retry with a refreshed version.
type Coordinator struct {
	db            *sql.DB
	maxAttempts   int
	lockRetryWait time.Duration
}

func NewCoordinator(db *sql.DB) *Coordinator {
	return &Coordinator{
		db:            db,
		maxAttempts:   defaultMaxAttempts,
		lockRetryWait: defaultLockRetryWait,
	}
}

// CheckAndComplete is the bounded retry loop around CompleteRound. It
// refreshes the session version on each attempt, waits out transition
// locks, and gives up after the attempt budget rather than recursing.
// Transient conditions (locked, version mismatch) never escape this loop
// unless the budget is exhausted.
func (c *Coordinator) CheckAndComplete(ctx context.Context, sessionID string) (*models.RoundCompletionResult, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		sess, err := SessionState(ctx, c.db, sessionID)
		if err != nil {
			return nil, err
		}

		if sess.Status == models.StatusCompleted {
			// Session already finished; a late check is a no-op.
			return &models.RoundCompletionResult{
				Completed:   false,
				Version:     sess.Version,
				RoundNumber: sess.CurrentRound,
			}, nil
		}

		deck, err := DeckItemIDs(ctx, c.db, sessionID, sess.CurrentRound)
		if err != nil {
			return nil, err
		}
		if len(deck) == 0 {
			return &models.RoundCompletionResult{
				Completed:   false,
				Version:     sess.Version,
				RoundNumber: sess.CurrentRound,
			}, nil
		}

		result, err := c.CompleteRound(ctx, sessionID, deck, sess.CurrentRound, sess.Version)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var mismatch *VersionMismatchError
		switch {
		case errors.Is(err, ErrSessionLocked):
			slog.Debug("session locked, retrying completion check",
				"session_id", sessionID, "attempt", attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.lockRetryWait):
			}
		case errors.As(err, &mismatch):
			// Another caller committed first; the next attempt re-reads
			// the refreshed version.
			slog.Debug("session version moved, refreshing",
				"session_id", sessionID, "current_version", mismatch.Current)
		default:
			return nil, err
		}
	}

	return nil, fmt.Errorf("completion retries exhausted for session %s: %w", sessionID, lastErr)
}

// CompleteRound runs one completion check against an expected session
// version.
//
// An incomplete round (some participant missing a vote on some deck item)
// returns Completed=false and no error. A completed round acquires the
// transition lock, classifies the deck, and commits the transition in one
// transaction conditioned on the session version still matching
// expectedVersion. The classification in the returned result is pure and
// reproducible; only the persisted side effects are CAS-guarded.
func (c *Coordinator) CompleteRound(ctx context.Context, sessionID string, deckItemIDs []string, roundNumber, expectedVersion int) (*models.RoundCompletionResult, error) {
	participants, err := ParticipantIDs(ctx, c.db, sessionID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("session %s round %d: %w", sessionID, roundNumber, ErrNoParticipants)
	}

	votes, err := VotesForRound(ctx, c.db, sessionID, roundNumber)
	if err != nil {
		return nil, err
	}

	if !roundIsComplete(deckItemIDs, votes, participants) {
		return &models.RoundCompletionResult{
			Completed:        false,
			Version:          expectedVersion,
			RoundNumber:      roundNumber,
			ParticipantCount: len(participants),
		}, nil
	}

	if err := c.acquireLock(ctx, sessionID, expectedVersion); err != nil {
		return nil, err
	}

	result, err := c.finalizeLocked(ctx, sessionID, deckItemIDs, votes, participants, roundNumber, expectedVersion)
	if err != nil {
		c.releaseLock(sessionID)
		return nil, err
	}

	return result, nil
}

// acquireLock takes the transition lock iff the session is active,
// unlocked, and still at the expected version. This conditional update is
// the compare-and-set that serializes racing completions.
func (c *Coordinator) acquireLock(ctx context.Context, sessionID string, expectedVersion int) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE session
		SET locked = TRUE
		WHERE id = $1 AND locked = FALSE AND version = $2 AND status = $3
	`, sessionID, expectedVersion, models.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read lock result: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Lost the race; re-read to tell the caller which condition to retry.
	sess, err := SessionState(ctx, c.db, sessionID)
	if err != nil {
		return err
	}
	if sess.Locked {
		return ErrSessionLocked
	}
	if sess.Version != expectedVersion {
		return &VersionMismatchError{Expected: expectedVersion, Current: sess.Version}
	}
	// Unlocked and version matches, so the session must have completed.
	return &VersionMismatchError{Expected: expectedVersion, Current: sess.Version}
}

func (c *Coordinator) releaseLock(sessionID string) {
	_, err := c.db.Exec(`
		UPDATE session SET locked = FALSE WHERE id = $1 AND locked = TRUE
	`, sessionID)
	if err != nil {
		slog.Error("failed to release session lock", "error", err, "session_id", sessionID)
	}
}

// finalizeLocked classifies the round and commits the transition. The
// caller must hold the transition lock; on error the caller releases it.
func (c *Coordinator) finalizeLocked(ctx context.Context, sessionID string, deckItemIDs []string, votes []models.Vote, participants []string, roundNumber, expectedVersion int) (*models.RoundCompletionResult, error) {
	sess, err := SessionState(ctx, c.db, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.Phase == models.PhaseFinalVote {
		return c.commitFinalVote(ctx, sessionID, deckItemIDs, votes, participants, roundNumber, expectedVersion)
	}
	return c.commitClassification(ctx, sessionID, deckItemIDs, votes, participants, roundNumber, expectedVersion)
}

// commitClassification commits a swiping-round transition: unanimous items
// become matches, advancing items form the next deck, and the session
// version advances. All of it happens in one transaction conditioned on
// the expected version.
func (c *Coordinator) commitClassification(ctx context.Context, sessionID string, deckItemIDs []string, votes []models.Vote, participants []string, roundNumber, expectedVersion int) (*models.RoundCompletionResult, error) {
	cls, err := Classify(deckItemIDs, votes, participants)
	if err != nil {
		return nil, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transition: %w", err)
	}
	defer tx.Rollback()

	// Unanimous items become permanent matches. The insert copies the
	// item snapshot and ignores duplicates: an item matched by an earlier
	// racing commit is not re-inserted.
	for _, itemID := range cls.Unanimous {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session_match (session_id, item_id, name, payload, accept_count, matched_round, is_final_choice, created_at)
			SELECT session_id, item_id, name, payload, $3, $4, FALSE, $5
			FROM session_item
			WHERE session_id = $1 AND item_id = $2
			ON CONFLICT DO NOTHING
		`, sessionID, itemID, len(participants), roundNumber, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to insert match for item %s: %w", itemID, err)
		}
	}

	nextRound := roundNumber
	phase := models.PhaseSwiping
	status := models.StatusActive

	switch cls.NextAction {
	case models.ActionNextRound:
		nextRound = roundNumber + 1
	case models.ActionVote:
		nextRound = roundNumber + 1
		phase = models.PhaseFinalVote
	case models.ActionEnd:
		status = models.StatusCompleted
	}

	if cls.NextAction != models.ActionEnd {
		for i, adv := range cls.Advancing {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO session_deck (session_id, round_number, item_id, position)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT DO NOTHING
			`, sessionID, nextRound, adv.ItemID, i)
			if err != nil {
				return nil, fmt.Errorf("failed to insert next deck item %s: %w", adv.ItemID, err)
			}
		}
	}

	newVersion, err := c.advanceSession(ctx, tx, sessionID, expectedVersion, nextRound, phase, status)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	slog.Info("round completed",
		"session_id", sessionID,
		"round", roundNumber,
		"unanimous", len(cls.Unanimous),
		"advancing", len(cls.Advancing),
		"eliminated", len(cls.Eliminated),
		"next_action", cls.NextAction,
		"version", newVersion,
	)

	return &models.RoundCompletionResult{
		Completed:        true,
		Version:          newVersion,
		RoundNumber:      roundNumber,
		ParticipantCount: len(participants),
		Unanimous:        cls.Unanimous,
		Advancing:        cls.Advancing,
		Eliminated:       cls.Eliminated,
		NextAction:       cls.NextAction,
	}, nil
}

// commitFinalVote resolves the final-vote round: tally accepts over the
// finalist deck, break ties deterministically, record the winner as the
// session's final choice, and complete the session.
func (c *Coordinator) commitFinalVote(ctx context.Context, sessionID string, candidates []string, votes []models.Vote, participants []string, roundNumber, expectedVersion int) (*models.RoundCompletionResult, error) {
	current := make(map[string]bool, len(participants))
	for _, id := range participants {
		current[id] = true
	}
	var eligible []models.Vote
	for _, v := range votes {
		if current[v.ParticipantID] {
			eligible = append(eligible, v)
		}
	}

	final, err := TallyFinalVote(candidates, eligible, len(participants))
	if err != nil {
		return nil, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin final vote commit: %w", err)
	}
	defer tx.Rollback()

	// The winner may never have been unanimous, so it may not have a
	// match record yet; create one before flagging it.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_match (session_id, item_id, name, payload, accept_count, matched_round, is_final_choice, created_at)
		SELECT session_id, item_id, name, payload, $3, $4, FALSE, $5
		FROM session_item
		WHERE session_id = $1 AND item_id = $2
		ON CONFLICT DO NOTHING
	`, sessionID, final.WinnerItemID, final.VoteCount, roundNumber, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to insert winner match: %w", err)
	}

	if err := markFinalChoice(ctx, tx, sessionID, final.WinnerItemID); err != nil {
		return nil, err
	}

	newVersion, err := c.advanceSession(ctx, tx, sessionID, expectedVersion, roundNumber, models.PhaseFinalVote, models.StatusCompleted)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit final vote: %w", err)
	}

	slog.Info("final vote resolved",
		"session_id", sessionID,
		"winner", final.WinnerItemID,
		"vote_count", final.VoteCount,
		"was_tie", final.WasTie,
		"version", newVersion,
	)

	return &models.RoundCompletionResult{
		Completed:        true,
		Version:          newVersion,
		RoundNumber:      roundNumber,
		ParticipantCount: len(participants),
		NextAction:       models.ActionEnd,
		FinalResult:      &final,
	}, nil
}

// advanceSession bumps the version and clears the lock inside the commit
// transaction. The WHERE clause re-checks the expected version: no two
// committed transitions can share a pre-transition version even if lock
// bookkeeping somehow went wrong.
func (c *Coordinator) advanceSession(ctx context.Context, tx *sql.Tx, sessionID string, expectedVersion, round int, phase, status string) (int, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE session
		SET version = version + 1, current_round = $1, phase = $2, status = $3, locked = FALSE
		WHERE id = $4 AND version = $5 AND locked = TRUE
	`, round, phase, status, sessionID, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to advance session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read advance result: %w", err)
	}
	if n != 1 {
		sess, serr := SessionState(ctx, c.db, sessionID)
		if serr != nil {
			return 0, serr
		}
		return 0, &VersionMismatchError{Expected: expectedVersion, Current: sess.Version}
	}

	return expectedVersion + 1, nil
}

// roundIsComplete reports whether every current participant has voted on
// every deck item. Votes from departed participants or for items outside
// the deck are ignored.
func roundIsComplete(deckItemIDs []string, votes []models.Vote, participants []string) bool {
	voted := make(map[string]bool, len(votes))
	for _, v := range votes {
		voted[v.ParticipantID+"\x00"+v.ItemID] = true
	}

	for _, p := range participants {
		for _, itemID := range deckItemIDs {
			if !voted[p+"\x00"+itemID] {
				return false
			}
		}
	}
	return true
}

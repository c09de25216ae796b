// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/placepact/server/models"
)

// TallyFinalVote tallies accept votes per candidate and picks the winner.
// Ties are broken deterministically: the lexicographically smallest item id
// among the tied set wins. Iteration-order tie-breaking would not be stable
// across runs, so candidates are scanned in their given (sorted) order.
func TallyFinalVote(candidates []string, votes []models.Vote, participantCount int) (models.FinalVoteResult, error) {
	if len(candidates) == 0 {
		return models.FinalVoteResult{}, fmt.Errorf("final vote requires at least one candidate")
	}

	isCandidate := make(map[string]bool, len(candidates))
	for _, itemID := range candidates {
		isCandidate[itemID] = true
	}

	counts := make(map[string]int, len(candidates))
	for _, v := range votes {
		if v.Direction != models.DirectionAccept || !isCandidate[v.ItemID] {
			continue
		}
		counts[v.ItemID]++
	}

	// Find the max count, then the smallest id holding it.
	maxCount := -1
	for _, itemID := range candidates {
		if counts[itemID] > maxCount {
			maxCount = counts[itemID]
		}
	}

	winner := ""
	tiedAtMax := 0
	for _, itemID := range candidates {
		if counts[itemID] != maxCount {
			continue
		}
		tiedAtMax++
		if winner == "" || itemID < winner {
			winner = itemID
		}
	}

	wasTie := tiedAtMax > 1

	return models.FinalVoteResult{
		WinnerItemID:     winner,
		VoteCount:        maxCount,
		ParticipantCount: participantCount,
		WasTie:           wasTie,
		TieBreakUsed:     wasTie,
	}, nil
}

// markFinalChoice flags the winning item's match record as the session's
// final choice, exactly once. A second attempt finds an existing final
// choice and affects zero rows, which is a no-op rather than an error.
func markFinalChoice(ctx context.Context, tx *sql.Tx, sessionID, itemID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE session_match
		SET is_final_choice = TRUE
		WHERE session_id = $1 AND item_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM session_match
			WHERE session_id = $1 AND is_final_choice = TRUE
		  )
	`, sessionID, itemID)
	if err != nil {
		return fmt.Errorf("failed to mark final choice: %w", err)
	}
	return nil
}

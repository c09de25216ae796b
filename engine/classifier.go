// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"fmt"
	"sort"

	"github.com/placepact/server/models"
)

// Classification partitions a round's deck into unanimous, advancing, and
// eliminated items and carries the resulting next action.
type Classification struct {
	Unanimous  []string
	Advancing  []models.AdvancingItem
	Eliminated []string
	NextAction string
}

// Classify partitions the deck by accept count. It is a pure function of
// its inputs and assumes the completeness precondition holds: every
// participant has voted on every deck item (the Coordinator checks this
// before calling).
//
// Votes from participants outside participantIDs are ignored, so a
// participant who left mid-round cannot inflate an item's accept count
// past the current participant total.
func Classify(deck []string, votes []models.Vote, participantIDs []string) (Classification, error) {
	if len(participantIDs) == 0 {
		return Classification{}, fmt.Errorf("classify deck of %d items: %w", len(deck), ErrNoParticipants)
	}

	current := make(map[string]bool, len(participantIDs))
	for _, id := range participantIDs {
		current[id] = true
	}

	inDeck := make(map[string]bool, len(deck))
	for _, itemID := range deck {
		inDeck[itemID] = true
	}

	acceptCounts := make(map[string]int, len(deck))
	for _, v := range votes {
		if v.Direction != models.DirectionAccept {
			continue
		}
		if !inDeck[v.ItemID] || !current[v.ParticipantID] {
			continue
		}
		acceptCounts[v.ItemID]++
	}

	var c Classification
	for _, itemID := range deck {
		count := acceptCounts[itemID]
		switch {
		case count == len(participantIDs):
			c.Unanimous = append(c.Unanimous, itemID)
		case count == 0:
			c.Eliminated = append(c.Eliminated, itemID)
		default:
			c.Advancing = append(c.Advancing, models.AdvancingItem{
				ItemID:      itemID,
				AcceptCount: count,
			})
		}
	}

	// Deterministic output regardless of deck or vote order: advancing by
	// accept count descending then item id ascending, the rest by item id.
	sort.Slice(c.Advancing, func(i, j int) bool {
		a, b := c.Advancing[i], c.Advancing[j]
		if a.AcceptCount != b.AcceptCount {
			return a.AcceptCount > b.AcceptCount
		}
		return a.ItemID < b.ItemID
	})
	sort.Strings(c.Unanimous)
	sort.Strings(c.Eliminated)

	c.NextAction = nextAction(len(c.Advancing))

	return c, nil
}

// nextAction decides how the session proceeds after a round.
// Unanimous items never block progress; they become permanent matches and
// are excluded from future decks, so only the advancing count matters for
// whether voting continues.
func nextAction(advancing int) string {
	switch {
	case advancing == 0:
		return models.ActionEnd
	case advancing <= 2:
		return models.ActionVote
	default:
		return models.ActionNextRound
	}
}

// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/placepact/server/models"
)

func vote(participantID, itemID, direction string) models.Vote {
	return models.Vote{
		SessionID:     "s1",
		RoundNumber:   1,
		ParticipantID: participantID,
		ItemID:        itemID,
		Direction:     direction,
	}
}

// Three participants rating deck {A..E}: A unanimous, B/C/E advancing,
// D eliminated, more than two advancing so the session goes another round.
func TestClassifyScenario(t *testing.T) {
	deck := []string{"A", "B", "C", "D", "E"}
	participants := []string{"p1", "p2", "p3"}

	votes := []models.Vote{
		// A: 3 accepts
		vote("p1", "A", models.DirectionAccept),
		vote("p2", "A", models.DirectionAccept),
		vote("p3", "A", models.DirectionAccept),
		// B: 2 accepts, 1 reject
		vote("p1", "B", models.DirectionAccept),
		vote("p2", "B", models.DirectionAccept),
		vote("p3", "B", models.DirectionReject),
		// C: 1 accept, 2 rejects
		vote("p1", "C", models.DirectionAccept),
		vote("p2", "C", models.DirectionReject),
		vote("p3", "C", models.DirectionReject),
		// D: 0 accepts
		vote("p1", "D", models.DirectionReject),
		vote("p2", "D", models.DirectionReject),
		vote("p3", "D", models.DirectionReject),
		// E: 1 accept, 2 rejects
		vote("p1", "E", models.DirectionReject),
		vote("p2", "E", models.DirectionAccept),
		vote("p3", "E", models.DirectionReject),
	}

	cls, err := Classify(deck, votes, participants)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	if !reflect.DeepEqual(cls.Unanimous, []string{"A"}) {
		t.Errorf("Unanimous = %v, want [A]", cls.Unanimous)
	}
	if !reflect.DeepEqual(cls.Eliminated, []string{"D"}) {
		t.Errorf("Eliminated = %v, want [D]", cls.Eliminated)
	}

	wantAdvancing := []models.AdvancingItem{
		{ItemID: "B", AcceptCount: 2},
		{ItemID: "C", AcceptCount: 1},
		{ItemID: "E", AcceptCount: 1},
	}
	if !reflect.DeepEqual(cls.Advancing, wantAdvancing) {
		t.Errorf("Advancing = %v, want %v", cls.Advancing, wantAdvancing)
	}

	if cls.NextAction != models.ActionNextRound {
		t.Errorf("NextAction = %s, want %s", cls.NextAction, models.ActionNextRound)
	}
}

// The three result sets must partition the deck: their union covers it
// and no item appears twice.
func TestClassifyPartitionsDeck(t *testing.T) {
	deck := []string{"A", "B", "C", "D", "E", "F"}
	participants := []string{"p1", "p2"}

	var votes []models.Vote
	directions := map[string][2]string{
		"A": {models.DirectionAccept, models.DirectionAccept},
		"B": {models.DirectionAccept, models.DirectionReject},
		"C": {models.DirectionReject, models.DirectionReject},
		"D": {models.DirectionReject, models.DirectionAccept},
		"E": {models.DirectionAccept, models.DirectionAccept},
		"F": {models.DirectionReject, models.DirectionReject},
	}
	for itemID, dirs := range directions {
		votes = append(votes, vote("p1", itemID, dirs[0]), vote("p2", itemID, dirs[1]))
	}

	cls, err := Classify(deck, votes, participants)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	seen := make(map[string]int)
	for _, id := range cls.Unanimous {
		seen[id]++
	}
	for _, adv := range cls.Advancing {
		seen[adv.ItemID]++
	}
	for _, id := range cls.Eliminated {
		seen[id]++
	}

	if len(seen) != len(deck) {
		t.Errorf("Result covers %d items, want %d", len(seen), len(deck))
	}
	for _, itemID := range deck {
		if seen[itemID] != 1 {
			t.Errorf("Item %s appears %d times across result sets, want exactly 1", itemID, seen[itemID])
		}
	}
}

func TestClassifyNextAction(t *testing.T) {
	participants := []string{"p1", "p2"}

	tests := []struct {
		name string
		// accepts: item -> which participants accept (everyone else rejects)
		deck    []string
		accepts map[string][]string
		want    string
	}{
		{
			name:    "nothing accepted ends session",
			deck:    []string{"A", "B"},
			accepts: map[string][]string{},
			want:    models.ActionEnd,
		},
		{
			name: "unanimous only ends session",
			deck: []string{"A"},
			accepts: map[string][]string{
				"A": {"p1", "p2"},
			},
			want: models.ActionEnd,
		},
		{
			name: "one advancing triggers final vote",
			deck: []string{"A", "B"},
			accepts: map[string][]string{
				"A": {"p1"},
			},
			want: models.ActionVote,
		},
		{
			name: "two advancing trigger final vote",
			deck: []string{"A", "B", "C"},
			accepts: map[string][]string{
				"A": {"p1"},
				"B": {"p2"},
			},
			want: models.ActionVote,
		},
		{
			name: "three advancing go another round",
			deck: []string{"A", "B", "C"},
			accepts: map[string][]string{
				"A": {"p1"},
				"B": {"p2"},
				"C": {"p1"},
			},
			want: models.ActionNextRound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var votes []models.Vote
			for _, itemID := range tt.deck {
				accepting := make(map[string]bool)
				for _, p := range tt.accepts[itemID] {
					accepting[p] = true
				}
				for _, p := range participants {
					dir := models.DirectionReject
					if accepting[p] {
						dir = models.DirectionAccept
					}
					votes = append(votes, vote(p, itemID, dir))
				}
			}

			cls, err := Classify(tt.deck, votes, participants)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if cls.NextAction != tt.want {
				t.Errorf("NextAction = %s, want %s", cls.NextAction, tt.want)
			}
		})
	}
}

func TestClassifyNoParticipants(t *testing.T) {
	_, err := Classify([]string{"A"}, nil, nil)
	if !errors.Is(err, ErrNoParticipants) {
		t.Errorf("Classify() error = %v, want ErrNoParticipants", err)
	}
}

// Votes from participants outside the current set, or for items outside
// the deck, never influence the counts.
func TestClassifyIgnoresStrayVotes(t *testing.T) {
	deck := []string{"A"}
	participants := []string{"p1"}

	votes := []models.Vote{
		vote("p1", "A", models.DirectionAccept),
		vote("departed", "A", models.DirectionAccept),
		vote("p1", "not-in-deck", models.DirectionAccept),
	}

	cls, err := Classify(deck, votes, participants)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	if !reflect.DeepEqual(cls.Unanimous, []string{"A"}) {
		t.Errorf("Unanimous = %v, want [A]", cls.Unanimous)
	}
	if len(cls.Advancing) != 0 || len(cls.Eliminated) != 0 {
		t.Errorf("Stray votes leaked into results: advancing=%v eliminated=%v", cls.Advancing, cls.Eliminated)
	}
}

func TestClassifySingleParticipant(t *testing.T) {
	deck := []string{"A", "B"}
	participants := []string{"solo"}

	votes := []models.Vote{
		vote("solo", "A", models.DirectionAccept),
		vote("solo", "B", models.DirectionReject),
	}

	cls, err := Classify(deck, votes, participants)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	// With one participant every accepted item is unanimous
	if !reflect.DeepEqual(cls.Unanimous, []string{"A"}) {
		t.Errorf("Unanimous = %v, want [A]", cls.Unanimous)
	}
	if !reflect.DeepEqual(cls.Eliminated, []string{"B"}) {
		t.Errorf("Eliminated = %v, want [B]", cls.Eliminated)
	}
	if cls.NextAction != models.ActionEnd {
		t.Errorf("NextAction = %s, want %s", cls.NextAction, models.ActionEnd)
	}
}

// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package engine implements the group-decision consensus core: round
completion detection, outcome classification, optimistic-concurrency-safe
session transitions, and final-vote tie-breaking.

# Round Classification

Classify partitions a round's deck by accept count:

	cls, err := engine.Classify(deckItemIDs, votes, participantIDs)

The sets are:

  - unanimous: accepted by every participant; becomes a permanent match
  - advancing: accepted by some but not all; carried forward
  - eliminated: accepted by nobody

The three sets partition the deck. Advancing items are ordered by accept
count descending, then item id ascending, so clients render identical
lists. The next action follows the advancing count: more than two items
advance to another round, one or two trigger the final vote, zero ends
the session.

# Round Completion

The Coordinator runs completion checks. Every participant's client calls
it after each vote, so it must tolerate concurrent and repeated
invocation:

	coord := engine.NewCoordinator(db)
	result, err := coord.CheckAndComplete(ctx, sessionID)

A check that finds missing votes returns Completed=false without error.
A check that finds the round complete acquires the session's transition
lock, classifies, and commits matches + next deck + version bump in one
transaction conditioned on the session version it read (compare-and-set).
Exactly one racing caller commits; the others see ErrSessionLocked or
VersionMismatchError and retry with a refreshed version inside a bounded
loop (never recursion, never unbounded blocking).

# Final Vote

When the field narrows to one or two finalists the session enters the
final-vote phase. Completion of that round tallies accepts per finalist:

	final, err := engine.TallyFinalVote(candidates, votes, participantCount)

Equal counts are broken deterministically by smallest item id; the tie
flags record that the rule fired. The winner's match record is flagged
is_final_choice exactly once per session.

# Error Taxonomy

  - ErrNoParticipants: fatal misconfiguration, surfaced immediately
  - ErrSessionLocked: transient, retried after a short fixed delay
  - VersionMismatchError: transient, retried with the refreshed version
  - incomplete round: not an error, Completed=false

Transient conditions never escape CheckAndComplete unless its attempt
budget is exhausted.
*/
package engine

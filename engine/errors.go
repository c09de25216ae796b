// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoParticipants means a classification was requested for a session
	// with an empty participant set. Fatal: surfaced, never retried.
	ErrNoParticipants = errors.New("session has no participants")

	// ErrSessionLocked means another caller holds the transition lock.
	// Transient: retry after a short delay.
	ErrSessionLocked = errors.New("session locked by in-flight transition")

	// ErrSessionNotFound means the session id resolved to no record.
	ErrSessionNotFound = errors.New("session not found")
)

// VersionMismatchError reports a failed compare-and-set against the
// session's version counter. Transient: the caller should refresh the
// version from Current and retry.
type VersionMismatchError struct {
	Expected int
	Current  int
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("session version mismatch: expected %d, current %d", e.Expected, e.Current)
}

// Package scan implements the threat-detection engine: context-aware weighted
// scoring of single texts, multi-turn session tracking, attack-chain
// detection, and constraint-erosion analysis. Text scanning never fails on
// content; errors are reserved for invalid arguments and session state.
package scan

import (
	"errors"
	"fmt"
)

// Session rejection reasons carried by SessionStateError.
const (
	ReasonEnded    = "ended"
	ReasonTimedOut = "timed_out"
	ReasonCapacity = "capacity"
)

// ValidationError reports an invalid argument.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SessionStateError reports an operation rejected by session lifecycle state.
type SessionStateError struct {
	SessionID string
	Reason    string // ended | timed_out | capacity
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("session %s rejected turn: %s", e.SessionID, e.Reason)
}

// NotFoundError reports a session ID with no live record.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsSessionRejected reports whether err is a lifecycle rejection, returning
// the reason when it is.
func IsSessionRejected(err error) (string, bool) {
	var se *SessionStateError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}

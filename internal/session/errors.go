package session

import "github.com/pkg/errors"

// Sentinel errors for the SessionError taxonomy (SPEC_FULL.md §7).
var (
	// ErrTimeout is returned when a UDP request exhausts its retry budget
	// without a matching reply.
	ErrTimeout = errors.New("session: request timed out")
	// ErrCancelled is returned to a future whose Cancel was called before
	// completion.
	ErrCancelled = errors.New("session: request cancelled")
	// ErrClosed is returned to every pending entry for a destination whose
	// underlying TCP connection was lost.
	ErrClosed = errors.New("session: destination connection closed")
	// ErrUnexpectedFrame fails a pending PLAYERS/RULES request's future when
	// it receives a second CHALLENGE after already using its one transparent
	// retry (spec.md: "at most one transparent challenge retry").
	ErrUnexpectedFrame = errors.New("session: frame does not correlate to a pending request")
)

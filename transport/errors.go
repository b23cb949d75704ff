package transport

import "github.com/pkg/errors"

// Sentinel errors for the TransportError taxonomy (SPEC_FULL.md §7).
// Callers compare with errors.Is; package boundaries wrap these with
// github.com/pkg/errors for stack context, matching the teacher's
// errdefs.Is*Error shape.
var (
	// ErrBackpressure is returned synchronously from Send when a
	// destination's write queue is at its high-water mark.
	ErrBackpressure = errors.New("transport: backpressure, write queue full")
	// ErrClosed is the cause passed to OnClosed when a destination's TCP
	// connection is lost (the session manager then fails that destination's
	// pending entries with its own session.ErrClosed).
	ErrClosed = errors.New("transport: connection closed")
	// ErrConnectFailed is returned when a lazy TCP dial fails.
	ErrConnectFailed = errors.New("transport: connect failed")
	// ErrIO wraps an unexpected socket read/write error.
	ErrIO = errors.New("transport: io error")
)

// IsBackpressure reports whether err unwraps to ErrBackpressure.
func IsBackpressure(err error) bool { return errors.Is(err, ErrBackpressure) }

// IsClosed reports whether err unwraps to ErrClosed.
func IsClosed(err error) bool { return errors.Is(err, ErrClosed) }

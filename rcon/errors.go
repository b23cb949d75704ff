package rcon

import "github.com/pkg/errors"

// Sentinel errors for the RconError taxonomy (SPEC_FULL.md §7).
var (
	ErrNotAuthenticated = errors.New("rcon: not authenticated")
	ErrAuthRejected     = errors.New("rcon: authentication rejected")
	ErrBadCorrelation   = errors.New("rcon: response id does not correlate to any pending request")
	ErrFraming          = errors.New("rcon: frame size violates configured limits")
)

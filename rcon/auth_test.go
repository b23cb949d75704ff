package rcon

import (
	"testing"

	"github.com/sourcequery/engine/transport"
	"gotest.tools/v3/assert"
)

// TestAuthRejectedS4 covers scenario S4: AUTH(id=42) rejected leaves the
// session unauthenticated and commands keep failing.
func TestAuthRejectedS4(t *testing.T) {
	s := &Session{}
	s.BeginAuth(42)

	advanced := s.OnEmptyResponseValue(42)
	assert.Assert(t, advanced)

	authed, err := s.OnAuthResponse(-1)
	assert.Assert(t, !authed)
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.Assert(t, !s.Authenticated())
	assert.ErrorIs(t, s.RequireAuthenticated(), ErrNotAuthenticated)
}

func TestAuthSucceeds(t *testing.T) {
	s := &Session{}
	s.BeginAuth(7)
	assert.Assert(t, s.OnEmptyResponseValue(7))

	authed, err := s.OnAuthResponse(7)
	assert.Assert(t, authed)
	assert.NilError(t, err)
	assert.Assert(t, s.Authenticated())
}

func TestAuthResponseWithoutPrimeIsBadCorrelation(t *testing.T) {
	s := &Session{}
	s.BeginAuth(1)
	_, err := s.OnAuthResponse(1)
	assert.ErrorIs(t, err, ErrBadCorrelation)
}

func TestSessionTableLazyCreateAndInvalidate(t *testing.T) {
	table := NewSessionTable()
	dest := transport.Destination{Host: "127.0.0.1", Port: 27015, Kind: transport.KindRCON}

	s1 := table.Get(dest)
	s2 := table.Get(dest)
	assert.Assert(t, s1 == s2, "expected same session instance for repeated Get")

	table.Invalidate(dest)
	s3 := table.Get(dest)
	assert.Assert(t, s3 != s1, "expected a fresh session after invalidation")
}

package rcon

import (
	"sync"
	"time"

	"github.com/sourcequery/engine/transport"
)

// authState is one state of the authentication state machine, spec.md
// §4.3 "Authentication state machine".
type authState uint8

const (
	stateUnauth authState = iota
	stateAuthPending
	stateAuthPendingPrime // server has echoed the AUTH packet back as an empty RESPONSE_VALUE
	stateAuthed
)

// Session is the per-destination RCON authentication record, spec.md §3
// "RCON session": created lazily on first auth attempt, deleted on
// transport close.
type Session struct {
	mu            sync.Mutex
	state         authState
	pendingAuthID int32
	authenticated *int32
	lastUsed      time.Time
}

// BeginAuth transitions [UNAUTH] -> [AUTH_PENDING] and remembers the id the
// caller chose for the AUTH packet, so later echoes/responses can be
// matched to it.
func (s *Session) BeginAuth(id int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateAuthPending
	s.pendingAuthID = id
	s.lastUsed = time.Now()
}

// OnEmptyResponseValue handles the server's echo of the AUTH packet as an
// empty RESPONSE_VALUE (spec.md: "[AUTH_PENDING] --recv empty
// RESPONSE_VALUE with id=X--> [AUTH_PENDING']"). Returns true if this
// advanced the state machine.
func (s *Session) OnEmptyResponseValue(id int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateAuthPending && id == s.pendingAuthID {
		s.state = stateAuthPendingPrime
		return true
	}
	return false
}

// OnAuthResponse handles an AUTH_RESPONSE packet. id == -1 signals
// rejection; id == the original AUTH id signals success. Any other id is a
// correlation mismatch.
func (s *Session) OnAuthResponse(id int32) (authenticated bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateAuthPendingPrime {
		return false, ErrBadCorrelation
	}
	if id == -1 {
		s.state = stateUnauth
		return false, ErrAuthRejected
	}
	if id != s.pendingAuthID {
		return false, ErrBadCorrelation
	}
	s.state = stateAuthed
	authedID := id
	s.authenticated = &authedID
	s.lastUsed = time.Now()
	return true, nil
}

// Authenticated reports whether commands may currently be issued.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateAuthed
}

// RequireAuthenticated returns ErrNotAuthenticated unless the session is
// in state [AUTHED] (spec.md: "Commands may be issued only from [AUTHED]").
func (s *Session) RequireAuthenticated() error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// SessionTable is the one piece of mutable state the Client Facade owns
// directly (spec.md §3 "Ownership"), keyed by destination.
type SessionTable struct {
	mu       sync.Mutex
	sessions map[transport.Destination]*Session
}

// NewSessionTable constructs an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[transport.Destination]*Session)}
}

// Get returns (creating if absent) the Session for dest.
func (t *SessionTable) Get(dest transport.Destination) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[dest]
	if !ok {
		s = &Session{}
		t.sessions[dest] = s
	}
	return s
}

// Invalidate removes dest's session, e.g. on transport close (spec.md §3:
// "deleted on transport close").
func (t *SessionTable) Invalidate(dest transport.Destination) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, dest)
}

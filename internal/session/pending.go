package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/sourcequery/engine/query"
	"github.com/sourcequery/engine/rcon"
	"github.com/sourcequery/engine/transport"
)

// pendingKey is the Session Manager's correlation key (spec.md §4.4): for
// UDP there is no transport id, so the expected response kind stands in;
// for RCON the wire id does. Both fold into one uint64 so the pending
// table is uniform across protocols.
type pendingKey struct {
	dest transport.Destination
	key  uint64
}

func udpKey(dest transport.Destination, kind query.ResponseKind) pendingKey {
	return pendingKey{dest: dest, key: uint64(kind)}
}

func rconKey(dest transport.Destination, id int32) pendingKey {
	return pendingKey{dest: dest, key: uint64(uint32(id))}
}

// authKey is the correlation key for an in-flight AUTH handshake. It is
// distinct from any rconKey value (uint32 space) because the rejection
// reply's id is the protocol sentinel -1 rather than the request's own id
// (spec.md §4.3), so auth replies cannot be correlated by echoed id alone;
// instead, any frame from dest is treated as part of the handshake for as
// long as an authKey entry is pending for it.
func authKey(dest transport.Destination) pendingKey {
	return pendingKey{dest: dest, key: ^uint64(0)}
}

// newDiagID mints a per-dispatch correlation id for log lines, independent
// of the wire-level correlation key.
func newDiagID() string {
	return uuid.NewString()
}

type pendingState uint8

const (
	stateQueued pendingState = iota
	stateSent
	statePartial // reassembly in progress (UDP) or output accumulating (RCON exec)
	stateDone
)

// pendingEntry is one in-flight request. It has no lock of its own: every
// read or write of its mutable fields (retries, timer, challenge,
// challengeRetried) happens while the Manager's table mutex is held, the
// same mutex that guards the pending table itself (spec.md §5: the pending
// table is the only widely shared mutable state). This matters beyond just
// the table lookup, since a retry timer firing and an inbound CHALLENGE can
// both reach the same entry concurrently.
type pendingEntry struct {
	key  pendingKey
	dest transport.Destination
	kind transport.Kind

	// req is the caller's original Request (spec.md §3): dest/priority
	// duplicated above for convenient access, plus the Payload descriptor
	// and optional per-request Deadline that dest/priority alone don't
	// carry.
	req Request

	// diagID correlates this entry's log lines across retries and the
	// eventual completion, independent of the correlation key (which is
	// reused by later, unrelated requests once this one finishes).
	diagID string

	state    pendingState
	priority transport.Priority

	sentAt  time.Time
	retries int
	timer   *time.Timer
	backoff *backoffSchedule

	// epoch is bumped every time timer is retired and replaced (a retry
	// re-arm or a challenge-substitution re-arm). A timer's fire callback
	// captures the epoch it was armed under and checks it still matches
	// before acting, so a timer that lost its race against Stop() — already
	// in flight when a concurrent CHALLENGE or retry superseded it — becomes
	// a harmless no-op instead of mutating retries/timer a second time.
	epoch int

	// UDP-only. Split-packet reassembly is not tracked per entry: a split
	// group's first fragment carries no response-kind byte, so reassembly
	// buffers live in the manager's splitID-keyed table until assembled,
	// then get routed to whichever pending entry matches the decoded kind.
	responseKind     query.ResponseKind
	buildFrame       func(challenge uint32) []byte // nil for RCON
	challenge        uint32
	challengeRetried bool

	// RCON-only.
	rconID      int32
	rconSession *rcon.Session // the auth state machine for this destination, owned by the caller
	accumulator *rcon.Accumulator

	// complete fires the caller's Future exactly once. Set by the
	// type-specific Dispatch* method; the manager never constructs Futures
	// itself, since their result type varies per request kind.
	complete func(value interface{}, err error)
}

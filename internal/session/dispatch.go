package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sourcequery/engine/query"
	"github.com/sourcequery/engine/query/wire"
	"github.com/sourcequery/engine/rcon"
	rconwire "github.com/sourcequery/engine/rcon/wire"
	"github.com/sourcequery/engine/transport"
)

var rconIDSeq int32

func nextRconID() int32 {
	// Wraps through the int32 space; -1 is reserved by the protocol for
	// AUTH rejection, so it is skipped.
	for {
		id := atomic.AddInt32(&rconIDSeq, 1)
		if id != -1 {
			return id
		}
	}
}

// newTyped builds a Future[T] plus the manager-facing untyped complete
// closure a pendingEntry stores, converting interface{} back to T. value
// is always either a T or nil (on error/cancel paths).
func newTyped[T any](m *Manager, entry **pendingEntry) (*Future[T], func(interface{}, error)) {
	future, completeTyped := newFuture[T](func() {
		m.cancelEntry(*entry)
	})
	complete := func(value interface{}, err error) {
		if err != nil {
			var zero T
			completeTyped(zero, err)
			return
		}
		v, _ := value.(T)
		completeTyped(v, nil)
	}
	return future, complete
}

// DispatchInfo issues an A2S_INFO request (spec.md §6 QueryInfo). deadline
// overrides Config.ReadTimeout for this request alone when non-zero
// (scenario S6); the zero Time means "use the manager default".
func (m *Manager) DispatchInfo(ctx context.Context, dest transport.Destination, priority transport.Priority, deadline time.Time) (*Future[query.ServerInfo], error) {
	var entryRef *pendingEntry
	future, complete := newTyped[query.ServerInfo](m, &entryRef)

	payload := query.InfoPayload{}
	req := Request{Dest: dest, Priority: priority, Deadline: deadline, Payload: payload}
	key := udpKey(dest, query.KindInfo)
	var sendErr error
	m.admit(key,
		func() *pendingEntry {
			e := &pendingEntry{
				key: key, dest: dest, kind: transport.KindQuery, req: req,
				state: stateSent, priority: priority,
				diagID:       newDiagID(),
				responseKind: query.KindInfo,
				buildFrame:   func(uint32) []byte { return wire.EncodeInfoRequest() },
				backoff:      newBackoffSchedule(m.cfg.BackoffInitial, m.cfg.BackoffMax),
				complete:     complete,
			}
			entryRef = e
			m.scheduleTimeout(e, func() { m.udpTimeout(e) })
			return e
		},
		func(e *pendingEntry) error {
			return m.udp.Send(ctx, dest, e.buildFrame(0), priority)
		},
		func(err error) { sendErr = err },
	)
	if sendErr != nil {
		return nil, sendErr
	}
	return future, nil
}

// DispatchPlayers issues an A2S_PLAYER request, starting from the
// payload's Challenge (normally wire.DefaultChallenge); a CHALLENGE reply
// is handled transparently by handleChallenge (spec.md §4.2).
func (m *Manager) DispatchPlayers(ctx context.Context, dest transport.Destination, priority transport.Priority, deadline time.Time) (*Future[[]query.PlayerInfo], error) {
	var entryRef *pendingEntry
	future, complete := newTyped[[]query.PlayerInfo](m, &entryRef)

	payload := query.PlayersPayload{Challenge: wire.DefaultChallenge}
	req := Request{Dest: dest, Priority: priority, Deadline: deadline, Payload: payload}
	key := udpKey(dest, query.KindPlayers)
	var sendErr error
	m.admit(key,
		func() *pendingEntry {
			e := &pendingEntry{
				key: key, dest: dest, kind: transport.KindQuery, req: req,
				state: stateSent, priority: priority,
				diagID:       newDiagID(),
				responseKind: query.KindPlayers,
				challenge:    payload.Challenge,
				buildFrame:   wire.EncodePlayersRequest,
				backoff:      newBackoffSchedule(m.cfg.BackoffInitial, m.cfg.BackoffMax),
				complete:     complete,
			}
			entryRef = e
			m.scheduleTimeout(e, func() { m.udpTimeout(e) })
			return e
		},
		func(e *pendingEntry) error {
			return m.udp.Send(ctx, dest, e.buildFrame(payload.Challenge), priority)
		},
		func(err error) { sendErr = err },
	)
	if sendErr != nil {
		return nil, sendErr
	}
	return future, nil
}

// DispatchRules issues an A2S_RULES request; same challenge handling as
// DispatchPlayers.
func (m *Manager) DispatchRules(ctx context.Context, dest transport.Destination, priority transport.Priority, deadline time.Time) (*Future[query.Rules], error) {
	var entryRef *pendingEntry
	future, complete := newTyped[query.Rules](m, &entryRef)

	payload := query.RulesPayload{Challenge: wire.DefaultChallenge}
	req := Request{Dest: dest, Priority: priority, Deadline: deadline, Payload: payload}
	key := udpKey(dest, query.KindRules)
	var sendErr error
	m.admit(key,
		func() *pendingEntry {
			e := &pendingEntry{
				key: key, dest: dest, kind: transport.KindQuery, req: req,
				state: stateSent, priority: priority,
				diagID:       newDiagID(),
				responseKind: query.KindRules,
				challenge:    payload.Challenge,
				buildFrame:   wire.EncodeRulesRequest,
				backoff:      newBackoffSchedule(m.cfg.BackoffInitial, m.cfg.BackoffMax),
				complete:     complete,
			}
			entryRef = e
			m.scheduleTimeout(e, func() { m.udpTimeout(e) })
			return e
		},
		func(e *pendingEntry) error {
			return m.udp.Send(ctx, dest, e.buildFrame(payload.Challenge), priority)
		},
		func(err error) { sendErr = err },
	)
	if sendErr != nil {
		return nil, sendErr
	}
	return future, nil
}

// DispatchRconAuth runs the AUTH handshake (spec.md §4.3 auth state
// machine) against session, the destination's caller-owned auth record.
func (m *Manager) DispatchRconAuth(ctx context.Context, dest transport.Destination, session *rcon.Session, password string, priority transport.Priority, deadline time.Time) (*Future[bool], error) {
	var entryRef *pendingEntry
	future, complete := newTyped[bool](m, &entryRef)

	payload := rcon.AuthPayload{Password: password}
	req := Request{Dest: dest, Priority: priority, Deadline: deadline, Payload: payload}
	id := nextRconID()
	key := authKey(dest)
	var sendErr error
	m.admit(key,
		func() *pendingEntry {
			// BeginAuth runs here, not before admit, so concurrent auth
			// attempts against the same destination advance the state
			// machine in the same serialized order the pending table
			// admits them (spec.md §5).
			session.BeginAuth(id)
			e := &pendingEntry{
				key: key, dest: dest, kind: transport.KindRCON, req: req,
				state: stateSent, priority: priority,
				diagID: newDiagID(),
				rconID: id, rconSession: session,
				complete: complete,
			}
			entryRef = e
			m.scheduleTimeout(e, func() { m.rconTimeout(e) })
			return e
		},
		func(e *pendingEntry) error {
			frame := rconwire.Frame(id, rconwire.TypeAuth, []byte(payload.Password))
			return m.tcp.Send(ctx, dest, frame, priority)
		},
		func(err error) { sendErr = err },
	)
	if sendErr != nil {
		return nil, sendErr
	}
	return future, nil
}

// DispatchRconExec issues an EXECCOMMAND and collects its multi-packet
// response via the sentinel-terminator workaround (spec.md §4.3 step 2).
// Callers must have already confirmed session.Authenticated().
func (m *Manager) DispatchRconExec(ctx context.Context, dest transport.Destination, session *rcon.Session, command string, terminatorPattern []byte, priority transport.Priority, deadline time.Time) (*Future[string], error) {
	if err := session.RequireAuthenticated(); err != nil {
		return nil, err
	}

	var entryRef *pendingEntry
	future, complete := newTyped[string](m, &entryRef)

	payload := rcon.CommandPayload{Command: command}
	req := Request{Dest: dest, Priority: priority, Deadline: deadline, Payload: payload}
	id := nextRconID()
	key := rconKey(dest, id)

	var sendErr error
	m.admit(key,
		func() *pendingEntry {
			e := &pendingEntry{
				key: key, dest: dest, kind: transport.KindRCON, req: req,
				state: stateSent, priority: priority,
				diagID:      newDiagID(),
				rconID:      id,
				accumulator: rcon.NewAccumulator(terminatorPattern),
				complete:    complete,
			}
			entryRef = e
			m.scheduleTimeout(e, func() { m.rconTimeout(e) })
			return e
		},
		func(e *pendingEntry) error {
			exec := rconwire.Frame(id, rconwire.TypeExecCommand, []byte(payload.Command))
			if err := m.tcp.Send(ctx, dest, exec, priority); err != nil {
				return err
			}
			// Sentinel: an unsolicited empty RESPONSE_VALUE, not another
			// EXECCOMMAND. The server mirrors it straight back once the real
			// command's (possibly multi-packet) output has drained, marking
			// the end of the response (spec.md §4.3 step 1-2).
			sentinel := rconwire.Frame(id, rconwire.TypeResponseValue, nil)
			return m.tcp.Send(ctx, dest, sentinel, priority)
		},
		func(err error) { sendErr = err },
	)
	if sendErr != nil {
		return nil, sendErr
	}
	return future, nil
}

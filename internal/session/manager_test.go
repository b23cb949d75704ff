package session

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/sourcequery/engine/query/wire"
	"github.com/sourcequery/engine/rcon"
	rconwire "github.com/sourcequery/engine/rcon/wire"
	"github.com/sourcequery/engine/transport"
)

// fakePool is a minimal, synchronous transport.Pool test double: Send
// invokes a test-supplied hook inline (rather than over a real socket),
// which lets tests script a scripted server reply without sleeps or
// goroutine races.
type fakePool struct {
	mu        sync.Mutex
	onReceive transport.ReceiveFunc
	onClosed  transport.ClosedFunc
	sent      [][]byte
	onSend    func(dest transport.Destination, frame []byte)
}

func (p *fakePool) Send(_ context.Context, dest transport.Destination, frame []byte, _ transport.Priority) error {
	p.mu.Lock()
	p.sent = append(p.sent, frame)
	hook := p.onSend
	p.mu.Unlock()
	if hook != nil {
		hook(dest, frame)
	}
	return nil
}

func (p *fakePool) OnReceive(fn transport.ReceiveFunc) { p.onReceive = fn }
func (p *fakePool) OnClosed(fn transport.ClosedFunc)   { p.onClosed = fn }
func (p *fakePool) Close() error                       { return nil }

func (p *fakePool) deliver(dest transport.Destination, frame []byte) {
	p.onReceive(dest, frame)
}

func (p *fakePool) sendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func outerSingle(body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out, 0xFFFFFFFF) // -1 as uint32
	copy(out[4:], body)
	return out
}

func buildInfoResponseFrame() []byte {
	body := []byte{wire.HeaderInfo}
	body = append(body, 17) // protocol
	body = append(body, []byte("My Server\x00")...)
	body = append(body, []byte("de_dust2\x00")...)
	body = append(body, []byte("cstrike\x00")...)
	body = append(body, []byte("Counter-Strike\x00")...)
	fixed := make([]byte, 9)
	binary.LittleEndian.PutUint16(fixed[0:2], 240)
	fixed[2] = 5  // players
	fixed[3] = 10 // max players
	fixed[4] = 0  // bots
	fixed[5] = 'd'
	fixed[6] = 'l'
	fixed[7] = 0
	fixed[8] = 1
	body = append(body, fixed...)
	return outerSingle(body)
}

func buildChallengeFrame(token uint32) []byte {
	body := make([]byte, 5)
	body[0] = wire.HeaderChallenge
	binary.LittleEndian.PutUint32(body[1:], token)
	return outerSingle(body)
}

func buildPlayersResponseFrame() []byte {
	body := []byte{wire.HeaderPlayers, 1}
	body = append(body, 0) // index
	body = append(body, []byte("Alice\x00")...)
	scoreDuration := make([]byte, 8)
	binary.LittleEndian.PutUint32(scoreDuration[0:4], 10)
	body = append(body, scoreDuration...)
	return outerSingle(body)
}

func buildRulesResponseFrame() []byte {
	body := []byte{wire.HeaderRules}
	count := make([]byte, 2)
	binary.LittleEndian.PutUint16(count, 1)
	body = append(body, count...)
	body = append(body, []byte("sv_gravity\x00")...)
	body = append(body, []byte("800\x00")...)
	return outerSingle(body)
}

func testDest(kind transport.Kind) transport.Destination {
	return transport.Destination{Host: "10.0.0.1", Port: 27015, Kind: kind}
}

func newTestManager(udp, tcp *fakePool) *Manager {
	cfg := DefaultConfig()
	cfg.ReadTimeout = 2 * time.Second
	var udpPool, tcpPool transport.Pool
	if udp != nil {
		udpPool = udp
	}
	if tcp != nil {
		tcpPool = tcp
	}
	return NewManager(cfg, udpPool, tcpPool, nil, nil)
}

func TestDispatchInfoRoundTrip(t *testing.T) {
	udp := &fakePool{}
	m := newTestManager(udp, nil)
	defer m.Close()

	dest := testDest(transport.KindQuery)
	udp.onSend = func(d transport.Destination, frame []byte) {
		udp.deliver(d, buildInfoResponseFrame())
	}

	future, err := m.DispatchInfo(context.Background(), dest, transport.PriorityNormal, time.Time{})
	assert.NilError(t, err)

	info, err := future.Await(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, info.Name, "My Server")
	assert.Equal(t, info.Map, "de_dust2")
	assert.Equal(t, info.Players, byte(5))
}

func TestDispatchPlayersChallengeTransparentRetry(t *testing.T) {
	udp := &fakePool{}
	m := newTestManager(udp, nil)
	defer m.Close()

	dest := testDest(transport.KindQuery)
	const token = uint32(0xDEADBEEF)
	udp.onSend = func(d transport.Destination, frame []byte) {
		if udp.sendCount() == 1 {
			udp.deliver(d, buildChallengeFrame(token))
			return
		}
		udp.deliver(d, buildPlayersResponseFrame())
	}

	future, err := m.DispatchPlayers(context.Background(), dest, transport.PriorityNormal, time.Time{})
	assert.NilError(t, err)

	players, err := future.Await(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, len(players), 1)
	assert.Equal(t, players[0].Name, "Alice")
	assert.Equal(t, udp.sendCount(), 2)
}

// TestConcurrentPlayersRulesShareChallenge covers the case spec.md §4.4
// allows (distinct kinds to the same destination in flight together) but
// the challenge hand-off must not starve: one CHALLENGE frame has to
// unblock both the PLAYERS and the RULES entry, not just whichever the
// Session Manager happens to check first.
func TestConcurrentPlayersRulesShareChallenge(t *testing.T) {
	udp := &fakePool{}
	m := newTestManager(udp, nil)
	defer m.Close()

	dest := testDest(transport.KindQuery)
	const token = uint32(0xDEADBEEF)

	// The initial (challenge-less) sends just get recorded: the shared
	// CHALLENGE is delivered once, explicitly, below — only after both
	// PLAYERS and RULES have actually been dispatched — to reproduce the
	// two-kinds-in-flight-together race rather than resolve one kind's
	// challenge before the other is even dispatched.
	udp.onSend = func(d transport.Destination, f []byte) {
		pkt := f[4:]
		if binary.LittleEndian.Uint32(pkt[1:5]) != wire.DefaultChallenge {
			switch pkt[0] {
			case 0x55:
				udp.deliver(d, buildPlayersResponseFrame())
			case 0x56:
				udp.deliver(d, buildRulesResponseFrame())
			}
		}
	}

	playersFuture, err := m.DispatchPlayers(context.Background(), dest, transport.PriorityNormal, time.Time{})
	assert.NilError(t, err)
	rulesFuture, err := m.DispatchRules(context.Background(), dest, transport.PriorityNormal, time.Time{})
	assert.NilError(t, err)
	assert.Equal(t, udp.sendCount(), 2)

	udp.deliver(dest, buildChallengeFrame(token))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	players, err := playersFuture.Await(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(players), 1)

	rules, err := rulesFuture.Await(ctx)
	assert.NilError(t, err)
	assert.Equal(t, rules["sv_gravity"], "800")
}

func TestDispatchRconAuthRejectedS4(t *testing.T) {
	tcp := &fakePool{}
	m := newTestManager(nil, tcp)
	defer m.Close()

	dest := testDest(transport.KindRCON)
	session := &rcon.Session{}

	tcp.onSend = func(d transport.Destination, frame []byte) {
		pkt, err := rconwire.Decode(frame[4:])
		assert.NilError(t, err)
		if pkt.Type == rconwire.TypeAuth {
			tcp.deliver(d, rconwire.Encode(pkt.ID, rconwire.TypeResponseValue, nil))
			tcp.deliver(d, rconwire.Encode(-1, rconwire.TypeAuthResponse, nil))
		}
	}

	future, err := m.DispatchRconAuth(context.Background(), dest, session, "wrongpass", transport.PriorityNormal, time.Time{})
	assert.NilError(t, err)

	authed, err := future.Await(context.Background())
	assert.Assert(t, !authed)
	assert.ErrorIs(t, err, rcon.ErrAuthRejected)
	assert.Assert(t, !session.Authenticated())
}

func TestDispatchRconExecScenarioS5(t *testing.T) {
	tcp := &fakePool{}
	m := newTestManager(nil, tcp)
	defer m.Close()

	dest := testDest(transport.KindRCON)
	session := &rcon.Session{}
	session.BeginAuth(1)
	session.OnEmptyResponseValue(1)
	session.OnAuthResponse(1)
	assert.Assert(t, session.Authenticated())

	tcp.onSend = func(d transport.Destination, frame []byte) {
		pkt, err := rconwire.Decode(frame[4:])
		assert.NilError(t, err)
		switch {
		case len(pkt.Body) == 0:
			// sentinel (the empty RESPONSE_VALUE): reply with the two real
			// output frames, then the sentinel's own reply as an empty frame
			// followed by a pad-matching one (spec.md scenario S5).
			tcp.deliver(d, rconwire.Encode(pkt.ID, rconwire.TypeResponseValue, []byte("hostname: X\n")))
			tcp.deliver(d, rconwire.Encode(pkt.ID, rconwire.TypeResponseValue, []byte("players: 3\n")))
			tcp.deliver(d, rconwire.Encode(pkt.ID, rconwire.TypeResponseValue, nil))
			tcp.deliver(d, rconwire.Encode(pkt.ID, rconwire.TypeResponseValue, rcon.DefaultTerminatorPattern))
		}
	}

	future, err := m.DispatchRconExec(context.Background(), dest, session, "status", nil, transport.PriorityNormal, time.Time{})
	assert.NilError(t, err)

	out, err := future.Await(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, out, "hostname: X\nplayers: 3\n")
}

func TestCancelBeforeCompletion(t *testing.T) {
	udp := &fakePool{} // never replies
	m := newTestManager(udp, nil)
	defer m.Close()

	dest := testDest(transport.KindQuery)
	future, err := m.DispatchInfo(context.Background(), dest, transport.PriorityNormal, time.Time{})
	assert.NilError(t, err)

	future.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = future.Await(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestFIFOQueuedRequestsOfSameKind(t *testing.T) {
	udp := &fakePool{}
	m := newTestManager(udp, nil)
	defer m.Close()

	dest := testDest(transport.KindQuery)

	var released sync.WaitGroup
	released.Add(1)
	udp.onSend = func(d transport.Destination, frame []byte) {
		go func() {
			released.Wait()
			udp.deliver(d, buildInfoResponseFrame())
		}()
	}

	first, err := m.DispatchInfo(context.Background(), dest, transport.PriorityNormal, time.Time{})
	assert.NilError(t, err)
	second, err := m.DispatchInfo(context.Background(), dest, transport.PriorityNormal, time.Time{})
	assert.NilError(t, err)

	// The second request must not have been sent yet: only the first
	// request's frame is in flight for this (dest, kind) key.
	assert.Equal(t, udp.sendCount(), 1)

	released.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = first.Await(ctx)
	assert.NilError(t, err)
	_, err = second.Await(ctx)
	assert.NilError(t, err)
	assert.Equal(t, udp.sendCount(), 2)
}

// TestDispatchInfoPerRequestDeadline covers scenario S6: a request's own
// Deadline, shorter than the manager's configured read timeout, controls
// when its first timer fires rather than the manager default.
func TestDispatchInfoPerRequestDeadline(t *testing.T) {
	udp := &fakePool{} // never replies
	cfg := DefaultConfig()
	cfg.ReadTimeout = 10 * time.Second // deliberately much longer than the deadline below
	m := NewManager(cfg, udp, nil, nil, nil)
	defer m.Close()

	dest := testDest(transport.KindQuery)
	deadline := time.Now().Add(100 * time.Millisecond)

	start := time.Now()
	future, err := m.DispatchInfo(context.Background(), dest, transport.PriorityNormal, deadline)
	assert.NilError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = future.Await(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Assert(t, time.Since(start) < cfg.ReadTimeout)
}

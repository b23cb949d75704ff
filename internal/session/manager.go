package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sourcequery/engine/internal/metrics"
	"github.com/sourcequery/engine/query"
	"github.com/sourcequery/engine/query/wire"
	rconwire "github.com/sourcequery/engine/rcon/wire"
	"github.com/sourcequery/engine/transport"
)

type splitKey struct {
	dest    transport.Destination
	splitID int32
}

type splitGroup struct {
	asm       *wire.Reassembler
	createdAt time.Time
}

// splitReassemblyTTL bounds how long an incomplete split-packet group is
// kept in Manager.splits. A dropped fragment otherwise leaves the group
// sitting there forever — nothing else ever deletes it, since AddFragment
// never errors on a merely-incomplete group and Complete() never becomes
// true — so a server with lossy UDP, or a stream of malformed multi-part
// replies, would grow splits without bound.
const splitReassemblyTTL = 30 * time.Second

// Manager is the Session Manager (SPEC_FULL.md §4.4). It owns the pending
// table, routes inbound frames from both transport pools to the entry that
// requested them, and completes futures on a bounded worker pool so
// transport reactor goroutines never run caller code (spec.md §5).
type Manager struct {
	cfg Config
	udp transport.Pool
	tcp transport.Pool
	log *logrus.Entry
	met *metrics.Recorder

	mu      sync.Mutex
	pending map[pendingKey]*pendingEntry
	waiters map[pendingKey][]func()
	splits  map[splitKey]*splitGroup

	completions chan func()
	workers     *errgroup.Group
	stop        chan struct{}
	stopOnce    sync.Once

	onClosed func(dest transport.Destination, cause error)
}

// OnTransportClosed registers an additional callback invoked whenever a TCP
// destination's connection is lost, after its pending RCON entries have
// already failed with ErrClosed. The client facade uses this to invalidate
// the destination's cached auth session.
func (m *Manager) OnTransportClosed(fn func(dest transport.Destination, cause error)) {
	m.onClosed = fn
}

// NewManager wires up the two transport pools' receive/closed callbacks and
// starts the completion worker pool. Either pool may be nil if the caller
// never dispatches that protocol. rec may be nil; every Recorder method
// tolerates a nil receiver, so metrics stay fully optional.
func NewManager(cfg Config, udp, tcp transport.Pool, log *logrus.Entry, rec *metrics.Recorder) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	m := &Manager{
		cfg:         cfg,
		udp:         udp,
		tcp:         tcp,
		log:         log,
		met:         rec,
		pending:     make(map[pendingKey]*pendingEntry),
		waiters:     make(map[pendingKey][]func()),
		splits:      make(map[splitKey]*splitGroup),
		completions: make(chan func(), cfg.WorkerPoolSize*4),
		stop:        make(chan struct{}),
	}

	if udp != nil {
		udp.OnReceive(m.handleUDPFrame)
	}
	if tcp != nil {
		tcp.OnReceive(m.handleTCPFrame)
		tcp.OnClosed(m.handleTCPClosed)
	}

	// errgroup.Group pairs the worker fan with its own shutdown, the way the
	// teacher's pkg/progress.RunWithStatus pairs a writer goroutine with
	// caller work; none of these workers ever return an error, so Wait()
	// only ever reports the group draining cleanly.
	m.workers = new(errgroup.Group)
	for i := 0; i < cfg.WorkerPoolSize; i++ {
		m.workers.Go(m.worker)
	}
	return m
}

// worker drains completions until told to stop. The non-blocking check
// first gives already-queued completions priority over exiting: a bare
// `select` between completions and stop picks randomly once Close has
// closed m.stop, which could abandon work still sitting in the channel at
// shutdown instead of running it.
func (m *Manager) worker() error {
	for {
		select {
		case fn := <-m.completions:
			fn()
			continue
		default:
		}
		select {
		case fn := <-m.completions:
			fn()
		case <-m.stop:
			return nil
		}
	}
}

// postCompletion mirrors worker's priority: it tries a non-blocking enqueue
// first so a completion triggered by Close() itself (transport teardown
// failing pending entries) isn't dropped just because Close() raced it on
// closing m.stop with room still left in the buffer.
func (m *Manager) postCompletion(fn func()) {
	select {
	case m.completions <- fn:
		return
	default:
	}
	select {
	case m.completions <- fn:
	case <-m.stop:
	}
}

// Close stops accepting new completions and waits for in-flight ones to
// drain. It does not close the transport pools; callers own those
// separately.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return m.workers.Wait()
}

// admit registers a new pending entry for key and sends its first frame,
// unless key already has an entry in flight, in which case the attempt is
// queued FIFO behind it (spec.md §4.4: "only one request of each kind may
// be in flight per destination; excess requests are queued").
func (m *Manager) admit(key pendingKey, register func() *pendingEntry, send func(*pendingEntry) error, fail func(error)) {
	m.mu.Lock()
	if _, busy := m.pending[key]; busy {
		m.waiters[key] = append(m.waiters[key], func() {
			m.admit(key, register, send, fail)
		})
		m.mu.Unlock()
		return
	}
	entry := register()
	entry.sentAt = time.Now()
	m.pending[key] = entry
	m.mu.Unlock()
	m.met.InFlightDelta(context.Background(), 1, key.dest.String())

	if err := send(entry); err != nil {
		m.mu.Lock()
		cur, stillPending := m.pending[key]
		wasLive := stillPending && cur == entry
		var timer *time.Timer
		if wasLive {
			delete(m.pending, key)
			timer = entry.timer
		}
		m.mu.Unlock()
		if !wasLive {
			// entry's own timer already fired and finishEntry beat us to
			// removing it from the table (e.g. a very tight deadline racing
			// this send failure) — that path already reported metrics,
			// called fail via the future's completion, and admitted the
			// next waiter. Doing any of that again here would double-admit.
			return
		}
		if timer != nil {
			timer.Stop()
		}
		m.met.InFlightDelta(context.Background(), -1, key.dest.String())
		fail(err)
		m.admitNext(key)
	}
}

func (m *Manager) admitNext(key pendingKey) {
	m.mu.Lock()
	waiters := m.waiters[key]
	if len(waiters) == 0 {
		m.mu.Unlock()
		return
	}
	next := waiters[0]
	remaining := waiters[1:]
	if len(remaining) == 0 {
		delete(m.waiters, key)
	} else {
		m.waiters[key] = remaining
	}
	m.mu.Unlock()
	next()
}

// finishEntry removes entry from the pending table (idempotent against a
// concurrent replacement), releases its timer, admits the next FIFO
// waiter for its key, and posts the future completion to the worker pool.
func (m *Manager) finishEntry(entry *pendingEntry, value interface{}, err error) {
	m.mu.Lock()
	cur, ok := m.pending[entry.key]
	wasLive := ok && cur == entry
	var timer *time.Timer
	if wasLive {
		delete(m.pending, entry.key)
		timer = entry.timer
	}
	m.mu.Unlock()

	if !wasLive {
		// entry already finished (or was already replaced by a later FIFO
		// admission for the same key) through some other path — e.g. Cancel()
		// racing a reply that arrived first. Whoever actually held the key
		// already stopped its timer, reported metrics, and admitted the next
		// waiter; doing any of that again here would pop and requeue an
		// unrelated waiter out of turn.
		return
	}

	if timer != nil {
		timer.Stop()
	}
	m.met.InFlightDelta(context.Background(), -1, entry.dest.String())
	m.met.CompletionObserved(context.Background(), time.Since(entry.sentAt).Seconds(), entry.dest.String(), entry.kind.String())
	m.admitNext(entry.key)
	m.postCompletion(func() { entry.complete(value, err) })
}

// cancelEntry is wired as a Future's cancel callback. entry is nil when
// Cancel races a request that is still FIFO-queued behind another in-
// flight request for the same key (spec.md §4.4) and has not registered
// its pending entry yet; in that narrow window Cancel is a no-op and the
// request proceeds once admitted, per the documented limitation in
// DESIGN.md.
func (m *Manager) cancelEntry(entry *pendingEntry) {
	if entry == nil {
		return
	}
	m.finishEntry(entry, nil, ErrCancelled)
}

// invalidateTimerLocked stops entry's current timer (best-effort — Stop can
// lose the race against a timer that already fired) and bumps entry.epoch.
// Call with m.mu held, before releasing it to do the blocking I/O that
// precedes a replacement arm: a fire already in flight at the moment of
// this call captured the pre-bump epoch in its own closure, so armTimerLocked
// below correctly makes that fire a no-op rather than a second mutation of
// the same bookkeeping this call is about to redo.
func (m *Manager) invalidateTimerLocked(entry *pendingEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.epoch++
}

// armTimerLocked arms a new timer for entry bound to its current epoch.
// Call with m.mu held. The timer's fire callback re-checks entry.epoch
// under m.mu before invoking onFire, so a superseded timer — one whose
// invalidateTimerLocked call already bumped past the epoch this timer
// captured — becomes a harmless no-op instead of re-running onFire against
// bookkeeping a concurrent retry or challenge-substitution already redid.
func (m *Manager) armTimerLocked(entry *pendingEntry, d time.Duration, onFire func()) {
	epoch := entry.epoch
	entry.timer = time.AfterFunc(d, func() {
		m.mu.Lock()
		stale := entry.epoch != epoch
		m.mu.Unlock()
		if stale {
			return
		}
		onFire()
	})
}

// scheduleTimeout arms entry's initial timer, honoring a per-request
// Deadline (spec.md §3, scenario S6) over Config.ReadTimeout when the
// caller set one. UDP entries retry with backoff up to cfg.MaxRetries;
// RCON entries never retry (spec.md §4.4) and simply time out once. Called
// from admit's register() callback, which already holds m.mu.
func (m *Manager) scheduleTimeout(entry *pendingEntry, onFire func()) {
	m.armTimerLocked(entry, entry.req.timeout(m.cfg.ReadTimeout), onFire)
}

// udpTimeout mutates entry's own retry bookkeeping (retries, timer, epoch)
// under m.mu for the same reason retryWithChallenge does: a CHALLENGE reply
// can land on this same entry while its retry timer is firing.
func (m *Manager) udpTimeout(entry *pendingEntry) {
	m.mu.Lock()
	cur, ok := m.pending[entry.key]
	stillLive := ok && cur == entry
	if !stillLive {
		m.mu.Unlock()
		return
	}

	if entry.retries >= m.cfg.MaxRetries {
		m.mu.Unlock()
		m.log.WithField("diag_id", entry.diagID).Debug("session: udp request exhausted retry budget")
		m.finishEntry(entry, nil, ErrTimeout)
		return
	}
	entry.retries++
	delay := entry.backoff.next()
	challenge := entry.challenge
	retries := entry.retries
	m.invalidateTimerLocked(entry)
	m.mu.Unlock()

	m.met.RetryObserved(context.Background(), entry.dest.String())
	m.log.WithFields(logrus.Fields{"diag_id": entry.diagID, "retry": retries}).Debug("session: retrying udp request")
	frame := entry.buildFrame(challenge)
	if err := m.udp.Send(context.Background(), entry.dest, frame, entry.priority); err != nil {
		m.finishEntry(entry, nil, err)
		return
	}

	m.mu.Lock()
	m.armTimerLocked(entry, delay, func() { m.udpTimeout(entry) })
	m.mu.Unlock()
}

func (m *Manager) rconTimeout(entry *pendingEntry) {
	m.finishEntry(entry, nil, ErrTimeout)
}

// handleUDPFrame is the transport.ReceiveFunc registered with the UDP pool.
// It runs on a reactor goroutine: it only decodes and routes, never runs
// caller code directly (spec.md §5).
func (m *Manager) handleUDPFrame(dest transport.Destination, raw []byte) {
	frame, err := wire.ParseOuter(raw)
	if err != nil {
		m.log.WithError(err).Debug("session: dropping malformed udp frame")
		return
	}

	if frame.Single {
		m.decodeAndRouteUDP(dest, frame.Body)
		return
	}

	sk := splitKey{dest: dest, splitID: frame.Split.SplitID}
	now := time.Now()
	m.mu.Lock()
	m.evictStaleSplitsLocked(now)
	group, ok := m.splits[sk]
	if !ok {
		group = &splitGroup{asm: wire.NewReassembler(frame.Split), createdAt: now}
		m.splits[sk] = group
	}
	asm := group.asm
	m.mu.Unlock()

	if err := asm.AddFragment(frame.Split, frame.SplitPayload); err != nil {
		m.log.WithError(err).Debug("session: dropping bad split fragment")
		m.mu.Lock()
		delete(m.splits, sk)
		m.mu.Unlock()
		return
	}
	if !asm.Complete() {
		return
	}

	m.mu.Lock()
	delete(m.splits, sk)
	m.mu.Unlock()

	body, err := asm.Assemble()
	if err != nil {
		m.log.WithError(err).Debug("session: reassembly failed")
		return
	}
	m.decodeAndRouteUDP(dest, body)
}

// evictStaleSplitsLocked drops split-reassembly groups older than
// splitReassemblyTTL. Called with m.mu held, piggybacking on every inbound
// split fragment rather than running its own ticker goroutine: as long as
// split traffic keeps arriving at all (the normal case while polling a
// server), the table never grows past whatever accumulated since the last
// fragment, which is bounded by splitReassemblyTTL.
func (m *Manager) evictStaleSplitsLocked(now time.Time) {
	for key, group := range m.splits {
		if now.Sub(group.createdAt) > splitReassemblyTTL {
			delete(m.splits, key)
		}
	}
}

func (m *Manager) decodeAndRouteUDP(dest transport.Destination, body []byte) {
	decoded, err := wire.DecodeInner(body)
	if err != nil {
		m.log.WithError(err).Debug("session: dropping undecodable udp body")
		return
	}

	if decoded.Kind == wire.HeaderChallenge {
		m.handleChallenge(dest, decoded.Challenge.Token)
		return
	}

	kind, value, ok := query.FromWire(decoded)
	if !ok {
		return
	}

	key := udpKey(dest, kind)
	m.mu.Lock()
	entry, ok := m.pending[key]
	m.mu.Unlock()
	if !ok {
		m.log.WithField("dest", dest).Debug("session: udp reply with no matching pending entry")
		return
	}
	m.finishEntry(entry, value, nil)
}

// handleTCPFrame is the transport.ReceiveFunc registered with the TCP pool.
// An in-flight AUTH handshake for dest claims every inbound frame, since
// the rejection reply's id is the protocol sentinel -1 rather than the
// original request's id and so cannot be correlated by echoed id alone.
func (m *Manager) handleTCPFrame(dest transport.Destination, raw []byte) {
	pkt, err := rconwire.Decode(raw)
	if err != nil {
		m.log.WithError(err).Debug("session: dropping malformed rcon frame")
		return
	}

	m.mu.Lock()
	authEntry, authing := m.pending[authKey(dest)]
	m.mu.Unlock()
	if authing {
		m.routeAuthReply(authEntry, pkt)
		return
	}

	key := rconKey(dest, pkt.ID)
	m.mu.Lock()
	entry, ok := m.pending[key]
	m.mu.Unlock()
	if !ok {
		m.log.WithField("dest", dest).Debug("session: rcon reply with no matching pending entry")
		return
	}
	m.routeExecReply(entry, pkt)
}

func (m *Manager) routeAuthReply(entry *pendingEntry, pkt rconwire.Packet) {
	switch pkt.Type {
	case rconwire.TypeResponseValue:
		if len(pkt.Body) == 0 {
			entry.rconSession.OnEmptyResponseValue(pkt.ID)
			return
		}
		m.log.WithField("dest", entry.dest).Debug("session: unexpected non-empty response value during auth handshake")
	case rconwire.TypeAuthResponse:
		authed, err := entry.rconSession.OnAuthResponse(pkt.ID)
		m.finishEntry(entry, authed, err)
	}
}

func (m *Manager) routeExecReply(entry *pendingEntry, pkt rconwire.Packet) {
	done, result := entry.accumulator.Feed(pkt.Body)
	if done {
		m.finishEntry(entry, result, nil)
	}
}

// handleTCPClosed is the transport.ClosedFunc registered with the TCP pool.
// Every pending RCON entry for dest fails individually with ErrClosed
// (spec.md §7); the session's auth state is the caller's (client facade's)
// responsibility to invalidate.
func (m *Manager) handleTCPClosed(dest transport.Destination, cause error) {
	m.mu.Lock()
	var victims []*pendingEntry
	for key, entry := range m.pending {
		if key.dest == dest {
			victims = append(victims, entry)
		}
	}
	m.mu.Unlock()

	for _, entry := range victims {
		m.finishEntry(entry, nil, ErrClosed)
	}

	if m.onClosed != nil {
		m.onClosed(dest, cause)
	}
}

package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// UDPPool is the Transport Pool for the Source Query protocol: a single
// bound net.PacketConn shared across all destinations, fanned out into
// per-destination bounded write queues (spec.md §4.1: "a shared bound
// socket is acceptable" for UDP).
type UDPPool struct {
	conn net.PacketConn
	log  *logrus.Entry

	queues *destQueues

	addrMu   sync.RWMutex
	byDest   map[Destination]net.Addr
	byRemote map[string]Destination

	// onReceive is set by OnReceive, read by readLoop. NewUDPPool starts
	// readLoop before a caller has any chance to call OnReceive (the
	// reactor binds and runs immediately, not lazily on first use like
	// TCPPool's per-destination readLoop does), so the two can race; an
	// atomic pointer makes that race well-defined instead of relying on
	// callers always wiring OnReceive before any traffic could possibly
	// arrive.
	onReceive atomic.Pointer[ReceiveFunc]

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewUDPPool binds a UDP socket at bindAddr (e.g. ":0" for an ephemeral
// port) and starts its reactor read loop. queueDepth is the per-destination
// write-queue-depth (spec.md §6).
func NewUDPPool(bindAddr string, queueDepth int, log *logrus.Entry) (*UDPPool, error) {
	conn, err := net.ListenPacket("udp", bindAddr)
	if err != nil {
		return nil, errors.Wrap(ErrConnectFailed, err.Error())
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &UDPPool{
		conn:     conn,
		log:      log.WithField("transport", "udp"),
		byDest:   make(map[Destination]net.Addr),
		byRemote: make(map[string]Destination),
		done:     make(chan struct{}),
	}
	p.queues = newDestQueues(queueDepth, p.drain, p.log)
	p.wg.Add(1)
	go p.readLoop()
	return p, nil
}

func (p *UDPPool) OnReceive(fn ReceiveFunc) { p.onReceive.Store(&fn) }

// OnClosed is a no-op for UDP: spec.md §4.1 states UDP has no per-
// destination connection and timeouts are the sole failure indicator.
func (p *UDPPool) OnClosed(ClosedFunc) {}

func (p *UDPPool) resolve(dest Destination) (net.Addr, error) {
	p.addrMu.RLock()
	addr, ok := p.byDest[dest]
	p.addrMu.RUnlock()
	if ok {
		return addr, nil
	}

	resolved, err := net.ResolveUDPAddr("udp", dest.Addr())
	if err != nil {
		return nil, errors.Wrapf(ErrConnectFailed, "resolve %s: %s", dest, err)
	}
	p.addrMu.Lock()
	p.byDest[dest] = resolved
	p.byRemote[resolved.String()] = dest
	p.addrMu.Unlock()
	return resolved, nil
}

func (p *UDPPool) Send(ctx context.Context, dest Destination, frame []byte, priority Priority) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.resolve(dest); err != nil {
		return err
	}
	if !p.queues.push(dest, writeJob{frame: frame, priority: priority}) {
		return errors.Wrapf(ErrBackpressure, "destination %s", dest)
	}
	return nil
}

func (p *UDPPool) drain(dest Destination, job writeJob) error {
	p.addrMu.RLock()
	addr := p.byDest[dest]
	p.addrMu.RUnlock()
	if addr == nil {
		return errors.Wrapf(ErrConnectFailed, "no resolved address for %s", dest)
	}
	_, err := p.conn.WriteTo(job.frame, addr)
	if err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}

// maxAutoRegisteredPeers bounds how many never-sent-to senders readLoop will
// register via destFor, so a flood of spoofed source addresses can't grow
// byDest/byRemote without limit. Ordinary use (querying a bounded set of
// known game servers, or replying to a bounded set of known callers) stays
// far under this; once hit, further unrecognized senders are just dropped
// like any other unparseable one.
const maxAutoRegisteredPeers = 4096

// destFor resolves addr to the Destination it already belongs to, or
// registers a new one: a reply can arrive from a peer this pool has never
// itself called Send to (e.g. the answering side of a query exchange,
// which only ever receives first and replies second), so byRemote/byDest
// can't be populated solely from resolve()'s Send-side path.
func (p *UDPPool) destFor(addr net.Addr) (Destination, bool) {
	p.addrMu.RLock()
	dest, ok := p.byRemote[addr.String()]
	full := len(p.byRemote) >= maxAutoRegisteredPeers
	p.addrMu.RUnlock()
	if ok {
		return dest, true
	}
	if full {
		return Destination{}, false
	}

	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Destination{}, false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Destination{}, false
	}
	dest = Destination{Host: host, Port: uint16(port), Kind: KindQuery}

	p.addrMu.Lock()
	p.byDest[dest] = addr
	p.byRemote[addr.String()] = dest
	p.addrMu.Unlock()
	return dest, true
}

func (p *UDPPool) readLoop() {
	defer p.wg.Done()
	buf := make([]byte, 8192)
	for {
		n, addr, err := p.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-p.done:
				return
			default:
				p.log.WithError(err).Debug("udp read loop exiting")
				return
			}
		}
		dest, ok := p.destFor(addr)
		if !ok {
			// addr didn't parse as host:port, or it is a new sender and
			// maxAutoRegisteredPeers is reached; nothing to correlate with
			// (spec.md §7: drop and move on).
			p.log.WithField("from", addr.String()).Debug("dropping frame from unparseable sender")
			continue
		}
		if fn := p.onReceive.Load(); fn != nil {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			(*fn)(dest, frame)
		}
	}
}

func (p *UDPPool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.conn.Close()
		p.wg.Wait()
		p.queues.closeAll()
	})
	return err
}

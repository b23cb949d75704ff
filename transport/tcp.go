package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sourcequery/engine/internal/multierror"
)

// FrameLimits bounds the length-prefixed framing used by stream transports
// (RCON). Min/Max correspond to spec.md §4.3's "size<10 ||
// size>4096 is a protocol violation".
type FrameLimits struct {
	Min int
	Max int
}

// TCPPool is the Transport Pool for Source RCON: one net.Conn per
// destination, lazily dialed and kept alive (spec.md §4.1). Connection loss
// is reported via OnClosed so the session manager can fail all pending
// RCON entries for that destination.
type TCPPool struct {
	limits FrameLimits
	log    *logrus.Entry

	queues *destQueues

	mu    sync.Mutex
	conns map[Destination]net.Conn

	onReceive ReceiveFunc
	onClosed  ClosedFunc

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewTCPPool constructs a pool with the given per-destination write-queue
// depth and RCON frame size limits.
func NewTCPPool(queueDepth int, limits FrameLimits, log *logrus.Entry) *TCPPool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &TCPPool{
		limits: limits,
		log:    log.WithField("transport", "tcp"),
		conns:  make(map[Destination]net.Conn),
		done:   make(chan struct{}),
	}
	p.queues = newDestQueues(queueDepth, p.drain, p.log)
	return p
}

func (p *TCPPool) OnReceive(fn ReceiveFunc) { p.onReceive = fn }
func (p *TCPPool) OnClosed(fn ClosedFunc)   { p.onClosed = fn }

// connFor dials lazily, but never while holding p.mu: spec.md §4.1 models
// a TCP connection as a per-destination resource, and a slow or hanging
// dial to one unreachable destination must not block every other
// destination's connFor call behind the same pool-wide mutex. Two
// concurrent first-time calls for the same dest may both dial; the loser
// just closes its own redundant connection once it sees the table already
// has one.
func (p *TCPPool) connFor(ctx context.Context, dest Destination) (net.Conn, error) {
	p.mu.Lock()
	c, ok := p.conns[dest]
	p.mu.Unlock()
	if ok {
		return c, nil
	}

	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", dest.Addr())
	if err != nil {
		return nil, errors.Wrapf(ErrConnectFailed, "dial %s: %s", dest, err)
	}

	p.mu.Lock()
	if existing, ok := p.conns[dest]; ok {
		p.mu.Unlock()
		c.Close()
		return existing, nil
	}
	p.conns[dest] = c
	p.wg.Add(1)
	go p.readLoop(dest, c)
	p.mu.Unlock()
	return c, nil
}

func (p *TCPPool) Send(ctx context.Context, dest Destination, frame []byte, priority Priority) error {
	if _, err := p.connFor(ctx, dest); err != nil {
		return err
	}
	if !p.queues.push(dest, writeJob{frame: frame, priority: priority}) {
		return errors.Wrapf(ErrBackpressure, "destination %s", dest)
	}
	return nil
}

func (p *TCPPool) drain(dest Destination, job writeJob) error {
	p.mu.Lock()
	c, ok := p.conns[dest]
	p.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrConnectFailed, "no connection for %s", dest)
	}
	if _, err := c.Write(job.frame); err != nil {
		// Runs on the destination's own queue goroutine: failDestination
		// calls queues.remove, which closes and waits on this same queue,
		// so it must not run synchronously here or the goroutine would
		// wait on itself to exit. readLoop's calls to failDestination run
		// on a different goroutine and don't need this.
		go p.failDestination(dest, errors.Wrap(ErrIO, err.Error()))
		return err
	}
	return nil
}

// readLoop implements the length-prefixed framing from spec.md §4.3: read
// 4 bytes (size, little-endian), then read exactly size bytes, repeat.
// Partial reads are accumulated via io.ReadFull. A frame violating the
// bounds closes the connection.
func (p *TCPPool) readLoop(dest Destination, conn net.Conn) {
	defer p.wg.Done()
	var sizeBuf [4]byte
	for {
		if _, err := io.ReadFull(conn, sizeBuf[:]); err != nil {
			p.failDestination(dest, errors.Wrap(ErrClosed, err.Error()))
			return
		}
		size := int(int32(binary.LittleEndian.Uint32(sizeBuf[:])))
		if size < p.limits.Min || size > p.limits.Max {
			p.log.WithFields(logrus.Fields{"destination": dest.String(), "size": size}).
				Warn("rcon: frame size violates limits, closing connection")
			p.failDestination(dest, errors.New("rcon: framing violation"))
			return
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(conn, body); err != nil {
			p.failDestination(dest, errors.Wrap(ErrClosed, err.Error()))
			return
		}
		if p.onReceive != nil {
			p.onReceive(dest, body)
		}
	}
}

// failDestination may race itself: a broken connection can fail both the
// read loop and a queued write around the same time (drain's write failures
// dispatch here on their own goroutine precisely so they don't block the
// queue they're failing). Only whichever caller actually finds and removes
// the live connection reports onClosed; a second, already-torn-down caller
// is a no-op past that point, so the session manager sees exactly one
// closure notification per broken connection.
func (p *TCPPool) failDestination(dest Destination, err error) {
	p.mu.Lock()
	c, ok := p.conns[dest]
	if ok {
		delete(p.conns, dest)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	_ = c.Close()
	p.queues.remove(dest)
	if p.onClosed != nil {
		p.onClosed(dest, err)
	}
}

// Close dials down every connection the pool holds. Individual close
// failures never block the others; they are aggregated and logged once
// teardown completes (spec.md §7).
func (p *TCPPool) Close() error {
	var merr *multierror.Error
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		conns := p.conns
		p.conns = make(map[Destination]net.Conn)
		p.mu.Unlock()
		for dest, c := range conns {
			if err := c.Close(); err != nil {
				merr = multierror.Append(merr, errors.Wrapf(err, "closing %s", dest))
			}
		}
		p.wg.Wait()
		p.queues.closeAll()
		if err := merr.ErrorOrNil(); err != nil {
			p.log.WithError(err).Warn("rcon: errors while closing connections")
		}
	})
	return merr.ErrorOrNil()
}

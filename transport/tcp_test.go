package transport

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// frame encodes a length-prefixed test frame the way RCON packets are
// framed: 4-byte little-endian size, then that many bytes.
func frame(body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out, uint32(len(body)))
	copy(out[4:], body)
	return out
}

func TestTCPPoolRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverGotFrame := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var sizeBuf [4]byte
		if _, err := conn.Read(sizeBuf[:]); err != nil {
			return
		}
		size := binary.LittleEndian.Uint32(sizeBuf[:])
		body := make([]byte, size)
		n := 0
		for n < len(body) {
			m, err := conn.Read(body[n:])
			if err != nil {
				return
			}
			n += m
		}
		serverGotFrame <- body
		_, _ = conn.Write(frame([]byte("hello12345")))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	dest := Destination{Host: "127.0.0.1", Port: uint16(addr.Port), Kind: KindRCON}

	log := logrus.NewEntry(logrus.New())
	pool := NewTCPPool(8, FrameLimits{Min: 10, Max: 4096}, log)
	defer pool.Close()

	recv := make(chan []byte, 1)
	pool.OnReceive(func(d Destination, f []byte) { recv <- f })

	require.NoError(t, pool.Send(context.Background(), dest, frame([]byte("0123456789")), PriorityNormal))

	select {
	case got := <-serverGotFrame:
		require.Equal(t, "0123456789", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("server never received frame")
	}

	select {
	case got := <-recv:
		require.Equal(t, "hello12345", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("client never received reply frame")
	}
}

func TestTCPPoolClosesOnFramingViolation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Oversized frame header: the body never needs to exist because
		// the pool must close on the size prefix alone.
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, 999999)
		_, _ = conn.Write(buf)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	dest := Destination{Host: "127.0.0.1", Port: uint16(addr.Port), Kind: KindRCON}

	log := logrus.NewEntry(logrus.New())
	pool := NewTCPPool(8, FrameLimits{Min: 10, Max: 4096}, log)
	defer pool.Close()

	closed := make(chan struct{}, 1)
	pool.OnClosed(func(d Destination, err error) { closed <- struct{}{} })

	require.NoError(t, pool.Send(context.Background(), dest, frame([]byte("warmup123")), PriorityNormal))

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected pool to report closed destination on framing violation")
	}
}

// TestTCPPoolSurvivesWriteFailure drives a write failure through drain()
// itself (rather than a read-side framing violation), which used to
// deadlock: failDestination ran inline on the destination's own queue
// goroutine and tried to close and wait on that same queue.
func TestTCPPoolSurvivesWriteFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	addr := ln.Addr().(*net.TCPAddr)
	dest := Destination{Host: "127.0.0.1", Port: uint16(addr.Port), Kind: KindRCON}

	log := logrus.NewEntry(logrus.New())
	pool := NewTCPPool(8, FrameLimits{Min: 10, Max: 4096}, log)

	closed := make(chan struct{}, 1)
	pool.OnClosed(func(d Destination, err error) { closed <- struct{}{} })

	require.NoError(t, pool.Send(context.Background(), dest, frame([]byte("warmup123")), PriorityNormal))

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted connection")
	}
	// Force the client's next write to fail: close the server side so the
	// peer resets the connection, then keep sending until drain() observes
	// the failure and calls failDestination.
	require.NoError(t, conn.Close())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = pool.Send(context.Background(), dest, frame([]byte("warmup123")), PriorityNormal)
		select {
		case <-closed:
			goto drained
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatal("expected pool to report closed destination on write failure")

drained:
	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool.Close() deadlocked tearing down a destination whose write failed")
	}
}

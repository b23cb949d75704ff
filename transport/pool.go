package transport

//go:generate mockgen -destination=./pool_mock.go -package=transport . Pool

import "context"

// Priority is carried on every Request (spec.md §3) and threaded through to
// Send, but destQueue drains its one FIFO channel in arrival order
// regardless of priority — see the note on Priority in the `transport/`
// ledger of DESIGN.md. Priority does not reorder frames within a
// destination's write queue today, and never reorders across destinations.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// ReceiveFunc is invoked once per inbound frame, decoded only as far as
// "these bytes came from this destination". It is always invoked on a
// reactor goroutine and MUST NOT block or run caller code directly
// (SPEC_FULL.md §5); implementations hand the bytes to the session manager,
// which posts continuations onto its own worker pool.
type ReceiveFunc func(dest Destination, frame []byte)

// ClosedFunc is invoked when a destination's underlying connection is lost.
// Only meaningful for connection-oriented pools (TCP/RCON); UDP pools never
// call it, since spec.md §4.1 treats timeouts as the sole UDP failure
// indicator.
type ClosedFunc func(dest Destination, err error)

// Pool is the contract the session manager uses to reach a transport,
// independent of whether it is backed by a shared UDP socket or per-
// destination TCP connections.
type Pool interface {
	// Send enqueues frame for delivery to dest. Per-destination ordering is
	// guaranteed; cross-destination ordering is not. Returns ErrBackpressure
	// synchronously if the destination's write queue is full.
	Send(ctx context.Context, dest Destination, frame []byte, priority Priority) error

	// OnReceive registers the single callback invoked for every inbound
	// frame. Must be called before the pool starts accepting traffic.
	OnReceive(fn ReceiveFunc)

	// OnClosed registers the single callback invoked when a destination's
	// connection is lost. No-op for pools with no connection lifecycle.
	OnClosed(fn ClosedFunc)

	// Close releases sockets and drains per-destination workers.
	Close() error
}

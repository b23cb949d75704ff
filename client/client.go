// Package client is the public facade described in SPEC_FULL.md §4.5: it
// exposes a flat request API over the two transport pools and the session
// manager, and owns the one piece of caller-visible mutable state (the RCON
// auth session table) so callers never construct pending entries or
// correlation keys themselves.
package client

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sourcequery/engine/config"
	"github.com/sourcequery/engine/internal/metrics"
	"github.com/sourcequery/engine/internal/multierror"
	"github.com/sourcequery/engine/internal/session"
	"github.com/sourcequery/engine/query"
	"github.com/sourcequery/engine/rcon"
	"github.com/sourcequery/engine/transport"
)

// Client is the engine's entry point: one UDP pool, one TCP pool, one
// Session Manager, and the RCON session table, all sharing the same
// configuration.
type Client struct {
	opts     config.Options
	udp      *transport.UDPPool
	tcp      *transport.TCPPool
	manager  *session.Manager
	sessions *rcon.SessionTable
}

// New binds the UDP socket, constructs the TCP pool, and wires both into a
// new Session Manager. rec may be nil to disable metrics.
func New(opts config.Options, log *logrus.Logger, rec *metrics.Recorder) (*Client, error) {
	entry := logrus.NewEntry(log)

	udp, err := transport.NewUDPPool(opts.UDPBindAddr, opts.WriteQueueDepth, entry)
	if err != nil {
		return nil, err
	}
	tcp := transport.NewTCPPool(opts.WriteQueueDepth, opts.FrameLimits(), entry)

	manager := session.NewManager(opts.SessionConfig(), udp, tcp, entry, rec)

	c := &Client{
		opts:     opts,
		udp:      udp,
		tcp:      tcp,
		manager:  manager,
		sessions: rcon.NewSessionTable(),
	}
	manager.OnTransportClosed(func(dest transport.Destination, _ error) {
		c.sessions.Invalidate(dest)
	})
	return c, nil
}

// Close tears down both transport pools and the session manager's worker
// pool, in that order: closing a transport pool fails its pending entries
// synchronously (TCPPool.Close waits on its read loops, each of which runs
// failDestination before exiting), which posts their future completions to
// the manager's worker pool. Stopping the worker pool first would mean
// those completions arrive with nothing left to drain them, leaving
// callers blocked in Await forever. Safe to call once; callers that need
// the engine to keep running afterwards should construct a new Client
// instead.
func (c *Client) Close() error {
	err := multierror.Append(c.tcp.Close(), c.udp.Close()).ErrorOrNil()
	_ = c.manager.Close()
	return err
}

// QueryInfo issues an A2S_INFO request (spec.md §6 QueryInfo). It returns
// immediately once the request is admitted; the caller decides when to
// await the result, so several requests can be dispatched back-to-back and
// awaited together (spec.md §1: "future-valued" operations). It uses the
// manager-wide read timeout; use QueryInfoDeadline to override it per call.
func (c *Client) QueryInfo(ctx context.Context, dest transport.Destination) (*session.Future[query.ServerInfo], error) {
	return c.manager.DispatchInfo(ctx, dest, transport.PriorityNormal, time.Time{})
}

// QueryInfoDeadline is QueryInfo with a per-request deadline overriding the
// manager-wide read timeout (spec.md §8 scenario S6).
func (c *Client) QueryInfoDeadline(ctx context.Context, dest transport.Destination, deadline time.Time) (*session.Future[query.ServerInfo], error) {
	return c.manager.DispatchInfo(ctx, dest, transport.PriorityNormal, deadline)
}

// QueryPlayers issues an A2S_PLAYER request; the challenge handshake is
// transparent to the caller (spec.md §4.2).
func (c *Client) QueryPlayers(ctx context.Context, dest transport.Destination) (*session.Future[[]query.PlayerInfo], error) {
	return c.manager.DispatchPlayers(ctx, dest, transport.PriorityNormal, time.Time{})
}

// QueryPlayersDeadline is QueryPlayers with a per-request deadline.
func (c *Client) QueryPlayersDeadline(ctx context.Context, dest transport.Destination, deadline time.Time) (*session.Future[[]query.PlayerInfo], error) {
	return c.manager.DispatchPlayers(ctx, dest, transport.PriorityNormal, deadline)
}

// QueryRules issues an A2S_RULES request; same challenge handling as
// QueryPlayers.
func (c *Client) QueryRules(ctx context.Context, dest transport.Destination) (*session.Future[query.Rules], error) {
	return c.manager.DispatchRules(ctx, dest, transport.PriorityNormal, time.Time{})
}

// QueryRulesDeadline is QueryRules with a per-request deadline.
func (c *Client) QueryRulesDeadline(ctx context.Context, dest transport.Destination, deadline time.Time) (*session.Future[query.Rules], error) {
	return c.manager.DispatchRules(ctx, dest, transport.PriorityNormal, deadline)
}

// RconAuthenticate runs the RCON auth handshake against dest, remembering
// the resulting session so RconExecute can later confirm it.
func (c *Client) RconAuthenticate(ctx context.Context, dest transport.Destination, password string) (*session.Future[bool], error) {
	sess := c.sessions.Get(dest)
	return c.manager.DispatchRconAuth(ctx, dest, sess, password, transport.PriorityNormal, time.Time{})
}

// RconExecute runs command against dest's already-authenticated RCON
// session, collecting its (possibly multi-packet) output.
func (c *Client) RconExecute(ctx context.Context, dest transport.Destination, command string) (*session.Future[string], error) {
	sess := c.sessions.Get(dest)
	return c.manager.DispatchRconExec(ctx, dest, sess, command, c.opts.SessionConfig().RconTerminatorPattern, transport.PriorityNormal, time.Time{})
}

// InvalidateRconSession drops dest's cached auth state, e.g. after the
// caller observes the TCP connection was closed out from under it.
func (c *Client) InvalidateRconSession(dest transport.Destination) {
	c.sessions.Invalidate(dest)
}

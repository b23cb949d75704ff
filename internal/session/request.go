package session

import (
	"time"

	"github.com/sourcequery/engine/transport"
)

// Request is the caller-facing description of one dispatch (spec.md §3's
// data model: "Carries: ... a payload descriptor ... a deadline"). Each
// Dispatch* method builds one from its arguments and stores it on the
// pendingEntry it creates, so Payload's concrete type always matches the
// method that built it (query.InfoPayload for DispatchInfo, and so on).
type Request struct {
	Dest     transport.Destination
	Priority transport.Priority

	// Deadline overrides Config.ReadTimeout for this one request's initial
	// timer when non-zero (scenario S6: "UDP INFO with a 500ms deadline").
	// Retries (UDP only) still use the backoff schedule once the first
	// timer fires; Deadline only shortens or lengthens that first wait.
	Deadline time.Time

	// Payload is one of query.InfoPayload, query.PlayersPayload,
	// query.RulesPayload, rcon.AuthPayload, or rcon.CommandPayload,
	// matching which Dispatch* method built this Request.
	Payload interface{}
}

// timeout resolves how long the Session Manager should wait before this
// request's first timer fires: the request's own Deadline if it set one,
// otherwise the manager-wide default.
func (r Request) timeout(def time.Duration) time.Duration {
	if r.Deadline.IsZero() {
		return def
	}
	if d := time.Until(r.Deadline); d > 0 {
		return d
	}
	return 0
}

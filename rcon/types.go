// Package rcon implements the Source RCON (TCP) protocol: the pure wire
// codec lives in rcon/wire; this package adds the stateful authentication
// machine and multi-packet response terminator described in spec.md §4.3.
package rcon

// AuthPayload requests authentication against a destination.
type AuthPayload struct {
	Password string
}

// CommandPayload requests execution of a console command. Commands may
// only be dispatched once the destination's Session is authenticated
// (spec.md §4.3).
type CommandPayload struct {
	Command string
}

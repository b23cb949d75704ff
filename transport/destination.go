// Package transport owns sockets and per-destination write queues for the
// two wire protocols (UDP Source Query, TCP Source RCON). It routes decoded
// bytes up to the session manager and never interprets protocol content
// itself.
package transport

import "fmt"

// Kind tags which protocol a Destination is reached over.
type Kind uint8

const (
	// KindQuery is the Source Query UDP protocol.
	KindQuery Kind = iota
	// KindRCON is the Source RCON TCP protocol.
	KindRCON
	// KindMaster is reserved for master-server listing, out of scope for
	// this core (see the Open Question decisions in DESIGN.md).
	KindMaster
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindRCON:
		return "rcon"
	case KindMaster:
		return "master"
	default:
		return "unknown"
	}
}

// Destination identifies a game server endpoint plus the protocol used to
// reach it. It is comparable and usable directly as a map key.
type Destination struct {
	Host string
	Port uint16
	Kind Kind
}

func (d Destination) String() string {
	return fmt.Sprintf("%s:%d/%s", d.Host, d.Port, d.Kind)
}

// Addr renders the host:port pair for net.Dial / net.ResolveUDPAddr.
func (d Destination) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

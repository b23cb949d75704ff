// Package query defines the caller-facing Source Query (UDP) request
// payloads and response DTOs, and maps them onto the pure wire codec in
// query/wire. Server-dialect-specific fields (EDF extras on A2S_INFO) are
// intentionally not exposed, per spec.md §1 Non-goals.
package query

import "github.com/sourcequery/engine/query/wire"

// ResponseKind is the Session Manager's correlation key for UDP requests:
// spec.md §4.4 states that for UDP "the correlation key is the expected
// response type because there is no transport id".
type ResponseKind uint8

const (
	KindInfo ResponseKind = iota
	KindPlayers
	KindRules
)

func (k ResponseKind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindPlayers:
		return "players"
	case KindRules:
		return "rules"
	default:
		return "unknown"
	}
}

// InfoPayload requests the base server info envelope.
type InfoPayload struct{}

// PlayersPayload requests the player list, carrying whatever challenge
// token is currently known (spec.md §6: defaults to wire.DefaultChallenge).
type PlayersPayload struct {
	Challenge uint32
}

// RulesPayload requests the cvar/rule table.
type RulesPayload struct {
	Challenge uint32
}

// ServerInfo is the caller-facing A2S_INFO result.
type ServerInfo struct {
	Protocol    byte
	Name        string
	Map         string
	Folder      string
	Game        string
	AppID       int16
	Players     byte
	MaxPlayers  byte
	Bots        byte
	ServerType  byte
	Environment byte
	Visibility  byte
	VAC         byte
}

// PlayerInfo is one row of the caller-facing A2S_PLAYER result.
type PlayerInfo struct {
	Index    byte
	Name     string
	Score    int32
	Duration float32
}

// Rules is the caller-facing A2S_RULES result: cvar name to value.
type Rules map[string]string

func infoFromWire(w *wire.InfoResponse) ServerInfo {
	return ServerInfo{
		Protocol: w.Protocol, Name: w.Name, Map: w.Map, Folder: w.Folder,
		Game: w.Game, AppID: w.AppID, Players: w.Players, MaxPlayers: w.MaxPlayers,
		Bots: w.Bots, ServerType: w.ServerType, Environment: w.Environment,
		Visibility: w.Visibility, VAC: w.VAC,
	}
}

func playersFromWire(w *wire.PlayersResponse) []PlayerInfo {
	out := make([]PlayerInfo, len(w.Players))
	for i, p := range w.Players {
		out[i] = PlayerInfo{Index: p.Index, Name: p.Name, Score: p.Score, Duration: p.Duration}
	}
	return out
}

func rulesFromWire(w *wire.RulesResponse) Rules {
	return Rules(w.Rules)
}

// FromWire converts a decoded wire frame into the caller-facing type that
// matches its Kind. It returns ok=false for a CHALLENGE frame, which the
// Session Manager intercepts itself rather than exposing to callers.
func FromWire(d wire.Decoded) (kind ResponseKind, value interface{}, ok bool) {
	switch d.Kind {
	case wire.HeaderInfo:
		return KindInfo, infoFromWire(d.Info), true
	case wire.HeaderPlayers:
		return KindPlayers, playersFromWire(d.Players), true
	case wire.HeaderRules:
		return KindRules, rulesFromWire(d.Rules), true
	default:
		return 0, nil, false
	}
}

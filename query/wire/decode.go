package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Response-header bytes, spec.md §4.2 "Inner decoder".
const (
	HeaderInfo      byte = 0x49
	HeaderPlayers   byte = 0x44
	HeaderRules     byte = 0x45
	HeaderChallenge byte = 0x41
)

// InfoResponse is the base A2S_INFO envelope. Dialect-specific extra data
// (EDF flags: port, SourceTV, keywords, GameID) is explicitly out of
// scope ("mapping server-specific response dialects", spec.md §1) and is
// not parsed. AppID is the base envelope's 16-bit ID field, not EDF data.
type InfoResponse struct {
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

// PlayerEntry is one row of an A2S_PLAYER response.
type PlayerEntry struct {
	Index    byte
	Name     string
	Score    int32
	Duration float32
}

// PlayersResponse is the full A2S_PLAYER reply.
type PlayersResponse struct {
	Players []PlayerEntry
}

// RulesResponse is the full A2S_RULES reply.
type RulesResponse struct {
	Rules map[string]string
}

// ChallengeResponse carries the 4-byte anti-spoofing token.
type ChallengeResponse struct {
	Token uint32
}

// Decoded is the sum of everything the inner decoder can produce.
type Decoded struct {
	Kind      byte // one of Header*
	Info      *InfoResponse
	Players   *PlayersResponse
	Rules     *RulesResponse
	Challenge *ChallengeResponse
}

// DecodeInner dispatches on the response-header byte (spec.md §4.2).
// body is the packet content with the outer -1 marker already stripped
// (true for both a literal single-packet arrival and a fully reassembled
// split-packet group).
func DecodeInner(body []byte) (Decoded, error) {
	if len(body) < 1 {
		return Decoded{}, errors.Wrap(ErrShortRead, "response header")
	}
	header := body[0]
	rest := body[1:]

	switch header {
	case HeaderInfo:
		info, err := decodeInfo(rest)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: header, Info: info}, nil
	case HeaderPlayers:
		players, err := decodePlayers(rest)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: header, Players: players}, nil
	case HeaderRules:
		rules, err := decodeRules(rest)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: header, Rules: rules}, nil
	case HeaderChallenge:
		c, err := decodeChallenge(rest)
		if err != nil {
			return Decoded{}, err
		}
		return Decoded{Kind: header, Challenge: c}, nil
	default:
		return Decoded{}, errors.Wrapf(ErrUnknownHeader, "header byte %#x", header)
	}
}

// readCString reads a NUL-terminated string and returns it plus the
// remaining bytes. Invalid UTF-8 bytes are replaced rather than rejected
// (spec.md §4.2: "decoded as UTF-8 with invalid bytes replaced").
func readCString(b []byte) (string, []byte, error) {
	idx := bytes.IndexByte(b, 0)
	if idx < 0 {
		return "", nil, errors.Wrap(ErrShortRead, "unterminated string")
	}
	s := strings.ToValidUTF8(string(b[:idx]), "�")
	return s, b[idx+1:], nil
}

func decodeInfo(b []byte) (*InfoResponse, error) {
	if len(b) < 1 {
		return nil, errors.Wrap(ErrShortRead, "info protocol")
	}
	info := &InfoResponse{Protocol: b[0]}
	b = b[1:]

	var err error
	if info.Name, b, err = readCString(b); err != nil {
		return nil, err
	}
	if info.Map, b, err = readCString(b); err != nil {
		return nil, err
	}
	if info.Folder, b, err = readCString(b); err != nil {
		return nil, err
	}
	if info.Game, b, err = readCString(b); err != nil {
		return nil, err
	}

	if len(b) < 9 {
		return nil, errors.Wrap(ErrShortRead, "info fixed fields")
	}
	info.AppID = int16(binary.LittleEndian.Uint16(b[0:2]))
	info.Players = b[2]
	info.MaxPlayers = b[3]
	info.Bots = b[4]
	info.ServerType = b[5]
	info.Environment = b[6]
	info.Visibility = b[7]
	info.VAC = b[8]

	return info, nil
}

func decodePlayers(b []byte) (*PlayersResponse, error) {
	if len(b) < 1 {
		return nil, errors.Wrap(ErrShortRead, "player count")
	}
	count := b[0]
	b = b[1:]

	resp := &PlayersResponse{Players: make([]PlayerEntry, 0, count)}
	for i := byte(0); i < count; i++ {
		if len(b) < 1 {
			return nil, errors.Wrap(ErrShortRead, "player index")
		}
		entry := PlayerEntry{Index: b[0]}
		b = b[1:]

		var err error
		if entry.Name, b, err = readCString(b); err != nil {
			return nil, err
		}

		if len(b) < 8 {
			return nil, errors.Wrap(ErrShortRead, "player score/duration")
		}
		entry.Score = int32(binary.LittleEndian.Uint32(b[0:4]))
		entry.Duration = math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))
		b = b[8:]

		resp.Players = append(resp.Players, entry)
	}
	return resp, nil
}

func decodeRules(b []byte) (*RulesResponse, error) {
	if len(b) < 2 {
		return nil, errors.Wrap(ErrShortRead, "rule count")
	}
	count := binary.LittleEndian.Uint16(b[0:2])
	b = b[2:]

	rules := make(map[string]string, count)
	for i := uint16(0); i < count; i++ {
		var name, value string
		var err error
		if name, b, err = readCString(b); err != nil {
			return nil, err
		}
		if value, b, err = readCString(b); err != nil {
			return nil, err
		}
		rules[name] = value
	}
	return &RulesResponse{Rules: rules}, nil
}

func decodeChallenge(b []byte) (*ChallengeResponse, error) {
	if len(b) < 4 {
		return nil, errors.Wrap(ErrShortRead, "challenge token")
	}
	return &ChallengeResponse{Token: binary.LittleEndian.Uint32(b[0:4])}, nil
}

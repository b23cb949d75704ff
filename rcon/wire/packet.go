// Package wire implements the Source RCON binary protocol: length-prefixed
// packet framing plus encode/decode of the id/type/body envelope. It is
// pure and stateless; the authentication state machine and multi-packet
// terminator logic live one level up in package rcon, since both need to
// track state across multiple packets.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Packet types, spec.md §4.3. Type 2 is overloaded: AUTH_RESPONSE when
// solicited by an AUTH request, EXECCOMMAND otherwise — direction and
// context (not the wire value) disambiguate it.
const (
	TypeResponseValue int32 = 0
	TypeAuthResponse  int32 = 2
	TypeExecCommand   int32 = 2
	TypeAuth          int32 = 3
)

// Packet is one decoded RCON frame, with the 4-byte size prefix already
// consumed by the transport layer's length-prefixed framer.
type Packet struct {
	ID   int32
	Type int32
	Body []byte
}

// Encode serializes a packet body (the bytes following the 4-byte size
// prefix): id, type, body, NUL, NUL — a NUL-terminated body plus the
// protocol's required trailing NUL byte (spec.md §4.3).
func Encode(id, typ int32, body []byte) []byte {
	out := make([]byte, 8+len(body)+2)
	binary.LittleEndian.PutUint32(out[0:4], uint32(id))
	binary.LittleEndian.PutUint32(out[4:8], uint32(typ))
	copy(out[8:], body)
	// last two bytes are already zero from make().
	return out
}

// Size computes the spec.md §4.3 frame size field for a packet with the
// given body: 4(id)+4(type)+len(body)+1(string NUL)+1(trailing NUL).
func Size(body []byte) int32 {
	return int32(8 + len(body) + 2)
}

// Frame prepends the 4-byte little-endian size prefix so the result can be
// written directly to the TCP connection.
func Frame(id, typ int32, body []byte) []byte {
	payload := Encode(id, typ, body)
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// Decode parses the id/type/body envelope from bytes already stripped of
// the 4-byte size prefix by the transport's length-prefixed framer. Per
// spec.md §4.3 the trailer is always exactly two bytes (the body's string
// NUL plus the packet's own trailing NUL), so only those two are dropped —
// unlike bytes.TrimRight, this does not eat legitimate trailing 0x00 bytes
// that are part of the body itself (e.g. the RCON terminator pattern).
func Decode(b []byte) (Packet, error) {
	if len(b) < 10 {
		return Packet{}, errors.New("rcon: frame shorter than id+type header")
	}
	id := int32(binary.LittleEndian.Uint32(b[0:4]))
	typ := int32(binary.LittleEndian.Uint32(b[4:8]))
	body := b[8 : len(b)-2]
	return Packet{ID: id, Type: typ, Body: body}, nil
}

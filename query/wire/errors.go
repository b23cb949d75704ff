// Package wire implements the Source Query binary protocol: outer
// single/split-packet framing, multi-fragment reassembly with optional
// bzip2 decompression, and the inner response decoder. It is pure and
// stateless except for the Reassembler, which holds one in-flight group's
// fragments.
package wire

import "github.com/pkg/errors"

// Sentinel errors for the CodecError taxonomy (SPEC_FULL.md §7).
var (
	ErrShortRead    = errors.New("query: short read")
	ErrFraming      = errors.New("query: invalid outer frame header")
	ErrUnknownHeader = errors.New("query: unknown response header")
	ErrReassembly   = errors.New("query: split-packet reassembly mismatch")
	ErrChecksum     = errors.New("query: crc32 mismatch after decompression")
	ErrDecompress   = errors.New("query: bzip2 decompression failed")
)

package wire

import (
	"bytes"
	"compress/bzip2"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// Reassembler accumulates the fragments of one split-packet group
// (spec.md §3 "Reassembly buffer" / §4.2 "Reassembly algorithm"). It does
// no locking of its own: the Session Manager keeps it in its split-group
// table (keyed by destination and split-id, not on a pending entry) and
// feeds it fragments from the single UDP read loop.
type Reassembler struct {
	splitID          int32
	total            uint8
	compressed       bool
	decompressedSize int32
	crc32            uint32

	fragments [][]byte
	filled    int
}

// NewReassembler allocates a buffer from the first fragment seen for a
// split-id (spec.md §4.2 step 1).
func NewReassembler(first SplitHeader) *Reassembler {
	return &Reassembler{
		splitID:          first.SplitID,
		total:            first.Total,
		compressed:       first.Compressed,
		decompressedSize: first.DecompressedSize,
		crc32:            first.CRC32,
		fragments:        make([][]byte, first.Total),
	}
}

// AddFragment stores one fragment. It verifies total/size consistency
// against the group established by the first fragment (spec.md §4.2 step
// 2); a mismatch fails the whole buffer.
func (r *Reassembler) AddFragment(h SplitHeader, payload []byte) error {
	if h.SplitID != r.splitID {
		return errors.Wrapf(ErrReassembly, "split-id mismatch: got %d want %d", h.SplitID, r.splitID)
	}
	if h.Total != r.total {
		return errors.Wrapf(ErrReassembly, "fragment count mismatch: got %d want %d", h.Total, r.total)
	}
	if int(h.Number) >= len(r.fragments) {
		return errors.Wrapf(ErrReassembly, "fragment index %d out of range", h.Number)
	}
	if len(payload) != int(h.Size) {
		return errors.Wrapf(ErrReassembly, "fragment %d size mismatch: got %d want %d", h.Number, len(payload), h.Size)
	}
	if r.fragments[h.Number] != nil {
		// Duplicate/retransmitted fragment; idempotent, not an error.
		return nil
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	r.fragments[h.Number] = buf
	r.filled++
	return nil
}

// Complete reports whether every fragment slot has been filled.
func (r *Reassembler) Complete() bool {
	return r.filled == len(r.fragments)
}

// Assemble concatenates fragments in index order (spec.md §4.2 step 3),
// decompresses and verifies the CRC32 when the group is compressed (step
// 4), and returns the payload ready for the inner decoder.
func (r *Reassembler) Assemble() ([]byte, error) {
	if !r.Complete() {
		return nil, errors.Wrap(ErrReassembly, "incomplete fragment set")
	}

	var joined bytes.Buffer
	for _, f := range r.fragments {
		joined.Write(f)
	}

	if !r.compressed {
		return joined.Bytes(), nil
	}

	reader := bzip2.NewReader(bytes.NewReader(joined.Bytes()))
	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(ErrDecompress, err.Error())
	}
	if err := verifyDecompressed(decompressed, r.decompressedSize, r.crc32); err != nil {
		return nil, err
	}
	return decompressed, nil
}

// verifyDecompressed checks the two invariants spec.md §4.2 step 4 demands
// of a compressed split response: exact byte length and matching CRC32.
// Split out from Assemble so it can be exercised directly in tests without
// needing to construct a real bzip2 stream.
func verifyDecompressed(decompressed []byte, wantSize int32, wantCRC uint32) error {
	if int32(len(decompressed)) != wantSize {
		return errors.Wrapf(ErrDecompress, "decompressed size mismatch: got %d want %d", len(decompressed), wantSize)
	}
	if crc32.ChecksumIEEE(decompressed) != wantCRC {
		return errors.Wrap(ErrChecksum, "stored crc32 does not match decompressed bytes")
	}
	return nil
}

package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Outer framing markers, spec.md §4.2.
const (
	headerSingle = -1 // 0xFFFFFFFF
	headerSplit  = -2 // 0xFFFFFFFE

	compressedBit uint32 = 1 << 31 // top bit of split-id
)

// SplitHeader is the per-fragment header that follows the -2 outer marker.
type SplitHeader struct {
	SplitID          int32
	Compressed       bool
	Total            uint8
	Number           uint8
	Size             uint16
	DecompressedSize int32 // only set when Compressed && Number==0
	CRC32            uint32 // only set when Compressed && Number==0
}

// Frame is the result of peeling the outer envelope off one inbound
// datagram: either a single complete packet body, or one split fragment.
type Frame struct {
	Single bool
	Body   []byte // valid when Single

	Split       SplitHeader
	SplitPayload []byte // fragment payload bytes, valid when !Single
}

// ParseOuter strips the outer -1/-2 marker and, for split packets, the
// fragment header, per spec.md §4.2.
func ParseOuter(b []byte) (Frame, error) {
	if len(b) < 4 {
		return Frame{}, errors.Wrap(ErrShortRead, "outer marker")
	}
	marker := int32(binary.LittleEndian.Uint32(b[:4]))
	rest := b[4:]

	switch marker {
	case headerSingle:
		return Frame{Single: true, Body: rest}, nil
	case headerSplit:
		return parseSplit(rest)
	default:
		return Frame{}, errors.Wrapf(ErrFraming, "unknown outer marker %#x", uint32(marker))
	}
}

func parseSplit(b []byte) (Frame, error) {
	// split-id(4) total(1) number(1) size(2) = 8 bytes minimum
	if len(b) < 8 {
		return Frame{}, errors.Wrap(ErrShortRead, "split header")
	}
	rawID := binary.LittleEndian.Uint32(b[0:4])
	compressed := rawID&compressedBit != 0
	splitID := int32(rawID &^ compressedBit)

	h := SplitHeader{
		SplitID:    splitID,
		Compressed: compressed,
		Total:      b[4],
		Number:     b[5],
		Size:       binary.LittleEndian.Uint16(b[6:8]),
	}
	b = b[8:]

	if compressed && h.Number == 0 {
		if len(b) < 8 {
			return Frame{}, errors.Wrap(ErrShortRead, "compressed split header")
		}
		h.DecompressedSize = int32(binary.LittleEndian.Uint32(b[0:4]))
		h.CRC32 = binary.LittleEndian.Uint32(b[4:8])
		b = b[8:]
	}

	return Frame{Single: false, Split: h, SplitPayload: b}, nil
}

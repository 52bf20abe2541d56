// Package codec implements the node header and bit-packed value codec
// (component C3): a fixed 8-byte header followed by a payload of values
// stored at one of three encodings (WidthBits, Packed, Flex), plus
// FindAll, the find_all scan. FindAll decodes eight elements per step
// through GetChunk and compares each one individually; it has no
// word-parallel kernel that compares packed fields a whole word at a time.
//
// A header value never owns memory; it is a thin view over a byte slice
// handed to it by an arena Translate call or a freshly allocated buffer.
// Callers are responsible for keeping that slice alive and for not
// aliasing a WidthBits-encoding header across a width promotion.
package codec

import "github.com/gocoredb/coredb/internal/dbutil"

// Encoding selects how payload bits following the header are interpreted.
type Encoding uint8

const (
	WidthBits Encoding = iota
	Packed
	Flex
	Extended
)

// Header is the 8-byte fixed node header (spec §3 "Node header").
type Header struct {
	IsInnerNode bool
	HasRefs     bool
	ContextFlag bool
	Encoding    Encoding
	Width       uint8 // one of 0,1,2,4,8,16,32,64; meaning depends on Encoding
	Size        uint32 // 24 bits
	Cap         uint32 // 24 bits: capacity_or_checksum
}

const HeaderSize = 8

func (e Encoding) String() string {
	switch e {
	case WidthBits:
		return "width_bits"
	case Packed:
		return "packed"
	case Flex:
		return "flex"
	case Extended:
		return "extended"
	default:
		return "unknown"
	}
}

// widthCode/codeWidth map the eight legal widths to/from a 3-bit code,
// since {0,1,2,4,8,16,32,64} doesn't fit directly in 3 bits.
var widthCode = map[uint8]uint64{0: 0, 1: 1, 2: 2, 4: 3, 8: 4, 16: 5, 32: 6, 64: 7}
var codeWidth = [8]uint8{0, 1, 2, 4, 8, 16, 32, 64}

// DecodeHeader parses the first 8 bytes of buf as a node header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, dbutil.New(dbutil.KindInvalidFileFormat, "node header truncated")
	}
	w := dbutil.Order.Uint64(buf[:HeaderSize])

	h := Header{
		IsInnerNode: w&1 != 0,
		HasRefs:     w&(1<<1) != 0,
		ContextFlag: w&(1<<2) != 0,
		Encoding:    Encoding((w >> 3) & 0x7),
		Width:       codeWidth[(w>>6)&0x7],
		Size:        uint32((w >> 9) & 0xFFFFFF),
		Cap:         uint32((w >> 33) & 0xFFFFFF),
	}
	return h, nil
}

// Encode packs h back into an 8-byte header.
func (h Header) Encode() [HeaderSize]byte {
	var w uint64
	if h.IsInnerNode {
		w |= 1
	}
	if h.HasRefs {
		w |= 1 << 1
	}
	if h.ContextFlag {
		w |= 1 << 2
	}
	w |= uint64(h.Encoding&0x7) << 3
	w |= widthCode[h.Width] << 6
	w |= uint64(h.Size&0xFFFFFF) << 9
	w |= uint64(h.Cap&0xFFFFFF) << 33

	var out [HeaderSize]byte
	dbutil.Order.PutUint64(out[:], w)
	return out
}

// WriteTo writes the encoded header into the first 8 bytes of dst.
func (h Header) WriteTo(dst []byte) {
	enc := h.Encode()
	copy(dst[:HeaderSize], enc[:])
}

package codec

import "github.com/gocoredb/coredb/internal/dbutil"

// elementsPerWord returns how many width-w fields tile one 64-bit word.
// Every legal width in {1,2,4,8,16,32,64} divides 64 evenly, so a field
// never straddles a word boundary; width 0 is the degenerate all-zero
// case and has no word layout at all.
func elementsPerWord(width uint8) uint64 {
	if width == 0 {
		return 0
	}
	return 64 / uint64(width)
}

func wordAndShift(i uint32, width uint8) (wordIdx uint64, shift uint64) {
	epw := elementsPerWord(width)
	wordIdx = uint64(i) / epw
	shift = (uint64(i) % epw) * uint64(width)
	return
}

func widthMask(width uint8) uint64 {
	if width == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// GetWidthBits reads the i-th sign-extended value from a WidthBits(width)
// payload of the given element count.
func GetWidthBits(payload []byte, width uint8, i uint32) int64 {
	if width == 0 {
		return 0
	}
	wordIdx, shift := wordAndShift(i, width)
	word := dbutil.Order.Uint64(payload[wordIdx*8:])
	raw := (word >> shift) & widthMask(width)
	return dbutil.SignExtend(raw, uint(width))
}

// FitsWidth reports whether v round-trips through a width-bit truncate
// and sign-extend without loss.
func FitsWidth(v int64, width uint8) bool {
	if width == 0 {
		return v == 0
	}
	raw := dbutil.TruncateToWidth(v, uint(width))
	return dbutil.SignExtend(raw, uint(width)) == v
}

// RequiredWidth returns the smallest legal width able to represent v.
func RequiredWidth(v int64) uint8 {
	for _, w := range [...]uint8{0, 1, 2, 4, 8, 16, 32, 64} {
		if FitsWidth(v, w) {
			return w
		}
	}
	return 64
}

// RequiredUnsignedWidth returns the smallest legal width whose unsigned
// range [0, 2^w) covers maxValue. Used for Flex dictionary indices,
// which carry no sign.
func RequiredUnsignedWidth(maxValue uint64) uint8 {
	for _, w := range [...]uint8{0, 1, 2, 4, 8, 16, 32, 64} {
		if w == 64 {
			return w
		}
		if maxValue < uint64(1)<<w {
			return w
		}
	}
	return 64
}

// SetWidthBits writes v at index i into a WidthBits(width) payload. It
// returns false without mutating the payload if v does not fit in width
// bits and the caller (C4) must reallocate the node at a wider encoding.
func SetWidthBits(payload []byte, width uint8, i uint32, v int64) bool {
	if !FitsWidth(v, width) {
		return false
	}
	if width == 0 {
		return true // only zero is representable, and it already is
	}
	wordIdx, shift := wordAndShift(i, width)
	off := wordIdx * 8
	word := dbutil.Order.Uint64(payload[off:])
	mask := widthMask(width)
	word &^= mask << shift
	word |= (dbutil.TruncateToWidth(v, uint(width)) & mask) << shift
	dbutil.Order.PutUint64(payload[off:], word)
	return true
}

// GetWidthBitsUnsigned reads the i-th raw (non-sign-extended) value.
// Used for Flex dictionary indices, which are plain unsigned offsets.
func GetWidthBitsUnsigned(payload []byte, width uint8, i uint32) uint64 {
	if width == 0 {
		return 0
	}
	wordIdx, shift := wordAndShift(i, width)
	word := dbutil.Order.Uint64(payload[wordIdx*8:])
	return (word >> shift) & widthMask(width)
}

// SetWidthBitsUnsigned writes the i-th raw unsigned value. v must already
// fit within width bits.
func SetWidthBitsUnsigned(payload []byte, width uint8, i uint32, v uint64) {
	if width == 0 {
		return
	}
	wordIdx, shift := wordAndShift(i, width)
	off := wordIdx * 8
	word := dbutil.Order.Uint64(payload[off:])
	mask := widthMask(width)
	word &^= mask << shift
	word |= (v & mask) << shift
	dbutil.Order.PutUint64(payload[off:], word)
}

// WidthBitsPayloadSize returns the number of payload bytes needed to
// store n values at the given width, rounded up to a whole 8-byte word.
func WidthBitsPayloadSize(width uint8, n uint32) uint64 {
	if width == 0 || n == 0 {
		return 0
	}
	epw := elementsPerWord(width)
	words := (uint64(n) + epw - 1) / epw
	return words * 8
}

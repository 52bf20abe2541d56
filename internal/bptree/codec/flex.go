package codec

import (
	"sort"

	"github.com/gocoredb/coredb/internal/dbutil"
)

// extHeaderSize is the size of the 8-byte extension header that follows
// the fixed Header for the Packed and Flex encodings (spec §4.3: "w and
// n live in an extended header").
const extHeaderSize = 8

type packedExt struct {
	Width uint8
	N     uint32
}

func decodePackedExt(payload []byte) packedExt {
	return packedExt{
		Width: payload[0],
		N:     dbutil.Order.Uint32(payload[4:8]),
	}
}

func (p packedExt) encode(dst []byte) {
	dst[0] = p.Width
	dst[1], dst[2], dst[3] = 0, 0, 0
	dbutil.Order.PutUint32(dst[4:8], p.N)
}

type flexExt struct {
	VWidth uint8
	VN     uint16
	IWidth uint8
	IN     uint16
}

func decodeFlexExt(payload []byte) flexExt {
	return flexExt{
		VWidth: payload[0],
		IWidth: payload[1],
		VN:     dbutil.Order.Uint16(payload[2:4]),
		IN:     dbutil.Order.Uint16(payload[4:6]),
	}
}

func (f flexExt) encode(dst []byte) {
	dst[0] = f.VWidth
	dst[1] = f.IWidth
	dbutil.Order.PutUint16(dst[2:4], f.VN)
	dbutil.Order.PutUint16(dst[4:6], f.IN)
	dst[6], dst[7] = 0, 0
}

func (f flexExt) valuesOffset() int { return extHeaderSize }
func (f flexExt) indicesOffset() int {
	return f.valuesOffset() + int(WidthBitsPayloadSize(f.VWidth, uint32(f.VN)))
}

// getPacked reads the i-th value of a Packed-encoded payload.
func getPacked(payload []byte, i uint32) int64 {
	ext := decodePackedExt(payload)
	return GetWidthBits(payload[extHeaderSize:], ext.Width, i)
}

// getFlex reads the i-th value of a Flex-encoded payload by resolving
// its dictionary index.
func getFlex(payload []byte, i uint32) int64 {
	ext := decodeFlexExt(payload)
	idx := GetWidthBitsUnsigned(payload[ext.indicesOffset():], ext.IWidth, i)
	return GetWidthBits(payload[ext.valuesOffset():], ext.VWidth, uint32(idx))
}

// EncodePacked builds a Packed-encoded payload holding values, choosing
// the minimal uniform width across all of them.
func EncodePacked(values []int64) (Header, []byte) {
	width := uint8(0)
	for _, v := range values {
		if w := RequiredWidth(v); w > width {
			width = w
		}
	}
	n := uint32(len(values))
	size := extHeaderSize + int(WidthBitsPayloadSize(width, n))
	buf := make([]byte, size)
	packedExt{Width: width, N: n}.encode(buf)
	body := buf[extHeaderSize:]
	for i, v := range values {
		SetWidthBits(body, width, uint32(i), v)
	}
	h := Header{Encoding: Packed, Width: width, Size: n, Cap: uint32(len(buf))}
	return h, buf
}

// EncodeFlex builds a Flex-encoded payload: a sorted, deduplicated value
// dictionary plus an index vector pointing into it (spec §3 "Flex").
func EncodeFlex(values []int64) (Header, []byte) {
	dict := append([]int64(nil), values...)
	sort.Slice(dict, func(i, j int) bool { return dict[i] < dict[j] })
	dict = dedupSorted(dict)

	vWidth := uint8(0)
	for _, v := range dict {
		if w := RequiredWidth(v); w > vWidth {
			vWidth = w
		}
	}
	maxIndex := uint64(0)
	if len(dict) > 0 {
		maxIndex = uint64(len(dict) - 1)
	}
	iWidth := RequiredUnsignedWidth(maxIndex)

	ext := flexExt{VWidth: vWidth, VN: uint16(len(dict)), IWidth: iWidth, IN: uint16(len(values))}
	size := extHeaderSize +
		int(WidthBitsPayloadSize(vWidth, uint32(len(dict)))) +
		int(WidthBitsPayloadSize(iWidth, uint32(len(values))))
	buf := make([]byte, size)
	ext.encode(buf)

	valuesBody := buf[ext.valuesOffset():]
	for i, v := range dict {
		SetWidthBits(valuesBody, vWidth, uint32(i), v)
	}
	indicesBody := buf[ext.indicesOffset():]
	for i, v := range values {
		idx := sort.Search(len(dict), func(k int) bool { return dict[k] >= v })
		SetWidthBitsUnsigned(indicesBody, iWidth, uint32(i), uint64(idx))
	}

	h := Header{Encoding: Flex, Width: ext.IWidth, Size: uint32(len(values)), Cap: uint32(len(buf))}
	return h, buf
}

func dedupSorted(s []int64) []int64 {
	if len(s) == 0 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

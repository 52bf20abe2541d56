package codec

// Len returns the logical element count carried by h, identical across
// every encoding (spec §4.3 "len(h) -> usize").
func Len(h Header) uint32 { return h.Size }

// Get returns the sign-extended value at index i, dispatching on h's
// encoding.
func Get(h Header, payload []byte, i uint32) int64 {
	switch h.Encoding {
	case Packed:
		return getPacked(payload, i)
	case Flex:
		return getFlex(payload, i)
	default: // WidthBits, Extended
		return GetWidthBits(payload, h.Width, i)
	}
}

// Set writes v at index i. Only WidthBits payloads may be mutated in
// place; Packed and Flex leaves must first be expanded with
// DecodeToWidthBits (spec §4.3: "On any mutation the decoder rewrites
// the leaf back to WidthBits"). Set returns false if v does not fit the
// current width, signalling the caller must widen and retry.
func Set(h Header, payload []byte, i uint32, v int64) bool {
	if h.Encoding != WidthBits && h.Encoding != Extended {
		panic("codec: Set called on a non-WidthBits payload; decode first")
	}
	return SetWidthBits(payload, h.Width, i, v)
}

// GetChunk fills out with eight consecutive elements starting at i;
// positions past Len(h) are filled with zero.
func GetChunk(h Header, payload []byte, i uint32, out *[8]int64) {
	n := Len(h)
	for k := 0; k < 8; k++ {
		idx := i + uint32(k)
		if idx >= n {
			out[k] = 0
			continue
		}
		out[k] = Get(h, payload, idx)
	}
}

// DecodeToWidthBits expands any encoding into a freshly allocated
// WidthBits payload at the minimal width spanning all current values.
// The bptree package does not call it: its mutation paths decode a
// leaf's values directly and rebuild the node with EncodeWidthBits.
func DecodeToWidthBits(h Header, payload []byte) (Header, []byte) {
	n := Len(h)
	values := make([]int64, n)
	width := uint8(0)
	for i := uint32(0); i < n; i++ {
		v := Get(h, payload, i)
		values[i] = v
		if w := RequiredWidth(v); w > width {
			width = w
		}
	}

	out := make([]byte, WidthBitsPayloadSize(width, n))
	for i, v := range values {
		SetWidthBits(out, width, uint32(i), v)
	}

	nh := Header{
		IsInnerNode: h.IsInnerNode,
		HasRefs:     h.HasRefs,
		ContextFlag: h.ContextFlag,
		Encoding:    WidthBits,
		Width:       width,
		Size:        n,
		Cap:         uint32(len(out)),
	}
	return nh, out
}

// EncodeWidthBits builds the mutable, in-use encoding for values: a
// uniform-width WidthBits payload with no dictionary or extended
// header. C4 mutation paths (Set/Insert/Erase) build every new leaf in
// this encoding and then pass it straight to ChooseEncoding (through
// bptree.CompactLeaf) before the leaf's ref is stored in a parent.
func EncodeWidthBits(values []int64) (Header, []byte) {
	width := uint8(0)
	for _, v := range values {
		if w := RequiredWidth(v); w > width {
			width = w
		}
	}
	n := uint32(len(values))
	buf := make([]byte, WidthBitsPayloadSize(width, n))
	for i, v := range values {
		SetWidthBits(buf, width, uint32(i), v)
	}
	return Header{Encoding: WidthBits, Width: width, Size: n, Cap: uint32(len(buf))}, buf
}

// ChooseEncoding picks the commit-time encoding for a finished leaf's
// values (spec §4.3 "Encoding choice at commit"): Packed when a uniform
// width is strictly smaller than the WidthBits representation,
// otherwise Flex when its dictionary+index layout is smaller still,
// otherwise WidthBits is kept as-is.
func ChooseEncoding(values []int64) (Header, []byte) {
	widthBitsWidth := uint8(0)
	for _, v := range values {
		if w := RequiredWidth(v); w > widthBitsWidth {
			widthBitsWidth = w
		}
	}
	n := uint32(len(values))
	widthBitsSize := HeaderSize + int(WidthBitsPayloadSize(widthBitsWidth, n))

	packedHeader, packedBuf := EncodePacked(values)
	packedSize := HeaderSize + len(packedBuf)

	best := func() (Header, []byte) {
		wb := make([]byte, WidthBitsPayloadSize(widthBitsWidth, n))
		for i, v := range values {
			SetWidthBits(wb, widthBitsWidth, uint32(i), v)
		}
		return Header{Encoding: WidthBits, Width: widthBitsWidth, Size: n, Cap: uint32(len(wb))}, wb
	}

	if packedSize < widthBitsSize {
		flexHeader, flexBuf := EncodeFlex(values)
		flexSize := HeaderSize + len(flexBuf)
		if flexSize < packedSize {
			return flexHeader, flexBuf
		}
		return packedHeader, packedBuf
	}

	flexHeader, flexBuf := EncodeFlex(values)
	flexSize := HeaderSize + len(flexBuf)
	if flexSize < widthBitsSize {
		return flexHeader, flexBuf
	}
	return best()
}

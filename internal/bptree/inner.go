package bptree

import (
	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/bptree/codec"
)

// innerNode is a decoded, mutable view of an inner node: a ref to the
// cumulative-size table plus the child ref vector.
type innerNode struct {
	cumSizeRef arena.Ref
	children   []arena.Ref
	cumSizes   []uint64 // cached, loaded from cumSizeRef on demand
}

func readInner(a *arena.Arena, ref arena.Ref) (codec.Header, innerNode, error) {
	h, payload, err := readNode(a, ref)
	if err != nil {
		return codec.Header{}, innerNode{}, err
	}
	n := int(codec.Len(h))
	in := innerNode{
		cumSizeRef: arena.Ref(codec.GetWidthBitsUnsigned(payload, 64, 0)),
		children:   make([]arena.Ref, n),
	}
	childWords := payload[8:]
	for i := 0; i < n; i++ {
		in.children[i] = arena.Ref(codec.GetWidthBitsUnsigned(childWords, 64, uint32(i)))
	}
	return h, in, nil
}

// loadCumSizes loads (and caches) the cumulative-size table: entry i is
// the total element count under children 0..=i.
func loadCumSizes(a *arena.Arena, in *innerNode) error {
	if in.cumSizes != nil {
		return nil
	}
	h, payload, err := readNode(a, in.cumSizeRef)
	if err != nil {
		return err
	}
	n := int(codec.Len(h))
	sizes := make([]uint64, n)
	for i := 0; i < n; i++ {
		sizes[i] = uint64(codec.Get(h, payload, uint32(i)))
	}
	in.cumSizes = sizes
	return nil
}

// childForIndex finds the child covering global element index i and
// returns its position, the element offset within that child, and the
// count of elements strictly before that child.
func childForIndex(cumSizes []uint64, i uint64) (childIdx int, offsetInChild uint64, before uint64) {
	lo, hi := 0, len(cumSizes)
	for lo < hi {
		mid := (lo + hi) / 2
		if cumSizes[mid] > i {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	childIdx = lo
	if childIdx == 0 {
		before = 0
	} else {
		before = cumSizes[childIdx-1]
	}
	offsetInChild = i - before
	return
}

// encodeCumSizes allocates (or overwrites, via a fresh ref, per COW) a
// cumulative-size table node for sizes.
func encodeCumSizes(a *arena.Arena, sizes []uint64) (arena.Ref, error) {
	values := make([]int64, len(sizes))
	for i, s := range sizes {
		values[i] = int64(s)
	}
	h, payload := codec.EncodeWidthBits(values)
	return allocNode(a, h, payload)
}

// encodeInner allocates a new inner node with the given children and
// per-child element counts (not cumulative; encodeInner computes the
// running sum itself).
func encodeInner(a *arena.Arena, children []arena.Ref, childSizes []uint64, oldCumRef arena.Ref, version uint64) (arena.Ref, error) {
	n := len(children)
	cum := make([]uint64, n)
	var running uint64
	for i, s := range childSizes {
		running += s
		cum[i] = running
	}
	cumRef, err := encodeCumSizes(a, cum)
	if err != nil {
		return 0, err
	}
	if oldCumRef != 0 {
		if h, _, err := readNode(a, oldCumRef); err == nil {
			freeNode(a, oldCumRef, h, version)
		}
	}

	payload := make([]byte, 8+n*8)
	codec.SetWidthBitsUnsigned(payload, 64, 0, uint64(cumRef))
	childWords := payload[8:]
	for i, c := range children {
		codec.SetWidthBitsUnsigned(childWords, 64, uint32(i), uint64(c))
	}
	h := codec.Header{IsInnerNode: true, HasRefs: true, Encoding: codec.WidthBits, Width: 64, Size: uint32(n), Cap: uint32(len(payload))}
	return allocNode(a, h, payload)
}

package bptree

import (
	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/bptree/codec"
)

// decodeLeafValues expands a leaf's payload into a plain slice,
// regardless of its at-rest encoding.
func decodeLeafValues(h codec.Header, payload []byte) []int64 {
	n := codec.Len(h)
	values := make([]int64, n)
	for i := uint32(0); i < n; i++ {
		values[i] = codec.Get(h, payload, i)
	}
	return values
}

func insertAt(values []int64, pos int, v int64) []int64 {
	out := make([]int64, 0, len(values)+1)
	out = append(out, values[:pos]...)
	out = append(out, v)
	out = append(out, values[pos:]...)
	return out
}

func removeAt(values []int64, pos int) []int64 {
	out := make([]int64, 0, len(values)-1)
	out = append(out, values[:pos]...)
	out = append(out, values[pos+1:]...)
	return out
}

// encodeLeaf writes values in the simple WidthBits layout mutation
// logic assumes (spec §4.3: "on any mutation the decoder rewrites the
// leaf back to WidthBits"), then immediately hands the fresh node to
// CompactLeaf so the ref the caller embeds in its parent is already
// the commit-time encoding, never the throwaway WidthBits one.
func encodeLeaf(a *arena.Arena, values []int64, version uint64) (arena.Ref, error) {
	h, payload := codec.EncodeWidthBits(values)
	ref, err := allocNode(a, h, payload)
	if err != nil {
		return 0, err
	}
	return CompactLeaf(a, ref, version)
}

// CompactLeaf rewrites the leaf at ref into the smallest at-rest
// encoding (spec §4.3 "encoding choice at commit"): Packed when a
// uniform width beats WidthBits, Flex when cardinality is low enough,
// otherwise WidthBits is left as-is.
func CompactLeaf(a *arena.Arena, ref arena.Ref, version uint64) (arena.Ref, error) {
	h, payload, err := readNode(a, ref)
	if err != nil {
		return 0, err
	}
	if !isLeaf(h) {
		return ref, nil
	}
	values := decodeLeafValues(h, payload)
	nh, npayload := codec.ChooseEncoding(values)
	if len(npayload) >= len(payload) {
		return ref, nil
	}
	newRef, err := allocNode(a, nh, npayload)
	if err != nil {
		return 0, err
	}
	freeNode(a, ref, h, version)
	return newRef, nil
}

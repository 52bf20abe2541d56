// Package bptree implements the copy-on-write B+-tree "array" node
// (component C4): leaves of bit-packed values (delegated to
// internal/bptree/codec) and inner nodes carrying child refs plus a
// cumulative-size table. Inserts keep every leaf at the same depth;
// Erase's collapse rule replaces a single-child inner node at any level
// by its child, which can leave that path one level shallower than its
// siblings.
package bptree

import (
	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/bptree/codec"
	"github.com/gocoredb/coredb/internal/dbutil"
)

// MaxLeafSize is the upper bound on elements in a leaf before it splits
// (spec §4.4: "leaves hold between 0 and 1024 elements").
const MaxLeafSize = 1024

// MaxChildren is the upper bound on an inner node's child count before
// it splits (spec §4.4: "between 2 and 256 children").
const MaxChildren = 256

// innerFixedFields is the number of fixed fields at the start of an inner
// node's payload: one ref to the cumulative-size table, followed by n
// child refs.
const innerFixedFields = 1

// readNode loads the header and full payload for ref.
func readNode(a *arena.Arena, ref arena.Ref) (codec.Header, []byte, error) {
	hdrBuf, err := a.Translate(ref, codec.HeaderSize)
	if err != nil {
		return codec.Header{}, nil, err
	}
	h, err := codec.DecodeHeader(hdrBuf)
	if err != nil {
		return codec.Header{}, nil, err
	}
	if h.Cap == 0 {
		return h, nil, nil
	}
	payload, err := a.Translate(arena.Ref(uint64(ref)+codec.HeaderSize), uint64(h.Cap))
	if err != nil {
		return codec.Header{}, nil, err
	}
	return h, payload, nil
}

// allocNode writes header+payload into a freshly allocated block and
// returns its ref.
func allocNode(a *arena.Arena, h codec.Header, payload []byte) (arena.Ref, error) {
	total := uint64(codec.HeaderSize) + uint64(len(payload))
	ref, err := a.Alloc(total)
	if err != nil {
		return 0, err
	}
	buf, err := a.Translate(ref, total)
	if err != nil {
		return 0, err
	}
	h.WriteTo(buf)
	copy(buf[codec.HeaderSize:], payload)
	return ref, nil
}

// freeNode records the block backing ref (header+payload) on the
// writer's per-transaction free list, tagged with version.
func freeNode(a *arena.Arena, ref arena.Ref, h codec.Header, version uint64) {
	if ref == 0 {
		return
	}
	a.Free(ref, uint64(codec.HeaderSize)+uint64(h.Cap), version)
}

// isLeaf reports whether h describes a leaf node (spec §4.4: "a node is
// a leaf iff !is_inner_node").
func isLeaf(h codec.Header) bool { return !h.IsInnerNode }

func requireRefInRange(i, n uint64) error {
	if i >= n {
		return dbutil.New(dbutil.KindLogicError, "bptree index out of range")
	}
	return nil
}
